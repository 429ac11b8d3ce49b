package validation

import (
	"errors"
	"testing"

	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	AccountID uuid.UUID `json:"account_id" validate:"required"`
	Reason    string    `json:"reason" validate:"required,max=10"`
	Mode      string    `json:"mode" validate:"omitempty,oneof=auto manual"`
	Items     []string  `json:"items" validate:"max=2"`
}

func TestStruct(t *testing.T) {
	t.Run("valid request", func(t *testing.T) {
		err := Struct(sampleRequest{AccountID: uuid.New(), Reason: "typo", Mode: "auto"})
		assert.NoError(t, err)
	})

	t.Run("reports every failed field with json names", func(t *testing.T) {
		err := Struct(sampleRequest{Reason: "far too long a reason", Mode: "fifo"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInvalidInput))
		assert.Contains(t, err.Error(), "account_id: This field is required")
		assert.Contains(t, err.Error(), "reason: Must be at most 10 characters")
		assert.Contains(t, err.Error(), "mode: Must be one of: auto manual")
	})

	t.Run("slice length", func(t *testing.T) {
		err := Struct(sampleRequest{AccountID: uuid.New(), Reason: "x", Items: []string{"a", "b", "c"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "items: Must be at most 2")
	})

	t.Run("non-struct input", func(t *testing.T) {
		err := Struct("not a struct")
		require.Error(t, err)
		assert.Equal(t, shared.CodeInvalidInput, shared.ErrorCode(err))
	})
}
