package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2026-09")
	require.NoError(t, err)
	assert.Equal(t, "2026-09", p.String())
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), p.Start())
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), p.End())
	assert.Equal(t, "2025-09", p.AddMonths(-12).String())
	assert.Equal(t, "2027-01", p.AddMonths(4).String())
	assert.True(t, p.Contains(time.Date(2026, 9, 30, 23, 0, 0, 0, time.UTC)))
	assert.False(t, p.Contains(p.End()))

	for _, bad := range []string{"", "2026-13", "26-09", "2026/09"} {
		_, err := ParsePeriod(bad)
		assert.Error(t, err, bad)
	}
}
