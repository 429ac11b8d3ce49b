package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		expr    string
		want    Schedule
		wantErr bool
	}{
		{expr: "0 2 * * *", want: Schedule{Minute: 0, Hour: 2}},
		{expr: "30 3 1 * *", want: Schedule{Minute: 30, Hour: 3, DayOfMonth: 1}},
		{expr: " 15  23  28  *  * ", want: Schedule{Minute: 15, Hour: 23, DayOfMonth: 28}},
		{expr: "0 2 * *", wantErr: true},
		{expr: "0 2 * 1 *", wantErr: true},
		{expr: "0 2 * * 1", wantErr: true},
		{expr: "60 2 * * *", wantErr: true},
		{expr: "0 24 * * *", wantErr: true},
		{expr: "0 2 29 * *", wantErr: true},
		{expr: "0 2 0 * *", wantErr: true},
		{expr: "*/5 2 * * *", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := ParseSchedule(tt.expr)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSchedule)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMustParseSchedule_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParseSchedule("bad") })
	assert.NotPanics(t, func() { MustParseSchedule("0 0 * * *") })
}

func TestSchedule_Matches(t *testing.T) {
	daily := MustParseSchedule("30 2 * * *")
	assert.True(t, daily.Matches(time.Date(2026, 3, 14, 2, 30, 45, 0, time.UTC)))
	assert.False(t, daily.Matches(time.Date(2026, 3, 14, 2, 31, 0, 0, time.UTC)))
	assert.False(t, daily.Matches(time.Date(2026, 3, 14, 3, 30, 0, 0, time.UTC)))

	monthly := MustParseSchedule("0 3 1 * *")
	assert.True(t, monthly.Matches(time.Date(2026, 4, 1, 3, 0, 0, 0, time.UTC)))
	assert.False(t, monthly.Matches(time.Date(2026, 4, 2, 3, 0, 0, 0, time.UTC)))
}

func TestSchedule_Next(t *testing.T) {
	tests := []struct {
		name string
		expr string
		from time.Time
		want time.Time
	}{
		{
			name: "daily later today",
			expr: "0 2 * * *",
			from: time.Date(2026, 3, 14, 1, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC),
		},
		{
			name: "daily at the scheduled minute moves to tomorrow",
			expr: "0 2 * * *",
			from: time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 15, 2, 0, 0, 0, time.UTC),
		},
		{
			name: "daily across year end",
			expr: "0 2 * * *",
			from: time.Date(2026, 12, 31, 5, 0, 0, 0, time.UTC),
			want: time.Date(2027, 1, 1, 2, 0, 0, 0, time.UTC),
		},
		{
			name: "monthly this month",
			expr: "0 3 15 * *",
			from: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC),
		},
		{
			name: "monthly from the last day of january",
			expr: "0 3 1 * *",
			from: time.Date(2026, 1, 31, 9, 0, 0, 0, time.UTC),
			want: time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MustParseSchedule(tt.expr).Next(tt.from))
		})
	}
}

func TestSchedule_StringRoundTrip(t *testing.T) {
	for _, expr := range []string{"0 2 * * *", "30 3 1 * *"} {
		s := MustParseSchedule(expr)
		assert.Equal(t, expr, s.String())
		assert.Equal(t, s, MustParseSchedule(s.String()))
	}
}
