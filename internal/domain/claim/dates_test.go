package claim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseBillDate(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"2024-05-01", "2024-05-01", true},
		{" 2024-5-1 ", "2024-05-01", true},
		{"01-05-2024", "2024-05-01", true},
		{"12-31-2024", "2024-12-31", true},
		{"2024/05/01", "2024-05-01", true},
		{"01/05/2024", "2024-05-01", true},
		{"05/31/2024", "2024-05-31", true},
		{"01/05/24", "2024-05-01", true},
		{"05/31/24", "2024-05-31", true},
		{"24/05/31", "2031-05-24", true},
		{"24-05-31", "2024-05-31", true},
		{"01/05/85", "2085-05-01", true},
		{"", "", false},
		{"May 1st", "", false},
		{"32/13/2024", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseBillDate(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got.Format("2006-01-02"))
			}
		})
	}
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 2, 28, 18, 0, 0, 0, time.UTC)
	b := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

	assert.Equal(t, 2, DaysBetween(a, b))
	assert.Equal(t, -2, DaysBetween(b, a))
	assert.True(t, SameDay(a, time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)))
}
