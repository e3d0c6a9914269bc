package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMonth(t *testing.T) {
	month, err := ParseMonth("2026-01")
	require.NoError(t, err)
	assert.Equal(t, "2026-01", month)

	for _, bad := range []string{"", "2026", "2026-13", "2026-1", "01-2026", "2026-01-15"} {
		_, err := ParseMonth(bad)
		assert.Error(t, err, bad)
	}
}

func TestMonthBounds(t *testing.T) {
	start, end, err := MonthBounds("2026-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), end)

	// December rolls into the next year.
	start, end, err = MonthBounds("2025-12")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestPreviousMonth(t *testing.T) {
	assert.Equal(t, "2025-12", PreviousMonth(time.Date(2026, 1, 20, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-07", PreviousMonth(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)))
}

func TestValidTypes(t *testing.T) {
	for _, typ := range ItemTypes {
		assert.True(t, ValidItemType(typ))
		assert.True(t, ValidRuleType(typ))
	}
	assert.False(t, ValidItemType(TypeAll))
	assert.True(t, ValidRuleType(TypeAll))
	assert.False(t, ValidRuleType("WEEKLY"))
}
