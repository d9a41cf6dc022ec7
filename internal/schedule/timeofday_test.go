package schedule

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	v, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(9*60+30), v)
	assert.Equal(t, "09:30", v.String())

	_, err = ParseTimeOfDay("9am")
	assert.Error(t, err)
	_, err = ParseTimeOfDay("25:00")
	assert.Error(t, err)
}

func TestTimeOfDayAdd(t *testing.T) {
	v, err := ParseTimeOfDay("11:45")
	require.NoError(t, err)
	assert.Equal(t, "12:15", v.Add(30).String())
}

func TestTimeOfDayJSONRoundTrip(t *testing.T) {
	v, err := ParseTimeOfDay("14:00")
	require.NoError(t, err)

	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `"14:00"`, string(data))

	var back TimeOfDay
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, v, back)

	assert.Error(t, json.Unmarshal([]byte(`123`), &back))
}

func TestISOWeekday(t *testing.T) {
	// 2024-01-15 is a Monday.
	monday := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, ISOWeekday(monday))
	assert.Equal(t, 6, ISOWeekday(monday.AddDate(0, 0, 5)))
	assert.Equal(t, 7, ISOWeekday(monday.AddDate(0, 0, 6)))
	assert.Equal(t, 1, ISOWeekday(monday.AddDate(0, 0, 7)))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("15/01/2024")
	assert.Error(t, err)
	_, err = ParseDate("")
	assert.Error(t, err)
}

func TestOverlaps(t *testing.T) {
	a, b, c, d := TimeOfDay(540), TimeOfDay(570), TimeOfDay(570), TimeOfDay(600)

	// Adjacent half-open intervals do not overlap.
	assert.False(t, overlaps(a, b, c, d))
	assert.False(t, overlaps(c, d, a, b))

	assert.True(t, overlaps(a, d, b, c))
	assert.True(t, overlaps(a, c, b, d))
	assert.True(t, overlaps(a, b, a, b))
}
