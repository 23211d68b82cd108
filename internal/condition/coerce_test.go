package condition

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoercePriority(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		hint string
		want any
	}{
		{"date hint wins", "2000-12-25", "Date", Date{2000, time.December, 25}},
		{"date hint is case-insensitive", "1982-08-25", "date", Date{1982, time.August, 25}},
		{"boolean", false, "", false},
		{"integer", json.Number("390"), "", int64(390)},
		{"negative integer", json.Number("-7"), "", int64(-7)},
		{"string", "The Planet Heroes", "", "The Planet Heroes"},
		{"date-looking string without hint", "2000-12-25", "", "2000-12-25"},
		{"unknown hint is ignored", json.Number("5"), "Money", int64(5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.raw, tt.hint)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerceRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		hint string
		want error
	}{
		{"null", nil, "", ErrUnsupportedValueType},
		{"fraction", json.Number("3.5"), "", ErrUnsupportedValueType},
		{"exponent", json.Number("1e3"), "", ErrUnsupportedValueType},
		{"out of int64 range", json.Number("99999999999999999999"), "", ErrUnsupportedValueType},
		{"object", map[string]any{"a": "b"}, "", ErrUnsupportedValueType},
		{"array", []any{"a"}, "", ErrUnsupportedValueType},
		{"impossible date", "2000-13-40", "Date", ErrInvalidValue},
		{"short date", "2000-1-5", "Date", ErrInvalidValue},
		{"number with date hint", json.Number("20001225"), "Date", ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Coerce(tt.raw, tt.hint)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDateRoundTrip(t *testing.T) {
	for _, s := range []string{"2000-12-25", "0999-01-01", "2024-02-29"} {
		d, err := ParseDate(s)
		require.NoError(t, err)
		assert.Equal(t, s, d.String())

		v, err := d.Value()
		require.NoError(t, err)
		assert.Equal(t, s, v)
	}
}

func TestDateOf(t *testing.T) {
	ts := time.Date(2005, time.December, 20, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "2005-12-20", DateOf(ts).String())
}

func TestCoerceList(t *testing.T) {
	got, err := CoerceList("1, 2,3,   4", "")
	require.NoError(t, err)
	assert.Equal(t, []any{"1", "2", "3", "4"}, got)

	got, err = CoerceList("2005-12-20, 1982-08-25", "Date")
	require.NoError(t, err)
	assert.Equal(t, []any{
		Date{2005, time.December, 20},
		Date{1982, time.August, 25},
	}, got)

	got, err = CoerceList("a, b, ", "")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, got)

	got, err = CoerceList("single", "")
	require.NoError(t, err)
	assert.Equal(t, []any{"single"}, got)

	got, err = CoerceList(json.Number("7"), "")
	require.NoError(t, err)
	assert.Equal(t, []any{"7"}, got)
}

func TestCoerceListRejects(t *testing.T) {
	_, err := CoerceList(true, "")
	assert.ErrorIs(t, err, ErrUnsupportedValueType)

	_, err = CoerceList(json.Number("20051220"), "Date")
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = CoerceList("2005-12-20, yesterday", "Date")
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestCoerceRange(t *testing.T) {
	tests := []struct {
		name       string
		start, end any
		hint       string
		wantStart  any
		wantEnd    any
	}{
		{"integers", json.Number("18"), json.Number("28"), "", int64(18), int64(28)},
		{"fractions", json.Number("1.5"), json.Number("2.25"), "", 1.5, 2.25},
		{"mixed becomes float", json.Number("1"), json.Number("2.5"), "", 1.0, 2.5},
		{"dates", "1999-06-01", "2003-12-01", "Date", Date{1999, time.June, 1}, Date{2003, time.December, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, e, err := CoerceRange(tt.start, tt.end, tt.hint)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, s)
			assert.Equal(t, tt.wantEnd, e)
		})
	}
}

func TestCoerceRangeRejects(t *testing.T) {
	tests := []struct {
		name       string
		start, end any
		hint       string
		want       error
	}{
		{"strings", "a", "z", "", ErrUnsupportedValueType},
		{"booleans", false, true, "", ErrUnsupportedValueType},
		{"null bound", json.Number("1"), nil, "", ErrUnsupportedValueType},
		{"bad date", "1999-06-01", "2003-13-01", "Date", ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := CoerceRange(tt.start, tt.end, tt.hint)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
