package condition

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DateHint is the only recognised value of a leaf's "type" key.
const DateHint = "Date"

var listSeparator = regexp.MustCompile(`,\s*`)

// Date is a calendar date without time of day or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate accepts ISO-8601 local dates (YYYY-MM-DD) only.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q is not an ISO-8601 date", ErrInvalidValue, s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Value binds the date as its ISO text; both SQLite and Postgres compare it against DATE columns.
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func isDateHint(hint string) bool {
	return strings.EqualFold(hint, DateHint)
}

// Coerce converts a decoded JSON scalar into a bindable value: a Date when
// hinted, else bool, int64 or string in that order.
func Coerce(raw any, hint string) (any, error) {
	if isDateHint(hint) {
		return coerceDate(raw)
	}
	switch v := raw.(type) {
	case bool:
		return v, nil
	case json.Number:
		if n, ok := integer(v); ok {
			return n, nil
		}
	case string:
		return v, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedValueType, describe(raw))
}

// CoerceList splits a comma-separated string into in-list members,
// parsing every member as a Date when hinted. A bare number is a
// one-member list holding its literal text.
func CoerceList(raw any, hint string) ([]any, error) {
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case json.Number:
		s = v.String()
	default:
		return nil, fmt.Errorf("%w: in expects a comma-separated string, got %s", ErrUnsupportedValueType, describe(raw))
	}

	tokens := splitList(s)
	values := make([]any, 0, len(tokens))
	for _, tok := range tokens {
		if !isDateHint(hint) {
			values = append(values, tok)
			continue
		}
		d, err := ParseDate(tok)
		if err != nil {
			return nil, err
		}
		values = append(values, d)
	}
	return values, nil
}

// splitList splits on ",\s*" and drops trailing empty members.
func splitList(s string) []string {
	tokens := listSeparator.Split(s, -1)
	if len(tokens) == 1 {
		return tokens
	}
	for len(tokens) > 0 && tokens[len(tokens)-1] == "" {
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

// CoerceRange converts between bounds: Dates when hinted, otherwise a pair
// of int64 when both are whole numbers, or float64 when either has a fraction.
func CoerceRange(start, end any, hint string) (any, any, error) {
	if isDateHint(hint) {
		s, err := coerceDate(start)
		if err != nil {
			return nil, nil, err
		}
		e, err := coerceDate(end)
		if err != nil {
			return nil, nil, err
		}
		return s, e, nil
	}

	sn, ok := start.(json.Number)
	if !ok {
		return nil, nil, fmt.Errorf("%w: between bound %s, expected a number", ErrUnsupportedValueType, describe(start))
	}
	en, ok := end.(json.Number)
	if !ok {
		return nil, nil, fmt.Errorf("%w: between bound %s, expected a number", ErrUnsupportedValueType, describe(end))
	}

	si, sInt := integer(sn)
	ei, eInt := integer(en)
	if sInt && eInt {
		return si, ei, nil
	}

	sf, err := sn.Float64()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: between bound %s", ErrUnsupportedValueType, sn)
	}
	ef, err := en.Float64()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: between bound %s", ErrUnsupportedValueType, en)
	}
	return sf, ef, nil
}

// likePattern returns the raw value verbatim as a LIKE pattern.
func likePattern(raw any, _ string) (any, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	}
	return nil, fmt.Errorf("%w: like expects a string pattern, got %s", ErrUnsupportedValueType, describe(raw))
}

func coerceDate(raw any) (Date, error) {
	s, ok := raw.(string)
	if !ok {
		return Date{}, fmt.Errorf("%w: date expected as a string, got %s", ErrInvalidValue, describe(raw))
	}
	return ParseDate(s)
}

// integer reports whether n is written as a whole number that fits in int64.
func integer(n json.Number) (int64, bool) {
	if strings.ContainsAny(n.String(), ".eE") {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return i, true
}
