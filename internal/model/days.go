package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Days is a caller-supplied license duration. Clients send it as a number or
// a numeric string; fractional values are truncated. Set is false when the
// value was absent or could not be read as a number.
type Days struct {
	N   int
	Set bool
}

// DaysOf returns a set duration of n days.
func DaysOf(n int) Days {
	return Days{N: n, Set: true}
}

// ParseDays reads the leading integer of s, ignoring surrounding space and
// any trailing text ("7", "7.5", "7d" all give 7).
func ParseDays(s string) Days {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return Days{}
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return Days{}
	}
	return DaysOf(n)
}

// UnmarshalJSON accepts a number, a string, or null.
func (d *Days) UnmarshalJSON(data []byte) error {
	*d = Days{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		*d = ParseDays(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		// Booleans, objects and arrays are treated as absent.
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return nil
	}
	*d = DaysOf(int(f))
	return nil
}

// MarshalJSON writes the number, or null when unset.
func (d Days) MarshalJSON() ([]byte, error) {
	if !d.Set {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(d.N)), nil
}
