package echoapi

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FlexInt accepts a JSON number or a numeric string.
// Decoding never fails: Valid tells whether the value was numeric.
type FlexInt struct {
	Value int
	Set   bool
	Valid bool
}

func (fi *FlexInt) UnmarshalJSON(data []byte) error {
	*fi = FlexInt{}
	if string(data) == "null" {
		return nil
	}
	fi.Set = true

	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	switch v := raw.(type) {
	case float64:
		if v == float64(int(v)) {
			fi.Value, fi.Valid = int(v), true
		}
	case string:
		fi.Value, fi.Valid = parseNumber(v)
		fi.Set = strings.TrimSpace(v) != ""
	}
	return nil
}

// parseNumber parses a decimal integer, ignoring surrounding spaces.
func parseNumber(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	return n, err == nil
}
