package util

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ToInt attempts to coerce v into an int.
//
// Question ids arrive from the browser either as JSON numbers (json.Number
// when decoded with UseNumber) or as numeric strings.
func ToInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		if x != float64(int(x)) {
			return 0, false
		}
		return int(x), true
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
