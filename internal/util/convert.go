package util

import (
	"encoding/json"
	"fmt"
)

// ToString attempts to coerce v into a string.
func ToString(v any) (string, bool) {
	s, ok := v.(string)
	if ok {
		return s, true
	}
	return "", false
}

// Truthy applies JavaScript truthiness to a decoded JSON value. null, false,
// 0 and "" are false. Arrays and objects are true even when empty.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	case float64:
		return x != 0
	default:
		return true
	}
}

// DisplayText renders a decoded JSON value as text for the UI.
//
// Strings are returned verbatim; anything else is returned as compact JSON.
// nil renders as the empty string.
func DisplayText(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := ToString(v); ok {
		return s
	}
	return MustJSON(v)
}

// MustJSON encodes a JSON value for display and logging.
func MustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<json error: %v>", err)
	}
	return string(b)
}
