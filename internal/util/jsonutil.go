package util

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// ErrTrailingData is returned when a JSON object is followed by more content.
var ErrTrailingData = errors.New("trailing data after JSON object")

// DecodeJSONMap decodes b as exactly one JSON object.
//
// Numbers stay json.Number so integer predictions are not rounded through
// float64. A literal null decodes to an empty map.
func DecodeJSONMap(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, ErrTrailingData
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}
