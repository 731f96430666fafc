package util

import (
	"errors"
	"testing"
)

func TestDecodeJSONMap(t *testing.T) {
	m, err := DecodeJSONMap([]byte(`{"detail":"nope","code":42}`))
	if err != nil {
		t.Fatalf("DecodeJSONMap error: %v", err)
	}
	if s, ok := ToString(m["detail"]); !ok || s != "nope" {
		t.Errorf("detail = %v, want nope", m["detail"])
	}

	if _, err := DecodeJSONMap([]byte(`{"a":1} trailing`)); !errors.Is(err, ErrTrailingData) {
		t.Error("expected error for trailing content")
	}
	if _, err := DecodeJSONMap([]byte(`<html>502</html>`)); err == nil {
		t.Error("expected error for non-JSON body")
	}

	m, err = DecodeJSONMap([]byte(`null`))
	if err != nil {
		t.Fatalf("DecodeJSONMap(null) error: %v", err)
	}
	if m == nil || len(m) != 0 {
		t.Errorf("DecodeJSONMap(null) = %v, want empty map", m)
	}
}

func TestDisplayText(t *testing.T) {
	m, err := DecodeJSONMap([]byte(`{"s":"cat","n":3,"list":[1,2],"obj":{"k":"v"},"nil":null}`))
	if err != nil {
		t.Fatalf("DecodeJSONMap error: %v", err)
	}

	tests := []struct {
		key  string
		want string
	}{
		{"s", "cat"},
		{"n", "3"},
		{"list", "[1,2]"},
		{"obj", `{"k":"v"}`},
		{"nil", ""},
		{"missing", ""},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := DisplayText(m[tt.key]); got != tt.want {
				t.Errorf("DisplayText(%s) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestTruthy(t *testing.T) {
	m, err := DecodeJSONMap([]byte(`{"t":true,"f":false,"one":1,"zero":0,"zerof":0.0,"s":"yes","empty":"","list":[],"obj":{},"nil":null}`))
	if err != nil {
		t.Fatalf("DecodeJSONMap error: %v", err)
	}

	tests := []struct {
		key  string
		want bool
	}{
		{"t", true},
		{"f", false},
		{"one", true},
		{"zero", false},
		{"zerof", false},
		{"s", true},
		{"empty", false},
		{"list", true},
		{"obj", true},
		{"nil", false},
		{"missing", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := Truthy(m[tt.key]); got != tt.want {
				t.Errorf("Truthy(%s) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}
