// util/json_test.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"slices"
	"strings"
	"testing"
)

func TestFindDuplicateJSONKeys(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		expected []string
	}{
		{
			name:     "no duplicates",
			json:     `{"a": 1, "b": 2, "c": 3}`,
			expected: nil,
		},
		{
			name:     "simple duplicate at root",
			json:     `{"a": 1, "b": 2, "a": 3}`,
			expected: []string{"a"},
		},
		{
			name:     "duplicate in nested object",
			json:     `{"outer": {"inner": 1, "inner": 2}}`,
			expected: []string{"inner"},
		},
		{
			name:     "multiple duplicates at different levels",
			json:     `{"a": 1, "a": 2, "nested": {"b": 1, "b": 2}}`,
			expected: []string{"a", "b"},
		},
		{
			name:     "array with objects no duplicates",
			json:     `{"items": [{"x": 1}, {"x": 2}]}`,
			expected: nil,
		},
		{
			name:     "duplicate inside array element",
			json:     `{"items": [{"x": 1, "x": 2}]}`,
			expected: []string{"x"},
		},
		{
			name:     "same key in sibling objects is fine",
			json:     `{"a": {"k": 1}, "b": {"k": 2}}`,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FindDuplicateJSONKeys([]byte(tt.json))
			if !slices.Equal(result, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestUnmarshalJSONBytes(t *testing.T) {
	type record struct {
		To     string `json:"to"`
		Packet string `json:"packet"`
	}

	var r record
	if err := UnmarshalJSONBytes([]byte(`{"to":"EDDF","packet":"HI"}`), &r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.To != "EDDF" || r.Packet != "HI" {
		t.Errorf("got %+v", r)
	}

	// Syntax errors should be reported with their position.
	err := UnmarshalJSONBytes([]byte("{\n  \"to\": \"EDDF\",\n  \"packet\": }"), &r)
	if err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
	if !strings.Contains(err.Error(), "line 3") {
		t.Errorf("error doesn't locate the problem: %v", err)
	}

	if err := UnmarshalJSONBytes([]byte(`{"to": 11}`), &r); err == nil {
		t.Errorf("expected error for mistyped field")
	}
}
