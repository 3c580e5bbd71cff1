// util/util_test.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"slices"
	"testing"
)

func TestSelect(t *testing.T) {
	if Select(true, 1, 2) != 1 {
		t.Errorf("Select(true) returned the wrong value")
	}
	if Select(false, 1, 2) != 2 {
		t.Errorf("Select(false) returned the wrong value")
	}
	if Select(true, "a", "b") != "a" {
		t.Errorf("Select(true) returned the wrong value")
	}
}

func TestSortedMapKeys(t *testing.T) {
	m := map[int]string{
		3: "three",
		1: "one",
		2: "two",
		4: "four",
	}

	keys := SortedMapKeys(m)
	expected := []int{1, 2, 3, 4}

	if !slices.Equal(keys, expected) {
		t.Errorf("SortedMapKeys returned %v, expected %v", keys, expected)
	}
}

func TestByteCount(t *testing.T) {
	for _, c := range []struct {
		n        ByteCount
		expected string
	}{
		{0, "0 B"},
		{999, "999 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{3 * 1024 * 1024, "3.0 MiB"},
		{5 * 1024 * 1024 * 1024, "5.0 GiB"},
	} {
		if s := c.n.String(); s != c.expected {
			t.Errorf("%d: got %q, expected %q", int64(c.n), s, c.expected)
		}
	}
}
