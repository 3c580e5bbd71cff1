// log/slog.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package log

import (
	"fmt"
	"log/slog"
)

// AnyPointerSlice returns an Attr for a slice of pointers that logs the
// pointed-to values; slog.Any would just print the addresses.
func AnyPointerSlice[T any](key string, ptrs []*T) slog.Attr {
	strs := make([]string, 0, len(ptrs))
	for _, p := range ptrs {
		strs = append(strs, fmt.Sprintf("%v", p))
	}
	return slog.Any(key, strs)
}
