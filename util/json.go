// util/json.go
// Copyright(c) 2025 hoppiebridge contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

///////////////////////////////////////////////////////////////////////////
// JSON

// FindDuplicateJSONKeys scans JSON content and returns all duplicated
// object keys found. It uses the json.Decoder token-based API to walk the
// JSON structure while tracking seen keys at each object nesting level.
func FindDuplicateJSONKeys(data []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(data))
	var duplicates []string

	type stackEntry struct {
		isObject  bool            // true for object, false for array
		seenKeys  map[string]bool // keys seen at this level (only for objects)
		expectKey bool            // true if next string token is an object key
	}
	var stack []stackEntry

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}

		switch v := tok.(type) {
		case json.Delim:
			switch v {
			case '{':
				stack = append(stack, stackEntry{
					isObject:  true,
					seenKeys:  make(map[string]bool),
					expectKey: true,
				})
			case '[':
				stack = append(stack, stackEntry{})
			case '}', ']':
				stack = stack[:len(stack)-1]
				// After closing a container that was an object value, the
				// parent expects a key next.
				if len(stack) > 0 && stack[len(stack)-1].isObject {
					stack[len(stack)-1].expectKey = true
				}
			}

		case string:
			if len(stack) > 0 && stack[len(stack)-1].isObject {
				entry := &stack[len(stack)-1]
				if entry.expectKey {
					if entry.seenKeys[v] {
						duplicates = append(duplicates, v)
					}
					entry.seenKeys[v] = true
					entry.expectKey = false
				} else {
					entry.expectKey = true
				}
			}

		default:
			// Non-string scalar value; if we're in an object it completes
			// a key/value pair.
			if len(stack) > 0 && stack[len(stack)-1].isObject {
				stack[len(stack)-1].expectKey = true
			}
		}
	}

	return duplicates
}

func UnmarshalJSON[T any](r io.Reader, out *T) error {
	// Unfortunately we need the contents as an array of bytes so that we
	// can issue reasonable errors.
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return UnmarshalJSONBytes(b, out)
}

// Unmarshal the bytes into the given type but go through some efforts to
// return useful error messages when the JSON is invalid...
func UnmarshalJSONBytes[T any](b []byte, out *T) error {
	err := json.Unmarshal(b, out)
	if err == nil {
		return nil
	}

	decodeOffset := func(offset int64) (line, char int) {
		line, char = 1, 1
		for i := 0; i < int(offset) && i < len(b); i++ {
			if b[i] == '\n' {
				line++
				char = 1
			} else {
				char++
			}
		}
		return
	}

	switch jerr := err.(type) {
	case *json.SyntaxError:
		line, char := decodeOffset(jerr.Offset)
		return fmt.Errorf("Error at line %d, character %d: %v", line, char, jerr)

	case *json.UnmarshalTypeError:
		line, char := decodeOffset(jerr.Offset)
		return fmt.Errorf("Error at line %d, character %d: %s value for %s.%s invalid for type %s",
			line, char, jerr.Value, jerr.Struct, jerr.Field, jerr.Type.String())

	default:
		return err
	}
}
