// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

// FirstJSONObject scans text for the first balanced top-level JSON
// object and returns its bytes. Models asked for structured answers
// routinely wrap them in prose or markdown fences; callers unmarshal
// the returned slice rather than the raw completion. Returns false
// when no complete object is present.
//
// The scan respects string literals and escape sequences, so braces
// inside quoted values do not affect nesting depth. Whether the
// returned bytes are valid JSON is the caller's unmarshal to decide;
// this function only balances braces.
func FirstJSONObject(text string) ([]byte, bool) {
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				return []byte(text[start : i+1]), true
			}
		}
	}
	return nil, false
}
