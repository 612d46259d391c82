// Package parser extracts structured JSON from free-form provider replies.
//
// Vision models often wrap the JSON they were asked for in prose or a
// fenced code block. DecodeJSON locates the object anchored by a key and
// decodes it into the caller's type.
package parser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeJSON finds the JSON object in text that contains key and decodes it
// into target.
//
// Strategy:
//  1. Look for a ```json fenced code block that contains key.
//  2. Fall back to brace matching around the first occurrence of key,
//     respecting string literals and escaped quotes.
//
// Returns (false, nil) when key does not appear in text. Returns an error
// when an object is found but cannot be decoded.
func DecodeJSON(text, key string, target any) (bool, error) {
	if text == "" || !strings.Contains(text, key) {
		return false, nil
	}

	raw, err := fromCodeBlock(text, key)
	if err != nil {
		return false, err
	}
	if raw == "" {
		raw, err = byBraceMatch(text, key)
		if err != nil {
			return false, err
		}
	}
	if raw == "" {
		return false, nil
	}

	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return false, fmt.Errorf("decode json for %q: %w", key, err)
	}
	return true, nil
}

// fromCodeBlock returns the body of the first ```json block mentioning key.
func fromCodeBlock(text, key string) (string, error) {
	const fence = "```"
	remaining := text

	for {
		openIdx := strings.Index(remaining, fence+"json")
		if openIdx == -1 {
			return "", nil
		}

		blockStart := openIdx + len(fence+"json")
		if blockStart < len(remaining) && remaining[blockStart] == '\n' {
			blockStart++
		}

		closeIdx := strings.Index(remaining[blockStart:], fence)
		if closeIdx == -1 {
			return "", nil
		}

		block := strings.TrimSpace(remaining[blockStart : blockStart+closeIdx])
		if strings.Contains(block, key) {
			if !json.Valid([]byte(block)) {
				return "", fmt.Errorf("json in code block is malformed")
			}
			return block, nil
		}

		remaining = remaining[blockStart+closeIdx+len(fence):]
	}
}

// byBraceMatch isolates the object enclosing key, or failing that the
// first object after it.
func byBraceMatch(text, key string) (string, error) {
	keyIdx := strings.Index(text, key)
	if keyIdx == -1 {
		return "", nil
	}

	// Walk outward through enclosing braces until one forms a valid object.
	searchEnd := keyIdx
	for searchEnd > 0 {
		braceStart := strings.LastIndex(text[:searchEnd], "{")
		if braceStart < 0 {
			break
		}
		raw := text[braceStart:]
		if end, ok := matchBraces(raw); ok {
			candidate := raw[:end+1]
			if braceStart+end >= keyIdx && json.Valid([]byte(candidate)) {
				return candidate, nil
			}
		}
		searchEnd = braceStart
	}

	braceStart := strings.Index(text[keyIdx:], "{")
	if braceStart == -1 {
		return "", nil
	}
	raw := text[keyIdx+braceStart:]
	end, ok := matchBraces(raw)
	if !ok {
		return "", fmt.Errorf("unmatched braces after key %q", key)
	}
	return raw[:end+1], nil
}

// matchBraces returns the index of the '}' closing the '{' at position 0.
// Brace and bracket depth are tracked separately so arrays inside objects
// do not confuse the match.
func matchBraces(s string) (int, bool) {
	if len(s) == 0 || s[0] != '{' {
		return 0, false
	}

	braceDepth := 0
	bracketDepth := 0
	inString := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if inString {
			switch ch {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			braceDepth++
		case '}':
			braceDepth--
			if braceDepth == 0 && bracketDepth == 0 {
				return i, true
			}
		case '[':
			bracketDepth++
		case ']':
			bracketDepth--
		}
	}

	return 0, false
}
