// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// repair.go recovers a JSON array of reference records from the malformed
// output language models routinely produce: markdown fences, raw control
// characters, missing commas, and literal newlines inside string literals.
package structure

import (
	"encoding/json"
	"regexp"
	"strings"
)

// fenceRe matches a response wrapped in a single markdown code fence,
// optionally tagged (```json ... ```).
var fenceRe = regexp.MustCompile("(?s)^\\s*```[a-zA-Z0-9_-]*\\s*(.*?)\\s*```\\s*$")

// stripCodeFence removes one surrounding markdown code fence, if present.
func stripCodeFence(s string) string {
	if m := fenceRe.FindStringSubmatch(strings.TrimSpace(s)); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// cleanControlChars replaces raw control characters (code points below 32
// other than tab, LF, CR) with spaces so the JSON parser does not choke on
// garbage bytes.
func cleanControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Missing-comma shapes: adjacent values split across lines with no comma
// between them.
var (
	missingCommaStrObjRe = regexp.MustCompile(`"\s*\n\s*\{`)
	missingCommaStrStrRe = regexp.MustCompile(`"\s*\n\s*"`)
	missingCommaObjObjRe = regexp.MustCompile(`\}\s*\n\s*\{`)
	missingCommaObjStrRe = regexp.MustCompile(`\}\s*\n\s*"`)
	trailingCommaArrRe   = regexp.MustCompile(`\}\s*,?\s*\n\s*\]`)
)

// scanState tracks where the newline-escaping state machine is within the
// character stream. Model output is adversarial enough that this is the one
// place hand-rolled parsing is warranted.
type scanState int

const (
	stateOutsideString scanState = iota
	stateInsideString
	stateEscapePending
)

// fixStructure repairs common structural damage: it strips blank padding
// lines, re-inserts commas between adjacent values that ended up on
// separate lines, and escapes literal newlines inside string literals.
func fixStructure(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, ln := range lines {
		if trimmed := strings.TrimSpace(ln); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	s = strings.Join(kept, "\n")

	s = missingCommaStrObjRe.ReplaceAllString(s, "\",\n{")
	s = missingCommaStrStrRe.ReplaceAllString(s, "\",\n\"")
	s = missingCommaObjObjRe.ReplaceAllString(s, "},\n{")
	s = missingCommaObjStrRe.ReplaceAllString(s, "},\n\"")
	s = trailingCommaArrRe.ReplaceAllString(s, "}\n]")

	// Escape literal newlines that fall inside string literals, tracking
	// quote state explicitly.
	var b strings.Builder
	b.Grow(len(s))
	state := stateOutsideString
	for _, r := range s {
		switch state {
		case stateEscapePending:
			state = stateInsideString
			b.WriteRune(r)
		case stateInsideString:
			switch r {
			case '\\':
				state = stateEscapePending
				b.WriteRune(r)
			case '"':
				state = stateOutsideString
				b.WriteRune(r)
			case '\n':
				b.WriteString(`\n`)
			default:
				b.WriteRune(r)
			}
		default: // stateOutsideString
			if r == '"' {
				state = stateInsideString
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// cleanResponse runs the full repair chain over a raw model response.
func cleanResponse(raw string) string {
	s := stripCodeFence(raw)
	s = cleanControlChars(s)
	return fixStructure(s)
}

// wrapperKeys are object keys under which models sometimes nest the array
// they were asked to return bare.
var wrapperKeys = []string{"references", "data", "result", "items"}

// parseRecordArray attempts a direct JSON parse of cleaned text. The value
// may be the array itself or an object wrapping it under a known key.
func parseRecordArray(cleaned string) ([]rawReference, bool) {
	trimmed := strings.TrimSpace(cleaned)
	if trimmed == "" {
		return nil, false
	}

	var arr []rawReference
	if err := json.Unmarshal([]byte(trimmed), &arr); err == nil {
		return arr, true
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
		for _, key := range wrapperKeys {
			nested, ok := obj[key]
			if !ok {
				continue
			}
			if err := json.Unmarshal(nested, &arr); err == nil {
				return arr, true
			}
		}
	}

	return nil, false
}

// decodeResponse recovers the record array from a raw model response,
// applying progressively aggressive strategies: full cleaned text, then the
// outermost {...} span, then the outermost [...] span. It never returns an
// error; a false result means all strategies failed, which is an expected
// outcome given the upstream generator's unreliability.
func decodeResponse(raw string) ([]rawReference, bool) {
	if arr, ok := parseRecordArray(cleanResponse(raw)); ok {
		return arr, true
	}

	if span, ok := outermostSpan(raw, '{', '}'); ok {
		if arr, ok := parseRecordArray(cleanResponse(span)); ok {
			return arr, true
		}
	}

	if span, ok := outermostSpan(raw, '[', ']'); ok {
		if arr, ok := parseRecordArray(cleanResponse(span)); ok {
			return arr, true
		}
	}

	return nil, false
}

// outermostSpan returns the substring from the first open rune through the
// last close rune, when both exist in order.
func outermostSpan(s string, open, closing byte) (string, bool) {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, closing)
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
