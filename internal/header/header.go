// Package header splits a narration script into its optional key/value header block
// and the speakable body.
//
// A header is a run of "key: value" lines terminated by the first "---". Everything
// after the delimiter is the body:
//
//	lang: es
//	voice: CwhRBWXzGAHq8TQ4Fs17
//	stability: 40
//	---
//	Welcome back to the show.
//
// The delimiter is matched anywhere in the text, not only on a line of its own, so a
// script whose prose contains "---" needs a leading "---" line of its own.
package header

import "strings"

// Delimiter separates the header block from the body.
const Delimiter = "---"

const keyValueSeparator = ":"

// Parse returns the header map and the trimmed body of raw. Keys are lower-cased.
// Lines without a separator are ignored, so Parse never fails.
func Parse(raw string) (map[string]string, string) {
	headers := make(map[string]string)

	block, body, found := strings.Cut(raw, Delimiter)
	if !found {
		return headers, strings.TrimSpace(raw)
	}

	for line := range strings.Lines(strings.TrimSpace(block)) {
		key, value, ok := strings.Cut(line, keyValueSeparator)
		if !ok {
			continue
		}

		headers[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}

	return headers, strings.TrimSpace(body)
}
