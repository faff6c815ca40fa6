// Package extract pulls structured payloads out of free-form model output.
// The heuristics favor recall over strictness: replies routinely wrap JSON in
// prose or markdown fences, and callers fall back gracefully when nothing
// structured is found.
package extract

import (
	"regexp"
	"strings"
)

var (
	// Fenced code block, optionally tagged json. (?s) so the body spans lines.
	fencedPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

	// <ce>...</ce> spans, case-insensitive, non-greedy.
	ceTagPattern = regexp.MustCompile(`(?is)<ce>(.*?)</ce>`)
)

// Payload extracts the sub-span of raw believed to contain a structured
// payload. Priority: fenced block, then the earliest of the first '[' or '{'
// paired with the LAST matching closer anywhere after it. The closing bracket
// is deliberately the rightmost occurrence, not the depth-balanced match:
// model output wraps JSON in prose, and the rightmost-close heuristic strips
// prefix/suffix chatter without a full parse. When nothing structured is
// found the raw text comes back unchanged and the caller treats that as
// extraction failure.
func Payload(raw string) string {
	if m := fencedPattern.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}

	openIdx := -1
	var closer byte
	bracketIdx := strings.IndexByte(raw, '[')
	braceIdx := strings.IndexByte(raw, '{')

	switch {
	case bracketIdx >= 0 && (braceIdx < 0 || bracketIdx < braceIdx):
		openIdx, closer = bracketIdx, ']'
	case braceIdx >= 0:
		openIdx, closer = braceIdx, '}'
	}

	if openIdx >= 0 {
		closeIdx := strings.LastIndexByte(raw, closer)
		if closeIdx > openIdx {
			return strings.TrimSpace(raw[openIdx : closeIdx+1])
		}
	}

	return raw
}

// TagSpan is one tagged conditional element within a larger text.
type TagSpan struct {
	// Full is the whole tagged span including markers.
	Full string

	// Inner is the content between the markers.
	Inner string
}

// Tags returns every <ce>-tagged span in raw, in order of appearance.
func Tags(raw string) []TagSpan {
	matches := ceTagPattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return nil
	}
	spans := make([]TagSpan, 0, len(matches))
	for _, m := range matches {
		spans = append(spans, TagSpan{Full: m[0], Inner: m[1]})
	}
	return spans
}
