package pipeline

import (
	"strings"
	"unicode/utf8"
)

// splitMessage splits text into parts no longer than limit characters,
// preferring newline boundaries, then spaces, then a hard cut. Used to fit
// minutes into the delivery platform's message-size cap.
func splitMessage(text string, limit int) []string {
	if text == "" {
		return nil
	}

	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var parts []string
	remaining := text

	for len(remaining) > limit {
		cut := strings.LastIndex(remaining[:limit], "\n")
		if cut <= 0 {
			cut = strings.LastIndex(remaining[:limit], " ")
		}
		if cut <= 0 {
			// Hard cut on a rune boundary: text without spaces or
			// newlines (Japanese minutes, typically) must not be
			// split mid-rune
			cut = limit
			for cut > 0 && !utf8.RuneStart(remaining[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
		}

		parts = append(parts, strings.TrimSpace(remaining[:cut]))
		remaining = strings.TrimSpace(remaining[cut:])
	}

	if remaining != "" {
		parts = append(parts, remaining)
	}

	return parts
}
