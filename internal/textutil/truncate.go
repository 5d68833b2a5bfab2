package textutil

import (
	"strings"
	"unicode/utf8"
)

const ellipsis = "..."

// HeadRunes returns at most the first n runes of s, without any marker.
func HeadRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	for pos := range s {
		if n == 0 {
			return s[:pos]
		}
		n--
	}
	return s
}

// TruncateRunes cuts s to maxRunes runes for display. The cut form ends in
// "..." when there is room for it.
func TruncateRunes(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	if maxRunes <= len(ellipsis) {
		return HeadRunes(s, maxRunes)
	}
	return HeadRunes(s, maxRunes-len(ellipsis)) + ellipsis
}

// TruncateWords keeps the first maxWords whitespace-separated words. A cut
// text is re-joined with single spaces and ends in "..."; an uncut one is
// returned as is.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:max(maxWords, 0)], " ") + ellipsis
}

// FirstLine returns the first non-empty line of s.
func FirstLine(s string) string {
	s = strings.TrimLeft(s, "\r\n")
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSuffix(line, "\r")
}
