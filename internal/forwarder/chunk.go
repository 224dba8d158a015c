package forwarder

import (
	"unicode"
)

// MaxMessageLength is the Bot API limit for one text message, in characters.
const MaxMessageLength = 4096

// Chunk splits text into pieces of at most maxLen characters. Each cut is
// made at the last newline at or before maxLen, or exactly at maxLen when
// there is none; whitespace at the start of the remainder is dropped. Empty
// input yields a single empty chunk. A non-positive maxLen means
// MaxMessageLength.
func Chunk(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = MaxMessageLength
	}

	rest := []rune(text)
	var chunks []string

	for len(rest) > maxLen {
		cut := lastNewline(rest, maxLen)
		if cut <= 0 {
			cut = maxLen
		}
		chunks = append(chunks, string(rest[:cut]))
		rest = trimLeftSpace(rest[cut:])
	}

	if len(rest) > 0 || len(chunks) == 0 {
		chunks = append(chunks, string(rest))
	}
	return chunks
}

// lastNewline returns the index of the last '\n' in r[:limit+1], or -1.
func lastNewline(r []rune, limit int) int {
	if limit >= len(r) {
		limit = len(r) - 1
	}
	for i := limit; i >= 0; i-- {
		if r[i] == '\n' {
			return i
		}
	}
	return -1
}

func trimLeftSpace(r []rune) []rune {
	i := 0
	for i < len(r) && unicode.IsSpace(r[i]) {
		i++
	}
	return r[i:]
}

// truncate shortens s to at most n characters.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
