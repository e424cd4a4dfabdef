package dispatch

import "unicode"

// chunkText splits text into fragments of n words each. Whitespace stays
// attached to the preceding fragment, so the fragments concatenate back to
// text exactly.
func chunkText(text string, n int) []string {
	if n <= 0 {
		n = DefaultChunkWords
	}
	var out []string
	start, words, inWord := 0, 0, false
	for i, r := range text {
		if unicode.IsSpace(r) {
			if inWord {
				inWord = false
				words++
			}
			continue
		}
		if !inWord {
			if words == n {
				out = append(out, text[start:i])
				start, words = i, 0
			}
			inWord = true
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
