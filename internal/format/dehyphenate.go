package format

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Dehyphenate joins words split by a hyphen at a line break: a word character,
// "-\n" and another word character collapse into the two characters. Chains
// such as "a-\nb-\nc" are joined in one pass. Other bytes, including invalid
// UTF-8, are copied unchanged.
func Dehyphenate(text string) string {
	if !strings.Contains(text, "-\n") {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	prev := rune(-1)
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if r == '-' && isWordRune(prev) && strings.HasPrefix(text[i+size:], "\n") {
			next, _ := utf8.DecodeRuneInString(text[i+size+1:])
			if isWordRune(next) {
				i += size + 1
				continue
			}
		}
		b.WriteString(text[i : i+size])
		prev = r
		i += size
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
