package quality

import "strings"

// SignatureTokens is how many leading tokens make up a page signature.
const SignatureTokens = 20

// repeatMaxLen bounds the non-whitespace length of pages that may count as
// repeated boilerplate.
const repeatMaxLen = 120

// Signature fingerprints the leading tokens of a page's raw text. Case and
// punctuation do not affect it; it is empty when the text has no tokens.
func Signature(rawText string) string {
	toks := Tokens(rawText)
	if len(toks) > SignatureTokens {
		toks = toks[:SignatureTokens]
	}
	return strings.Join(toks, " ")
}

// Histogram counts page signatures seen during one run. It is not safe for
// concurrent use; each run owns its own.
type Histogram struct {
	counts map[string]int
}

func NewHistogram() *Histogram {
	return &Histogram{counts: make(map[string]int)}
}

// Count returns how often sig has been observed.
func (h *Histogram) Count(sig string) int {
	return h.counts[sig]
}

// Observe checks whether a page repeats an earlier short signature and then
// records it. The check happens before the count is incremented.
func (h *Histogram) Observe(sig string, nonWhitespaceLen int) bool {
	if sig == "" {
		return false
	}
	repeated := nonWhitespaceLen < repeatMaxLen && h.counts[sig] >= 1
	h.counts[sig]++
	return repeated
}

// Len returns the number of distinct signatures.
func (h *Histogram) Len() int {
	return len(h.counts)
}
