package quality

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/toricodesthings/pdfmd/internal/types"
)

var tokenRe = regexp.MustCompile(`[A-Za-z0-9']+`)

// Characters trimmed from whitespace-split tokens before the lone-char test.
const loneCharTrim = ".,;:!?\"'()[]{}"

// Analyze scores the native text layer of a page. Geometry inputs come from
// the document backend and are only clamped.
func Analyze(rawText string, textBlockCount int, bboxCoverage, imageAreaRatio float64) types.PageQuality {
	rawLen := 0
	nonWS := 0
	alpha := 0
	control := 0
	for _, r := range rawText {
		rawLen++
		if isControl(r) {
			control++
		}
		if unicode.IsSpace(r) {
			continue
		}
		nonWS++
		if unicode.IsLetter(r) {
			alpha++
		}
	}

	alphaRatio := ratio(alpha, nonWS)
	controlRatio := ratio(control, rawLen)
	uniqueTokens := countUniqueTokens(rawText)
	loneRatio := loneCharTokenRatio(rawText)

	looksGarbage := controlRatio > 0.02 ||
		(loneRatio > 0.8 && nonWS >= 10) ||
		(loneRatio > 0.55 && uniqueTokens < 8) ||
		(nonWS >= 20 && alphaRatio < 0.12)

	return types.PageQuality{
		RawTextLen:         rawLen,
		NonWhitespaceLen:   nonWS,
		AlphaRatio:         alphaRatio,
		UniqueTokenCount:   uniqueTokens,
		TextBlockCount:     max(textBlockCount, 0),
		BBoxCoverage:       clamp(bboxCoverage, 0, 1),
		ImageAreaRatio:     clamp(imageAreaRatio, 0, 1),
		ControlCharRatio:   controlRatio,
		LoneCharTokenRatio: loneRatio,
		LooksGarbage:       looksGarbage,
	}
}

// Tokens returns the lower-cased word tokens of s in order.
func Tokens(s string) []string {
	return tokenRe.FindAllString(strings.ToLower(s), -1)
}

func countUniqueTokens(s string) int {
	toks := Tokens(s)
	set := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		set[t] = struct{}{}
	}
	return len(set)
}

// loneCharTokenRatio is the share of whitespace-separated tokens that are a
// single letter or digit once surrounding punctuation is stripped.
func loneCharTokenRatio(s string) float64 {
	words := strings.Fields(s)
	lone := 0
	for _, w := range words {
		if isLoneChar(w) {
			lone++
		}
	}
	return ratio(lone, len(words))
}

func isLoneChar(tok string) bool {
	trimmed := []rune(strings.Trim(tok, loneCharTrim))
	if len(trimmed) != 1 {
		return false
	}
	return unicode.IsLetter(trimmed[0]) || unicode.IsNumber(trimmed[0])
}

// isControl reports Unicode "Other" category runes, ignoring line breaks and tabs.
func isControl(r rune) bool {
	if r == '\n' || r == '\r' || r == '\t' {
		return false
	}
	return unicode.Is(unicode.C, r)
}

func ratio(n, d int) float64 {
	return clamp(float64(n)/float64(max(d, 1)), 0, 1)
}

func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	return math.Max(lo, math.Min(hi, x))
}
