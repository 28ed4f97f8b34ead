package quality

import "github.com/toricodesthings/pdfmd/internal/types"

// Reason names the rule that produced a Decision.
type Reason string

const (
	ReasonNoText         Reason = "no_text"
	ReasonGarbage        Reason = "garbage_text"
	ReasonImageCaption   Reason = "short_text_on_image"
	ReasonRepeatedHeader Reason = "repeated_short_signature"
	ReasonStructuredText Reason = "structured_text"
	ReasonUnstructured   Reason = "unstructured_text"
)

type Decision struct {
	NeedsOCR bool
	Reason   Reason
}

// Decide applies the page-level OCR policy. The first matching rule wins.
func Decide(q types.PageQuality, repeatedShortSignature bool) Decision {
	switch {
	case q.NonWhitespaceLen <= 10:
		return Decision{NeedsOCR: true, Reason: ReasonNoText}
	case q.LooksGarbage:
		return Decision{NeedsOCR: true, Reason: ReasonGarbage}
	case q.NonWhitespaceLen < 35 && q.ImageAreaRatio >= 0.35:
		// scanned page carrying only a caption
		return Decision{NeedsOCR: true, Reason: ReasonImageCaption}
	case repeatedShortSignature && q.NonWhitespaceLen < 80 && q.ImageAreaRatio >= 0.2:
		// running header over a scanned page
		return Decision{NeedsOCR: true, Reason: ReasonRepeatedHeader}
	}

	if hasStructuredText(q) {
		return Decision{NeedsOCR: false, Reason: ReasonStructuredText}
	}
	return Decision{NeedsOCR: true, Reason: ReasonUnstructured}
}

// ShouldOCR is Decide reduced to its verdict.
func ShouldOCR(q types.PageQuality, repeatedShortSignature bool) bool {
	return Decide(q, repeatedShortSignature).NeedsOCR
}

func hasStructuredText(q types.PageQuality) bool {
	return q.TextBlockCount > 0 &&
		q.NonWhitespaceLen >= 18 &&
		q.AlphaRatio >= 0.2 &&
		q.UniqueTokenCount >= 3
}
