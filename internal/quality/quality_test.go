package quality

import (
	"strings"
	"testing"

	"github.com/toricodesthings/pdfmd/internal/types"
)

func TestAnalyze(t *testing.T) {
	t.Run("plain prose", func(t *testing.T) {
		q := Analyze("This page contains real paragraph text with meaningful words and sentences.", 4, 0.35, 0.05)
		if q.LooksGarbage {
			t.Errorf("prose flagged as garbage: %+v", q)
		}
		if q.UniqueTokenCount != 11 {
			t.Errorf("expected 11 unique tokens, got %d", q.UniqueTokenCount)
		}
		if q.AlphaRatio < 0.9 {
			t.Errorf("expected high alpha ratio, got %f", q.AlphaRatio)
		}
		if q.TextBlockCount != 4 {
			t.Errorf("expected 4 blocks, got %d", q.TextBlockCount)
		}
	})

	t.Run("whitespace only", func(t *testing.T) {
		q := Analyze("   \n\n", 0, 0, 0.9)
		if q.NonWhitespaceLen != 0 {
			t.Errorf("expected 0 non-whitespace, got %d", q.NonWhitespaceLen)
		}
		if q.RawTextLen != 5 {
			t.Errorf("expected raw length 5, got %d", q.RawTextLen)
		}
		if q.AlphaRatio != 0 || q.LoneCharTokenRatio != 0 {
			t.Errorf("expected zero ratios, got %+v", q)
		}
	})

	t.Run("lone characters look like garbage", func(t *testing.T) {
		q := Analyze("a b c d e f g h i j k l", 1, 0.1, 0)
		if !q.LooksGarbage {
			t.Errorf("expected garbage, got %+v", q)
		}
		if q.LoneCharTokenRatio != 1 {
			t.Errorf("expected lone ratio 1, got %f", q.LoneCharTokenRatio)
		}
	})

	t.Run("punctuation around lone characters is stripped", func(t *testing.T) {
		q := Analyze("(a) b, c. word", 1, 0, 0)
		if q.LoneCharTokenRatio != 0.75 {
			t.Errorf("expected 0.75, got %f", q.LoneCharTokenRatio)
		}
	})

	t.Run("control characters", func(t *testing.T) {
		q := Analyze("Normal text\x00\x01\x02 with enough words to pass", 1, 0, 0)
		if q.ControlCharRatio <= 0.02 {
			t.Fatalf("expected control ratio above 0.02, got %f", q.ControlCharRatio)
		}
		if !q.LooksGarbage {
			t.Error("expected garbage for control characters")
		}
	})

	t.Run("newlines and tabs are not control characters", func(t *testing.T) {
		q := Analyze("line one\nline two\r\n\tindented", 1, 0, 0)
		if q.ControlCharRatio != 0 {
			t.Errorf("expected 0, got %f", q.ControlCharRatio)
		}
	})

	t.Run("low letter density", func(t *testing.T) {
		q := Analyze("1234 5678 9012 3456 7890 1234 ##", 1, 0, 0)
		if !q.LooksGarbage {
			t.Errorf("expected garbage for numeric noise, got %+v", q)
		}
	})

	t.Run("geometry is clamped", func(t *testing.T) {
		q := Analyze("text", -3, 1.7, -0.2)
		if q.TextBlockCount != 0 || q.BBoxCoverage != 1 || q.ImageAreaRatio != 0 {
			t.Errorf("geometry not clamped: %+v", q)
		}
	})
}

func TestSignature(t *testing.T) {
	t.Run("case and punctuation insensitive", func(t *testing.T) {
		left := Signature(" Header:  Intro  2026! ")
		right := Signature("header intro 2026")
		if left != right {
			t.Errorf("expected %q == %q", left, right)
		}
		if left != "header intro 2026" {
			t.Errorf("unexpected signature %q", left)
		}
	})

	t.Run("empty without tokens", func(t *testing.T) {
		if sig := Signature(" -- !! "); sig != "" {
			t.Errorf("expected empty signature, got %q", sig)
		}
	})

	t.Run("truncated to leading tokens", func(t *testing.T) {
		words := make([]string, 30)
		for i := range words {
			words[i] = "w"
		}
		words[25] = "late"
		sig := Signature(strings.Join(words, " "))
		if n := len(strings.Fields(sig)); n != SignatureTokens {
			t.Errorf("expected %d tokens, got %d", SignatureTokens, n)
		}
		if strings.Contains(sig, "late") {
			t.Error("signature should not include tokens past the limit")
		}
	})
}

func TestHistogramObserve(t *testing.T) {
	h := NewHistogram()

	if h.Observe("chapter 7", 8) {
		t.Error("first sighting must not count as repeated")
	}
	if !h.Observe("chapter 7", 8) {
		t.Error("second short sighting should be repeated")
	}
	if h.Count("chapter 7") != 2 {
		t.Errorf("expected count 2, got %d", h.Count("chapter 7"))
	}
	if h.Observe("chapter 7", 500) {
		t.Error("long pages are never repeated boilerplate")
	}
	if h.Count("chapter 7") != 3 {
		t.Errorf("long page should still be counted, got %d", h.Count("chapter 7"))
	}
	if h.Observe("", 3) || h.Observe("", 3) {
		t.Error("empty signatures never repeat")
	}
	if h.Len() != 1 {
		t.Errorf("empty signature must not be recorded, got %d entries", h.Len())
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		blocks   int
		image    float64
		repeated bool
		want     bool
		reason   Reason
	}{
		{"structured prose", "This page contains real paragraph text with meaningful words and sentences.", 4, 0.05, false, false, ReasonStructuredText},
		{"near empty", "   \n\n", 0, 0.9, false, true, ReasonNoText},
		{"lone char garbage", "a b c d e f g h i j k l", 1, 0, false, true, ReasonGarbage},
		{"repeated header on image", "Chapter 7", 1, 0.65, true, true, ReasonNoText},
		{"caption over image", "Scanned photograph caption here", 1, 0.5, false, true, ReasonImageCaption},
		{"caption without image", "Scanned photograph caption here", 1, 0.1, false, false, ReasonStructuredText},
		{"repeated running header", "Annual Report of the Society for Historical Records", 1, 0.25, true, true, ReasonRepeatedHeader},
		{"unrepeated running header", "Annual Report of the Society for Historical Records", 1, 0.25, false, false, ReasonStructuredText},
		{"no layout blocks", "Some real words without any layout blocks at all", 0, 0, false, true, ReasonUnstructured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Analyze(tt.text, tt.blocks, 0.1, tt.image)
			d := Decide(q, tt.repeated)
			if d.NeedsOCR != tt.want {
				t.Errorf("NeedsOCR = %v, want %v (quality %+v)", d.NeedsOCR, tt.want, q)
			}
			if d.Reason != tt.reason {
				t.Errorf("Reason = %s, want %s", d.Reason, tt.reason)
			}
		})
	}
}

func TestDecideShortTextAlwaysOCR(t *testing.T) {
	samples := []string{"", "a", "Hello", "0123456789", "  word  word ", "!!!!!!!!!!"}
	for _, s := range samples {
		for _, repeated := range []bool{false, true} {
			q := Analyze(s, 10, 1, 0)
			if q.NonWhitespaceLen > 10 {
				t.Fatalf("sample %q too long for this property", s)
			}
			if !ShouldOCR(q, repeated) {
				t.Errorf("expected OCR for %q", s)
			}
		}
	}
}

func TestDecideGarbageAlwaysOCR(t *testing.T) {
	q := types.PageQuality{
		NonWhitespaceLen: 500,
		AlphaRatio:       0.9,
		UniqueTokenCount: 100,
		TextBlockCount:   12,
		LooksGarbage:     true,
	}
	if !ShouldOCR(q, false) {
		t.Error("garbage quality must select OCR")
	}
}
