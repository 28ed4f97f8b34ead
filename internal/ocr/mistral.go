package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"
)

const (
	defaultMistralEndpoint = "https://api.mistral.ai/v1/ocr"
	defaultMistralModel    = "mistral-ocr-latest"
)

type OCRPage struct {
	Index    int    `json:"index"`    // 0-indexed
	Markdown string `json:"markdown"` // extracted markdown
}

type OCRResponse struct {
	Pages []OCRPage `json:"pages"`
}

// statusError is a non-2xx reply from the OCR API.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("mistral ocr error %d: %s", e.code, e.body)
}

// Mistral sends page images to the Mistral OCR API as PNG data URLs.
type Mistral struct {
	cfg     MistralConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewMistral falls back to $MISTRAL_API_KEY when cfg has no key.
func NewMistral(cfg MistralConfig) (*Mistral, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("MISTRAL_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: missing MISTRAL_API_KEY", ErrNotExecutable)
	}
	if cfg.Model == "" {
		cfg.Model = defaultMistralModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultMistralEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}

	m := &Mistral{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.RateLimit > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return m, nil
}

func (m *Mistral) Name() string { return "mistral" }

// Recognize ignores lang; the API detects the script itself.
func (m *Mistral) Recognize(ctx context.Context, img image.Image, _ string) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	body, err := json.Marshal(map[string]any{
		"model": m.cfg.Model,
		"document": map[string]any{
			"type":      "image_url",
			"image_url": dataURL,
		},
	})
	if err != nil {
		return "", err
	}

	var parsed OCRResponse
	err = retry.Do(
		func() error {
			if m.limiter != nil {
				if err := m.limiter.Wait(ctx); err != nil {
					return retry.Unrecoverable(err)
				}
			}
			var err error
			parsed, err = m.post(ctx, body)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(max(m.cfg.MaxRetries, 0)+1)),
		retry.Delay(500*time.Millisecond),
		retry.RetryIf(retryable),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", err
	}

	var parts []string
	for _, p := range parsed.Pages {
		md := strings.TrimSpace(p.Markdown)
		if md == "" || md == "." {
			continue
		}
		parts = append(parts, md)
	}
	return cleanOCRText(strings.Join(parts, "\n\n")), nil
}

func (m *Mistral) post(ctx context.Context, body []byte) (OCRResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return OCRResponse{}, retry.Unrecoverable(err)
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return OCRResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return OCRResponse{}, &statusError{code: resp.StatusCode, body: string(slurp)}
	}

	var parsed OCRResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return OCRResponse{}, fmt.Errorf("decode ocr response: %w", err)
	}
	return parsed, nil
}

// retryable retries transport failures, throttling and server errors.
func retryable(err error) bool {
	if !retry.IsRecoverable(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return true
}
