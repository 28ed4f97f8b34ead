package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/toricodesthings/pdfmd/internal/version"
)

// downloadStatusError is a non-200 reply from the storage bucket.
type downloadStatusError struct{ code int }

func (e *downloadStatusError) Error() string {
	return fmt.Sprintf("download failed: HTTP %d", e.code)
}

// validatePDFMagic checks that a file starts with %PDF. Expired presigned
// URLs tend to return an XML or HTML error body with a 200.
func validatePDFMagic(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open for validation: %w", err)
	}
	defer f.Close()

	header := make([]byte, 5)
	n, err := io.ReadFull(f, header)
	if err != nil || n < 5 {
		return fmt.Errorf("downloaded file is too small to be a valid PDF")
	}

	if string(header[:4]) != "%PDF" {
		return fmt.Errorf("downloaded file is not a PDF (starts with %q); presigned URL may be expired or invalid", string(header[:n]))
	}
	return nil
}

// downloadPDFToTemp fetches url into a fresh directory, retrying transport
// errors and 5xx replies. cleanup removes the directory.
func (s *server) downloadPDFToTemp(ctx context.Context, url string) (path string, cleanup func(), err error) {
	cfg := s.config().Server

	tmpDir, err := os.MkdirTemp(s.workDir(), "pdfmd-*")
	if err != nil {
		return "", nil, fmt.Errorf("temp dir: %w", err)
	}
	cleanup = func() { _ = os.RemoveAll(tmpDir) }

	outPath := filepath.Join(tmpDir, "doc.pdf")

	client := &http.Client{
		Timeout: cfg.DownloadTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	err = retry.Do(
		func() error { return fetchTo(ctx, client, url, outPath, cfg.MaxPDFBytes) },
		retry.Context(ctx),
		retry.Attempts(uint(max(cfg.DownloadRetries, 0)+1)),
		retry.Delay(s.retryDelay),
		retry.RetryIf(func(err error) bool {
			if !retry.IsRecoverable(err) {
				return false
			}
			var se *downloadStatusError
			if errors.As(err, &se) {
				return se.code == http.StatusTooManyRequests || se.code >= 500
			}
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("download retry", "attempt", n+1, "error", sanitizeError(err))
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		cleanup()
		return "", nil, err
	}

	if err := validatePDFMagic(outPath); err != nil {
		cleanup()
		return "", nil, err
	}

	return outPath, cleanup, nil
}

// fetchTo performs one download attempt. Errors that another attempt cannot
// fix are marked unrecoverable.
func fetchTo(ctx context.Context, client *http.Client, url, outPath string, maxBytes int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("request: %w", err))
	}
	req.Header.Set("User-Agent", "pdfmd/"+version.GitRelease)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &downloadStatusError{code: resp.StatusCode}
	}

	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if ct != "" && !strings.Contains(ct, "pdf") && !strings.Contains(ct, "octet-stream") {
		return retry.Unrecoverable(fmt.Errorf("invalid content-type: %s", ct))
	}

	f, err := os.Create(outPath)
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("create: %w", err))
	}
	defer f.Close()

	lr := &io.LimitedReader{R: resp.Body, N: maxBytes + 1}
	n, err := io.Copy(f, lr)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if n > maxBytes {
		return retry.Unrecoverable(fmt.Errorf("PDF exceeds %dMB limit", maxBytes/(1<<20)))
	}
	if n < 100 {
		return retry.Unrecoverable(fmt.Errorf("PDF too small (likely invalid)"))
	}
	return nil
}
