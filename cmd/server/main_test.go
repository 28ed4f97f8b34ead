package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/toricodesthings/pdfmd/internal/config"
	"github.com/toricodesthings/pdfmd/internal/hybrid"
	"github.com/toricodesthings/pdfmd/internal/jobs"
	"github.com/toricodesthings/pdfmd/internal/types"
)

var secret = strings.Repeat("k", 32)

// fakePDF is long enough to pass the size floor and starts with the magic.
var fakePDF = append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("0"), 200)...)

type stubRunner struct{}

func (stubRunner) Convert(_ context.Context, input, outDir string, s types.Settings, _ hybrid.Callbacks) (types.ConversionResult, error) {
	data, err := os.ReadFile(input)
	if err != nil {
		return types.ConversionResult{}, err
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return types.ConversionResult{}, hybrid.ErrDocumentUnreadable
	}
	md := filepath.Join(outDir, "doc.md")
	content := "--- Page 1 ---\nconverted\n"
	if s.Dehyphenate {
		content = "--- Page 1 ---\ndehyphenated\n"
	}
	if err := os.WriteFile(md, []byte(content), 0o644); err != nil {
		return types.ConversionResult{}, err
	}
	return types.ConversionResult{
		MarkdownPath:   md,
		TotalPages:     1,
		ProcessedPages: 1,
		ExtractedPages: 1,
		Errors:         []string{},
		Pages:          []types.PageResult{{PageNumber: 1, Mode: types.ModeExtract, TextLength: 9}},
	}, nil
}

func (stubRunner) Cancel() {}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Conversion: types.DefaultSettings(),
		OCR:        config.OCRConfig{Engine: "tesseract"},
		Server: config.ServerConfig{
			InternalSharedSecret:  secret,
			MaxJSONBodyBytes:      1 << 20,
			MaxPDFBytes:           10 << 20,
			MaxConcurrentRequests: 4,
			MaxConcurrentJobs:     2,
			PrescanTimeout:        5 * time.Second,
			DownloadTimeout:       5 * time.Second,
			DownloadRetries:       2,
			RateLimitEvery:        time.Millisecond,
			RateLimitBurst:        100,
			JobRetention:          time.Hour,
			WorkDir:               t.TempDir(),
			HealthDegradeRatio:    0.9,
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*server, http.Handler) {
	t.Helper()
	s := newServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.retryDelay = time.Millisecond
	s.jobs = jobs.NewRegistry(func() jobs.Runner { return stubRunner{} }, jobs.Options{MaxConcurrent: 2})
	s.prescan = func(_ context.Context, path string, _ types.Settings) (bool, int, error) {
		if _, err := os.Stat(path); err != nil {
			return false, 0, err
		}
		return true, 7, nil
	}
	t.Cleanup(func() { _ = s.jobs.Shutdown(context.Background()) })
	return s, s.routes()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("X-Internal-Auth", secret)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

// pdfUpstream serves fakePDF after failing the first `failures` requests.
func pdfUpstream(t *testing.T, failures int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= failures {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(fakePDF)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t, testConfig(t))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "healthy" {
		t.Errorf("body = %v", body)
	}
}

func TestInternalAuth(t *testing.T) {
	_, h := newTestServer(t, testConfig(t))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("X-Internal-Auth", "wrong")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, ok := decode[map[string]any](t, rec)["jobs"]; !ok {
		t.Error("metrics missing jobs")
	}
}

func TestConvertJobLifecycle(t *testing.T) {
	_, h := newTestServer(t, testConfig(t))
	upstream, calls := pdfUpstream(t, 1)

	dehy := true
	rec := do(t, h, http.MethodPost, "/pdf/convert", types.ConvertRequest{
		PresignedURL: upstream.URL + "/doc.pdf",
		Options:      types.SettingsOverrides{Dehyphenate: &dehy},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	accepted := decode[types.ConvertAccepted](t, rec)
	if !accepted.Success || accepted.JobID == "" {
		t.Fatalf("accepted = %+v", accepted)
	}
	if calls.Load() != 2 {
		t.Errorf("upstream calls = %d, want one retry", calls.Load())
	}

	deadline := time.Now().Add(5 * time.Second)
	var st types.JobStatus
	for {
		rec = do(t, h, http.MethodGet, "/jobs/"+accepted.JobID, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		st = decode[types.JobStatus](t, rec)
		if st.Status == "completed" || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if st.Status != "completed" {
		t.Fatalf("job stuck in %q", st.Status)
	}
	if st.Markdown != "--- Page 1 ---\ndehyphenated\n" {
		t.Errorf("markdown = %q", st.Markdown)
	}
	if st.ExtractedPages != 1 || len(st.Pages) != 1 || st.Pages[0].Mode != "EXTRACT" {
		t.Errorf("status = %+v", st)
	}

	// cancelling a finished job is accepted and changes nothing
	rec = do(t, h, http.MethodPost, "/jobs/"+accepted.JobID+"/cancel", nil)
	if rec.Code != http.StatusAccepted || decode[types.JobStatus](t, rec).Status != "completed" {
		t.Errorf("cancel finished job: %d %s", rec.Code, rec.Body)
	}
}

func TestConvertValidation(t *testing.T) {
	_, h := newTestServer(t, testConfig(t))
	low := 10

	cases := []struct {
		name string
		body any
		code string
	}{
		{"missing url", types.ConvertRequest{}, "validation_failed"},
		{"bad scheme", types.ConvertRequest{PresignedURL: "ftp://example.com/a.pdf"}, "validation_failed"},
		{"low dpi", types.ConvertRequest{PresignedURL: "https://example.com/a.pdf", Options: types.SettingsOverrides{OCRDPI: &low}}, "validation_failed"},
		{"unknown field", map[string]any{"presignedUrl": "https://example.com/a.pdf", "extra": 1}, "bad_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/pdf/convert", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
			if got := decode[map[string]any](t, rec)["code"]; got != tc.code {
				t.Errorf("code = %v, want %s", got, tc.code)
			}
		})
	}
}

func TestConvertRejectsNonPDF(t *testing.T) {
	_, h := newTestServer(t, testConfig(t))

	t.Run("html error page", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html>expired</html>"))
		}))
		defer upstream.Close()

		rec := do(t, h, http.MethodPost, "/pdf/convert", types.ConvertRequest{PresignedURL: upstream.URL})
		if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "content-type") {
			t.Errorf("status = %d body = %s", rec.Code, rec.Body)
		}
	})

	t.Run("xml body served as octet-stream", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write(append([]byte("<?xml"), bytes.Repeat([]byte(" "), 200)...))
		}))
		defer upstream.Close()

		rec := do(t, h, http.MethodPost, "/pdf/convert", types.ConvertRequest{PresignedURL: upstream.URL})
		if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "not a PDF") {
			t.Errorf("status = %d body = %s", rec.Code, rec.Body)
		}
	})

	t.Run("not found is not retried", func(t *testing.T) {
		var calls atomic.Int32
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer upstream.Close()

		rec := do(t, h, http.MethodPost, "/pdf/convert", types.ConvertRequest{PresignedURL: upstream.URL})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})
}

func TestPrescanEndpoint(t *testing.T) {
	_, h := newTestServer(t, testConfig(t))
	upstream, _ := pdfUpstream(t, 0)

	rec := do(t, h, http.MethodPost, "/pdf/prescan", types.ConvertRequest{PresignedURL: upstream.URL})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	res := decode[types.PrescanResult](t, rec)
	if !res.Success || !res.NeedsOCR || res.TotalPages != 7 {
		t.Errorf("result = %+v", res)
	}
}

func TestJobNotFound(t *testing.T) {
	_, h := newTestServer(t, testConfig(t))

	if rec := do(t, h, http.MethodGet, "/jobs/missing", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/jobs/missing/cancel", nil); rec.Code != http.StatusNotFound {
		t.Errorf("cancel status = %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	_, h := newTestServer(t, testConfig(t))

	rec := do(t, h, http.MethodGet, "/pdf/convert", nil)
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != "POST" {
		t.Errorf("status = %d allow = %q", rec.Code, rec.Header().Get("Allow"))
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.RateLimitEvery = time.Hour
	cfg.Server.RateLimitBurst = 1
	_, h := newTestServer(t, cfg)

	first := do(t, h, http.MethodPost, "/pdf/convert", types.ConvertRequest{})
	if first.Code == http.StatusTooManyRequests {
		t.Fatal("first request limited")
	}
	second := do(t, h, http.MethodPost, "/pdf/convert", types.ConvertRequest{})
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", second.Code)
	}
}

func TestRecovery(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))
	h := s.withRecovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	if got := getClientIP(req); got != "10.0.0.1" {
		t.Errorf("remote addr ip = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	if got := getClientIP(req); got != "1.2.3.4" {
		t.Errorf("forwarded ip = %q", got)
	}
}
