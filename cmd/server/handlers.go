package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	"github.com/toricodesthings/pdfmd/internal/hybrid"
	"github.com/toricodesthings/pdfmd/internal/jobs"
	"github.com/toricodesthings/pdfmd/internal/types"
	"github.com/toricodesthings/pdfmd/internal/version"
)

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cfg := s.config()
	_, active := s.metrics.get()
	status := "healthy"
	code := http.StatusOK

	ratio := cfg.Server.HealthDegradeRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.9
	}

	if active >= int64(float64(cfg.Server.MaxConcurrentRequests)*ratio) {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"active":  active,
		"version": version.GitRelease,
	})
}

func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	total, active := s.metrics.get()

	byState := map[string]int{}
	for state, n := range s.jobs.Counts() {
		byState[string(state)] = n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"activeRequests": active,
		"totalRequests":  total,
		"jobs":           byState,
		"goroutines":     runtime.NumGoroutine(),
		"memAllocMB":     m.Alloc / (1 << 20),
		"memSysMB":       m.Sys / (1 << 20),
	})
}

// handleConvert downloads the PDF and queues a conversion job. The job owns
// the download directory and removes it when it finishes.
func (s *server) handleConvert(w http.ResponseWriter, r *http.Request) {
	cfg := s.config()
	req, err := parseJSON[types.ConvertRequest](r, cfg.Server.MaxJSONBodyBytes)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", sanitizeError(err))
		return
	}

	if err := validateConvertRequest(req); err != nil {
		writeErr(w, http.StatusBadRequest, "validation_failed", sanitizeError(err))
		return
	}

	pdfPath, cleanup, err := s.downloadPDFToTemp(r.Context(), req.PresignedURL)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "download_failed", sanitizeError(err))
		return
	}

	id := s.jobs.Submit(r.Context(), jobs.Input{
		InputPath: pdfPath,
		OutputDir: filepath.Dir(pdfPath),
		Settings:  req.Options.Apply(cfg.Settings()),
		Cleanup:   cleanup,
	})
	s.logger.Info("job queued", "job", id)

	writeJSON(w, http.StatusAccepted, types.ConvertAccepted{Success: true, JobID: id})
}

func (s *server) handlePrescan(w http.ResponseWriter, r *http.Request) {
	cfg := s.config()
	req, err := parseJSON[types.ConvertRequest](r, cfg.Server.MaxJSONBodyBytes)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", sanitizeError(err))
		return
	}

	if err := validateConvertRequest(req); err != nil {
		writeErr(w, http.StatusBadRequest, "validation_failed", sanitizeError(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), cfg.Server.PrescanTimeout)
	defer cancel()

	pdfPath, cleanup, err := s.downloadPDFToTemp(ctx, req.PresignedURL)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "download_failed", sanitizeError(err))
		return
	}
	defer cleanup()

	needsOCR, total, err := s.prescan(ctx, pdfPath, req.Options.Apply(cfg.Settings()))
	if err != nil {
		msg := sanitizeError(err)
		status := http.StatusInternalServerError
		if errors.Is(err, hybrid.ErrDocumentUnreadable) || errors.Is(err, hybrid.ErrEmptyDocument) {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, types.PrescanResult{Success: false, Error: &msg})
		return
	}

	writeJSON(w, http.StatusOK, types.PrescanResult{Success: true, NeedsOCR: needsOCR, TotalPages: total})
}

func (s *server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.jobs.Status(r.PathValue("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "not_found", "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *server) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.jobs.Cancel(id); errors.Is(err, jobs.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "not_found", "Job not found")
		return
	}
	st, _ := s.jobs.Status(id)
	writeJSON(w, http.StatusAccepted, st)
}

// workDir is where downloads land; empty means the OS temp dir.
func (s *server) workDir() string {
	dir := s.config().Server.WorkDir
	if dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	return dir
}
