package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/toricodesthings/pdfmd/internal/config"
	"github.com/toricodesthings/pdfmd/internal/hybrid"
	"github.com/toricodesthings/pdfmd/internal/jobs"
	"github.com/toricodesthings/pdfmd/internal/ocr"
	"github.com/toricodesthings/pdfmd/internal/types"
	"github.com/toricodesthings/pdfmd/internal/version"
)

type serverMetrics struct {
	mu            sync.RWMutex
	totalRequests int64
	activeReqs    int64
}

func (m *serverMetrics) incActive() {
	m.mu.Lock()
	m.activeReqs++
	m.totalRequests++
	m.mu.Unlock()
}
func (m *serverMetrics) decActive() {
	m.mu.Lock()
	m.activeReqs--
	m.mu.Unlock()
}
func (m *serverMetrics) get() (total, active int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalRequests, m.activeReqs
}

type prescanFunc func(ctx context.Context, path string, s types.Settings) (needsOCR bool, totalPages int, err error)

type server struct {
	cfg    atomic.Pointer[config.Config]
	logger *slog.Logger

	requestSem *semaphore.Weighted
	metrics    serverMetrics

	// Per-IP rate limiters
	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter

	jobs       *jobs.Registry
	prescan    prescanFunc
	retryDelay time.Duration
}

func newServer(cfg *config.Config, logger *slog.Logger) *server {
	s := &server{
		logger:     logger,
		requestSem: semaphore.NewWeighted(max(cfg.Server.MaxConcurrentRequests, 1)),
		limiters:   make(map[string]*rate.Limiter),
		retryDelay: 500 * time.Millisecond,
	}
	s.cfg.Store(cfg)

	s.jobs = jobs.NewRegistry(func() jobs.Runner { return s.newProcessor() }, jobs.Options{
		MaxConcurrent: cfg.Server.MaxConcurrentJobs,
		Timeout:       cfg.Server.JobTimeout,
		Retention:     cfg.Server.JobRetention,
		Logger:        logger,
	})
	s.prescan = func(ctx context.Context, path string, st types.Settings) (bool, int, error) {
		return s.newProcessor().Prescan(ctx, path, st)
	}
	return s
}

func (s *server) config() *config.Config { return s.cfg.Load() }

// newProcessor builds a pipeline from the current configuration, so reloaded
// settings apply to the next job.
func (s *server) newProcessor() *hybrid.Processor {
	c := s.config()
	return hybrid.New(
		hybrid.WithLogger(s.logger),
		hybrid.WithOpener(hybrid.PopplerOpener(c.Tools())),
		hybrid.WithEngineFactory(hybrid.ResolveEngine(c.OCREngine())),
	)
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", s.withInternalAuth(s.handleMetrics))

	mux.HandleFunc("/pdf/convert",
		s.withInternalAuth(
			s.withRateLimit(
				withMethod("POST",
					s.withConcurrencyLimit(s.handleConvert)))))

	mux.HandleFunc("/pdf/prescan",
		s.withInternalAuth(
			s.withRateLimit(
				withMethod("POST",
					s.withConcurrencyLimit(s.handlePrescan)))))

	mux.HandleFunc("/jobs/{id}",
		s.withInternalAuth(
			withMethod("GET", s.handleJobStatus)))

	mux.HandleFunc("/jobs/{id}/cancel",
		s.withInternalAuth(
			withMethod("POST", s.handleJobCancel)))

	return s.withLogging(s.withRecovery(mux))
}

func main() {
	cfgFile := flag.String("config", "", "config file (default: ./pdfmd.yaml or ~/.pdfmd/pdfmd.yaml)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cm, err := config.NewManager(*cfgFile)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	cfg := cm.Get()
	if err := cfg.ValidateServer(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	s := newServer(cfg, logger)
	cm.OnChange(func(c *config.Config) {
		if err := c.ValidateServer(); err != nil {
			logger.Warn("ignoring invalid config reload", "error", err)
			return
		}
		s.cfg.Store(c)
		logger.Info("config reloaded", "file", cm.ConfigFile())
	})
	if cm.ConfigFile() != "" {
		cm.WatchConfig()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           s.routes(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxHeaderBytes:    max(cfg.Server.MaxHeaderBytes, 1<<10),
	}

	if cfg.OCR.Engine == ocr.EngineMistral && config.ResolveEnvVars(cfg.OCR.Mistral.APIKey) == "" {
		logger.Warn("MISTRAL_API_KEY not set (OCR will fail)")
	}

	go s.cleanupLoop(ctx)
	go s.jobs.RunJanitor(ctx, cfg.Server.CleanupInterval)

	go func() {
		logger.Info("pdfmd server listening",
			"addr", srv.Addr,
			"version", version.GitRelease,
			"max_concurrent_requests", cfg.Server.MaxConcurrentRequests,
			"max_concurrent_jobs", cfg.Server.MaxConcurrentJobs,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := s.jobs.Shutdown(shutdownCtx); err != nil {
		logger.Error("jobs did not stop in time", "error", err)
	}
}

// cleanupLoop logs runtime stats and drops per-IP limiters every interval.
func (s *server) cleanupLoop(ctx context.Context) {
	interval := s.config().Server.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		total, active := s.metrics.get()
		s.logger.Info("stats",
			"active", active,
			"total", total,
			"goroutines", runtime.NumGoroutine(),
			"mem_mb", m.Alloc/(1<<20),
		)

		s.limitersMu.Lock()
		s.limiters = make(map[string]*rate.Limiter)
		s.limitersMu.Unlock()
	}
}
