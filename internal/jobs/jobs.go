// Package jobs runs conversions in the background for the HTTP service.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/toricodesthings/pdfmd/internal/hybrid"
	"github.com/toricodesthings/pdfmd/internal/types"
)

type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

func (s State) Finished() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// ErrNotFound is returned for unknown or pruned job IDs.
var ErrNotFound = errors.New("job not found")

// Runner is one conversion pipeline. hybrid.Processor satisfies it.
type Runner interface {
	Convert(ctx context.Context, inputPath, outputDir string, s types.Settings, cb hybrid.Callbacks) (types.ConversionResult, error)
	Cancel()
}

// Input describes the work for one job. Cleanup, when set, runs once the job
// has finished and its Markdown has been read back.
type Input struct {
	InputPath string
	OutputDir string
	Settings  types.Settings
	Cleanup   func()
}

type Options struct {
	MaxConcurrent int64
	Timeout       time.Duration
	Retention     time.Duration
	Logger        *slog.Logger
}

type job struct {
	id       string
	state    State
	runner   Runner
	cancel   context.CancelFunc
	progress *types.ProgressEvent
	result   *types.ConversionResult
	markdown string
	err      error
	created  time.Time
	finished time.Time
}

// Registry tracks jobs and bounds how many convert at once.
type Registry struct {
	mu        sync.Mutex
	jobs      map[string]*job
	sem       *semaphore.Weighted
	newRunner func() Runner
	opts      Options
	logger    *slog.Logger
	wg        sync.WaitGroup
}

func NewRegistry(newRunner func() Runner, opts Options) *Registry {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.Retention <= 0 {
		opts.Retention = time.Hour
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		jobs:      make(map[string]*job),
		sem:       semaphore.NewWeighted(opts.MaxConcurrent),
		newRunner: newRunner,
		opts:      opts,
		logger:    logger.With("component", "jobs"),
	}
}

// Submit queues a conversion and returns its job ID. The job outlives the
// caller's request; ctx only contributes its values.
func (r *Registry) Submit(ctx context.Context, in Input) string {
	jctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if r.opts.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		jctx, cancelTimeout = context.WithTimeout(jctx, r.opts.Timeout)
		prev := cancel
		cancel = func() { cancelTimeout(); prev() }
	}

	j := &job{
		id:      uuid.NewString(),
		state:   StateQueued,
		runner:  r.newRunner(),
		cancel:  cancel,
		created: time.Now(),
	}

	r.mu.Lock()
	r.jobs[j.id] = j
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(jctx, j, in)
	return j.id
}

func (r *Registry) run(ctx context.Context, j *job, in Input) {
	defer r.wg.Done()
	defer j.cancel()
	if in.Cleanup != nil {
		defer in.Cleanup()
	}
	logger := r.logger.With("job", j.id)

	if err := r.sem.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			r.finish(j, StateFailed, nil, "", fmt.Errorf("job timed out after %s while queued", r.opts.Timeout))
			return
		}
		r.finish(j, StateCancelled, nil, "", nil)
		logger.Info("job cancelled while queued")
		return
	}
	defer r.sem.Release(1)

	r.mu.Lock()
	if j.state == StateQueued {
		j.state = StateRunning
	}
	r.mu.Unlock()
	logger.Info("job started", "input", in.InputPath)

	res, err := j.runner.Convert(ctx, in.InputPath, in.OutputDir, in.Settings, hybrid.Callbacks{
		OnProgress: func(ev types.ProgressEvent) {
			r.mu.Lock()
			j.progress = &ev
			r.mu.Unlock()
		},
	})

	switch {
	case err != nil:
		logger.Error("job failed", "error", err)
		r.finish(j, StateFailed, nil, "", err)
	case res.Cancelled && errors.Is(ctx.Err(), context.DeadlineExceeded):
		logger.Warn("job timed out", "processed", res.ProcessedPages)
		r.finish(j, StateFailed, &res, "", fmt.Errorf("job timed out after %s", r.opts.Timeout))
	case res.Cancelled:
		logger.Info("job cancelled", "processed", res.ProcessedPages)
		r.finish(j, StateCancelled, &res, readMarkdown(res), nil)
	default:
		logger.Info("job completed", "pages", res.ProcessedPages, "ocr", res.OCRPages)
		r.finish(j, StateCompleted, &res, readMarkdown(res), nil)
	}
}

func readMarkdown(res types.ConversionResult) string {
	if res.MarkdownPath == "" {
		return ""
	}
	data, err := os.ReadFile(res.MarkdownPath)
	if err != nil {
		return ""
	}
	return string(data)
}

func (r *Registry) finish(j *job, state State, res *types.ConversionResult, markdown string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j.state = state
	j.result = res
	j.markdown = markdown
	j.err = err
	j.finished = time.Now()
}

// Cancel stops a queued job outright and asks a running one to stop before
// its next page. Cancelling a finished job is a no-op.
func (r *Registry) Cancel(id string) error {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	state := j.state
	r.mu.Unlock()

	switch state {
	case StateQueued:
		j.runner.Cancel()
		j.cancel()
	case StateRunning:
		j.runner.Cancel()
	}
	return nil
}

// Status returns a snapshot of the job.
func (r *Registry) Status(id string) (types.JobStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return types.JobStatus{}, ErrNotFound
	}

	st := types.JobStatus{
		JobID:    j.id,
		Status:   string(j.state),
		Markdown: j.markdown,
	}
	if ev := j.progress; ev != nil {
		st.Progress = &types.JobProgress{
			CurrentPage: ev.CurrentPage,
			TotalPages:  ev.TotalPages,
			Mode:        string(ev.Mode),
			ElapsedSecs: ev.Elapsed.Seconds(),
			ETASecs:     ev.ETA.Seconds(),
		}
	}
	if res := j.result; res != nil {
		st.TotalPages = res.TotalPages
		st.ProcessedPages = res.ProcessedPages
		st.ExtractedPages = res.ExtractedPages
		st.OCRPages = res.OCRPages
		st.Errors = res.Errors
		for _, p := range res.Pages {
			st.Pages = append(st.Pages, types.PageSummary{
				PageNumber:      p.PageNumber,
				Mode:            string(p.Mode),
				DurationSeconds: p.Duration.Seconds(),
				TextLength:      p.TextLength,
				Error:           p.Error,
			})
		}
	}
	if j.err != nil {
		msg := j.err.Error()
		st.Error = &msg
	}
	return st, nil
}

// Counts reports how many jobs are in each state.
func (r *Registry) Counts() map[State]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[State]int)
	for _, j := range r.jobs {
		out[j.state]++
	}
	return out
}

// Prune drops finished jobs older than the retention window and returns how
// many were removed.
func (r *Registry) Prune(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, j := range r.jobs {
		if j.state.Finished() && now.Sub(j.finished) > r.opts.Retention {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

// RunJanitor prunes every interval until ctx is done.
func (r *Registry) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.Prune(now); n > 0 {
				r.logger.Info("pruned finished jobs", "count", n)
			}
		}
	}
}

// Shutdown cancels every unfinished job and waits for them to stop, or for
// ctx to expire.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	ids := make([]string, 0, len(r.jobs))
	for id, j := range r.jobs {
		if !j.state.Finished() {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()

	for _, id := range ids {
		_ = r.Cancel(id)
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
