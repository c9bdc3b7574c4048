package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"wsideid/internal/logging"
	"wsideid/internal/services"
	"wsideid/internal/store"
)

var tracer = otel.Tracer("wsideid/jobs")

// Job types recorded in the store.
const (
	TypeItemList         = "wsi_deid.item_list_action"
	TypeOCRAll           = "wsi_deid.ocr_all"
	TypeAssociateUnfiled = "wsi_deid.associate_unfiled"
	TypeIngest           = "wsi_deid.ingest"
	TypeExport           = "wsi_deid.export"
)

// Spec describes a job to create.
type Spec struct {
	Title  string
	Type   string
	UserID string
}

// Func is the body of a job. A returned error marks the job ERROR.
type Func func(ctx context.Context, h *Handle) error

// Runner creates jobs and executes their bodies.
type Runner struct {
	store   *store.Store
	logger  *slog.Logger
	counter *prometheus.CounterVec
	wg      sync.WaitGroup
}

// Option customizes a Runner.
type Option func(*Runner)

// WithStatusCounter counts finished jobs by type and status.
func WithStatusCounter(counter *prometheus.CounterVec) Option {
	return func(r *Runner) {
		r.counter = counter
	}
}

// NewRunner constructs a job runner backed by st.
func NewRunner(st *store.Store, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		store:  st,
		logger: logging.NewComponentLogger(logger, "jobs"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit records a job and runs fn. When async is false Submit returns after
// fn completes; otherwise fn runs on its own goroutine, detached from ctx
// cancellation, and the caller can Wait on the handle.
func (r *Runner) Submit(ctx context.Context, spec Spec, fn Func, async bool) (*Handle, error) {
	if fn == nil {
		return nil, services.Wrap(services.ErrValidation, "jobs", "submit", "job function required", nil)
	}
	job, err := r.store.CreateJob(ctx, spec.Title, spec.Type, spec.UserID)
	if err != nil {
		return nil, err
	}
	if err := r.store.UpdateJob(ctx, job.ID, "", store.JobRunning); err != nil {
		return nil, err
	}

	h := &Handle{
		id:     job.ID,
		spec:   spec,
		store:  r.store,
		logger: r.logger.With(logging.String(logging.FieldJobID, job.ID)),
		done:   make(chan struct{}),
	}
	h.logger.Info("job started",
		logging.String("title", spec.Title),
		logging.String("type", spec.Type),
		logging.String(logging.FieldEventType, "job_started"),
	)

	if !async {
		r.run(ctx, h, fn, false)
		return h, nil
	}
	runCtx := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(runCtx, h, fn, true)
	}()
	return h, nil
}

// startSpan opens the job span. A synchronous job nests under the caller's
// span; an asynchronous one outlives it, so it gets its own trace linked back
// to the submitter.
func startSpan(ctx context.Context, h *Handle, detached bool) (context.Context, trace.Span) {
	opts := []trace.SpanStartOption{
		trace.WithAttributes(
			attribute.String("job.id", h.id),
			attribute.String("job.type", h.spec.Type),
		),
	}
	if detached {
		opts = append(opts, trace.WithNewRoot(), trace.WithLinks(trace.LinkFromContext(ctx)))
	}
	return tracer.Start(ctx, "job "+h.spec.Type, opts...)
}

// Wait blocks until every asynchronous job has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context, h *Handle, fn Func, detached bool) {
	ctx, span := startSpan(ctx, h, detached)
	defer span.End()

	err := safeCall(ctx, h, fn)
	status := store.JobSuccess
	if err != nil {
		status = store.JobError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.Log(err.Error())
		logging.ErrorWithContext(h.logger, "job failed", "job_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect the job log with `wsideid jobs show`"),
		)
	} else {
		h.logger.Info("job finished", logging.String(logging.FieldEventType, "job_finished"))
	}
	if updateErr := r.store.UpdateJob(context.WithoutCancel(ctx), h.id, "", status); updateErr != nil {
		logging.WarnWithContext(h.logger, "failed to record job status", "job_status_update_failed",
			logging.Error(updateErr),
			logging.String(logging.FieldImpact, "job may appear RUNNING until the next startup"),
		)
	}
	if r.counter != nil {
		r.counter.WithLabelValues(h.spec.Type, string(status)).Inc()
	}
	h.finish(status, err)
}

func safeCall(ctx context.Context, h *Handle, fn Func) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("job panicked", logging.String("stack", string(debug.Stack())))
			err = fmt.Errorf("job panicked: %v", rec)
		}
	}()
	return fn(ctx, h)
}

// Handle is a submitted job.
type Handle struct {
	id     string
	spec   Spec
	store  *store.Store
	logger *slog.Logger

	mu     sync.Mutex
	status store.JobStatus
	err    error
	done   chan struct{}
}

// ID returns the persisted job identifier.
func (h *Handle) ID() string {
	return h.id
}

// Log appends one line to the job log. Safe for concurrent use.
func (h *Handle) Log(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logger.Debug("job log", logging.String("line", line))
	if err := h.store.UpdateJob(context.Background(), h.id, line, ""); err != nil {
		h.logger.Warn("failed to append job log", logging.Error(err))
	}
}

// Logf formats and appends one line to the job log.
func (h *Handle) Logf(format string, args ...any) {
	h.Log(fmt.Sprintf(format, args...))
}

// Wait blocks until the job finishes or ctx ends and returns the terminal
// status with the error the body returned.
func (h *Handle) Wait(ctx context.Context) (store.JobStatus, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return store.JobRunning, ctx.Err()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status, h.err
}

func (h *Handle) finish(status store.JobStatus, err error) {
	h.mu.Lock()
	h.status = status
	h.err = err
	h.mu.Unlock()
	close(h.done)
}
