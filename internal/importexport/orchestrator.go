package importexport

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"wsideid/internal/config"
	"wsideid/internal/guard"
	"wsideid/internal/jobs"
	"wsideid/internal/lifecycle"
	"wsideid/internal/logging"
	"wsideid/internal/manifest"
	"wsideid/internal/matcher"
)

var tracer = otel.Tracer("wsideid/importexport")

// Result summarizes one ingest or export run.
type Result struct {
	Action       string
	Added        int
	Unfiled      int
	Matched      int
	Exported     int
	Skipped      int
	Failed       int
	ManifestRows int
	JobID        string
	ReportItemID string
	Messages     []string
}

func (r *Result) message(line string) {
	r.Messages = append(r.Messages, line)
}

// Associator matches unfiled items against manifest records by label text.
type Associator interface {
	AssociateUnfiled(ctx context.Context, ids []string, records manifest.Records, user string, progress matcher.Progress) (matcher.Report, error)
}

// Orchestrator runs ingest and export.
type Orchestrator struct {
	cfg        *config.Config
	machine    *lifecycle.Machine
	guard      *guard.Guard
	runner     *jobs.Runner
	associator Associator
	sink       RemoteSink
	logger     *slog.Logger
	now        func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithAssociator enables OCR association of unfiled items after ingest.
func WithAssociator(a Associator) Option {
	return func(o *Orchestrator) {
		o.associator = a
	}
}

// WithRemoteSink sets the remote export destination.
func WithRemoteSink(sink RemoteSink) Option {
	return func(o *Orchestrator) {
		o.sink = sink
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New constructs an import/export orchestrator.
func New(cfg *config.Config, machine *lifecycle.Machine, g *guard.Guard, runner *jobs.Runner, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		machine: machine,
		guard:   g,
		runner:  runner,
		logger:  logging.NewComponentLogger(logger, "importexport"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) timestamp() string {
	return o.now().UTC().Format(time.RFC3339Nano)
}

func userValue(user string) any {
	if user == "" {
		return nil
	}
	return user
}
