package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"wsideid/internal/config"
	"wsideid/internal/guard"
	"wsideid/internal/importexport"
	"wsideid/internal/jobs"
	"wsideid/internal/lifecycle"
	"wsideid/internal/logging"
	"wsideid/internal/ocr"
	"wsideid/internal/redaction"
	"wsideid/internal/store"
	"wsideid/internal/workflow"
)

// Runtime holds the wired components for one process.
type Runtime struct {
	Config   *config.Config
	Store    *store.Store
	Guard    *guard.Guard
	Runner   *jobs.Runner
	Service  *workflow.Service
	Metrics  *workflow.Metrics
	Registry *prometheus.Registry
}

// BuildOptions adjusts optional wiring.
type BuildOptions struct {
	// ConnectRemote creates the remote export sink up front. Commands that
	// never export leave it false so they work while the remote is offline.
	ConnectRemote bool
}

// Build opens the store and wires every component from cfg. Missing OCR or
// redaction tools disable the corresponding actions instead of failing.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts BuildOptions) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	metrics, err := workflow.NewMetrics(reg)
	if err != nil {
		st.Close()
		return nil, err
	}

	g := guard.New(cfg, logger)
	machine := lifecycle.New(cfg, st, g.Registry(), logger)
	runner := jobs.NewRunner(st, logger, jobs.WithStatusCounter(metrics.Jobs))

	components := workflow.Components{
		Machine: machine,
		Guard:   g,
		Runner:  runner,
		Metrics: metrics,
	}

	var importOpts []importexport.Option
	if command := strings.TrimSpace(cfg.OCR.Command); command != "" {
		engine, err := ocr.NewCommandEngine(command, cfg.OCR.TimeoutSeconds)
		if err != nil {
			st.Close()
			return nil, err
		}
		orchestrator := ocr.NewOrchestrator(cfg, machine, engine, logger, ocr.WithDurationObserver(metrics.OCRDuration))
		components.OCR = orchestrator
		importOpts = append(importOpts, importexport.WithAssociator(orchestrator))
	} else {
		logging.WarnWithContext(logger, "OCR command not configured", "ocr_disabled",
			logging.String(logging.FieldImpact, "label text actions and OCR on import are unavailable"),
		)
	}

	if command := strings.TrimSpace(cfg.Redaction.Command); command != "" {
		codec, err := redaction.NewCommandCodec(command, cfg.Redaction.TimeoutSeconds)
		if err != nil {
			st.Close()
			return nil, err
		}
		components.Processor = redaction.New(cfg, machine, codec, logger)
	} else {
		logging.WarnWithContext(logger, "redaction command not configured", "redaction_disabled",
			logging.String(logging.FieldImpact, "process actions fail until redaction.command is set"),
		)
	}

	if opts.ConnectRemote && cfg.ExportsRemote() {
		sink, err := importexport.NewMinIOSink(ctx, cfg.Remote)
		if err != nil {
			logging.WarnWithContext(logger, "remote export unavailable", "remote_unavailable",
				logging.Error(err),
				logging.String(logging.FieldImpact, "remote exports fail until the destination is reachable"),
			)
		} else {
			importOpts = append(importOpts, importexport.WithRemoteSink(sink))
		}
	}
	components.Importer = importexport.New(cfg, machine, g, runner, logger, importOpts...)

	return &Runtime{
		Config:   cfg,
		Store:    st,
		Guard:    g,
		Runner:   runner,
		Service:  workflow.NewService(cfg, components, logger),
		Metrics:  metrics,
		Registry: reg,
	}, nil
}

// Close waits for background jobs and closes the store.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	r.Runner.Wait()
	return r.Store.Close()
}
