package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"wsideid/internal/config"
	"wsideid/internal/guard"
	"wsideid/internal/importexport"
	"wsideid/internal/jobs"
	"wsideid/internal/lifecycle"
	"wsideid/internal/logging"
	"wsideid/internal/ocr"
	"wsideid/internal/services"
	"wsideid/internal/store"
)

var tracer = otel.Tracer("wsideid/workflow")

// Processor redacts an item and moves it to the processed folder.
type Processor interface {
	ProcessItem(ctx context.Context, item *store.Item, user string) (*store.Item, error)
}

// Components are the collaborators a Service dispatches to.
type Components struct {
	Machine   *lifecycle.Machine
	Guard     *guard.Guard
	Processor Processor
	OCR       *ocr.Orchestrator
	Importer  *importexport.Orchestrator
	Runner    *jobs.Runner
	Metrics   *Metrics
}

// Service runs item actions, bulk actions, and batch operations.
type Service struct {
	cfg       *config.Config
	machine   *lifecycle.Machine
	registry  *guard.Registry
	processor Processor
	ocr       *ocr.Orchestrator
	importer  *importexport.Orchestrator
	runner    *jobs.Runner
	metrics   *Metrics
	logger    *slog.Logger
}

// NewService wires a Service.
func NewService(cfg *config.Config, c Components, logger *slog.Logger) *Service {
	registry := guard.NewRegistry()
	if c.Guard != nil {
		registry = c.Guard.Registry()
	}
	return &Service{
		cfg:       cfg,
		machine:   c.Machine,
		registry:  registry,
		processor: c.Processor,
		ocr:       c.OCR,
		importer:  c.Importer,
		runner:    c.Runner,
		metrics:   c.Metrics,
		logger:    logging.NewComponentLogger(logger, "workflow"),
	}
}

// Machine exposes the lifecycle machine for read-only queries.
func (s *Service) Machine() *lifecycle.Machine {
	return s.machine
}

// Registry exposes the in-flight registry.
func (s *Service) Registry() *guard.Registry {
	return s.registry
}

// ItemAction runs one action on one item and returns the updated item. The
// item stays in the in-flight registry for the whole action; a second action
// on the same item waits for the first to finish.
func (s *Service) ItemAction(ctx context.Context, itemID, user, name string) (*store.Item, error) {
	action, err := ParseAction(name)
	if err != nil {
		return nil, err
	}
	release, err := s.registry.Acquire(ctx, itemID)
	if err != nil {
		return nil, err
	}
	defer release()

	item, err := s.loadItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withActionTimeout(ctx)
	defer cancel()
	return s.run(ctx, item, user, action)
}

// ItemListAction runs action over ids as a job. A failure on one item is
// logged to the job and the batch continues; a configuration error stops the
// batch. Unknown actions fail before a job is created.
func (s *Service) ItemListAction(ctx context.Context, ids []string, user, name string, async bool) (*jobs.Handle, error) {
	action, err := ParseAction(name)
	if err != nil {
		return nil, err
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	title := fmt.Sprintf("%s items", capitalize(action.Participle()))
	return s.runner.Submit(ctx, jobs.Spec{Title: title, Type: jobs.TypeItemList, UserID: user},
		func(ctx context.Context, h *jobs.Handle) error {
			return s.runList(ctx, h, ids, user, action)
		}, async)
}

func (s *Service) runList(ctx context.Context, h *jobs.Handle, ids []string, user string, action Action) error {
	ctx = services.WithJobID(ctx, h.ID())
	items, err := s.machine.Store().ItemsByID(ctx, ids)
	if err != nil {
		return err
	}
	if len(items) != len(ids) {
		found := make(map[string]bool, len(items))
		for _, item := range items {
			found[item.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				h.Logf("Item %s does not exist.", id)
			}
		}
	}
	if len(items) == 0 {
		return services.Wrap(services.ErrValidation, "workflow", "item list", "no listed item exists", nil)
	}

	held := make([]string, 0, len(items))
	for _, item := range items {
		held = append(held, item.ID)
	}
	release, err := s.registry.AcquireAll(ctx, held)
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := s.withActionTimeout(ctx)
	defer cancel()
	for idx, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		h.Logf("%s %s (%d of %d)", capitalize(action.Participle()), item.Name, idx+1, len(items))
		current, err := s.loadItem(ctx, item.ID)
		if err == nil {
			_, err = s.run(ctx, current, user, action)
		}
		if err == nil {
			continue
		}
		h.Logf("Error %s %s: %v", action.Participle(), item.Name, err)
		if errors.Is(err, services.ErrConfiguration) {
			return err
		}
	}
	h.Logf("Done %s", action.Participle())
	return nil
}

// run dispatches action for an item the caller already holds.
func (s *Service) run(ctx context.Context, item *store.Item, user string, action Action) (*store.Item, error) {
	ctx = services.WithItemID(services.WithAction(services.WithUser(ctx, user), string(action)), item.ID)
	ctx, span := tracer.Start(ctx, "workflow."+string(action))
	span.SetAttributes(attribute.String("item.id", item.ID), attribute.String("workflow.action", string(action)))
	defer span.End()
	logger := logging.WithContext(ctx, s.logger)
	start := time.Now()

	result, err := s.dispatch(ctx, item, user, action)
	switch {
	case err == nil:
		s.metrics.observeAction(action, "success")
		logger.Info("item action completed",
			logging.String("name", result.Name),
			logging.Duration("duration", time.Since(start)),
			logging.String(logging.FieldEventType, "item_action_completed"),
		)
	case errors.Is(err, services.ErrNoOp):
		s.metrics.observeAction(action, "noop")
		span.SetStatus(codes.Error, err.Error())
	default:
		s.metrics.observeAction(action, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logging.ErrorWithContext(logger, fmt.Sprintf("Failed to %s item", action.Verb()), "item_action_failed",
			logging.String("name", item.Name),
			logging.Error(err),
		)
	}
	return result, err
}

func (s *Service) dispatch(ctx context.Context, item *store.Item, user string, action Action) (*store.Item, error) {
	switch action {
	case ActionProcess:
		if s.processor == nil {
			return nil, services.Wrap(services.ErrConfiguration, "workflow", "process", "redaction is not configured", nil)
		}
		return s.processor.ProcessItem(ctx, item, user)
	case ActionReject:
		return s.machine.Move(ctx, item, user, lifecycle.RoleRejected)
	case ActionQuarantine:
		return s.machine.Move(ctx, item, user, lifecycle.RoleQuarantine)
	case ActionUnquarantine:
		return s.machine.Unquarantine(ctx, item, user)
	case ActionFinish:
		return s.machine.Move(ctx, item, user, lifecycle.RoleFinished)
	case ActionOCR:
		if s.ocr == nil {
			return nil, services.Wrap(services.ErrConfiguration, "workflow", "ocr", "OCR is not configured", nil)
		}
		if _, err := s.ocr.FindLabelText(ctx, item); err != nil {
			return nil, err
		}
		return s.loadItem(ctx, item.ID)
	}
	return nil, services.Wrap(services.ErrUnknownAction, "workflow", "dispatch", string(action), nil)
}

// Refile files an item under a new image id and token while holding it.
func (s *Service) Refile(ctx context.Context, itemID, user, imageID, tokenID string) (*store.Item, error) {
	release, err := s.registry.Acquire(ctx, itemID)
	if err != nil {
		return nil, err
	}
	defer release()
	item, err := s.loadItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return s.machine.Refile(ctx, item, user, imageID, tokenID)
}

// SetRedactList replaces an item's redact list while holding it.
func (s *Service) SetRedactList(ctx context.Context, itemID string, redactList map[string]any) (*store.Item, error) {
	release, err := s.registry.Acquire(ctx, itemID)
	if err != nil {
		return nil, err
	}
	defer release()
	item, err := s.loadItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return s.machine.SetRedactList(ctx, item, redactList)
}

// OCRAll submits a batch OCR job for ingest items that have no label text
// yet. It returns a nil handle when there is nothing to scan.
func (s *Service) OCRAll(ctx context.Context, user string, async bool) (*jobs.Handle, error) {
	if s.ocr == nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "ocr all", "OCR is not configured", nil)
	}
	ingest, err := s.machine.RoleFolder(ctx, lifecycle.RoleIngest)
	if err != nil {
		return nil, err
	}
	var ids []string
	query := store.ItemQuery{MissingMeta: []string{ocr.MetaLabelOCR, ocr.MetaMacroOCR}, Sort: store.SortLowerName}
	err = lifecycle.WalkTree(ctx, s.machine.Store(), ingest, func(folder *store.Folder, _ []string) error {
		items, err := s.machine.Store().ChildItems(ctx, folder, query)
		if err != nil {
			return err
		}
		for _, item := range items {
			ids = append(ids, item.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	title := fmt.Sprintf("Batch OCR triggered manually: %s, %s", displayUser(user), time.Now().Format("20060102 150405"))
	return s.runner.Submit(ctx, jobs.Spec{Title: title, Type: jobs.TypeOCRAll, UserID: user},
		func(ctx context.Context, h *jobs.Handle) error {
			release, err := s.registry.AcquireAll(ctx, ids)
			if err != nil {
				return err
			}
			defer release()
			s.ocr.RunBatch(ctx, ids, h.Log)
			return nil
		}, async)
}

// Ingest imports new files from the import directory.
func (s *Service) Ingest(ctx context.Context, user string) (importexport.Result, error) {
	return s.importer.Ingest(services.WithUser(ctx, user), user)
}

// Export sends recently finished items to the export destinations.
func (s *Service) Export(ctx context.Context, user string) (importexport.Result, error) {
	return s.importer.Export(services.WithUser(ctx, user), user, false)
}

// ExportAll sends every finished item to the export destinations.
func (s *Service) ExportAll(ctx context.Context, user string) (importexport.Result, error) {
	return s.importer.Export(services.WithUser(ctx, user), user, true)
}

func (s *Service) loadItem(ctx context.Context, id string) (*store.Item, error) {
	item, err := s.machine.Store().LoadItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, services.Wrap(services.ErrNotFound, "workflow", "load item", id, nil)
	}
	return item, nil
}

func (s *Service) withActionTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg == nil || s.cfg.Workflow.ActionTimeoutSeconds <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(s.cfg.Workflow.ActionTimeoutSeconds)*time.Second)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func displayUser(user string) string {
	if user == "" {
		return "system"
	}
	return user
}
