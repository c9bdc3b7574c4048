package workflow_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"wsideid/internal/config"
	"wsideid/internal/guard"
	"wsideid/internal/importexport"
	"wsideid/internal/jobs"
	"wsideid/internal/lifecycle"
	"wsideid/internal/ocr"
	"wsideid/internal/redaction"
	"wsideid/internal/services"
	"wsideid/internal/store"
	"wsideid/internal/testsupport"
	"wsideid/internal/workflow"
)

type fixture struct {
	cfg     *config.Config
	store   *store.Store
	roles   testsupport.Roles
	engine  *testsupport.FakeOCR
	runner  *jobs.Runner
	metrics *workflow.Metrics
	service *workflow.Service
}

func newFixture(t *testing.T, processor workflow.Processor) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	roles := testsupport.MustSetupRoles(t, st, cfg)
	g := guard.New(cfg, nil)
	machine := lifecycle.New(cfg, st, g.Registry(), nil)
	engine := testsupport.NewFakeOCR()
	metrics, err := workflow.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	runner := jobs.NewRunner(st, nil, jobs.WithStatusCounter(metrics.Jobs))
	ocrOrch := ocr.NewOrchestrator(cfg, machine, engine, nil, ocr.WithDurationObserver(metrics.OCRDuration))
	if processor == nil {
		processor = redaction.New(cfg, machine, testsupport.NewFakeCodec(), nil)
	}
	service := workflow.NewService(cfg, workflow.Components{
		Machine:   machine,
		Guard:     g,
		Processor: processor,
		OCR:       ocrOrch,
		Importer:  importexport.New(cfg, machine, g, runner, nil),
		Runner:    runner,
		Metrics:   metrics,
	}, nil)
	return fixture{cfg: cfg, store: st, roles: roles, engine: engine, runner: runner, metrics: metrics, service: service}
}

func TestParseAction(t *testing.T) {
	for _, action := range workflow.Actions() {
		parsed, err := workflow.ParseAction(" " + strings.ToUpper(string(action)) + " ")
		if err != nil || parsed != action {
			t.Fatalf("ParseAction(%s) = %s, %v", action, parsed, err)
		}
	}
	if _, err := workflow.ParseAction("delete"); !errors.Is(err, services.ErrUnknownAction) {
		t.Fatalf("expected unknown action error, got %v", err)
	}
}

func TestItemActionTransitions(t *testing.T) {
	tests := []struct {
		action string
		role   string
	}{
		{"reject", "rejected"},
		{"quarantine", "quarantine"},
		{"finish", "finished"},
		{"process", "processed"},
	}
	for _, tc := range tests {
		t.Run(tc.action, func(t *testing.T) {
			f := newFixture(t, nil)
			item := testsupport.MustCreateItem(t, f.store, f.roles.Folder("ingest"), "a.svs", nil)

			moved, err := f.service.ItemAction(context.Background(), item.ID, "admin", tc.action)
			if err != nil {
				t.Fatalf("ItemAction: %v", err)
			}
			if moved.FolderID != f.roles.Folder(tc.role).ID {
				t.Fatalf("expected item in %s", tc.role)
			}
			if f.service.Registry().Len() != 0 {
				t.Fatal("registry not released")
			}
			action, _ := workflow.ParseAction(tc.action)
			if got := testutil.ToFloat64(f.metrics.ItemActions.WithLabelValues(string(action), "success")); got != 1 {
				t.Fatalf("expected one success metric, got %v", got)
			}
		})
	}
}

func TestItemActionUnquarantineRestores(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	item := testsupport.MustCreateItem(t, f.store, f.roles.Folder("processed"), "a.svs", nil)

	if _, err := f.service.ItemAction(ctx, item.ID, "admin", "quarantine"); err != nil {
		t.Fatalf("quarantine: %v", err)
	}
	restored, err := f.service.ItemAction(ctx, item.ID, "admin", "unquarantine")
	if err != nil {
		t.Fatalf("unquarantine: %v", err)
	}
	if restored.FolderID != f.roles.Folder("processed").ID || restored.Meta.Has(lifecycle.MetaQuarantine) {
		t.Fatalf("unexpected restored item %#v", restored)
	}
}

func TestItemActionOCRStoresLabelText(t *testing.T) {
	f := newFixture(t, nil)
	item := testsupport.MustCreateItem(t, f.store, f.roles.Folder("unfiled"), "scan.svs", nil)
	f.engine.Tokens["scan.svs"] = []string{"MRN1", "T1"}

	updated, err := f.service.ItemAction(context.Background(), item.ID, "admin", "ocr")
	if err != nil {
		t.Fatalf("ocr: %v", err)
	}
	if !updated.Meta.Has(ocr.MetaLabelOCR) {
		t.Fatalf("expected label text stored, got %#v", updated.Meta)
	}
	if updated.FolderID != item.FolderID {
		t.Fatal("ocr must not move the item")
	}
}

func TestItemActionErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	item := testsupport.MustCreateItem(t, f.store, f.roles.Folder("ingest"), "a.svs", nil)

	if _, err := f.service.ItemAction(ctx, item.ID, "admin", "shred"); !errors.Is(err, services.ErrUnknownAction) {
		t.Fatalf("expected unknown action, got %v", err)
	}
	if _, err := f.service.ItemAction(ctx, "missing", "admin", "reject"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, err := f.service.ItemAction(ctx, item.ID, "admin", "unquarantine")
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict for unquarantine without record, got %v", err)
	}
	if f.service.Registry().Len() != 0 {
		t.Fatalf("registry leaked entries: %v", f.service.Registry().Snapshot())
	}
	if got := testutil.ToFloat64(f.metrics.ItemActions.WithLabelValues("unquarantine", "error")); got != 1 {
		t.Fatalf("expected error metric, got %v", got)
	}
}

// blockingProcessor holds ProcessItem until released and records events.
type blockingProcessor struct {
	mu      sync.Mutex
	events  []string
	started chan struct{}
	release chan struct{}
	inner   workflow.Processor
}

func (b *blockingProcessor) record(event string) {
	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()
}

func (b *blockingProcessor) ProcessItem(ctx context.Context, item *store.Item, user string) (*store.Item, error) {
	b.record("process:start")
	close(b.started)
	<-b.release
	out, err := b.inner.ProcessItem(ctx, item, user)
	b.record("process:end")
	return out, err
}

func TestItemActionsOnSameItemDoNotInterleave(t *testing.T) {
	proc := &blockingProcessor{started: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, proc)
	proc.inner = redaction.New(f.cfg, f.service.Machine(), testsupport.NewFakeCodec(), nil)
	ctx := context.Background()
	item := testsupport.MustCreateItem(t, f.store, f.roles.Folder("ingest"), "a.svs", nil)

	var wg sync.WaitGroup
	var processErr, rejectErr error
	var rejected *store.Item
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, processErr = f.service.ItemAction(ctx, item.ID, "admin", "process")
	}()
	<-proc.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		rejected, rejectErr = f.service.ItemAction(ctx, item.ID, "admin", "reject")
		proc.record("reject:end")
	}()

	time.Sleep(50 * time.Millisecond)
	if !f.service.Registry().InFlight(item.ID) {
		t.Fatal("expected item in flight while processing")
	}
	close(proc.release)
	wg.Wait()

	if processErr != nil || rejectErr != nil {
		t.Fatalf("process err=%v reject err=%v", processErr, rejectErr)
	}
	want := []string{"process:start", "process:end", "reject:end"}
	if strings.Join(proc.events, ",") != strings.Join(want, ",") {
		t.Fatalf("events interleaved: %v", proc.events)
	}
	if rejected.FolderID != f.roles.Folder("rejected").ID || len(rejected.Meta.List(lifecycle.MetaRedacted)) != 1 {
		t.Fatalf("expected processed item to be rejected afterwards: %#v", rejected)
	}
}

func TestItemListActionContinuesPastFailures(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	processed := f.roles.Folder("processed")
	a := testsupport.MustCreateItem(t, f.store, processed, "a.svs", nil)
	b := testsupport.MustCreateItem(t, f.store, f.roles.Folder("ingest"), "b.svs", nil)
	c := testsupport.MustCreateItem(t, f.store, processed, "c.svs", nil)
	for _, id := range []string{a.ID, c.ID} {
		if _, err := f.service.ItemAction(ctx, id, "admin", "quarantine"); err != nil {
			t.Fatalf("quarantine: %v", err)
		}
	}

	handle, err := f.service.ItemListAction(ctx, []string{a.ID, b.ID, "missing", c.ID, a.ID}, "admin", "unquarantine", false)
	if err != nil {
		t.Fatalf("ItemListAction: %v", err)
	}
	job, err := f.store.GetJob(ctx, handle.ID())
	if err != nil || job == nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != store.JobSuccess {
		t.Fatalf("expected SUCCESS, got %s\n%s", job.Status, job.Log)
	}
	for _, fragment := range []string{"Item missing does not exist.", "Error unquarantining b.svs", "Done unquarantining"} {
		if !strings.Contains(job.Log, fragment) {
			t.Fatalf("job log missing %q:\n%s", fragment, job.Log)
		}
	}
	for _, id := range []string{a.ID, c.ID} {
		if got := testsupport.MustLoadItem(t, f.store, id); got.FolderID != processed.ID {
			t.Fatalf("item %s not restored", id)
		}
	}
	if f.service.Registry().Len() != 0 {
		t.Fatal("registry not released after batch")
	}
	if got := testutil.ToFloat64(f.metrics.Jobs.WithLabelValues(jobs.TypeItemList, string(store.JobSuccess))); got != 1 {
		t.Fatalf("expected job metric, got %v", got)
	}
}

func TestItemListActionStopsOnConfigurationError(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := testsupport.MustCreateItem(t, f.store, f.roles.Folder("ingest"), "a.svs", nil)
	b := testsupport.MustCreateItem(t, f.store, f.roles.Folder("ingest"), "b.svs", nil)
	f.cfg.Folders.Rejected = ""

	handle, err := f.service.ItemListAction(ctx, []string{a.ID, b.ID}, "admin", "reject", true)
	if err != nil {
		t.Fatalf("ItemListAction: %v", err)
	}
	status, err := handle.Wait(ctx)
	if status != store.JobError || !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration ERROR, got %s %v", status, err)
	}
	job, _ := f.store.GetJob(ctx, handle.ID())
	if strings.Count(job.Log, "Error rejecting") != 1 {
		t.Fatalf("expected batch to stop after first failure:\n%s", job.Log)
	}
}

func TestItemListActionValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.service.ItemListAction(ctx, []string{"x"}, "admin", "bogus", false); !errors.Is(err, services.ErrUnknownAction) {
		t.Fatalf("expected unknown action, got %v", err)
	}
	handle, err := f.service.ItemListAction(ctx, nil, "admin", "reject", false)
	if err != nil || handle != nil {
		t.Fatalf("expected no job for empty list, got %v %v", handle, err)
	}
	jobsList, _ := f.store.ListJobs(ctx, 10)
	if len(jobsList) != 0 {
		t.Fatalf("expected no jobs, got %d", len(jobsList))
	}
}

func TestOCRAllScansUnscannedIngestItems(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	token := testsupport.MustCreateFolder(t, f.store, f.roles.Folder("ingest"), "T1")
	testsupport.MustCreateItem(t, f.store, token, "a.svs", nil)
	testsupport.MustCreateItem(t, f.store, f.roles.Folder("ingest"), "b.svs", store.Metadata{ocr.MetaLabelOCR: []any{"done"}})
	testsupport.MustCreateItem(t, f.store, f.roles.Folder("ingest"), "c.svs", nil)
	testsupport.MustCreateItem(t, f.store, f.roles.Folder("unfiled"), "d.svs", nil)

	handle, err := f.service.OCRAll(ctx, "admin", false)
	if err != nil || handle == nil {
		t.Fatalf("OCRAll: %v", err)
	}
	calls := f.engine.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected two scans, got %v", calls)
	}
	for _, name := range calls {
		if name != "a.svs" && name != "c.svs" {
			t.Fatalf("unexpected scan of %s", name)
		}
	}

	again, err := f.service.OCRAll(ctx, "admin", false)
	if err != nil || again != nil {
		t.Fatalf("expected nothing left to scan, got %v %v", again, err)
	}
}

func TestManagerReclaimsAndPolls(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	stale, err := f.store.CreateJob(ctx, "stale", jobs.TypeExport, "")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := f.store.UpdateJob(ctx, stale.ID, "", store.JobRunning); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	testsupport.WriteFile(t, f.cfg.Paths.ImportDir+"/new.svs", 8)

	manager := workflow.NewManager(f.service, f.store, 10*time.Millisecond, nil)
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := manager.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}
	deadline := time.Now().Add(5 * time.Second)
	for manager.Status().LastIngest == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	manager.Stop()

	status := manager.Status()
	if status.Running || status.LastIngest == nil {
		t.Fatalf("unexpected status %#v", status)
	}
	if job, _ := f.store.GetJob(ctx, stale.ID); job.Status != store.JobError {
		t.Fatalf("expected stale job reclaimed, got %s", job.Status)
	}
	unfiled, _ := f.store.ChildItems(ctx, f.roles.Folder("unfiled"), store.ItemQuery{})
	if len(unfiled) != 1 {
		t.Fatalf("expected polled ingest to import one file, got %d", len(unfiled))
	}
}
