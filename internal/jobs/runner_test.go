package jobs_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"wsideid/internal/jobs"
	"wsideid/internal/services"
	"wsideid/internal/store"
	"wsideid/internal/testsupport"
)

func newRunner(t *testing.T, opts ...jobs.Option) (*jobs.Runner, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	return jobs.NewRunner(st, nil, opts...), st
}

func mustJob(t *testing.T, st *store.Store, id string) *store.Job {
	t.Helper()
	job, err := st.GetJob(context.Background(), id)
	if err != nil || job == nil {
		t.Fatalf("GetJob %s: %v", id, err)
	}
	return job
}

func TestSubmitSyncRecordsSuccessAndLog(t *testing.T) {
	runner, st := newRunner(t)
	ctx := context.Background()

	handle, err := runner.Submit(ctx, jobs.Spec{Title: "Batch", Type: jobs.TypeItemList, UserID: "admin"},
		func(ctx context.Context, h *jobs.Handle) error {
			h.Log("first")
			h.Logf("second %d", 2)
			job := mustJob(t, st, h.ID())
			if job.Status != store.JobRunning {
				t.Errorf("expected RUNNING while executing, got %s", job.Status)
			}
			return nil
		}, false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	status, err := handle.Wait(ctx)
	if err != nil || status != store.JobSuccess {
		t.Fatalf("Wait = %s, %v", status, err)
	}
	job := mustJob(t, st, handle.ID())
	if job.Status != store.JobSuccess || job.Log != "first\nsecond 2\n" || job.UserID != "admin" {
		t.Fatalf("unexpected job %#v", job)
	}
}

func TestSubmitRecordsErrorAndPanic(t *testing.T) {
	runner, st := newRunner(t)
	ctx := context.Background()

	failing, err := runner.Submit(ctx, jobs.Spec{Title: "fail", Type: jobs.TypeOCRAll},
		func(context.Context, *jobs.Handle) error { return errors.New("boom") }, false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if status, err := failing.Wait(ctx); status != store.JobError || err == nil {
		t.Fatalf("expected ERROR, got %s %v", status, err)
	}
	if job := mustJob(t, st, failing.ID()); !strings.Contains(job.Log, "boom") {
		t.Fatalf("expected error in log, got %q", job.Log)
	}

	panicking, err := runner.Submit(ctx, jobs.Spec{Title: "panic", Type: jobs.TypeOCRAll},
		func(context.Context, *jobs.Handle) error { panic("kaboom") }, true)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	status, err := panicking.Wait(ctx)
	if status != store.JobError || err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("expected recovered panic, got %s %v", status, err)
	}
	if job := mustJob(t, st, panicking.ID()); job.Status != store.JobError {
		t.Fatalf("expected persisted ERROR, got %s", job.Status)
	}
}

func TestSubmitAsyncOutlivesCallerContext(t *testing.T) {
	runner, st := newRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})

	handle, err := runner.Submit(ctx, jobs.Spec{Title: "async", Type: jobs.TypeExport},
		func(ctx context.Context, h *jobs.Handle) error {
			<-release
			return ctx.Err()
		}, true)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	cancel()
	close(release)
	runner.Wait()

	if job := mustJob(t, st, handle.ID()); job.Status != store.JobSuccess {
		t.Fatalf("expected SUCCESS, got %s (%s)", job.Status, job.Log)
	}
}

func TestHandleLogIsSafeForConcurrentUse(t *testing.T) {
	runner, st := newRunner(t)
	ctx := context.Background()

	handle, err := runner.Submit(ctx, jobs.Spec{Title: "lines", Type: jobs.TypeOCRAll},
		func(ctx context.Context, h *jobs.Handle) error {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					h.Logf("line %d", i)
				}(i)
			}
			wg.Wait()
			return nil
		}, false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	job := mustJob(t, st, handle.ID())
	if got := strings.Count(job.Log, "\n"); got != 20 {
		t.Fatalf("expected 20 log lines, got %d", got)
	}
}

func TestSubmitCountsTerminalStatus(t *testing.T) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_jobs_total"}, []string{"type", "status"})
	runner, _ := newRunner(t, jobs.WithStatusCounter(counter))
	ctx := context.Background()

	for _, fail := range []bool{false, true, false} {
		fail := fail
		_, err := runner.Submit(ctx, jobs.Spec{Type: jobs.TypeIngest}, func(context.Context, *jobs.Handle) error {
			if fail {
				return errors.New("nope")
			}
			return nil
		}, false)
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	if got := testutil.ToFloat64(counter.WithLabelValues(jobs.TypeIngest, string(store.JobSuccess))); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues(jobs.TypeIngest, string(store.JobError))); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
}

func TestSubmitRequiresFunction(t *testing.T) {
	runner, _ := newRunner(t)
	if _, err := runner.Submit(context.Background(), jobs.Spec{Type: jobs.TypeIngest}, nil, false); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
