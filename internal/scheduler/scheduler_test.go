package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"clipforge/internal/fastcopy"
	"clipforge/internal/logging"
	"clipforge/internal/plan"
	"clipforge/internal/queue"
	"clipforge/internal/scheduler"
	"clipforge/internal/segment"
	"clipforge/internal/services"
	"clipforge/internal/services/ffmpegcli"
	"clipforge/internal/testsupport"
)

type fakeRunner struct {
	mu            sync.Mutex
	running       int
	maxRunning    int
	runs          int
	availableErr  error
	errFor        map[string]error
	started       chan string
	release       chan struct{}
	emitFractions []float64
}

func (f *fakeRunner) Available() error { return f.availableErr }

func (f *fakeRunner) Run(ctx context.Context, job plan.JobPlan, progress func(ffmpegcli.Update)) (ffmpegcli.Result, error) {
	f.mu.Lock()
	f.runs++
	f.running++
	if f.running > f.maxRunning {
		f.maxRunning = f.running
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.running--
		f.mu.Unlock()
	}()

	if f.started != nil {
		f.started <- job.ID
	}
	for _, fraction := range f.emitFractions {
		if progress != nil {
			progress(ffmpegcli.Update{Fraction: fraction})
		}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ffmpegcli.Result{}, ctx.Err()
		}
	}
	if err := f.errFor[job.ID]; err != nil {
		return ffmpegcli.Result{ExitCode: 1, StderrTail: []string{"boom"}}, err
	}
	return ffmpegcli.Result{OutputPath: job.OutputPath}, nil
}

func makePlans(batchID string, n int) []plan.JobPlan {
	plans := make([]plan.JobPlan, 0, n)
	for i := 0; i < n; i++ {
		plans = append(plans, plan.JobPlan{
			ID:         fmt.Sprintf("%s-job-%d", batchID, i),
			BatchID:    batchID,
			Source:     segment.Source{Path: "/in/track.mp3", Duration: 60},
			OutputPath: fmt.Sprintf("/out/%s-%d.mp3", batchID, i),
			Mode:       fastcopy.ReEncode,
		})
	}
	return plans
}

func startScheduler(t *testing.T, runner ffmpegcli.Runner, workers int) (*scheduler.Scheduler, *queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(workers))
	store := testsupport.MustOpenStore(t, cfg)
	sched := scheduler.New(cfg, store, runner, logging.NewNop())
	if err := sched.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(sched.Stop)
	return sched, store
}

func waitBatch(t *testing.T, batch *scheduler.Batch) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := batch.Wait(ctx); err != nil {
		t.Fatalf("batch did not drain: %v", err)
	}
}

func TestSubmitCompletesAllJobs(t *testing.T) {
	runner := &fakeRunner{}
	sched, store := startScheduler(t, runner, 2)

	batch, err := sched.Submit(context.Background(), makePlans("b1", 5))
	if err != nil {
		t.Fatal(err)
	}
	waitBatch(t, batch)

	for _, state := range batch.Snapshot() {
		if state.Status != queue.StatusCompleted {
			t.Fatalf("job %s = %s", state.ID, state.Status)
		}
		if state.Fraction != 1 {
			t.Fatalf("completed job fraction = %v", state.Fraction)
		}
	}
	if batch.Progress() != 1 {
		t.Fatalf("aggregate progress = %v", batch.Progress())
	}

	jobs, err := store.BatchJobs(context.Background(), "b1")
	if err != nil {
		t.Fatal(err)
	}
	for _, job := range jobs {
		if job.Status != queue.StatusCompleted {
			t.Fatalf("persisted status = %s", job.Status)
		}
	}
	batches, err := store.RecentBatches(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if batches[0].Status != queue.BatchCompleted {
		t.Fatalf("batch status = %s", batches[0].Status)
	}
}

func TestConcurrencyNeverExceedsWorkerCount(t *testing.T) {
	const workers = 3
	runner := &fakeRunner{release: make(chan struct{})}
	sched, _ := startScheduler(t, runner, workers)

	batch, err := sched.Submit(context.Background(), makePlans("b1", 12))
	if err != nil {
		t.Fatal(err)
	}
	close(runner.release)
	waitBatch(t, batch)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if runner.maxRunning > workers {
		t.Fatalf("observed %d concurrent jobs with %d workers", runner.maxRunning, workers)
	}
	if runner.runs != 12 {
		t.Fatalf("runs = %d", runner.runs)
	}
}

func TestCancelPendingAndRunning(t *testing.T) {
	runner := &fakeRunner{
		started: make(chan string, 1),
		release: make(chan struct{}),
	}
	sched, _ := startScheduler(t, runner, 1)

	batch, err := sched.Submit(context.Background(), makePlans("b1", 4))
	if err != nil {
		t.Fatal(err)
	}

	first := <-runner.started
	batch.Cancel()
	waitBatch(t, batch)

	for _, state := range batch.Snapshot() {
		if state.Status != queue.StatusCancelled {
			t.Fatalf("job %s = %s, want cancelled", state.ID, state.Status)
		}
	}
	runner.mu.Lock()
	runs := runner.runs
	runner.mu.Unlock()
	if runs != 1 {
		t.Fatalf("pending jobs must not dispatch after cancel, runs = %d (first %s)", runs, first)
	}
}

func TestCancelIsBatchScoped(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	sched, _ := startScheduler(t, runner, 4)

	victim, err := sched.Submit(context.Background(), makePlans("b1", 2))
	if err != nil {
		t.Fatal(err)
	}
	survivor, err := sched.Submit(context.Background(), makePlans("b2", 2))
	if err != nil {
		t.Fatal(err)
	}

	victim.Cancel()
	waitBatch(t, victim)
	close(runner.release)
	waitBatch(t, survivor)

	for _, state := range survivor.Snapshot() {
		if state.Status != queue.StatusCompleted {
			t.Fatalf("survivor job %s = %s", state.ID, state.Status)
		}
	}
}

func TestPreflightFailureFailsWholeBatch(t *testing.T) {
	runner := &fakeRunner{
		availableErr: services.Wrap(services.ErrToolUnavailable, "ffmpeg", "lookup", "binary missing", nil),
	}
	sched, store := startScheduler(t, runner, 2)

	batch, err := sched.Submit(context.Background(), makePlans("b1", 3))
	if !errors.Is(err, services.ErrToolUnavailable) {
		t.Fatalf("expected tool unavailable, got %v", err)
	}
	waitBatch(t, batch)

	for _, state := range batch.Snapshot() {
		if state.Status != queue.StatusFailed || state.FailureKind != queue.FailureToolUnavailable {
			t.Fatalf("job %s = %s/%s", state.ID, state.Status, state.FailureKind)
		}
	}
	runner.mu.Lock()
	runs := runner.runs
	runner.mu.Unlock()
	if runs != 0 {
		t.Fatalf("no job may dispatch after failed preflight, runs = %d", runs)
	}
	batches, err := store.RecentBatches(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if batches[0].Status != queue.BatchPartiallyFailed {
		t.Fatalf("batch status = %s", batches[0].Status)
	}
}

func TestFailureIsolation(t *testing.T) {
	plans := makePlans("b1", 3)
	runner := &fakeRunner{errFor: map[string]error{
		plans[1].ID: services.Wrap(services.ErrProcess, "ffmpeg", "run", "exit code 1", nil),
	}}
	sched, _ := startScheduler(t, runner, 1)

	batch, err := sched.Submit(context.Background(), plans)
	if err != nil {
		t.Fatal(err)
	}
	waitBatch(t, batch)

	states := batch.Snapshot()
	if states[0].Status != queue.StatusCompleted || states[2].Status != queue.StatusCompleted {
		t.Fatalf("sibling jobs must not be affected: %+v", states)
	}
	if states[1].Status != queue.StatusFailed || states[1].FailureKind != queue.FailureProcess {
		t.Fatalf("failed job = %s/%s", states[1].Status, states[1].FailureKind)
	}
	if len(states[1].StderrTail) == 0 {
		t.Fatal("failure must carry diagnostic tail")
	}
}

func TestTimeoutMapsToFailedTimeout(t *testing.T) {
	plans := makePlans("b1", 1)
	runner := &fakeRunner{errFor: map[string]error{
		plans[0].ID: services.Wrap(services.ErrTimeout, "ffmpeg", "run", "job timeout exceeded", nil),
	}}
	sched, _ := startScheduler(t, runner, 1)

	batch, err := sched.Submit(context.Background(), plans)
	if err != nil {
		t.Fatal(err)
	}
	waitBatch(t, batch)

	state := batch.Snapshot()[0]
	if state.Status != queue.StatusFailed || state.FailureKind != queue.FailureTimeout {
		t.Fatalf("state = %s/%s", state.Status, state.FailureKind)
	}
}

func TestUpdatesStreamProgress(t *testing.T) {
	runner := &fakeRunner{emitFractions: []float64{0.25, 0.5, 0.75}}
	sched, _ := startScheduler(t, runner, 1)

	batch, err := sched.Submit(context.Background(), makePlans("b1", 1))
	if err != nil {
		t.Fatal(err)
	}

	var sawRunning, sawProgress, sawTerminal bool
	for update := range batch.Updates() {
		switch {
		case update.Status == queue.StatusRunning && update.Fraction == 0:
			sawRunning = true
		case update.Status == queue.StatusRunning && update.Fraction > 0:
			sawProgress = true
		case update.Status.Terminal():
			sawTerminal = true
		}
	}
	if !sawRunning || !sawProgress || !sawTerminal {
		t.Fatalf("updates incomplete: running=%v progress=%v terminal=%v", sawRunning, sawProgress, sawTerminal)
	}
	waitBatch(t, batch)
}

func TestSubmitRejectsMixedBatches(t *testing.T) {
	runner := &fakeRunner{}
	sched, _ := startScheduler(t, runner, 1)

	mixed := append(makePlans("b1", 1), makePlans("b2", 1)...)
	if _, err := sched.Submit(context.Background(), mixed); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := sched.Submit(context.Background(), nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty submit, got %v", err)
	}
}
