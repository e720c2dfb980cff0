package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"clipforge/internal/config"
	"clipforge/internal/logging"
	"clipforge/internal/plan"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/services/ffmpegcli"
)

// task pairs one job plan with the batch that owns it.
type task struct {
	batch *Batch
	plan  plan.JobPlan
}

// Scheduler runs job plans on a bounded worker pool. Dispatch is FIFO per
// batch; several batches may share the pool, each with its own cancellation
// scope.
type Scheduler struct {
	cfg    *config.Config
	store  *queue.Store
	runner ffmpegcli.Runner
	logger *slog.Logger

	tasks chan task

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	feeders sync.WaitGroup
}

// New constructs a scheduler. The store may be nil when history persistence
// is not wanted.
func New(cfg *config.Config, store *queue.Store, runner ffmpegcli.Runner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		cfg:    cfg,
		store:  store,
		runner: runner,
		logger: logging.NewComponentLogger(logger, "scheduler"),
	}
}

// Start launches the worker pool.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}

	workers := s.cfg.Workers.Count
	if workers < 1 {
		workers = 1
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.tasks = make(chan task)
	s.running = true

	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.logger.Info("scheduler started", logging.Int("workers", workers))
	return nil
}

// Stop cancels all batches and waits for the workers to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.feeders.Wait()
	close(s.tasks)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Submit registers a batch of job plans and begins FIFO dispatch. The
// returned handle reports progress and scopes cancellation to this batch.
// When the external tool is unavailable every job fails immediately and the
// error is returned alongside the finished handle.
func (s *Scheduler) Submit(ctx context.Context, plans []plan.JobPlan) (*Batch, error) {
	if len(plans) == 0 {
		return nil, services.Wrap(services.ErrValidation, "scheduler", "submit", "no job plans", nil)
	}
	batchID := plans[0].BatchID
	for _, p := range plans[1:] {
		if p.BatchID != batchID {
			return nil, services.Wrap(services.ErrValidation, "scheduler", "submit",
				"plans span multiple batches", nil)
		}
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil, errors.New("scheduler not started")
	}
	parent := s.ctx
	s.mu.Unlock()

	batch := newBatch(batchID, parent, plans)
	batch.onDone = func() { s.finishBatchRecord(batch) }
	s.persistBatch(ctx, batch, plans)

	if err := s.runner.Available(); err != nil {
		for _, p := range plans {
			batch.finishJob(p.ID, jobOutcome{
				status:  queue.StatusFailed,
				failure: queue.FailureToolUnavailable,
				message: err.Error(),
			}, s.persistJob)
		}
		s.logger.Error("preflight failed", logging.Error(err), logging.String("batch", batchID))
		return batch, err
	}

	s.feeders.Add(1)
	go func() {
		defer s.feeders.Done()
		for _, p := range plans {
			select {
			case <-batch.ctx.Done():
				batch.finishJob(p.ID, cancelledOutcome(), s.persistJob)
			case s.tasks <- task{batch: batch, plan: p}:
			}
		}
	}()

	s.logger.Info("batch submitted",
		logging.String("batch", batchID),
		logging.Int("jobs", len(plans)))
	return batch, nil
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for t := range s.tasks {
		s.execute(t)
	}
}

func (s *Scheduler) execute(t task) {
	b := t.batch
	if b.ctx.Err() != nil {
		b.finishJob(t.plan.ID, cancelledOutcome(), s.persistJob)
		return
	}

	b.markRunning(t.plan.ID, s.persistJob)
	s.logger.Info("job started",
		logging.String("job", t.plan.ID),
		logging.String("batch", b.ID),
		logging.String("mode", string(t.plan.Mode)))

	result, err := s.runner.Run(b.ctx, t.plan, func(u ffmpegcli.Update) {
		b.reportProgress(t.plan.ID, u.Fraction, s.persistProgress)
	})

	outcome := classify(err)
	outcome.stderrTail = result.StderrTail
	outcome.outputPath = result.OutputPath
	b.finishJob(t.plan.ID, outcome, s.persistJob)

	if err != nil {
		s.logger.Warn("job finished",
			logging.String("job", t.plan.ID),
			logging.String("status", string(outcome.status)),
			logging.Error(err))
		return
	}
	s.logger.Info("job completed",
		logging.String("job", t.plan.ID),
		logging.String("output", result.OutputPath))
}

// classify maps a driver error onto a terminal job state.
func classify(err error) jobOutcome {
	switch {
	case err == nil:
		return jobOutcome{status: queue.StatusCompleted}
	case errors.Is(err, context.Canceled):
		return cancelledOutcome()
	case errors.Is(err, services.ErrTimeout):
		return jobOutcome{status: queue.StatusFailed, failure: queue.FailureTimeout, message: err.Error()}
	case errors.Is(err, services.ErrToolUnavailable):
		return jobOutcome{status: queue.StatusFailed, failure: queue.FailureToolUnavailable, message: err.Error()}
	case errors.Is(err, services.ErrProcess) && strings.Contains(err.Error(), "no valid output"):
		return jobOutcome{status: queue.StatusFailed, failure: queue.FailureOutputMissing, message: err.Error()}
	default:
		return jobOutcome{status: queue.StatusFailed, failure: queue.FailureProcess, message: err.Error()}
	}
}

func cancelledOutcome() jobOutcome {
	return jobOutcome{status: queue.StatusCancelled}
}

func (s *Scheduler) persistBatch(ctx context.Context, batch *Batch, plans []plan.JobPlan) {
	if s.store == nil {
		return
	}
	jobs := make([]*queue.Job, 0, len(plans))
	for _, p := range plans {
		jobs = append(jobs, &queue.Job{
			ID:         p.ID,
			BatchID:    p.BatchID,
			SourcePath: p.Source.Path,
			OutputPath: p.OutputPath,
			Mode:       string(p.Mode),
			Notes:      strings.Join(p.BoundaryNotes, "; "),
		})
	}
	if err := s.store.CreateBatch(ctx, batch.ID, jobs); err != nil {
		s.logger.Warn("persist batch", logging.Error(err))
	}
}

func (s *Scheduler) persistJob(jobID string, state JobState) {
	if s.store == nil {
		return
	}
	err := s.store.UpdateJobStatus(context.Background(), jobID, state.Status, state.FailureKind, state.Message)
	if err != nil {
		s.logger.Warn("persist job status", logging.String("job", jobID), logging.Error(err))
	}
}

func (s *Scheduler) persistProgress(jobID string, fraction float64) {
	if s.store == nil {
		return
	}
	if err := s.store.UpdateJobProgress(context.Background(), jobID, fraction*100); err != nil {
		s.logger.Warn("persist progress", logging.String("job", jobID), logging.Error(err))
	}
}

// finishBatchRecord persists the aggregate outcome once a batch drains.
func (s *Scheduler) finishBatchRecord(batch *Batch) {
	if s.store == nil {
		return
	}
	status := queue.BatchCompleted
	for _, state := range batch.Snapshot() {
		if state.Status != queue.StatusCompleted {
			status = queue.BatchPartiallyFailed
			break
		}
	}
	if err := s.store.FinishBatch(context.Background(), batch.ID, status); err != nil {
		s.logger.Warn("persist batch outcome", logging.Error(err))
	}
}
