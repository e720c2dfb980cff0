package scheduler

import (
	"context"
	"sync"

	"clipforge/internal/plan"
	"clipforge/internal/queue"
)

// JobState is a point-in-time view of one job.
type JobState struct {
	ID          string
	Status      queue.Status
	Fraction    float64
	FailureKind queue.FailureKind
	Message     string
	OutputPath  string
	StderrTail  []string
	Notes       []string
}

// Update is one progress or state-change event delivered to observers.
type Update struct {
	JobID    string
	Status   queue.Status
	Fraction float64
}

// jobOutcome is the terminal result a worker reports for one job.
type jobOutcome struct {
	status     queue.Status
	failure    queue.FailureKind
	message    string
	outputPath string
	stderrTail []string
}

// updateBuffer bounds the observer channel. A slow observer loses
// intermediate progress events; terminal states remain visible via Snapshot.
const updateBuffer = 64

// Batch is the handle returned by Submit. It scopes cancellation and
// aggregates per-job state; one batch's cancellation never affects another
// batch sharing the pool.
type Batch struct {
	ID string

	ctx    context.Context
	cancel context.CancelFunc
	onDone func()

	mu        sync.Mutex
	states    map[string]*JobState
	order     []string
	remaining int
	closed    bool
	updates   chan Update
	done      chan struct{}
}

func newBatch(id string, parent context.Context, plans []plan.JobPlan) *Batch {
	ctx, cancel := context.WithCancel(parent)
	b := &Batch{
		ID:        id,
		ctx:       ctx,
		cancel:    cancel,
		states:    make(map[string]*JobState, len(plans)),
		order:     make([]string, 0, len(plans)),
		remaining: len(plans),
		updates:   make(chan Update, updateBuffer),
		done:      make(chan struct{}),
	}
	for _, p := range plans {
		b.states[p.ID] = &JobState{
			ID:         p.ID,
			Status:     queue.StatusPending,
			OutputPath: p.OutputPath,
			Notes:      p.BoundaryNotes,
		}
		b.order = append(b.order, p.ID)
	}
	return b
}

// Cancel requests batch-scoped cancellation. Pending jobs become Cancelled
// without dispatch; running jobs are signalled and reach a terminal state
// once their process exits.
func (b *Batch) Cancel() {
	b.cancel()
}

// Updates streams state changes and progress. The channel closes after every
// job has reached a terminal state.
func (b *Batch) Updates() <-chan Update {
	return b.updates
}

// Done closes after every job has reached a terminal state.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until the batch drains or ctx expires.
func (b *Batch) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns every job's current state in submission order.
func (b *Batch) Snapshot() []JobState {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]JobState, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.states[id])
	}
	return out
}

// Progress returns the aggregate completion fraction across all jobs.
func (b *Batch) Progress() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.order) == 0 {
		return 0
	}
	var sum float64
	for _, id := range b.order {
		sum += b.states[id].Fraction
	}
	return sum / float64(len(b.order))
}

func (b *Batch) markRunning(jobID string, persist func(string, JobState)) {
	b.mu.Lock()
	state := b.states[jobID]
	state.Status = queue.StatusRunning
	snapshot := *state
	b.emitLocked(Update{JobID: jobID, Status: queue.StatusRunning})
	b.mu.Unlock()

	persist(jobID, snapshot)
}

func (b *Batch) reportProgress(jobID string, fraction float64, persist func(string, float64)) {
	b.mu.Lock()
	state := b.states[jobID]
	if fraction > state.Fraction {
		state.Fraction = fraction
	}
	current := state.Fraction
	b.emitLocked(Update{JobID: jobID, Status: queue.StatusRunning, Fraction: current})
	b.mu.Unlock()

	persist(jobID, current)
}

// finishJob records a terminal state exactly once per job and closes the
// batch when the last job drains.
func (b *Batch) finishJob(jobID string, outcome jobOutcome, persist func(string, JobState)) {
	b.mu.Lock()
	state := b.states[jobID]
	if state.Status.Terminal() {
		b.mu.Unlock()
		return
	}
	state.Status = outcome.status
	state.FailureKind = outcome.failure
	state.Message = outcome.message
	state.StderrTail = outcome.stderrTail
	if outcome.outputPath != "" {
		state.OutputPath = outcome.outputPath
	}
	if outcome.status == queue.StatusCompleted {
		state.Fraction = 1
	}
	snapshot := *state
	b.remaining--
	last := b.remaining == 0
	b.emitLocked(Update{JobID: jobID, Status: snapshot.Status, Fraction: snapshot.Fraction})
	if last {
		b.closed = true
		close(b.updates)
	}
	b.mu.Unlock()

	persist(jobID, snapshot)
	if last {
		if b.onDone != nil {
			b.onDone()
		}
		close(b.done)
	}
}

// emitLocked delivers an update without blocking. Callers hold b.mu, which
// serializes sends against the close in finishJob.
func (b *Batch) emitLocked(update Update) {
	if b.closed {
		return
	}
	select {
	case b.updates <- update:
	default:
	}
}
