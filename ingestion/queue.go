package ingestion

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/kbase/core"
)

// Default admission limits.
const (
	DefaultMaxWorkload        uint64 = 80 << 20
	DefaultMaxProcessingUnits        = 30
)

// releaseTimeout bounds how long Release waits for cancelled units.
const releaseTimeout = 5 * time.Second

// Stats is a snapshot of the queue's bookkeeping.
type Stats struct {
	TotalWorkload     uint64 // sum of workloads of running units
	TotalProcessing   int    // number of running units
	OutstandingGroups int
	PendingUnits      int
}

// Queue admits loader units under a workload budget and a concurrency cap.
//
// A pending unit is admitted when the running units leave room for it:
// fewer than MaxProcessingUnits are running and adding its workload stays
// within MaxWorkload. A unit larger than MaxWorkload is admitted only when
// nothing else is running. Admission walks groups and their units in
// submission order and stops at the first unit that does not fit.
type Queue struct {
	maxWorkload uint64
	maxUnits    int
	observer    func(Stats)
	logger      *slog.Logger

	pool   *ants.Pool
	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.Mutex
	totalWorkload   uint64
	totalProcessing int
	pendingUnits    int
	groups          []*UnitGroup
	closed          bool
}

// Option configures a Queue.
type Option func(*Queue) error

// WithMaxWorkload sets the workload budget in bytes.
// Default is 80 MiB.
func WithMaxWorkload(bytes uint64) Option {
	return func(q *Queue) error {
		if bytes == 0 {
			return ErrInvalidLimit
		}
		q.maxWorkload = bytes
		return nil
	}
}

// WithMaxProcessingUnits caps how many units run at once.
// Default is 30.
func WithMaxProcessingUnits(n int) Option {
	return func(q *Queue) error {
		if n < 1 {
			return ErrInvalidLimit
		}
		q.maxUnits = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) error {
		if logger == nil {
			logger = slog.Default()
		}
		q.logger = logger
		return nil
	}
}

// WithObserver registers fn to receive a Stats snapshot after every
// admission and every completion. fn runs with the queue locked and must
// not call back into the queue.
func WithObserver(fn func(Stats)) Option {
	return func(q *Queue) error {
		q.observer = fn
		return nil
	}
}

// NewQueue creates a queue and its worker pool.
func NewQueue(opts ...Option) (*Queue, error) {
	q := &Queue{
		maxWorkload: DefaultMaxWorkload,
		maxUnits:    DefaultMaxProcessingUnits,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(q); err != nil {
			return nil, err
		}
	}
	q.logger = q.logger.With("component", "ingestion-queue")

	// A completing worker keeps its slot while it dispatches successors,
	// so at most maxUnits workers run units and at most maxUnits more are
	// handing off.
	pool, err := ants.NewPool(2 * q.maxUnits)
	if err != nil {
		return nil, err
	}
	q.pool = pool
	q.ctx, q.cancel = context.WithCancel(context.Background())

	return q, nil
}

// Submit registers a group and starts admitting its units. A group without
// units completes before Submit returns, with the zero outcome.
func (q *Queue) Submit(group *UnitGroup) *Pending {
	pending := newPending()
	if group == nil {
		pending.resolve(core.IngestionOutcome{}, nil)
		return pending
	}
	group.pending = pending

	if len(group.units) == 0 {
		q.logger.Debug("empty group completed immediately", "group", group.id, "label", group.label)
		group.finish()
		return pending
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		pending.resolve(core.IngestionOutcome{}, ErrQueueClosed)
		return pending
	}

	for _, u := range group.units {
		u.state = UnitPending
	}
	q.groups = append(q.groups, group)
	q.pendingUnits += len(group.units)
	q.logger.Debug("group submitted", "group", group.id, "label", group.label, "units", len(group.units))

	admitted := q.drain()
	q.mu.Unlock()

	q.dispatch(admitted)
	return pending
}

// Stats returns a snapshot of the queue's counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshot()
}

// Release stops admission, cancels running units and waits up to
// releaseTimeout for them to return. Pending handles of unfinished groups
// resolve with ErrQueueClosed.
func (q *Queue) Release() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	abandoned := q.groups
	q.groups = nil
	q.pendingUnits = 0
	q.mu.Unlock()

	q.cancel()
	if err := q.pool.ReleaseTimeout(releaseTimeout); err != nil {
		q.logger.Warn("units still running after release", "timeout", releaseTimeout, "err", err)
	}

	for _, g := range abandoned {
		q.logger.Warn("abandoning group", "group", g.id, "label", g.label, "remaining", len(g.units))
		if g.pending != nil {
			g.pending.resolve(core.IngestionOutcome{}, ErrQueueClosed)
		}
	}
}

// admission is a unit taken off the pending list, waiting to be handed to
// the worker pool.
type admission struct {
	group *UnitGroup
	unit  *LoaderUnit
}

// drain admits pending units until one does not fit and returns them for
// dispatch. Caller holds q.mu.
func (q *Queue) drain() []admission {
	if q.closed {
		return nil
	}
	var admitted []admission
	for _, g := range q.groups {
		for _, u := range g.units {
			if u.state != UnitPending {
				continue
			}
			if q.blocked(u.workload) {
				return admitted
			}
			q.admit(u)
			admitted = append(admitted, admission{group: g, unit: u})
		}
	}
	return admitted
}

func (q *Queue) blocked(workload uint64) bool {
	if q.totalProcessing+1 > q.maxUnits {
		return true
	}
	return q.totalProcessing > 0 && q.totalWorkload+workload > q.maxWorkload
}

// admit marks u running and charges it to the budget. Caller holds q.mu.
func (q *Queue) admit(u *LoaderUnit) {
	u.state = UnitProcessing
	q.totalWorkload += u.workload
	q.totalProcessing++
	q.pendingUnits--

	if u.workload > q.maxWorkload {
		q.logger.Info("admitted oversized unit alone", "unit", u.label, "workload", u.workload, "max", q.maxWorkload)
	}
	q.observe()
}

// dispatch hands admitted units to the pool. It must be called without
// q.mu held: Submit blocks while every worker is busy. A unit the pool
// refuses completes with the zero outcome.
func (q *Queue) dispatch(admitted []admission) {
	for _, a := range admitted {
		g, u := a.group, a.unit
		if err := q.pool.Submit(func() { q.run(g, u) }); err != nil {
			q.logger.Error("worker pool rejected unit", "group", g.id, "unit", u.label, "err", err)
			q.complete(g, u, core.IngestionOutcome{})
		}
	}
}

func (q *Queue) run(g *UnitGroup, u *LoaderUnit) {
	q.complete(g, u, q.execute(u))
}

// execute runs the unit's operation, turning a panic into the zero outcome.
func (q *Queue) execute(u *LoaderUnit) (outcome core.IngestionOutcome) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("loader unit panicked", "unit", u.label, "panic", r)
			outcome = core.IngestionOutcome{}
		}
	}()
	return u.op(q.ctx)
}

// complete settles u, admits its successors and, when u was the group's
// last unit, finishes the group on its own goroutine so a slow or
// re-entrant completion callback never holds a worker.
func (q *Queue) complete(g *UnitGroup, u *LoaderUnit, outcome core.IngestionOutcome) {
	q.mu.Lock()
	q.totalWorkload -= u.workload
	q.totalProcessing--
	u.state = UnitDone

	if q.closed {
		q.mu.Unlock()
		return
	}

	g.remove(u)
	g.outcome = g.merge(g.outcome, outcome)
	if u.afterDone != nil {
		u.afterDone(outcome)
	}

	finished := len(g.units) == 0
	if finished {
		q.removeGroup(g)
	}
	q.observe()
	admitted := q.drain()
	q.mu.Unlock()

	q.dispatch(admitted)

	if finished {
		q.logger.Debug("group completed", "group", g.id, "label", g.label,
			"entries", g.outcome.EntriesAdded)
		go g.finish()
	}
}

func (q *Queue) removeGroup(g *UnitGroup) {
	for i, candidate := range q.groups {
		if candidate == g {
			q.groups = append(q.groups[:i], q.groups[i+1:]...)
			return
		}
	}
}

func (q *Queue) observe() {
	if q.observer != nil {
		q.observer(q.snapshot())
	}
}

func (q *Queue) snapshot() Stats {
	return Stats{
		TotalWorkload:     q.totalWorkload,
		TotalProcessing:   q.totalProcessing,
		OutstandingGroups: len(q.groups),
		PendingUnits:      q.pendingUnits,
	}
}
