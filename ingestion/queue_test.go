package ingestion

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/kbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mib = 1 << 20

// gatedUnit blocks until its release channel is closed and reports when it starts.
type gatedUnit struct {
	*LoaderUnit
	started chan struct{}
	release chan struct{}
}

func newGatedUnit(label string, workload uint64, outcome core.IngestionOutcome) *gatedUnit {
	g := &gatedUnit{started: make(chan struct{}), release: make(chan struct{})}
	g.LoaderUnit = NewUnit(label, workload, func(ctx context.Context) core.IngestionOutcome {
		close(g.started)
		select {
		case <-g.release:
			return outcome
		case <-ctx.Done():
			return core.IngestionOutcome{}
		}
	})
	return g
}

func fileOutcome(name string) core.IngestionOutcome {
	return core.IngestionOutcome{
		EntriesAdded: 1,
		UniqueID:     core.UniqueIDFor(core.LoaderTypeLocalPath, name),
		LoaderType:   core.LoaderTypeLocalPath,
	}
}

func requireStarted(t *testing.T, u *gatedUnit) {
	t.Helper()
	select {
	case <-u.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("unit %s was not admitted", u.Label())
	}
}

func requireNotStarted(t *testing.T, u *gatedUnit) {
	t.Helper()
	select {
	case <-u.started:
		t.Fatalf("unit %s was admitted too early", u.Label())
	case <-time.After(50 * time.Millisecond):
	}
}

func waitOutcome(t *testing.T, p *Pending) core.IngestionOutcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	outcome, err := p.Wait(ctx)
	require.NoError(t, err)
	return outcome
}

func newTestQueue(t *testing.T, opts ...Option) *Queue {
	t.Helper()
	q, err := NewQueue(opts...)
	require.NoError(t, err)
	t.Cleanup(q.Release)
	return q
}

func TestNewQueue_InvalidLimits(t *testing.T) {
	_, err := NewQueue(WithMaxWorkload(0))
	assert.ErrorIs(t, err, ErrInvalidLimit)

	_, err = NewQueue(WithMaxProcessingUnits(0))
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestQueue_WorkloadBudget(t *testing.T) {
	q := newTestQueue(t, WithMaxWorkload(80*mib))

	a := newGatedUnit("a", 10*mib, fileOutcome("a"))
	b := newGatedUnit("b", 10*mib, fileOutcome("b"))
	c := newGatedUnit("c", 70*mib, fileOutcome("c"))
	p := q.Submit(NewGroup("dir", Accumulate, a.LoaderUnit, b.LoaderUnit, c.LoaderUnit))

	requireStarted(t, a)
	requireStarted(t, b)
	requireNotStarted(t, c)
	assert.Equal(t, Stats{TotalWorkload: 20 * mib, TotalProcessing: 2, OutstandingGroups: 1, PendingUnits: 1}, q.Stats())

	close(a.release)
	requireStarted(t, c)
	assert.Equal(t, uint64(80*mib), q.Stats().TotalWorkload)

	close(b.release)
	close(c.release)
	outcome := waitOutcome(t, p)
	assert.Equal(t, uint(3), outcome.EntriesAdded)
	assert.Len(t, outcome.UniqueIDs, 3)
	assert.Equal(t, core.LoaderTypeLocalPath, outcome.LoaderType)
	assert.Equal(t, Stats{}, q.Stats())
}

func TestQueue_OversizedUnitAdmittedWhenIdle(t *testing.T) {
	q := newTestQueue(t, WithMaxWorkload(80*mib))

	big := newGatedUnit("big", 100*mib, fileOutcome("big"))
	p := q.Submit(NewGroup("big", Replace, big.LoaderUnit))
	requireStarted(t, big)
	assert.Equal(t, uint64(100*mib), q.Stats().TotalWorkload)

	close(big.release)
	assert.Equal(t, uint(1), waitOutcome(t, p).EntriesAdded)
}

func TestQueue_OversizedUnitWaitsForRunningWork(t *testing.T) {
	q := newTestQueue(t, WithMaxWorkload(80*mib))

	small := newGatedUnit("small", 1, fileOutcome("small"))
	big := newGatedUnit("big", 100*mib, fileOutcome("big"))

	p1 := q.Submit(NewGroup("small", Replace, small.LoaderUnit))
	requireStarted(t, small)
	p2 := q.Submit(NewGroup("big", Replace, big.LoaderUnit))
	requireNotStarted(t, big)

	close(small.release)
	waitOutcome(t, p1)
	requireStarted(t, big)
	close(big.release)
	waitOutcome(t, p2)
}

func TestQueue_BlockedUnitHoldsBackLaterGroups(t *testing.T) {
	q := newTestQueue(t, WithMaxWorkload(10*mib))

	first := newGatedUnit("first", 8*mib, fileOutcome("first"))
	second := newGatedUnit("second", 8*mib, fileOutcome("second"))
	tiny := newGatedUnit("tiny", 1, fileOutcome("tiny"))

	q.Submit(NewGroup("g1", Replace, first.LoaderUnit))
	requireStarted(t, first)
	q.Submit(NewGroup("g2", Replace, second.LoaderUnit))
	q.Submit(NewGroup("g3", Replace, tiny.LoaderUnit))

	// tiny would fit, but admission stops at the first unit that does not.
	requireNotStarted(t, tiny)
	assert.Equal(t, 2, q.Stats().PendingUnits)

	close(first.release)
	requireStarted(t, second)
	requireStarted(t, tiny)
	close(second.release)
	close(tiny.release)
}

func TestQueue_MaxProcessingUnits(t *testing.T) {
	var mu sync.Mutex
	maxSeen := 0
	q := newTestQueue(t, WithMaxProcessingUnits(2), WithObserver(func(s Stats) {
		mu.Lock()
		defer mu.Unlock()
		maxSeen = max(maxSeen, s.TotalProcessing)
	}))

	units := make([]*gatedUnit, 5)
	group := NewGroup("five", Accumulate)
	for i := range units {
		units[i] = newGatedUnit(fmt.Sprintf("u%d", i), 1, fileOutcome(fmt.Sprintf("u%d", i)))
		group.units = append(group.units, units[i].LoaderUnit)
	}
	p := q.Submit(group)

	requireStarted(t, units[0])
	requireStarted(t, units[1])
	requireNotStarted(t, units[2])

	for i, u := range units {
		close(u.release)
		if i+2 < len(units) {
			requireStarted(t, units[i+2])
		}
	}

	assert.Equal(t, uint(5), waitOutcome(t, p).EntriesAdded)
	mu.Lock()
	assert.Equal(t, 2, maxSeen)
	mu.Unlock()
}

func TestQueue_EmptyGroupCompletesImmediately(t *testing.T) {
	q := newTestQueue(t)

	calls := 0
	p := q.Submit(NewGroup("empty", Accumulate).OnComplete(func(o core.IngestionOutcome) {
		calls++
		assert.True(t, o.IsZero())
	}))

	select {
	case <-p.Done():
	default:
		t.Fatal("empty group should be resolved on submit")
	}
	outcome := waitOutcome(t, p)
	assert.Equal(t, uint(0), outcome.EntriesAdded)
	assert.Equal(t, 1, calls)
	assert.Equal(t, Stats{}, q.Stats())
}

func TestQueue_NilGroup(t *testing.T) {
	q := newTestQueue(t)
	assert.True(t, waitOutcome(t, q.Submit(nil)).IsZero())
}

func TestQueue_FailingUnitsDoNotStallGroup(t *testing.T) {
	q := newTestQueue(t)

	ok := NewUnit("ok", 10, func(context.Context) core.IngestionOutcome { return fileOutcome("ok") })
	failed := NewUnit("failed", 10, func(context.Context) core.IngestionOutcome { return core.IngestionOutcome{} })
	panics := NewUnit("panics", 10, func(context.Context) core.IngestionOutcome { panic("boom") })

	p := q.Submit(NewGroup("mixed", Accumulate, ok, failed, panics))
	outcome := waitOutcome(t, p)

	assert.Equal(t, uint(1), outcome.EntriesAdded)
	assert.Equal(t, []string{fileOutcome("ok").UniqueID}, outcome.UniqueIDs)
	assert.Equal(t, Stats{}, q.Stats())
}

func TestQueue_OnCompleteBeforeResolve(t *testing.T) {
	q := newTestQueue(t)

	var order []string
	var mu sync.Mutex
	unit := NewUnit("note", 5, func(context.Context) core.IngestionOutcome { return fileOutcome("note") })
	p := q.Submit(NewGroup("note", Replace, unit).OnComplete(func(core.IngestionOutcome) {
		mu.Lock()
		order = append(order, "complete")
		mu.Unlock()
	}))

	waitOutcome(t, p)
	mu.Lock()
	order = append(order, "resolved")
	assert.Equal(t, []string{"complete", "resolved"}, order)
	mu.Unlock()
	assert.Equal(t, UnitDone, unit.state)
}

func TestQueue_IndependentGroups(t *testing.T) {
	q := newTestQueue(t)

	var completions atomic.Int32
	var wg sync.WaitGroup
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("note-%d", i)
			unit := NewUnit(name, 5, func(context.Context) core.IngestionOutcome { return fileOutcome(name) })
			p := q.Submit(NewGroup(name, Replace, unit).OnComplete(func(core.IngestionOutcome) {
				completions.Add(1)
			}))
			outcome, err := p.Wait(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, fileOutcome(name).UniqueID, outcome.UniqueID)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(2), completions.Load())
}

func TestQueue_OnCompleteMayCallBackIntoQueue(t *testing.T) {
	q := newTestQueue(t, WithMaxProcessingUnits(1))

	gate := make(chan struct{})
	stats := make(chan Stats, 1)
	chained := make(chan *Pending, 1)
	note := func(name string) *LoaderUnit {
		return NewUnit(name, 5, func(context.Context) core.IngestionOutcome { return fileOutcome(name) })
	}

	p1 := q.Submit(NewGroup("g1", Replace, note("g1")).OnComplete(func(core.IngestionOutcome) {
		<-gate
		stats <- q.Stats()
		chained <- q.Submit(NewGroup("g4", Replace, note("g4")))
	}))
	p2 := q.Submit(NewGroup("g2", Replace, note("g2")))
	p3 := q.Submit(NewGroup("g3", Replace, note("g3")))

	// g1's callback is parked; the rest of the queue keeps moving.
	assert.Equal(t, fileOutcome("g2").UniqueID, waitOutcome(t, p2).UniqueID)
	assert.Equal(t, fileOutcome("g3").UniqueID, waitOutcome(t, p3).UniqueID)
	select {
	case <-p1.Done():
		t.Fatal("g1 resolved before its callback returned")
	default:
	}

	close(gate)
	assert.Equal(t, fileOutcome("g1").UniqueID, waitOutcome(t, p1).UniqueID)
	select {
	case s := <-stats:
		assert.Zero(t, s.TotalProcessing)
	case <-time.After(5 * time.Second):
		t.Fatal("Stats from a completion callback never returned")
	}
	assert.Equal(t, fileOutcome("g4").UniqueID, waitOutcome(t, <-chained).UniqueID)
	assert.Equal(t, Stats{}, q.Stats())
}

func TestQueue_SlowCallbacksDoNotHoldWorkers(t *testing.T) {
	const (
		maxUnits = 2
		groups   = 4 * maxUnits
	)
	q := newTestQueue(t, WithMaxProcessingUnits(maxUnits))

	gate := make(chan struct{})
	var ran, parked atomic.Int32
	pendings := make([]*Pending, 0, groups)
	for i := range groups {
		name := fmt.Sprintf("g%d", i)
		unit := NewUnit(name, 5, func(context.Context) core.IngestionOutcome {
			ran.Add(1)
			return fileOutcome(name)
		})
		pendings = append(pendings, q.Submit(NewGroup(name, Replace, unit).OnComplete(func(core.IngestionOutcome) {
			parked.Add(1)
			<-gate
		})))
	}

	assert.Eventually(t, func() bool {
		return ran.Load() == groups && parked.Load() == groups
	}, 5*time.Second, 5*time.Millisecond, "every group is admitted while callbacks block")
	assert.Equal(t, Stats{}, q.Stats())

	close(gate)
	for i, p := range pendings {
		assert.Equal(t, fileOutcome(fmt.Sprintf("g%d", i)).UniqueID, waitOutcome(t, p).UniqueID)
	}
}

func TestQueue_InvariantsUnderLoad(t *testing.T) {
	const (
		maxWorkload = 1000
		maxUnits    = 4
		groups      = 20
	)

	var violations atomic.Int32
	q := newTestQueue(t,
		WithMaxWorkload(maxWorkload),
		WithMaxProcessingUnits(maxUnits),
		WithObserver(func(s Stats) {
			if s.TotalProcessing > maxUnits || s.TotalProcessing < 0 {
				violations.Add(1)
			}
			// Only a lone oversized unit may exceed the budget.
			if s.TotalWorkload > maxWorkload && s.TotalProcessing != 1 {
				violations.Add(1)
			}
		}))

	rng := rand.New(rand.NewSource(42))
	type submitted struct {
		pending   *Pending
		units     int
		completed *atomic.Int32
	}
	var all []submitted
	for g := range groups {
		n := 1 + rng.Intn(6)
		group := NewGroup(fmt.Sprintf("g%d", g), Accumulate)
		for u := range n {
			workload := uint64(rng.Intn(1200))
			delay := time.Duration(rng.Intn(3)) * time.Millisecond
			fail := rng.Intn(5) == 0
			name := fmt.Sprintf("g%d-u%d", g, u)
			group.units = append(group.units, NewUnit(name, workload, func(context.Context) core.IngestionOutcome {
				time.Sleep(delay)
				if fail {
					return core.IngestionOutcome{}
				}
				return fileOutcome(name)
			}))
		}
		completed := &atomic.Int32{}
		group.OnComplete(func(core.IngestionOutcome) { completed.Add(1) })
		all = append(all, submitted{pending: q.Submit(group), units: n, completed: completed})
	}

	for _, s := range all {
		outcome := waitOutcome(t, s.pending)
		assert.LessOrEqual(t, int(outcome.EntriesAdded), s.units)
		assert.Len(t, outcome.UniqueIDs, int(outcome.EntriesAdded))
		assert.Equal(t, int32(1), s.completed.Load())
	}
	assert.Zero(t, violations.Load())
	assert.Equal(t, Stats{}, q.Stats())
}

func TestQueue_ReleaseResolvesOutstanding(t *testing.T) {
	q, err := NewQueue()
	require.NoError(t, err)

	unit := newGatedUnit("stuck", 1, fileOutcome("stuck"))
	p := q.Submit(NewGroup("stuck", Replace, unit.LoaderUnit))
	requireStarted(t, unit)

	start := time.Now()
	q.Release()
	assert.Less(t, time.Since(start), releaseTimeout, "running unit was not cancelled")
	_, err = p.Wait(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)

	late := q.Submit(NewGroup("late", Replace, NewUnit("late", 1, func(context.Context) core.IngestionOutcome {
		return fileOutcome("late")
	})))
	_, err = late.Wait(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)

	q.Release()
}

func TestPending_WaitHonorsContext(t *testing.T) {
	q := newTestQueue(t)

	unit := newGatedUnit("slow", 1, fileOutcome("slow"))
	p := q.Submit(NewGroup("slow", Replace, unit.LoaderUnit))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(unit.release)
	assert.Equal(t, uint(1), waitOutcome(t, p).EntriesAdded)
}
