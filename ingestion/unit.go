package ingestion

import (
	"context"

	"github.com/google/uuid"
	"github.com/poiesic/kbase/core"
)

// UnitState is the lifecycle position of a LoaderUnit.
type UnitState int

const (
	// UnitPending units wait for admission.
	UnitPending UnitState = iota
	// UnitProcessing units are running.
	UnitProcessing
	// UnitDone units have finished, successfully or not.
	UnitDone
)

func (s UnitState) String() string {
	switch s {
	case UnitPending:
		return "pending"
	case UnitProcessing:
		return "processing"
	case UnitDone:
		return "done"
	default:
		return "unknown"
	}
}

// Operation performs a unit's work. It reports failure by returning the
// zero outcome, never by panicking.
type Operation func(ctx context.Context) core.IngestionOutcome

// LoaderUnit is one independently admitted piece of ingestion work.
// State is owned by the Queue once the unit's group is submitted.
type LoaderUnit struct {
	label    string
	workload uint64
	op       Operation
	state    UnitState

	// afterDone runs with the queue locked once the unit is Done, so
	// successive calls within a group never interleave. It must not block.
	afterDone func(core.IngestionOutcome)
}

// NewUnit creates a pending unit. label only appears in logs.
func NewUnit(label string, workload uint64, op Operation) *LoaderUnit {
	return &LoaderUnit{label: label, workload: workload, op: op}
}

// Label returns the unit's log label.
func (u *LoaderUnit) Label() string { return u.label }

// Workload returns the unit's byte-cost estimate.
func (u *LoaderUnit) Workload() uint64 { return u.workload }

// UnitGroup is the set of units created for one ingestion request together
// with their merged outcome.
type UnitGroup struct {
	id         string
	label      string
	units      []*LoaderUnit
	outcome    core.IngestionOutcome
	merge      Aggregator
	onComplete func(core.IngestionOutcome)
	pending    *Pending
}

// NewGroup creates a group. A nil merge keeps the last unit's outcome.
func NewGroup(label string, merge Aggregator, units ...*LoaderUnit) *UnitGroup {
	if merge == nil {
		merge = Replace
	}
	return &UnitGroup{
		id:    uuid.NewString(),
		label: label,
		units: units,
		merge: merge,
	}
}

// ID returns the group's generated id.
func (g *UnitGroup) ID() string { return g.id }

// Label returns the group's log label.
func (g *UnitGroup) Label() string { return g.label }

// Len returns the number of unfinished units.
func (g *UnitGroup) Len() int { return len(g.units) }

// Units returns the unfinished units in registration order.
func (g *UnitGroup) Units() []*LoaderUnit {
	return append([]*LoaderUnit(nil), g.units...)
}

// OnComplete registers fn to run with the merged outcome once the last unit
// is done, before the group's Pending resolves. It must be set before the
// group is submitted. fn runs on its own goroutine, outside the queue's
// lock and worker pool, so it may block or submit further groups.
func (g *UnitGroup) OnComplete(fn func(core.IngestionOutcome)) *UnitGroup {
	g.onComplete = fn
	return g
}

func (g *UnitGroup) remove(u *LoaderUnit) {
	for i, candidate := range g.units {
		if candidate == u {
			g.units = append(g.units[:i], g.units[i+1:]...)
			return
		}
	}
}

// finish fires the completion callback and resolves the pending handle.
func (g *UnitGroup) finish() {
	if g.onComplete != nil {
		g.onComplete(g.outcome)
	}
	if g.pending != nil {
		g.pending.resolve(g.outcome, nil)
	}
}
