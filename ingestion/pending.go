package ingestion

import (
	"context"
	"sync"

	"github.com/poiesic/kbase/core"
)

// Pending is the caller's handle on a submitted group.
type Pending struct {
	done    chan struct{}
	once    sync.Once
	outcome core.IngestionOutcome
	err     error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// resolve settles p. Only the first call has an effect.
func (p *Pending) resolve(outcome core.IngestionOutcome, err error) {
	p.once.Do(func() {
		p.outcome = outcome
		p.err = err
		close(p.done)
	})
}

// Done is closed once the group has completed or the queue was released.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the group completes or ctx ends. A context error only
// abandons the wait; the group keeps running.
func (p *Pending) Wait(ctx context.Context) (core.IngestionOutcome, error) {
	select {
	case <-p.done:
		return p.outcome, p.err
	case <-ctx.Done():
		return core.IngestionOutcome{}, ctx.Err()
	}
}
