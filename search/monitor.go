package search

import (
	"time"

	"github.com/poiesic/kbase/core"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to trace each stage of a search.
type SearchMonitor interface {
	Start(baseID, query string)
	IndexChecked(path string, sizeBytes int64)
	EngineOpened(elapsed time.Duration)
	Queried(hits []core.Chunk, elapsed time.Duration)
	VerbatimHit(chunk core.Chunk)
	Failed(err error)
	Finish(results []core.Chunk)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_, _ string)                       {}
func (n *noopMonitor) IndexChecked(_ string, _ int64)          {}
func (n *noopMonitor) EngineOpened(_ time.Duration)            {}
func (n *noopMonitor) Queried(_ []core.Chunk, _ time.Duration) {}
func (n *noopMonitor) VerbatimHit(_ core.Chunk)                {}
func (n *noopMonitor) Failed(_ error)                          {}
func (n *noopMonitor) Finish(_ []core.Chunk)                   {}
