package notify

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressPrinter renders progress events as a single terminal line.
// Error events are printed on their own line.
type ProgressPrinter struct {
	writer    io.Writer
	startTime time.Time
	last      float64
	mu        sync.Mutex
}

var _ Notifier = (*ProgressPrinter)(nil)

// NewProgressPrinter creates a printer writing to w (typically os.Stderr).
func NewProgressPrinter(w io.Writer) *ProgressPrinter {
	return &ProgressPrinter{
		writer:    w,
		startTime: time.Now(),
		last:      -1,
	}
}

// Progress prints the event, skipping repeats of the same percentage.
func (p *ProgressPrinter) Progress(e ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e.Percent == p.last {
		return
	}
	p.last = e.Percent
	elapsed := time.Since(p.startTime)

	fmt.Fprintf(p.writer, "\rProgress: %s %.1f%% - %s elapsed", e.ItemID, e.Percent, elapsed.Truncate(time.Millisecond))
	if e.Percent >= 100 {
		fmt.Fprintln(p.writer)
	}
}

// Error prints the event on its own line.
func (p *ProgressPrinter) Error(e ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.writer, "\n%s [%s]: %s\n", e.BaseID, e.Kind, e.Message)
}
