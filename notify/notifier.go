// Package notify delivers ingestion progress and search error events to
// whatever sits in front of the knowledge base (a UI, a CLI, a log).
//
// Delivery is fire-and-forget: a Notifier must not block the caller and
// has no way to report failure back.
package notify

import (
	"log/slog"
	"sync"
)

// ErrorKind classifies an ErrorEvent.
type ErrorKind string

const (
	// KindIndexUnavailable means the base's index is missing, empty or too small to be valid.
	KindIndexUnavailable ErrorKind = "index_unavailable"
	// KindTimeout means a bounded wait expired. Users should retry later.
	KindTimeout ErrorKind = "timeout"
	// KindFailure is any other failure.
	KindFailure ErrorKind = "failure"
)

// ProgressEvent reports directory ingestion progress.
type ProgressEvent struct {
	ItemID  string
	Percent float64 // 0 to 100
}

// ErrorEvent reports a failure that was absorbed instead of returned.
type ErrorEvent struct {
	BaseID  string
	Kind    ErrorKind
	Message string
	Err     error
}

// Notifier receives progress and error events.
// Implementations must be safe for concurrent use.
type Notifier interface {
	Progress(ProgressEvent)
	Error(ErrorEvent)
}

// Noop discards every event.
type Noop struct{}

var _ Notifier = Noop{}

func (Noop) Progress(ProgressEvent) {}
func (Noop) Error(ErrorEvent)       {}

// Log writes events to a slog.Logger.
type Log struct {
	logger *slog.Logger
}

var _ Notifier = (*Log)(nil)

// NewLog creates a notifier that logs events. A nil logger means slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger.With("component", "notify")}
}

func (l *Log) Progress(e ProgressEvent) {
	l.logger.Debug("ingestion progress", "item", e.ItemID, "percent", e.Percent)
}

func (l *Log) Error(e ErrorEvent) {
	l.logger.Warn(e.Message, "base", e.BaseID, "kind", e.Kind, "err", e.Err)
}

// Channel forwards events to buffered channels. Sends never block; events
// are dropped when a buffer is full.
type Channel struct {
	progress chan ProgressEvent
	errors   chan ErrorEvent

	mu      sync.Mutex
	dropped int
}

var _ Notifier = (*Channel)(nil)

// NewChannel creates a Channel with the given buffer size per event type.
func NewChannel(buffer int) *Channel {
	return &Channel{
		progress: make(chan ProgressEvent, buffer),
		errors:   make(chan ErrorEvent, buffer),
	}
}

// ProgressEvents returns the progress stream.
func (c *Channel) ProgressEvents() <-chan ProgressEvent {
	return c.progress
}

// ErrorEvents returns the error stream.
func (c *Channel) ErrorEvents() <-chan ErrorEvent {
	return c.errors
}

// Dropped returns how many events were discarded because a buffer was full.
func (c *Channel) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

func (c *Channel) Progress(e ProgressEvent) {
	select {
	case c.progress <- e:
	default:
		c.drop()
	}
}

func (c *Channel) Error(e ErrorEvent) {
	select {
	case c.errors <- e:
	default:
		c.drop()
	}
}

func (c *Channel) drop() {
	c.mu.Lock()
	c.dropped++
	c.mu.Unlock()
}

// Multi fans every event out to several notifiers in order.
type Multi []Notifier

var _ Notifier = Multi(nil)

func (m Multi) Progress(e ProgressEvent) {
	for _, n := range m {
		n.Progress(e)
	}
}

func (m Multi) Error(e ErrorEvent) {
	for _, n := range m {
		n.Error(e)
	}
}

// OrNoop returns n, or Noop when n is nil.
func OrNoop(n Notifier) Notifier {
	if n == nil {
		return Noop{}
	}
	return n
}
