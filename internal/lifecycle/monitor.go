// Package lifecycle decides when the sync engine runs.
//
// The monitor owns every drain trigger: the offline-to-online edge, a
// periodic interval while online, and the best-effort fast path right
// after a local write. It depends on an abstract connectivity Source
// rather than any platform API, so tests can drive transitions
// deterministically.
package lifecycle

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/lokigod69/sprout/internal/queue"
	syncengine "github.com/lokigod69/sprout/internal/sync"
)

// Source reports connectivity and emits transitions.
//
// Subscribe callbacks fire on state changes only (edge-triggered); a
// source must not re-fire while the state is unchanged. Callbacks may be
// invoked from the source's own goroutine and must not block.
type Source interface {
	// Online reports the current connectivity state.
	Online() bool

	// Subscribe registers fn for state transitions and returns a
	// function that unsubscribes it.
	Subscribe(fn func(online bool)) (cancel func())
}

// Drainer is the sync engine surface the monitor invokes.
type Drainer interface {
	DrainOnce(ctx context.Context) (syncengine.Result, error)
}

// Config holds monitor configuration.
type Config struct {
	// Interval is the periodic drain cadence while online (default: 1m).
	// It defends against missed transition events.
	Interval time.Duration

	// StaleAfter is how long the queue may stay non-empty before the
	// monitor logs a background warning (default: 24h).
	StaleAfter time.Duration

	// Logger for monitor activity (default: stderr logger).
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:   time.Minute,
		StaleAfter: 24 * time.Hour,
		Logger:     log.New(os.Stderr, "[monitor] ", log.LstdFlags),
	}
}

// Monitor invokes the drainer on connectivity edges, on a periodic
// timer, and on manual triggers.
type Monitor struct {
	source  Source
	drainer Drainer
	queue   *queue.Manager
	config  *Config

	trigger chan struct{}
}

// New creates a monitor. The queue manager is used only for the
// staleness warning; pass nil to disable it.
func New(source Source, drainer Drainer, q *queue.Manager, config *Config) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = 24 * time.Hour
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[monitor] ", log.LstdFlags)
	}
	return &Monitor{
		source:  source,
		drainer: drainer,
		queue:   q,
		config:  config,
		trigger: make(chan struct{}, 1),
	}
}

// TriggerNow requests a drain as soon as the monitor's loop gets to it.
// Safe to call from any goroutine; coalesces with an undelivered trigger.
func (m *Monitor) TriggerNow() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// NotifyEnqueued is the post-write fast path: if currently online, a
// drain is requested immediately. Failure here is absorbed on purpose -
// the edge and periodic triggers provide the durability guarantee.
func (m *Monitor) NotifyEnqueued() {
	if m.source.Online() {
		m.TriggerNow()
	}
}

// Run blocks until ctx is cancelled, draining on connectivity edges,
// periodic ticks while online, and manual triggers.
func (m *Monitor) Run(ctx context.Context) error {
	cancelSub := m.source.Subscribe(func(online bool) {
		if online {
			m.config.Logger.Println("Connectivity restored, scheduling drain")
			m.TriggerNow()
		} else {
			m.config.Logger.Println("Connectivity lost")
		}
	})
	defer cancelSub()

	// Drain once at startup to pick up anything left from a previous run.
	m.TriggerNow()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			m.drain(ctx)

		case <-m.trigger:
			m.drain(ctx)
		}
	}
}

// drain runs one pass if online, containing every failure.
func (m *Monitor) drain(ctx context.Context) {
	if !m.source.Online() {
		return
	}

	result, err := m.drainer.DrainOnce(ctx)
	if err != nil {
		if errors.Is(err, syncengine.ErrAlreadyDraining) {
			return
		}
		m.config.Logger.Printf("Drain error: %v", err)
		return
	}

	if result.StillPending > 0 {
		m.warnIfStale(ctx)
	}
}

// warnIfStale logs when undelivered mutations have been waiting beyond
// the staleness threshold.
func (m *Monitor) warnIfStale(ctx context.Context) {
	if m.queue == nil {
		return
	}

	age, ok, err := m.queue.OldestPendingAge(ctx)
	if err != nil {
		m.config.Logger.Printf("Staleness check failed: %v", err)
		return
	}
	if ok && age > m.config.StaleAfter {
		m.config.Logger.Printf("WARNING: oldest pending mutation is %v old (threshold %v)",
			age.Round(time.Second), m.config.StaleAfter)
	}
}
