package lifecycle

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Pinger checks backend reachability. Satisfied by *remote.Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// subscribers is the shared edge-triggered notification list.
type subscribers struct {
	mu   sync.Mutex
	subs map[int]func(online bool)
	next int
}

func (s *subscribers) add(fn func(online bool)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[int]func(online bool))
	}
	id := s.next
	s.next++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *subscribers) notify(online bool) {
	s.mu.Lock()
	fns := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

// ProbeSource derives connectivity from periodic reachability probes
// against the remote backend.
type ProbeSource struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	logger   *log.Logger

	mu     sync.Mutex
	online bool

	subscribers
}

// NewProbeSource creates a probe-based connectivity source. The source
// starts offline and flips online after the first successful probe.
func NewProbeSource(pinger Pinger, interval time.Duration, logger *log.Logger) *ProbeSource {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[probe] ", log.LstdFlags)
	}
	return &ProbeSource{
		pinger:   pinger,
		interval: interval,
		timeout:  5 * time.Second,
		logger:   logger,
	}
}

// Online implements Source.
func (p *ProbeSource) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// Subscribe implements Source.
func (p *ProbeSource) Subscribe(fn func(online bool)) (cancel func()) {
	return p.add(fn)
}

// Run probes until ctx is cancelled. An immediate probe runs at startup
// so the first drain isn't delayed by a full interval.
func (p *ProbeSource) Run(ctx context.Context) error {
	p.probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

func (p *ProbeSource) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	err := p.pinger.Ping(probeCtx)
	cancel()

	p.setOnline(err == nil)
}

// setOnline records the probed state, notifying on transitions only.
func (p *ProbeSource) setOnline(online bool) {
	p.mu.Lock()
	changed := p.online != online
	p.online = online
	p.mu.Unlock()

	if changed {
		p.logger.Printf("Connectivity: online=%v", online)
		p.notify(online)
	}
}

// OverrideSource wraps another Source with a file-based kill switch: while
// the override file exists, the composed state is forced offline. Touch
// the file to take the client off the network (for tests and ops), remove
// it to fall back to the inner source.
type OverrideSource struct {
	inner   Source
	path    string
	watcher *fsnotify.Watcher
	logger  *log.Logger

	mu      sync.Mutex
	forced  bool
	last    bool
	running bool

	done chan struct{}
	wg   sync.WaitGroup

	subscribers
}

// NewOverrideSource creates an override source watching path. The
// directory containing path must exist; the file itself may not.
func NewOverrideSource(inner Source, path string, logger *log.Logger) (*OverrideSource, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[override] ", log.LstdFlags)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	o := &OverrideSource{
		inner:   inner,
		path:    path,
		watcher: watcher,
		logger:  logger,
		done:    make(chan struct{}),
	}
	o.forced = fileExists(path)
	o.last = o.composed()
	return o, nil
}

// Start begins watching the override file and relaying inner transitions.
func (o *OverrideSource) Start() error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("override source already running")
	}
	o.running = true
	o.mu.Unlock()

	if err := o.watcher.Add(filepath.Dir(o.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(o.path), err)
	}

	cancelInner := o.inner.Subscribe(func(bool) {
		o.recompute()
	})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancelInner()
		o.watchLoop()
	}()

	return nil
}

// Stop shuts down the watcher.
func (o *OverrideSource) Stop() error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = false
	o.mu.Unlock()

	close(o.done)
	if err := o.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	o.wg.Wait()
	return nil
}

// Online implements Source.
func (o *OverrideSource) Online() bool {
	return o.composed()
}

// Subscribe implements Source.
func (o *OverrideSource) Subscribe(fn func(online bool)) (cancel func()) {
	return o.add(fn)
}

func (o *OverrideSource) composed() bool {
	o.mu.Lock()
	forced := o.forced
	o.mu.Unlock()
	return !forced && o.inner.Online()
}

func (o *OverrideSource) watchLoop() {
	for {
		select {
		case <-o.done:
			return

		case event, ok := <-o.watcher.Events:
			if !ok {
				return
			}
			if event.Name != o.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			o.mu.Lock()
			o.forced = fileExists(o.path)
			forced := o.forced
			o.mu.Unlock()

			o.logger.Printf("Override file %s: forced offline=%v", o.path, forced)
			o.recompute()

		case err, ok := <-o.watcher.Errors:
			if !ok {
				return
			}
			o.logger.Printf("Watcher error: %v", err)
		}
	}
}

// recompute fires subscribers when the composed state flips.
func (o *OverrideSource) recompute() {
	now := o.composed()

	o.mu.Lock()
	changed := o.last != now
	o.last = now
	o.mu.Unlock()

	if changed {
		o.notify(now)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
