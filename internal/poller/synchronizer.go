// Package poller maintains a freshness-optimized local copy of a
// remotely fetched, identity-keyed collection. It polls an injected
// fetch operation on a fixed interval, fingerprints only the fields
// that matter for change detection, and notifies consumers solely when
// the content actually changed, pausing entirely while the consumer's
// view is hidden.
package poller

import (
	"context"
	"sync"
	"time"
)

// DefaultInterval is the polling cadence when none is configured.
const DefaultInterval = 5 * time.Second

// DefaultMaxBackoffMultiple caps the failure backoff at this multiple
// of the polling interval.
const DefaultMaxBackoffMultiple = 8

// FetchFunc retrieves the current remote collection.
type FetchFunc func(ctx context.Context) ([]Snapshot, error)

// Config holds synchronizer settings.
type Config struct {
	// Enabled gates polling entirely; Start is a no-op when false.
	Enabled bool
	// Interval is the polling cadence. Defaults to DefaultInterval.
	Interval time.Duration
	// OnUpdate is invoked with the new collection only when a fetch
	// produced a different fingerprint than the last accepted one.
	OnUpdate func([]Snapshot)
	// Visibility is the liveness signal; defaults to AlwaysVisible.
	Visibility VisibilitySource
	// MaxBackoffMultiple caps failure backoff at this multiple of
	// Interval. Defaults to DefaultMaxBackoffMultiple.
	MaxBackoffMultiple int
}

// DefaultConfig returns the standard synchronizer settings.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		Interval:           DefaultInterval,
		Visibility:         AlwaysVisible{},
		MaxBackoffMultiple: DefaultMaxBackoffMultiple,
	}
}

// Synchronizer polls a remote collection and exposes the last accepted
// snapshot to consumers. One instance owns exactly one recurring
// timer, released on every exit path.
type Synchronizer struct {
	fetch FetchFunc
	cfg   Config

	mu              sync.RWMutex
	data            []Snapshot
	lastFingerprint string
	lastUpdated     *time.Time
	lastErr         string
	loading         bool
	inFlight        bool
	failures        int
	retryAt         time.Time
	visible         bool
	running         bool
	gen             uint64

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()
	visCh       chan bool
}

// New creates a synchronizer around the given fetch operation.
func New(fetch FetchFunc, cfg Config) *Synchronizer {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Visibility == nil {
		cfg.Visibility = AlwaysVisible{}
	}
	if cfg.MaxBackoffMultiple <= 0 {
		cfg.MaxBackoffMultiple = DefaultMaxBackoffMultiple
	}
	return &Synchronizer{
		fetch:   fetch,
		cfg:     cfg,
		visible: true,
	}
}

// Start begins polling. Starting an already-running synchronizer
// first tears down the existing timer, so there is never more than one
// concurrent timer per instance.
func (s *Synchronizer) Start() {
	if !s.cfg.Enabled {
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.Stop()
		s.mu.Lock()
	}
	s.running = true
	s.gen++
	gen := s.gen
	s.ctx, s.cancel = context.WithCancel(context.Background())
	ctx := s.ctx
	s.visCh = make(chan bool, 1)
	s.mu.Unlock()

	// Subscribe delivers the current state synchronously through
	// setVisible, which takes the lock, so this call must happen
	// unlocked. A Stop may land in between; keep the subscription only
	// while this generation is still the live one.
	unsubscribe := s.cfg.Visibility.Subscribe(s.setVisible)
	s.mu.Lock()
	if s.running && s.gen == gen {
		s.unsubscribe = unsubscribe
		s.mu.Unlock()
	} else {
		s.mu.Unlock()
		unsubscribe()
	}

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop halts polling and releases the timer. An in-flight fetch is not
// interrupted, but its late result is discarded.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.gen++
	cancel := s.cancel
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	cancel()
	s.wg.Wait()
}

// IsRunning reports whether the polling loop is active.
func (s *Synchronizer) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Data returns the last accepted collection.
func (s *Synchronizer) Data() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, len(s.data))
	copy(out, s.data)
	return out
}

// Loading reports whether a fetch is currently in flight.
func (s *Synchronizer) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// LastError returns the message of the most recent fetch failure, or
// the empty string after a success.
func (s *Synchronizer) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// LastUpdated returns when the collection last changed, or nil before
// the first accepted fetch.
func (s *Synchronizer) LastUpdated() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastUpdated == nil {
		return nil
	}
	t := *s.lastUpdated
	return &t
}

// SetData replaces the local collection directly, for optimistic
// local mutation ahead of server confirmation. The fingerprint is
// updated so a subsequent poll returning the same content is a no-op.
func (s *Synchronizer) SetData(snapshots []Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = snapshots
	s.lastFingerprint = Fingerprint(snapshots)
	now := time.Now()
	s.lastUpdated = &now
}

// Refresh performs one fetch-and-diff cycle immediately, regardless of
// timer phase. Used after local mutations to force near-immediate
// consistency. Honors the in-flight guard but bypasses failure
// backoff.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	return s.fetchAndDiff(ctx)
}

// =============================================================================
// POLLING LOOP
// =============================================================================

func (s *Synchronizer) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	paused := !s.isVisible()
	if paused {
		ticker.Stop()
	} else {
		// Fetch immediately on start rather than waiting a full
		// interval.
		s.tick(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case visible := <-s.visCh:
			if visible && paused {
				paused = false
				// Exactly one immediate fetch on resume, then back on
				// cadence.
				s.tick(ctx)
				ticker.Reset(s.cfg.Interval)
			} else if !visible && !paused {
				paused = true
				ticker.Stop()
			}
		case <-ticker.C:
			if paused {
				continue
			}
			s.tick(ctx)
		}
	}
}

// tick runs one scheduled cycle, honoring failure backoff.
func (s *Synchronizer) tick(ctx context.Context) {
	s.mu.RLock()
	deferred := s.failures > 0 && time.Now().Before(s.retryAt)
	s.mu.RUnlock()
	if deferred {
		return
	}
	s.fetchAndDiff(ctx)
}

// fetchAndDiff performs one fetch, fingerprints the result, and
// applies it only when the content changed. At most one fetch is in
// flight per instance; results arriving after Stop (or a restart) are
// discarded.
func (s *Synchronizer) fetchAndDiff(ctx context.Context) error {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil
	}
	s.inFlight = true
	s.loading = true
	gen := s.gen
	s.mu.Unlock()

	snapshots, err := s.fetch(ctx)

	s.mu.Lock()
	s.inFlight = false
	s.loading = false

	if gen != s.gen {
		// Instance stopped or restarted while the fetch was in
		// flight; its result no longer belongs to anyone.
		s.mu.Unlock()
		return nil
	}

	if err != nil {
		s.lastErr = err.Error()
		s.failures++
		mult := 1 << uint(s.failures)
		if mult > s.cfg.MaxBackoffMultiple {
			mult = s.cfg.MaxBackoffMultiple
		}
		s.retryAt = time.Now().Add(time.Duration(mult) * s.cfg.Interval)
		s.mu.Unlock()
		return err
	}

	s.lastErr = ""
	s.failures = 0
	s.retryAt = time.Time{}

	fp := Fingerprint(snapshots)
	if fp == s.lastFingerprint {
		// No meaningful change; consumers are not notified.
		s.mu.Unlock()
		return nil
	}

	s.data = snapshots
	s.lastFingerprint = fp
	now := time.Now()
	s.lastUpdated = &now
	onUpdate := s.cfg.OnUpdate
	s.mu.Unlock()

	if onUpdate != nil {
		onUpdate(snapshots)
	}
	return nil
}

func (s *Synchronizer) setVisible(visible bool) {
	s.mu.Lock()
	if s.visible == visible {
		s.mu.Unlock()
		return
	}
	s.visible = visible
	ch := s.visCh
	s.mu.Unlock()

	if ch == nil {
		return
	}
	// Coalesce: only the latest visibility matters to the loop.
	for {
		select {
		case ch <- visible:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

func (s *Synchronizer) isVisible() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visible
}
