package poller

import "sync"

// VisibilitySource is the liveness signal the synchronizer subscribes
// to. A host environment implements it over whatever it has: app
// foreground/background state on mobile, tab visibility in a browser
// shell, or nothing at all for a headless server.
type VisibilitySource interface {
	// Subscribe registers a callback invoked with the current
	// visibility on every change, and returns an unsubscribe func.
	// Implementations must invoke the callback synchronously with the
	// current state at subscription time.
	Subscribe(fn func(visible bool)) (unsubscribe func())
}

// AlwaysVisible is a VisibilitySource for headless hosts: the consumer
// is considered permanently foregrounded.
type AlwaysVisible struct{}

func (AlwaysVisible) Subscribe(fn func(visible bool)) func() {
	fn(true)
	return func() {}
}

// SignalSource is a manually driven VisibilitySource, used by embedding
// hosts that receive lifecycle events and by tests.
type SignalSource struct {
	mu      sync.Mutex
	visible bool
	nextID  int
	subs    map[int]func(bool)
}

// NewSignalSource creates a source with the given initial visibility.
func NewSignalSource(visible bool) *SignalSource {
	return &SignalSource{
		visible: visible,
		subs:    make(map[int]func(bool)),
	}
}

// Set updates the visibility and notifies subscribers on change.
func (s *SignalSource) Set(visible bool) {
	s.mu.Lock()
	if s.visible == visible {
		s.mu.Unlock()
		return
	}
	s.visible = visible
	fns := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(visible)
	}
}

func (s *SignalSource) subscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Subscribe registers a callback and immediately delivers the current
// state.
func (s *SignalSource) Subscribe(fn func(visible bool)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	visible := s.visible
	s.mu.Unlock()

	fn(visible)

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
