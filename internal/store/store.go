package store

import (
	"sync"
	"time"

	"station-tracker/internal/transit"
)

// Listener is invoked after every successful snapshot write. Invocation
// order across listeners is unspecified.
type Listener func()

// Station is the single source of truth for "where am I / what serves this
// stop". The refresh scheduler is its only writer; consumers read via
// Current and react via Subscribe.
type Station struct {
	mu        sync.Mutex
	snapshot  transit.StationSnapshot
	listeners map[int]Listener
	nextID    int

	now func() time.Time
}

// NewStation creates an empty station store.
func NewStation() *Station {
	return &Station{
		listeners: make(map[int]Listener),
		now:       time.Now,
	}
}

// Current returns the latest snapshot. Safe to call from within a listener:
// a listener notified by a write observes that write's complete snapshot.
func (s *Station) Current() transit.StationSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Subscribe registers a listener and returns its disposer. The disposer
// must be called exactly once; calling it leaves the listener set exactly
// as it was before Subscribe.
func (s *Station) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Write replaces the entire snapshot in one step and then notifies
// listeners. A nil station means "no station known yet" and forces an
// empty route list. Writes are expected to be serialized by the caller;
// Write does not return until every listener has run.
func (s *Station) Write(station *transit.Station, routes []transit.Route) {
	s.mu.Lock()
	if station == nil {
		routes = nil
	}
	ts := s.now()
	s.snapshot = transit.StationSnapshot{
		Station:        station,
		ArrivingRoutes: routes,
		LastUpdated:    &ts,
	}
	notify := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		notify = append(notify, l)
	}
	s.mu.Unlock()

	// Listeners run outside the lock so they can call Current().
	for _, l := range notify {
		l()
	}
}

// ListenerCount reports the current number of subscribers.
func (s *Station) ListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}
