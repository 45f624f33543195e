package arrivals

import "sync"

// Info is one route's arrival-time state. Lifecycle: created Loading, then
// either Time or Error is populated and Loading clears; the whole entry is
// replaced on the next resolution attempt. At most one of Time/Error is
// meaningful at a time.
type Info struct {
	Time    *string `json:"time"`  // minutes until departure, textual
	Error   *string `json:"error"` // human-readable failure
	Loading bool    `json:"loading"`
}

// Times holds per-route arrival state, keyed by route id. Entries for
// different routes never contend: each is mutated only by the resolution
// in flight for that route.
type Times struct {
	mu sync.RWMutex
	m  map[int]Info
}

// NewTimes creates an empty arrival-times map.
func NewTimes() *Times {
	return &Times{m: make(map[int]Info)}
}

// Get returns the state for a route id and whether any resolution has been
// started for it.
func (t *Times) Get(routeID int) (Info, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, ok := t.m[routeID]
	return info, ok
}

// Snapshot returns a copy of the whole map.
func (t *Times) Snapshot() map[int]Info {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[int]Info, len(t.m))
	for id, info := range t.m {
		out[id] = info
	}
	return out
}

// MarkLoading replaces a route's entry with a fresh loading state,
// discarding any previous terminal payload.
func (t *Times) MarkLoading(routeID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[routeID] = Info{Loading: true}
}

// SetTime records a successful resolution for a route.
func (t *Times) SetTime(routeID int, minutes string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[routeID] = Info{Time: &minutes}
}

// SetError records a failed resolution for a route.
func (t *Times) SetError(routeID int, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[routeID] = Info{Error: &msg}
}

// Reset drops all entries, e.g. when the tracked station changes.
func (t *Times) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m = make(map[int]Info)
}
