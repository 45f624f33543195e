package tracker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"station-tracker/internal/geo"
	"station-tracker/internal/location"
	"station-tracker/internal/store"
	"station-tracker/internal/transit"
)

// NearestResolver resolves the closest station to a position; satisfied by
// stations.Client.
type NearestResolver interface {
	Nearest(ctx context.Context, coords geo.Coordinates) (*transit.Station, error)
}

// Metrics is the subset of the metrics collector the scheduler reports to.
type Metrics interface {
	RefreshSucceeded(d time.Duration)
	RefreshFailed()
	RefreshSkipped()
	TriggerDropped()
	PositionUpdated()
}

// Scheduler drives the station-tracking pipeline: it keeps the latest
// position fix, refreshes the nearest station on a fixed cadence and on
// position deltas, and writes results into the station store. Timer and
// position triggers funnel into the single TriggerRefresh entry point; an
// in-flight guard drops overlapping triggers instead of queueing them.
type Scheduler struct {
	source   location.Source
	resolver NearestResolver
	store    *store.Station
	interval time.Duration
	metrics  Metrics

	inFlight atomic.Bool

	mu      sync.Mutex
	lastFix geo.Coordinates
	lastErr string
	started bool

	cancel context.CancelFunc
	unsub  location.Unsubscribe
	wg     sync.WaitGroup
}

// New creates a scheduler. interval is the timer-trigger cadence; metrics
// may be nil.
func New(source location.Source, resolver NearestResolver, st *store.Station, interval time.Duration, metrics Metrics) *Scheduler {
	return &Scheduler{
		source:   source,
		resolver: resolver,
		store:    st,
		interval: interval,
		metrics:  metrics,
	}
}

// Start runs the initialization sequence: permissions, one-shot fix,
// immediate resolution, continuous subscription, timer. On permission
// denial it returns location.ErrPermissionDenied and starts nothing; there
// is no half-initialized state.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	s.started = true
	s.mu.Unlock()

	if !s.source.RequestPermissions(ctx) {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return location.ErrPermissionDenied
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	// One-shot fix. Failure here is transient: the sentinel stays in place
	// and the next trigger retries.
	if fix, err := s.source.CurrentFix(ctx); err != nil {
		log.Printf("initial fix unavailable: %v", err)
	} else {
		s.setFix(fix)
		s.TriggerRefresh(runCtx)
	}

	unsub, err := s.source.Subscribe(func(coords geo.Coordinates) {
		if s.metrics != nil {
			s.metrics.PositionUpdated()
		}
		s.setFix(coords)
		s.TriggerRefresh(runCtx)
	})
	if err != nil {
		cancel()
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return fmt.Errorf("position subscription: %w", err)
	}
	s.unsub = unsub

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.TriggerRefresh(runCtx)
			}
		}
	}()

	log.Printf("tracker started (refresh every %v)", s.interval)
	return nil
}

// Stop tears the scheduler down: the subscription is disposed, the timer
// stops, and no further triggers fire. A resolution already in flight is
// allowed to finish and write once more.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// TriggerRefresh runs one refresh cycle unless one is already in flight,
// in which case the trigger is dropped and false returned. Sentinel
// coordinates make the cycle a silent no-op.
func (s *Scheduler) TriggerRefresh(ctx context.Context) bool {
	if !s.inFlight.CompareAndSwap(false, true) {
		if s.metrics != nil {
			s.metrics.TriggerDropped()
		}
		return false
	}
	defer s.inFlight.Store(false)
	s.refresh(ctx)
	return true
}

func (s *Scheduler) refresh(ctx context.Context) {
	coords, ok := s.LastFix()
	if !ok {
		if s.metrics != nil {
			s.metrics.RefreshSkipped()
		}
		return
	}

	start := time.Now()
	station, err := s.resolver.Nearest(ctx, coords)
	if err != nil {
		// Keep the previous snapshot so consumers can show stale-but-valid
		// data with an error annotation.
		log.Printf("nearest-station lookup failed: %v", err)
		s.setLastError(err.Error())
		if s.metrics != nil {
			s.metrics.RefreshFailed()
		}
		return
	}

	s.setLastError("")
	s.store.Write(station, station.ArrivingRoutes)
	if s.metrics != nil {
		s.metrics.RefreshSucceeded(time.Since(start))
	}
}

// LastFix returns the most recent position and whether it is a real fix
// (false while still at the sentinel).
func (s *Scheduler) LastFix() (geo.Coordinates, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFix, !s.lastFix.IsZero()
}

// LastError returns the most recent station-level lookup error, or "" when
// the last cycle succeeded.
func (s *Scheduler) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Scheduler) setFix(coords geo.Coordinates) {
	s.mu.Lock()
	s.lastFix = coords
	s.mu.Unlock()
}

func (s *Scheduler) setLastError(msg string) {
	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()
}
