package arrivals

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"station-tracker/internal/geo"
	"station-tracker/internal/transit"
)

// DestinationResolver resolves a station by id; satisfied by
// stations.Client.
type DestinationResolver interface {
	ByID(ctx context.Context, stationID int) (*transit.Station, error)
}

// Metrics is the subset of the metrics collector the service reports to.
type Metrics interface {
	ArrivalResolutionStarted()
	ArrivalResolutionSucceeded(d time.Duration)
	ArrivalResolutionFailed()
}

// Service runs per-route arrival-time resolutions and owns their shared
// state. Resolutions for different routes run concurrently and never block
// or invalidate one another.
type Service struct {
	resolver     *Resolver
	destinations DestinationResolver
	times        *Times
	metrics      Metrics

	now func() time.Time

	mu       sync.Mutex
	inFlight map[int]struct{}
	wg       sync.WaitGroup
}

// NewService creates an arrival-time service. metrics may be nil.
func NewService(resolver *Resolver, destinations DestinationResolver, metrics Metrics) *Service {
	return &Service{
		resolver:     resolver,
		destinations: destinations,
		times:        NewTimes(),
		metrics:      metrics,
		now:          time.Now,
		inFlight:     make(map[int]struct{}),
	}
}

// Times exposes the per-route state map for readers.
func (s *Service) Times() *Times { return s.times }

// Refresh starts a resolution for one route from origin. It returns false
// when one is already in flight for that route id; re-entry after a
// terminal state always starts a fresh cycle. The entry is marked loading
// before this method returns.
func (s *Service) Refresh(ctx context.Context, origin geo.Coordinates, route transit.Route) bool {
	s.mu.Lock()
	if _, busy := s.inFlight[route.ID]; busy {
		s.mu.Unlock()
		return false
	}
	s.inFlight[route.ID] = struct{}{}
	s.mu.Unlock()

	s.times.MarkLoading(route.ID)
	if s.metrics != nil {
		s.metrics.ArrivalResolutionStarted()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inFlight, route.ID)
			s.mu.Unlock()
		}()
		s.resolveOne(ctx, origin, route)
	}()
	return true
}

// RefreshAll starts one independent resolution per route.
func (s *Service) RefreshAll(ctx context.Context, origin geo.Coordinates, routes []transit.Route) {
	for _, route := range routes {
		s.Refresh(ctx, origin, route)
	}
}

// Wait blocks until all in-flight resolutions finish. Used on teardown.
func (s *Service) Wait() { s.wg.Wait() }

func (s *Service) resolveOne(ctx context.Context, origin geo.Coordinates, route transit.Route) {
	start := s.now()

	fail := func(err error) {
		log.Printf("arrival resolution for route %s failed: %v", route.Name, err)
		s.times.SetError(route.ID, err.Error())
		if s.metrics != nil {
			s.metrics.ArrivalResolutionFailed()
		}
	}

	if route.DestinationStationID <= 0 {
		fail(ErrRouteNotFound)
		return
	}
	dest, err := s.destinations.ByID(ctx, route.DestinationStationID)
	if err != nil {
		fail(err)
		return
	}

	minutes, err := s.resolver.Resolve(ctx, origin, dest.Coordinates, route.Name, s.now())
	if err != nil {
		fail(err)
		return
	}

	s.times.SetTime(route.ID, strconv.Itoa(minutes))
	if s.metrics != nil {
		s.metrics.ArrivalResolutionSucceeded(s.now().Sub(start))
	}
}
