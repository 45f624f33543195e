package store

import (
	"testing"
	"time"

	"station-tracker/internal/geo"
	"station-tracker/internal/transit"
)

func sampleStation() *transit.Station {
	return &transit.Station{
		ID:          42,
		Name:        "Portal Norte",
		Coordinates: geo.Coordinates{Latitude: 4.65, Longitude: -74.05},
	}
}

func sampleRoutes() []transit.Route {
	return []transit.Route{
		{ID: 1, Name: "B10"},
		{ID: 2, Name: "C15"},
		{ID: 3, Name: "H13"},
	}
}

func TestCurrentEmpty(t *testing.T) {
	s := NewStation()
	snap := s.Current()
	if snap.Station != nil {
		t.Errorf("empty store has station %+v", snap.Station)
	}
	if len(snap.ArrivingRoutes) != 0 {
		t.Errorf("empty store has routes %+v", snap.ArrivingRoutes)
	}
	if snap.LastUpdated != nil {
		t.Errorf("empty store has lastUpdated %v", snap.LastUpdated)
	}
}

func TestWriteNotifiesWithCompleteSnapshot(t *testing.T) {
	s := NewStation()
	station := sampleStation()
	routes := sampleRoutes()

	var observed transit.StationSnapshot
	calls := 0
	s.Subscribe(func() {
		// Reading from inside the listener must see the full write.
		observed = s.Current()
		calls++
	})

	s.Write(station, routes)

	if calls != 1 {
		t.Fatalf("listener called %d times, expected 1", calls)
	}
	if observed.Station == nil || observed.Station.ID != 42 {
		t.Errorf("listener observed station %+v", observed.Station)
	}
	if len(observed.ArrivingRoutes) != 3 {
		t.Errorf("listener observed %d routes, expected 3", len(observed.ArrivingRoutes))
	}
	if observed.LastUpdated == nil {
		t.Error("listener observed nil lastUpdated")
	}
}

func TestWriteNilStationForcesEmptyRoutes(t *testing.T) {
	s := NewStation()
	s.Write(nil, sampleRoutes())
	snap := s.Current()
	if snap.Station != nil {
		t.Errorf("station = %+v, expected nil", snap.Station)
	}
	if len(snap.ArrivingRoutes) != 0 {
		t.Errorf("routes = %+v, expected empty for nil station", snap.ArrivingRoutes)
	}
	if snap.LastUpdated == nil {
		t.Error("lastUpdated not set on nil-station write")
	}
}

func TestSubscribeDisposeLeavesSetUnchanged(t *testing.T) {
	s := NewStation()
	s.Subscribe(func() {})
	before := s.ListenerCount()

	dispose := s.Subscribe(func() {})
	dispose()

	if after := s.ListenerCount(); after != before {
		t.Errorf("listener count = %d after subscribe+dispose, expected %d", after, before)
	}
}

func TestDisposedListenerNotNotified(t *testing.T) {
	s := NewStation()
	called := false
	dispose := s.Subscribe(func() { called = true })
	dispose()

	s.Write(sampleStation(), sampleRoutes())
	if called {
		t.Error("disposed listener was notified")
	}
}

func TestWritesAdvanceLastUpdated(t *testing.T) {
	s := NewStation()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	s.Write(sampleStation(), sampleRoutes())
	first := *s.Current().LastUpdated
	s.Write(sampleStation(), sampleRoutes())
	second := *s.Current().LastUpdated

	if !second.After(first) {
		t.Errorf("lastUpdated did not advance: %v then %v", first, second)
	}
}
