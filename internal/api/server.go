package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"station-tracker/internal/arrivals"
	"station-tracker/internal/geo"
	"station-tracker/internal/store"
	"station-tracker/internal/transit"
)

// Refresher is the subset of the tracker scheduler the API drives.
type Refresher interface {
	TriggerRefresh(ctx context.Context) bool
	LastFix() (geo.Coordinates, bool)
	LastError() string
}

// ArrivalService starts per-route arrival resolutions and exposes their
// shared state.
type ArrivalService interface {
	Refresh(ctx context.Context, origin geo.Coordinates, route transit.Route) bool
	Times() *arrivals.Times
}

// DestinationResolver enriches arriving routes with their destination
// stations.
type DestinationResolver interface {
	ResolveDestinations(ctx context.Context, routes []transit.Route) []transit.RouteWithDestination
}

// VoiceRecognizer turns a recorded utterance into route candidates. Nil
// when the voice service is not configured.
type VoiceRecognizer interface {
	RecognizeRoute(ctx context.Context, filename string, audio io.Reader) ([]transit.Route, error)
}

// Server is the read surface over the tracking pipeline. All station data
// it serves comes from the store snapshot; it never talks to the stations
// API for the current station itself.
type Server struct {
	store        *store.Station
	refresher    Refresher
	arrivals     ArrivalService
	destinations DestinationResolver
	voice        VoiceRecognizer

	router chi.Router
}

func NewServer(st *store.Station, refresher Refresher, arrivalSvc ArrivalService, destinations DestinationResolver, voice VoiceRecognizer) *Server {
	s := &Server{
		store:        st,
		refresher:    refresher,
		arrivals:     arrivalSvc,
		destinations: destinations,
		voice:        voice,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/station", s.handleStation)
		r.Post("/station/refresh", s.handleStationRefresh)
		r.Get("/station/destinations", s.handleDestinations)
		r.Get("/routes/arrivals", s.handleArrivals)
		r.Post("/routes/{id}/arrival", s.handleRouteArrival)
		r.Post("/voice/route", s.handleVoiceRoute)
	})
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Serve starts the HTTP listener in the background and returns the server
// for shutdown.
func (s *Server) Serve(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("api server: %v", err)
		}
	}()
	return srv
}

type stationResponse struct {
	Station           *transit.Station `json:"station"`
	ArrivingRoutes    []transit.Route  `json:"arrivingRoutes"`
	LastUpdated       *time.Time       `json:"lastUpdated"`
	LocationAvailable bool             `json:"locationAvailable"`
	Error             string           `json:"error,omitempty"`
}

func (s *Server) handleStation(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Current()
	_, hasFix := s.refresher.LastFix()
	writeJSON(w, http.StatusOK, stationResponse{
		Station:           snap.Station,
		ArrivingRoutes:    snap.ArrivingRoutes,
		LastUpdated:       snap.LastUpdated,
		LocationAvailable: hasFix,
		Error:             s.refresher.LastError(),
	})
}

func (s *Server) handleStationRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.refresher.TriggerRefresh(r.Context()) {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "refresh already in progress"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refreshed"})
}

func (s *Server) handleDestinations(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Current()
	if snap.Station == nil {
		writeJSON(w, http.StatusOK, []transit.RouteWithDestination{})
		return
	}
	enriched := s.destinations.ResolveDestinations(r.Context(), snap.ArrivingRoutes)
	writeJSON(w, http.StatusOK, enriched)
}

func (s *Server) handleArrivals(w http.ResponseWriter, r *http.Request) {
	snapshot := s.arrivals.Times().Snapshot()
	// JSON object keys are strings; route ids become their decimal form.
	out := make(map[string]arrivals.Info, len(snapshot))
	for id, info := range snapshot {
		out[strconv.Itoa(id)] = info
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRouteArrival(w http.ResponseWriter, r *http.Request) {
	routeID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid route id"})
		return
	}

	origin, ok := s.refresher.LastFix()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "location unavailable"})
		return
	}

	route, ok := s.findRoute(routeID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "route not arriving at current station"})
		return
	}

	// The resolution outlives the request; detach it from the request
	// context so the response does not cancel it.
	started := s.arrivals.Refresh(context.WithoutCancel(r.Context()), origin, route)
	info, _ := s.arrivals.Times().Get(routeID)
	if !started {
		writeJSON(w, http.StatusConflict, info)
		return
	}
	writeJSON(w, http.StatusAccepted, info)
}

func (s *Server) handleVoiceRoute(w http.ResponseWriter, r *http.Request) {
	if s.voice == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "voice recognition not configured"})
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing audio field"})
		return
	}
	defer file.Close()

	candidates, err := s.voice.RecognizeRoute(r.Context(), header.Filename, file)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, candidates)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Current()
	health := map[string]any{"status": "ok"}
	if snap.LastUpdated != nil {
		health["snapshotAgeSeconds"] = int(time.Since(*snap.LastUpdated).Seconds())
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) findRoute(routeID int) (transit.Route, bool) {
	snap := s.store.Current()
	for _, route := range snap.ArrivingRoutes {
		if route.ID == routeID {
			return route, true
		}
	}
	return transit.Route{}, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}
