package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"station-tracker/internal/api"
	"station-tracker/internal/arrivals"
	"station-tracker/internal/config"
	"station-tracker/internal/location"
	"station-tracker/internal/metrics"
	"station-tracker/internal/publisher"
	"station-tracker/internal/stations"
	"station-tracker/internal/store"
	"station-tracker/internal/tracker"
	"station-tracker/internal/voice"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.RefreshInterval)
		srv := mcol.Serve(cfg.MetricsAddr)
		go func() {
			<-ctx.Done()
			shutdownCtx, scancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer scancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	st := store.NewStation()

	// Optional NATS broadcast of station snapshots
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, wrapPublisherMetrics(mcol))
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer pub.Close()
		detach := pub.Attach(st)
		defer detach()
	}

	stationsClient := stations.NewClient(cfg.StationsBaseURL, cfg.HTTPTimeout)
	source := location.NewGPSD(cfg.GPSDAddr, cfg.MinUpdateInterval, cfg.MinUpdateDistance)

	sched := tracker.New(source, stationsClient, st, cfg.RefreshInterval, wrapTrackerMetrics(mcol))

	directions := arrivals.NewDirectionsClient(cfg.DirectionsURL, cfg.DirectionsAPIKey, cfg.HTTPTimeout)
	arrivalSvc := arrivals.NewService(arrivals.NewResolver(directions), stationsClient, wrapArrivalMetrics(mcol))

	// Arrival entries belong to one station's route list: when the tracked
	// station changes, drop the stale entries and fan out fresh resolutions
	// for the new routes. Attached before the tracker starts so the first
	// resolved station fans out too.
	lastStationID := 0
	unsubTimes := st.Subscribe(func() {
		snap := st.Current()
		id := 0
		if snap.Station != nil {
			id = snap.Station.ID
		}
		if id == lastStationID {
			return
		}
		lastStationID = id
		arrivalSvc.Times().Reset()
		if origin, ok := sched.LastFix(); ok && id != 0 {
			arrivalSvc.RefreshAll(ctx, origin, snap.ArrivingRoutes)
		}
	})
	defer unsubTimes()

	if err := sched.Start(ctx); err != nil {
		if errors.Is(err, location.ErrPermissionDenied) {
			log.Fatalf("position source rejected the watch handshake: %v", err)
		}
		log.Fatalf("tracker start error: %v", err)
	}
	defer sched.Stop()

	var voiceClient api.VoiceRecognizer
	if cfg.VoiceBaseURL != "" {
		voiceClient = voice.NewClient(cfg.VoiceBaseURL, cfg.HTTPTimeout)
	}

	apiSrv := api.NewServer(st, sched, arrivalSvc, stationsClient, voiceClient).Serve(cfg.HTTPAddr)
	log.Printf("api listening on %s", cfg.HTTPAddr)

	if mcol != nil {
		go trackSnapshotAge(ctx, st, mcol)
	}

	// Block until context cancelled
	<-ctx.Done()

	shutdownCtx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	_ = apiSrv.Shutdown(shutdownCtx)
	arrivalSvc.Wait()
	log.Println("shutdown complete")
}

// trackSnapshotAge keeps the snapshot-age gauge current between store writes.
func trackSnapshotAge(ctx context.Context, st *store.Station, mcol *metrics.Collector) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if snap := st.Current(); snap.LastUpdated != nil {
				mcol.SnapshotAge.Set(time.Since(*snap.LastUpdated).Seconds())
			}
		}
	}
}

// wrap*Metrics return typed nils as untyped nil so the components' nil
// checks work when metrics are disabled.
func wrapTrackerMetrics(c *metrics.Collector) tracker.Metrics {
	if c == nil {
		return nil
	}
	return c
}

func wrapArrivalMetrics(c *metrics.Collector) arrivals.Metrics {
	if c == nil {
		return nil
	}
	return c
}

func wrapPublisherMetrics(c *metrics.Collector) publisher.Metrics {
	if c == nil {
		return nil
	}
	return c
}
