package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const defaultDirectionsURL = "https://routes.googleapis.com/directions/v2:computeRoutes"

type Config struct {
	// Remote station directory
	StationsBaseURL string `validate:"required,url"`

	// Transit directions service
	DirectionsURL    string `validate:"required,url"`
	DirectionsAPIKey string

	// Voice route recognition service; empty disables the endpoint
	VoiceBaseURL string `validate:"omitempty,url"`

	// Refresh cadence and position-update thresholds
	RefreshInterval   time.Duration
	MinUpdateInterval time.Duration
	MinUpdateDistance float64 // meters

	// Position source (gpsd)
	GPSDAddr string `validate:"required,hostname_port"`

	// Outbound HTTP
	HTTPTimeout time.Duration

	// Local surfaces
	HTTPAddr    string `validate:"required"`
	MetricsAddr string

	// Optional NATS broadcast of station snapshots
	NATSURL           string
	NATSSubjectPrefix string

	Location *time.Location
}

// Load reads configuration from .env and the environment.
func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.StationsBaseURL = strings.TrimRight(os.Getenv("STATIONS_API_BASE_URL"), "/")
	if cfg.StationsBaseURL == "" {
		return nil, fmt.Errorf("STATIONS_API_BASE_URL must be set")
	}

	cfg.DirectionsURL = getenvDefault("DIRECTIONS_API_URL", defaultDirectionsURL)
	cfg.DirectionsAPIKey = os.Getenv("DIRECTIONS_API_KEY")

	cfg.VoiceBaseURL = strings.TrimRight(os.Getenv("VOICE_API_BASE_URL"), "/")

	// Refresh interval (seconds)
	if v := os.Getenv("REFRESH_INTERVAL_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid REFRESH_INTERVAL_SEC: %q", v)
		}
		cfg.RefreshInterval = time.Duration(sec) * time.Second
	} else {
		cfg.RefreshInterval = 15 * time.Second
	}

	// Minimum time between acted-on position updates (seconds)
	if v := os.Getenv("MIN_UPDATE_INTERVAL_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid MIN_UPDATE_INTERVAL_SEC: %q", v)
		}
		cfg.MinUpdateInterval = time.Duration(sec) * time.Second
	} else {
		cfg.MinUpdateInterval = 5 * time.Second
	}

	// Minimum movement before a position update is acted on (meters)
	if v := os.Getenv("MIN_UPDATE_DISTANCE_M"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return nil, fmt.Errorf("invalid MIN_UPDATE_DISTANCE_M: %q", v)
		}
		cfg.MinUpdateDistance = f
	} else {
		cfg.MinUpdateDistance = 10
	}

	cfg.GPSDAddr = getenvDefault("GPSD_ADDR", "127.0.0.1:2947")

	// Outbound HTTP timeout (seconds)
	if v := os.Getenv("HTTP_TIMEOUT_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid HTTP_TIMEOUT_SEC: %q", v)
		}
		cfg.HTTPTimeout = time.Duration(sec) * time.Second
	} else {
		cfg.HTTPTimeout = 10 * time.Second
	}

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", ":8080")

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// NATS broadcast is optional; empty URL disables it.
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "stations")

	// Time zone for arrival-time math
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
