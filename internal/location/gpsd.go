package location

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"station-tracker/internal/geo"
)

const (
	watchCommand   = `?WATCH={"enable":true,"json":true};` + "\n"
	dialTimeout    = 5 * time.Second
	oneShotTimeout = 15 * time.Second
	retryBackoff   = 3 * time.Second
)

// tpvReport is the subset of a gpsd TPV (time-position-velocity) message we
// read. Mode 2 is a 2D fix, mode 3 a 3D fix; anything lower carries no
// usable position.
type tpvReport struct {
	Class string  `json:"class"`
	Mode  int     `json:"mode"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
}

// GPSD reads positions from a gpsd daemon over its JSON TCP protocol.
type GPSD struct {
	addr        string
	minInterval time.Duration
	minDistance float64 // meters

	mu    sync.Mutex
	watch *watchHandle
}

// NewGPSD creates a gpsd-backed position source. minInterval and
// minDistance throttle subscription delivery: a new fix is handed to the
// subscriber only after at least minInterval has elapsed and the device has
// moved at least minDistance meters since the last delivered fix.
func NewGPSD(addr string, minInterval time.Duration, minDistance float64) *GPSD {
	return &GPSD{
		addr:        addr,
		minInterval: minInterval,
		minDistance: minDistance,
	}
}

// RequestPermissions verifies that gpsd is reachable and accepts a watch.
// The two stages mirror the provider's access model: a refused connection
// and a refused watch are both reported as denial.
func (g *GPSD) RequestPermissions(ctx context.Context) bool {
	conn, err := g.dial(ctx)
	if err != nil {
		log.Printf("location access denied: %v", err)
		return false
	}
	defer conn.Close()

	if err := enableWatch(conn); err != nil {
		log.Printf("location watch refused: %v", err)
		return false
	}
	return true
}

// CurrentFix opens a short-lived watch and returns the first report that
// carries a usable position.
func (g *GPSD) CurrentFix(ctx context.Context) (geo.Coordinates, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, oneShotTimeout)
		defer cancel()
	}

	conn, err := g.dial(ctx)
	if err != nil {
		return geo.Coordinates{}, fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
	}
	defer conn.Close()

	if err := enableWatch(conn); err != nil {
		return geo.Coordinates{}, fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if coords, ok := parseFix(scanner.Bytes()); ok {
			return coords, nil
		}
	}
	return geo.Coordinates{}, fmt.Errorf("%w: no fix before deadline", ErrLocationUnavailable)
}

// Subscribe starts the continuous watch. Only one subscription is active at
// a time; a prior one is disposed first.
func (g *GPSD) Subscribe(onUpdate func(geo.Coordinates)) (Unsubscribe, error) {
	g.mu.Lock()
	if g.watch != nil {
		prev := g.watch
		g.watch = nil
		g.mu.Unlock()
		prev.stop()
		g.mu.Lock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &watchHandle{cancel: cancel, done: make(chan struct{})}
	g.watch = h
	g.mu.Unlock()

	go g.run(ctx, h, onUpdate)

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			if g.watch == h {
				g.watch = nil
			}
			g.mu.Unlock()
			h.stop()
		})
	}, nil
}

type watchHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (h *watchHandle) stop() {
	h.cancel()
	<-h.done
}

// run maintains the watch connection, redialing on errors until cancelled.
func (g *GPSD) run(ctx context.Context, h *watchHandle, onUpdate func(geo.Coordinates)) {
	defer close(h.done)

	var last geo.Coordinates
	var lastAt time.Time

	for {
		if ctx.Err() != nil {
			return
		}
		err := g.streamFixes(ctx, func(coords geo.Coordinates) {
			now := time.Now()
			if !lastAt.IsZero() {
				if now.Sub(lastAt) < g.minInterval {
					return
				}
				if geo.DistanceMeters(last, coords) < g.minDistance {
					return
				}
			}
			last = coords
			lastAt = now
			onUpdate(coords)
		})
		if ctx.Err() != nil {
			return
		}
		log.Printf("gpsd watch interrupted, retrying in %v: %v", retryBackoff, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryBackoff):
		}
	}
}

// streamFixes dials gpsd and forwards every report with a usable position
// until the connection breaks or ctx is cancelled.
func (g *GPSD) streamFixes(ctx context.Context, deliver func(geo.Coordinates)) error {
	conn, err := g.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Unblock the read loop on cancellation.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	if err := enableWatch(conn); err != nil {
		return err
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if coords, ok := parseFix(scanner.Bytes()); ok {
			deliver(coords)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("gpsd closed the connection")
}

func (g *GPSD) dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: dialTimeout}
	return d.DialContext(ctx, "tcp", g.addr)
}

func enableWatch(conn net.Conn) error {
	_, err := conn.Write([]byte(watchCommand))
	return err
}

// parseFix extracts coordinates from one gpsd JSON line. Non-TPV messages,
// reports without a fix, and sentinel (0,0) positions are all skipped.
func parseFix(line []byte) (geo.Coordinates, bool) {
	var tpv tpvReport
	if err := json.Unmarshal(line, &tpv); err != nil {
		return geo.Coordinates{}, false
	}
	if tpv.Class != "TPV" || tpv.Mode < 2 {
		return geo.Coordinates{}, false
	}
	coords := geo.Coordinates{Latitude: tpv.Lat, Longitude: tpv.Lon}
	if coords.IsZero() {
		return geo.Coordinates{}, false
	}
	return coords, true
}
