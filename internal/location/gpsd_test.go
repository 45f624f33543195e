package location

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"station-tracker/internal/geo"
)

// fakeGPSD accepts one connection at a time, waits for the WATCH command,
// then replays the given JSON lines.
func fakeGPSD(t *testing.T, lines []string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				r := bufio.NewReader(c)
				if _, err := r.ReadString('\n'); err != nil {
					return
				}
				for _, l := range lines {
					if _, err := fmt.Fprintln(c, l); err != nil {
						return
					}
					time.Sleep(10 * time.Millisecond)
				}
				// keep the connection open until the client hangs up
				_, _ = r.ReadString('\n')
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func tpvLine(mode int, lat, lon float64) string {
	return fmt.Sprintf(`{"class":"TPV","mode":%d,"lat":%f,"lon":%f}`, mode, lat, lon)
}

func TestRequestPermissionsDeniedWhenUnreachable(t *testing.T) {
	g := NewGPSD("127.0.0.1:1", time.Second, 10)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if g.RequestPermissions(ctx) {
		t.Error("RequestPermissions = true with no daemon listening")
	}
}

func TestRequestPermissionsGranted(t *testing.T) {
	addr := fakeGPSD(t, nil)
	g := NewGPSD(addr, time.Second, 10)
	if !g.RequestPermissions(context.Background()) {
		t.Error("RequestPermissions = false with daemon listening")
	}
}

func TestCurrentFixSkipsNoFixReports(t *testing.T) {
	addr := fakeGPSD(t, []string{
		`{"class":"VERSION","release":"3.25"}`,
		`{"class":"WATCH","enable":true}`,
		tpvLine(1, 0, 0), // no fix yet
		tpvLine(3, 4.65, -74.05),
	})
	g := NewGPSD(addr, time.Second, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	coords, err := g.CurrentFix(ctx)
	if err != nil {
		t.Fatalf("CurrentFix error: %v", err)
	}
	if coords.Latitude != 4.65 || coords.Longitude != -74.05 {
		t.Errorf("coords = %+v", coords)
	}
}

func TestCurrentFixUnavailable(t *testing.T) {
	addr := fakeGPSD(t, []string{tpvLine(1, 0, 0)})
	g := NewGPSD(addr, time.Second, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err := g.CurrentFix(ctx)
	if !errors.Is(err, ErrLocationUnavailable) {
		t.Fatalf("error = %v, expected ErrLocationUnavailable", err)
	}
}

func TestSubscribeThrottlesByDistance(t *testing.T) {
	// ~5m apart in latitude is below the 100m threshold; the third fix is
	// several kilometers away and must get through.
	addr := fakeGPSD(t, []string{
		tpvLine(3, 4.650000, -74.05),
		tpvLine(3, 4.650045, -74.05),
		tpvLine(3, 4.700000, -74.05),
	})
	g := NewGPSD(addr, time.Millisecond, 100)

	got := make(chan geo.Coordinates, 8)
	unsub, err := g.Subscribe(func(c geo.Coordinates) { got <- c })
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	defer unsub()

	first := <-got
	if first.Latitude != 4.65 {
		t.Errorf("first fix = %+v", first)
	}
	second := <-got
	if second.Latitude != 4.7 {
		t.Errorf("second delivered fix = %+v, expected the 4.7 jump", second)
	}
	select {
	case extra := <-got:
		t.Errorf("unexpected extra delivery %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSecondSubscribeDisposesFirst(t *testing.T) {
	addr := fakeGPSD(t, []string{tpvLine(3, 4.65, -74.05)})
	g := NewGPSD(addr, time.Millisecond, 1)

	unsub1, err := g.Subscribe(func(geo.Coordinates) {})
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	unsub2, err := g.Subscribe(func(geo.Coordinates) {})
	if err != nil {
		t.Fatalf("second Subscribe error: %v", err)
	}
	// first handle was already stopped by the second Subscribe; disposing
	// it again must not block or panic
	unsub1()
	unsub2()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.watch != nil {
		t.Error("watch still registered after unsubscribe")
	}
}

func TestParseFix(t *testing.T) {
	tests := []struct {
		name string
		line string
		ok   bool
	}{
		{"3d fix", tpvLine(3, 4.65, -74.05), true},
		{"2d fix", tpvLine(2, 4.65, -74.05), true},
		{"no fix", tpvLine(1, 4.65, -74.05), false},
		{"sentinel position", tpvLine(3, 0, 0), false},
		{"other class", `{"class":"SKY","satellites":[]}`, false},
		{"garbage", "not json", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := parseFix([]byte(tc.line))
			if ok != tc.ok {
				t.Errorf("parseFix(%s) ok = %v, expected %v", tc.line, ok, tc.ok)
			}
		})
	}
}

func TestWatchCommandShape(t *testing.T) {
	if !strings.Contains(watchCommand, `"enable":true`) || !strings.Contains(watchCommand, `"json":true`) {
		t.Errorf("watch command = %q", watchCommand)
	}
}
