package stations

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"station-tracker/internal/geo"
	"station-tracker/internal/transit"
)

var (
	// ErrInvalidCoordinates is returned when a lookup is attempted with the
	// unknown-position sentinel. Checked before any network I/O.
	ErrInvalidCoordinates = errors.New("invalid coordinates (unknown position)")

	// ErrLookupFailed wraps transport errors and non-2xx responses from the
	// nearest-station lookup.
	ErrLookupFailed = errors.New("station lookup failed")

	// ErrNotFound is returned when a station id does not resolve.
	ErrNotFound = errors.New("station not found")
)

// Client resolves stations against the remote station directory.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a station directory client. baseURL is the API root,
// e.g. "http://localhost:8000/api".
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Nearest resolves the station closest to coords, including its arriving
// routes. Sentinel coordinates short-circuit with ErrInvalidCoordinates
// before any request is issued: besides saving a round trip, a lookup at
// (0,0) would produce a false station fix in the Gulf of Guinea.
func (c *Client) Nearest(ctx context.Context, coords geo.Coordinates) (*transit.Station, error) {
	if coords.IsZero() {
		return nil, ErrInvalidCoordinates
	}

	body, err := json.Marshal(coords)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/stations/nearest_station", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrLookupFailed, resp.StatusCode)
	}

	var station transit.Station
	if err := json.NewDecoder(resp.Body).Decode(&station); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrLookupFailed, err)
	}
	return &station, nil
}

// ByID fetches a single station by identifier.
func (c *Client) ByID(ctx context.Context, stationID int) (*transit.Station, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/stations/%d", c.baseURL, stationID), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: station %d, HTTP %d", ErrNotFound, stationID, resp.StatusCode)
	}

	var station transit.Station
	if err := json.NewDecoder(resp.Body).Decode(&station); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrNotFound, err)
	}
	return &station, nil
}

// ResolveDestinations resolves the destination station for each route that
// carries a positive destination id. A failed lookup drops that route from
// the result without failing the others.
func (c *Client) ResolveDestinations(ctx context.Context, routes []transit.Route) []transit.RouteWithDestination {
	out := make([]transit.RouteWithDestination, 0, len(routes))
	for _, route := range routes {
		if route.DestinationStationID <= 0 {
			continue
		}
		dest, err := c.ByID(ctx, route.DestinationStationID)
		if err != nil {
			log.Printf("destination lookup for route %s failed: %v", route.Name, err)
			continue
		}
		out = append(out, transit.RouteWithDestination{Route: route, Destination: *dest})
	}
	return out
}
