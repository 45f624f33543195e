package arrivals

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"station-tracker/internal/geo"
)

// ErrDirectionsUnavailable wraps transport errors and non-2xx responses
// from the directions service.
var ErrDirectionsUnavailable = errors.New("directions service unavailable")

// DirectionsResponse is the subset of the computeRoutes response this
// service reads. Every field below transitDetails is optional on a given
// step; absence means the step is skipped, never a parse error.
type DirectionsResponse struct {
	Routes []DirectionsRoute `json:"routes"`
}

type DirectionsRoute struct {
	Legs []DirectionsLeg `json:"legs"`
}

type DirectionsLeg struct {
	Steps []DirectionsStep `json:"steps"`
}

type DirectionsStep struct {
	TravelMode     string          `json:"travelMode"`
	TransitDetails *TransitDetails `json:"transitDetails"`
}

type TransitDetails struct {
	TransitLine     *TransitLine     `json:"transitLine"`
	LocalizedValues *LocalizedValues `json:"localizedValues"`
}

type TransitLine struct {
	NameShort string `json:"nameShort"`
}

type LocalizedValues struct {
	DepartureTime *LocalizedTime `json:"departureTime"`
}

type LocalizedTime struct {
	Time LocalizedText `json:"time"`
}

type LocalizedText struct {
	Text string `json:"text"` // "HH:MM"
}

// computeRoutesRequest is the transit-mode request body.
type computeRoutesRequest struct {
	Origin                   waypoint `json:"origin"`
	Destination              waypoint `json:"destination"`
	TravelMode               string   `json:"travelMode"`
	ComputeAlternativeRoutes bool     `json:"computeAlternativeRoutes"`
}

type waypoint struct {
	Location struct {
		LatLng geo.Coordinates `json:"latLng"`
	} `json:"location"`
}

// DirectionsClient queries the external transit-directions service.
type DirectionsClient struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewDirectionsClient creates a directions client for the given endpoint.
// The API key is carried in the X-Goog-Api-Key header on every request.
func NewDirectionsClient(url, apiKey string, timeout time.Duration) *DirectionsClient {
	return &DirectionsClient{
		url:    url,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Query requests transit directions between origin and destination,
// including alternative routes so every serving line appears in the
// response.
func (c *DirectionsClient) Query(ctx context.Context, origin, destination geo.Coordinates) (*DirectionsResponse, error) {
	reqBody := computeRoutesRequest{
		TravelMode:               "TRANSIT",
		ComputeAlternativeRoutes: true,
	}
	reqBody.Origin.Location.LatLng = origin
	reqBody.Destination.Location.LatLng = destination

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectionsUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectionsUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", "routes.legs")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectionsUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrDirectionsUnavailable, resp.StatusCode)
	}

	var out DirectionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrDirectionsUnavailable, err)
	}
	return &out, nil
}
