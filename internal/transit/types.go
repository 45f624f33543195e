package transit

import (
	"time"

	"station-tracker/internal/geo"
)

// Route is a named transit line. Identity is the server-assigned ID; the
// name is the human-facing line code (e.g. "B10"). Routes are immutable
// once fetched within a session.
type Route struct {
	ID                   int    `json:"id"`
	Name                 string `json:"name"`
	DestinationStationID int    `json:"destinationStationId"`
	OriginStationID      int    `json:"originStationId"`
}

// Station is a physical transit stop. ArrivingRoutes preserves the server
// response order for display.
type Station struct {
	ID             int             `json:"id"`
	Name           string          `json:"name"`
	Coordinates    geo.Coordinates `json:"coordinates"`
	ArrivingRoutes []Route         `json:"arrivingRoutes"`
}

// RouteWithDestination pairs a route with its resolved destination station.
type RouteWithDestination struct {
	Route       Route   `json:"route"`
	Destination Station `json:"destination"`
}

// StationSnapshot is the complete, atomically-replaced view of the current
// station/route state. A nil Station means "no station known yet", in which
// case ArrivingRoutes is empty.
type StationSnapshot struct {
	Station        *Station   `json:"station"`
	ArrivingRoutes []Route    `json:"arrivingRoutes"`
	LastUpdated    *time.Time `json:"lastUpdated"`
}
