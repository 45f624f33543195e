package arrivals

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"station-tracker/internal/geo"
)

// ErrRouteNotFound means no transit step in the directions response matched
// the requested line. Reported, not retried.
var ErrRouteNotFound = errors.New("route not found in directions response")

// ExtractDeparture scans the route → leg → step hierarchy for the first
// transit step whose line short name equals routeName and returns that
// step's localized departure clock time ("HH:MM"). The match is exact and
// case-sensitive: that is the documented contract against the directions
// provider, fragile as it is with localized line names. Steps missing any
// of the optional transit fields are skipped.
func ExtractDeparture(resp *DirectionsResponse, routeName string) (string, error) {
	if resp == nil {
		return "", ErrRouteNotFound
	}
	for _, route := range resp.Routes {
		for _, leg := range route.Legs {
			for _, step := range leg.Steps {
				if step.TravelMode != "TRANSIT" || step.TransitDetails == nil {
					continue
				}
				td := step.TransitDetails
				if td.TransitLine == nil || td.TransitLine.NameShort != routeName {
					continue
				}
				if td.LocalizedValues == nil || td.LocalizedValues.DepartureTime == nil {
					continue
				}
				if t := td.LocalizedValues.DepartureTime.Time.Text; t != "" {
					return t, nil
				}
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrRouteNotFound, routeName)
}

// rolloverWindow separates "the schedule rolled past midnight" from "the
// bus just left". A departure more than this far in the past is read as
// tomorrow's; a departure missed by minutes stays today's and yields a
// negative result.
const rolloverWindow = 12 * time.Hour

// ComputeMinutes converts a "HH:MM" departure clock time into whole minutes
// from now. The clock time is read on now's date in now's location; a time
// deep enough in the past is reinterpreted as tomorrow, which covers
// schedules rolling past midnight. The result is rounded, not clamped.
func ComputeMinutes(departure string, now time.Time) (int, error) {
	hh, mm, ok := strings.Cut(departure, ":")
	if !ok {
		return 0, fmt.Errorf("malformed departure time %q", departure)
	}
	hours, err := strconv.Atoi(hh)
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("malformed departure time %q", departure)
	}
	minutes, err := strconv.Atoi(mm)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("malformed departure time %q", departure)
	}

	dep := time.Date(now.Year(), now.Month(), now.Day(), hours, minutes, 0, 0, now.Location())
	if now.Sub(dep) > rolloverWindow {
		dep = dep.AddDate(0, 0, 1)
	}
	return int(math.Round(dep.Sub(now).Minutes())), nil
}

// Resolver computes minutes-until-departure for a route between two points.
type Resolver struct {
	directions *DirectionsClient
}

// NewResolver creates a resolver on top of a directions client.
func NewResolver(directions *DirectionsClient) *Resolver {
	return &Resolver{directions: directions}
}

// Resolve queries directions from origin to destination and returns the
// whole minutes until routeName's next departure, evaluated against now.
func (r *Resolver) Resolve(ctx context.Context, origin, destination geo.Coordinates, routeName string, now time.Time) (int, error) {
	resp, err := r.directions.Query(ctx, origin, destination)
	if err != nil {
		return 0, err
	}
	departure, err := ExtractDeparture(resp, routeName)
	if err != nil {
		return 0, err
	}
	return ComputeMinutes(departure, now)
}
