package geo

import (
	"math"
	"testing"
)

func TestIsZero(t *testing.T) {
	tests := []struct {
		name     string
		coords   Coordinates
		expected bool
	}{
		{"sentinel", Coordinates{}, true},
		{"real fix", Coordinates{Latitude: 4.65, Longitude: -74.05}, false},
		{"zero latitude only", Coordinates{Latitude: 0, Longitude: -74.05}, false},
		{"zero longitude only", Coordinates{Latitude: 4.65, Longitude: 0}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.coords.IsZero(); got != tc.expected {
				t.Errorf("IsZero(%+v) = %v, expected %v", tc.coords, got, tc.expected)
			}
		})
	}
}

func TestDistanceMeters(t *testing.T) {
	// Roughly 1 degree of latitude is 111.2km.
	a := Coordinates{Latitude: 4.0, Longitude: -74.0}
	b := Coordinates{Latitude: 5.0, Longitude: -74.0}
	d := DistanceMeters(a, b)
	if math.Abs(d-111195) > 200 {
		t.Errorf("DistanceMeters = %.0f, expected ~111195", d)
	}
	if d := DistanceMeters(a, a); d != 0 {
		t.Errorf("distance to self = %f, expected 0", d)
	}
}
