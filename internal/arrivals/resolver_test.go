package arrivals

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// directionsFixture mirrors the computeRoutes response shape, including
// steps with missing optional fields that must be skipped.
const directionsFixture = `{
  "routes": [
    {
      "legs": [
        {
          "steps": [
            {"travelMode": "WALK"},
            {"travelMode": "TRANSIT"},
            {"travelMode": "TRANSIT", "transitDetails": {"transitLine": {"nameShort": "C15"}}},
            {
              "travelMode": "TRANSIT",
              "transitDetails": {
                "transitLine": {"nameShort": "B10"},
                "localizedValues": {"departureTime": {"time": {"text": "14:35"}}}
              }
            },
            {
              "travelMode": "TRANSIT",
              "transitDetails": {
                "transitLine": {"nameShort": "B10"},
                "localizedValues": {"departureTime": {"time": {"text": "15:05"}}}
              }
            }
          ]
        }
      ]
    }
  ]
}`

func decodeFixture(t *testing.T) *DirectionsResponse {
	t.Helper()
	var resp DirectionsResponse
	if err := json.Unmarshal([]byte(directionsFixture), &resp); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return &resp
}

func TestExtractDepartureFirstMatch(t *testing.T) {
	got, err := ExtractDeparture(decodeFixture(t), "B10")
	if err != nil {
		t.Fatalf("ExtractDeparture error: %v", err)
	}
	if got != "14:35" {
		t.Errorf("departure = %q, expected first match 14:35", got)
	}
}

func TestExtractDepartureSkipsIncompleteSteps(t *testing.T) {
	// C15's only step has no localizedValues; it must be skipped without
	// panicking, exhausting the scan.
	_, err := ExtractDeparture(decodeFixture(t), "C15")
	if !errors.Is(err, ErrRouteNotFound) {
		t.Fatalf("error = %v, expected ErrRouteNotFound", err)
	}
}

func TestExtractDepartureCaseSensitive(t *testing.T) {
	_, err := ExtractDeparture(decodeFixture(t), "b10")
	if !errors.Is(err, ErrRouteNotFound) {
		t.Fatalf("error = %v, expected ErrRouteNotFound for lowercase name", err)
	}
}

func TestExtractDepartureNoMatch(t *testing.T) {
	_, err := ExtractDeparture(decodeFixture(t), "Z99")
	if !errors.Is(err, ErrRouteNotFound) {
		t.Fatalf("error = %v, expected ErrRouteNotFound", err)
	}
}

func TestExtractDepartureEmptyResponse(t *testing.T) {
	if _, err := ExtractDeparture(&DirectionsResponse{}, "B10"); !errors.Is(err, ErrRouteNotFound) {
		t.Fatalf("error = %v, expected ErrRouteNotFound", err)
	}
	if _, err := ExtractDeparture(nil, "B10"); !errors.Is(err, ErrRouteNotFound) {
		t.Fatalf("error = %v, expected ErrRouteNotFound for nil response", err)
	}
}

func at(hh, mm int) time.Time {
	return time.Date(2026, 8, 29, hh, mm, 0, 0, time.UTC)
}

func TestComputeMinutes(t *testing.T) {
	tests := []struct {
		name      string
		departure string
		now       time.Time
		expected  int
	}{
		{"later today", "14:35", at(14, 20), 15},
		{"same minute", "14:20", at(14, 20), 0},
		{"just missed", "23:55", at(23, 58), -3},
		{"rolled past midnight", "00:05", at(23, 58), 7},
		{"early morning service", "05:30", at(23, 58), 332},
		{"midday same time tomorrow boundary", "11:57", at(23, 58), 719},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ComputeMinutes(tc.departure, tc.now)
			if err != nil {
				t.Fatalf("ComputeMinutes(%q) error: %v", tc.departure, err)
			}
			if got != tc.expected {
				t.Errorf("ComputeMinutes(%q, %s) = %d, expected %d", tc.departure, tc.now.Format("15:04"), got, tc.expected)
			}
		})
	}
}

func TestComputeMinutesMalformed(t *testing.T) {
	for _, bad := range []string{"", "1435", "25:00", "14:60", "ab:cd", "14:"} {
		if _, err := ComputeMinutes(bad, at(12, 0)); err == nil {
			t.Errorf("ComputeMinutes(%q) succeeded, expected error", bad)
		}
	}
}
