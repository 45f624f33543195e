package location

import (
	"context"
	"errors"

	"station-tracker/internal/geo"
)

var (
	// ErrPermissionDenied means the position source refused access. Fatal to
	// tracking initialization; callers must not proceed to tracking.
	ErrPermissionDenied = errors.New("location permission denied")

	// ErrLocationUnavailable means the source could not produce a fix.
	// Transient; eligible for retry on the next scheduled trigger.
	ErrLocationUnavailable = errors.New("location unavailable")
)

// Unsubscribe releases a continuous watch. It must be invoked exactly once.
type Unsubscribe func()

// Source produces the device position. Implementations deliver at most one
// active subscription: a second Subscribe call first disposes the prior one.
type Source interface {
	// RequestPermissions acquires access to the underlying position
	// provider. It returns true only when tracking may start.
	RequestPermissions(ctx context.Context) bool

	// CurrentFix returns a one-shot high-accuracy fix, or
	// ErrLocationUnavailable if the provider cannot produce one.
	CurrentFix(ctx context.Context) (geo.Coordinates, error)

	// Subscribe registers a continuous watch. onUpdate is called with each
	// accepted fix; delivery is bounded by the source's minimum time and
	// distance thresholds.
	Subscribe(onUpdate func(geo.Coordinates)) (Unsubscribe, error)
}
