package location

import (
	"fmt"
	"time"
)

// Staleness is the read-time determination of whether the most recent
// sample is too old to surface. It is advisory: a stale result never
// mutates the user's enabled flag.
type Staleness struct {
	Stale  bool
	Reason string
}

// EvaluateStaleness decides whether a share has gone stale given the
// timestamp of the latest sample and the configured window.
//
// Rules:
//   - Staleness applies only to gps mode. A fixed coordinate does not
//     need refreshing, so fixed-mode shares never go stale.
//   - autoDisableAfter == 0 disables staleness checking entirely.
//   - A zero latestSampleAt means no sample was ever recorded; that is
//     "hasn't started yet", not "stopped updating", and is fresh.
//
// Every consumer of current location must go through this one function
// so the two read endpoints cannot drift.
func EvaluateStaleness(latestSampleAt time.Time, autoDisableAfter uint32, mode Mode, now time.Time) Staleness {
	if mode != ModeGPS {
		return Staleness{}
	}
	if autoDisableAfter == 0 {
		return Staleness{}
	}
	if latestSampleAt.IsZero() {
		return Staleness{}
	}

	age := now.Sub(latestSampleAt)
	window := time.Duration(autoDisableAfter) * time.Second
	if age < window {
		return Staleness{}
	}

	minutes := int(age.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return Staleness{
		Stale:  true,
		Reason: fmt.Sprintf("No location updates for %d minutes", minutes),
	}
}
