package domain

import (
	"math"
	"time"
)

// ElapsedSecondsAt returns the total worked seconds for the timer as of
// now: the banked seconds plus the live running interval. While paused
// or auto-paused the live interval is frozen and contributes nothing.
func ElapsedSecondsAt(t *ActiveTimer, now time.Time) int64 {
	total := t.ElapsedSeconds
	if t.State() == StateRunning {
		if live := now.Sub(t.StartedAt); live > 0 {
			total += int64(live.Seconds())
		}
	}
	return total
}

// DurationMinutes converts worked seconds to the banked minute figure,
// rounding half-up.
func DurationMinutes(seconds int64) int64 {
	return int64(math.Round(float64(seconds) / 60.0))
}
