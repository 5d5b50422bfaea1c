package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestElapsedSecondsAt(t *testing.T) {
	started := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	now := started.Add(10 * time.Minute)
	pausedAt := started.Add(5 * time.Minute)

	running := &ActiveTimer{StartedAt: started, ElapsedSeconds: 120}
	assert.EqualValues(t, 120+600, ElapsedSecondsAt(running, now))

	paused := &ActiveTimer{StartedAt: started, ElapsedSeconds: 300, IsPaused: true, PauseTime: &pausedAt}
	assert.EqualValues(t, 300, ElapsedSecondsAt(paused, now))

	autoPaused := &ActiveTimer{StartedAt: started, ElapsedSeconds: 240, AutoPausedAt: &pausedAt}
	assert.EqualValues(t, 240, ElapsedSecondsAt(autoPaused, now))

	// A clock that ran backwards never subtracts banked time.
	assert.EqualValues(t, 120, ElapsedSecondsAt(running, started.Add(-time.Minute)))
}

func TestDurationMinutesRoundsHalfUp(t *testing.T) {
	assert.EqualValues(t, 0, DurationMinutes(0))
	assert.EqualValues(t, 0, DurationMinutes(29))
	assert.EqualValues(t, 1, DurationMinutes(30))
	assert.EqualValues(t, 1, DurationMinutes(89))
	assert.EqualValues(t, 2, DurationMinutes(90))
	assert.EqualValues(t, 35, DurationMinutes(35*60))
}

func TestStateDecoding(t *testing.T) {
	now := time.Now().UTC()

	assert.Equal(t, StateRunning, (&ActiveTimer{StartedAt: now}).State())
	assert.Equal(t, StatePaused, (&ActiveTimer{StartedAt: now, IsPaused: true, PauseTime: &now}).State())
	assert.Equal(t, StateAutoPaused, (&ActiveTimer{StartedAt: now, AutoPausedAt: &now}).State())

	// Manual pause wins when both markers are set.
	assert.Equal(t, StatePaused, (&ActiveTimer{StartedAt: now, IsPaused: true, PauseTime: &now, AutoPausedAt: &now}).State())
}
