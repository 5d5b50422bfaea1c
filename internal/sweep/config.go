package sweep

import (
	"errors"
	"time"

	"github.com/fixtrack/fixtrack/internal/config"
)

var ErrInvalidConfig = errors.New("invalid sweep config")

// Config carries the sweep thresholds and cadence. Values are deployment
// policy; defaults match a typical repair shop working day.
type Config struct {
	// AutoPauseAfter demotes a timer whose worked time exceeds it.
	AutoPauseAfter time.Duration
	// StaleAfter force-clears a timer older than it, regardless of state.
	StaleAfter time.Duration
	// RunInterval is the pass cadence of the background sweeper.
	RunInterval time.Duration
	// BatchSize bounds how many timers one pass loads.
	BatchSize int
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		AutoPauseAfter: cfg.Timer.AutoPauseAfter,
		StaleAfter:     cfg.Timer.StaleAfter,
		RunInterval:    cfg.Timer.SweepInterval,
		BatchSize:      cfg.Timer.SweepBatchSize,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.AutoPauseAfter <= 0 {
		c.AutoPauseAfter = 4 * time.Hour
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 12 * time.Hour
	}
	if c.RunInterval <= 0 {
		c.RunInterval = time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	return c
}
