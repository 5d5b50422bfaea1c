package sweep

import (
	"context"
	"errors"
	"time"

	"github.com/fixtrack/fixtrack/internal/actorcontext"
	"github.com/fixtrack/fixtrack/internal/clock"
	obsmetrics "github.com/fixtrack/fixtrack/internal/observability/metrics"
	"github.com/fixtrack/fixtrack/internal/timer/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	PolicyAutoPause  = "auto_pause"
	PolicyStaleClear = "stale_clear"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	TimerSvc domain.Service
	Repo     domain.Repository
	Config   Config `optional:"true"`
}

// Sweeper applies the time-based timer policies in the background. Each
// pass fetches a bounded batch and commits transitions row by row, so one
// bad row never blocks the rest.
type Sweeper struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      Config
	clock    clock.Clock
	timerSvc domain.Service
	repo     domain.Repository
}

func New(p Params) (*Sweeper, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.TimerSvc == nil || p.Repo == nil {
		return nil, ErrInvalidConfig
	}
	return &Sweeper{
		db:       p.DB,
		log:      p.Log.Named("sweep").With(zap.String("component", "sweeper")),
		cfg:      p.Config.withDefaults(),
		clock:    p.Clock,
		timerSvc: p.TimerSvc,
		repo:     p.Repo,
	}, nil
}

func (s *Sweeper) RunOnce(parent context.Context) error {
	ctx := actorcontext.WithActor(parent, actorcontext.SystemActor())

	var err error
	err = errors.Join(err, s.runPolicy(ctx, PolicyStaleClear, s.staleClearPass))
	err = errors.Join(err, s.runPolicy(ctx, PolicyAutoPause, s.autoPausePass))
	return err
}

func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("sweep pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) runPolicy(ctx context.Context, policy string, pass func(context.Context) (int, error)) error {
	start := time.Now()
	sweepMetrics := obsmetrics.Engine()
	sweepMetrics.IncSweepRun(policy)

	transitioned, err := pass(ctx)
	sweepMetrics.ObserveSweepDuration(policy, time.Since(start))
	sweepMetrics.AddSweepTransitions(policy, transitioned)

	if transitioned > 0 {
		s.log.Info("sweep pass transitioned timers",
			zap.String("policy", policy),
			zap.Int("count", transitioned),
		)
	}
	return err
}

// autoPausePass demotes timers whose worked time passed the threshold.
// Paused and auto-paused timers accrue nothing and never match.
func (s *Sweeper) autoPausePass(ctx context.Context) (int, error) {
	timers, err := s.repo.ListActive(ctx, s.db, s.cfg.BatchSize)
	if err != nil {
		obsmetrics.Engine().IncSweepError(PolicyAutoPause)
		return 0, err
	}

	now := s.clock.Now().UTC()
	limit := int64(s.cfg.AutoPauseAfter.Seconds())
	transitioned := 0
	var passErr error

	for _, timer := range timers {
		if ctx.Err() != nil {
			return transitioned, errors.Join(passErr, ctx.Err())
		}
		if timer == nil || timer.State() != domain.StateRunning {
			continue
		}
		if domain.ElapsedSecondsAt(timer, now) <= limit {
			continue
		}

		result, err := s.timerSvc.AutoPause(ctx, timer.TicketID)
		if err != nil {
			passErr = errors.Join(passErr, err)
			obsmetrics.Engine().IncSweepError(PolicyAutoPause)
			s.log.Warn("auto-pause failed",
				zap.String("ticket_id", timer.TicketID.String()),
				zap.Error(err),
			)
			continue
		}
		if result.Success {
			transitioned++
		}
	}

	return transitioned, passErr
}

// staleClearPass force-clears timers older than the stale threshold. Age
// counts from the lifetime start, so pausing does not keep a timer alive
// forever. Runs before the auto-pause pass so a timer past both
// thresholds is cleared, not demoted.
func (s *Sweeper) staleClearPass(ctx context.Context) (int, error) {
	timers, err := s.repo.ListActive(ctx, s.db, s.cfg.BatchSize)
	if err != nil {
		obsmetrics.Engine().IncSweepError(PolicyStaleClear)
		return 0, err
	}

	now := s.clock.Now().UTC()
	transitioned := 0
	var passErr error

	for _, timer := range timers {
		if ctx.Err() != nil {
			return transitioned, errors.Join(passErr, ctx.Err())
		}
		if timer == nil || now.Sub(timer.LifetimeStartedAt) <= s.cfg.StaleAfter {
			continue
		}

		result, err := s.timerSvc.Clear(ctx, domain.ClearRequest{
			TicketID: timer.TicketID,
			Reason:   "stale timer auto-cleared",
		})
		if err != nil {
			passErr = errors.Join(passErr, err)
			obsmetrics.Engine().IncSweepError(PolicyStaleClear)
			s.log.Warn("stale clear failed",
				zap.String("ticket_id", timer.TicketID.String()),
				zap.Error(err),
			)
			continue
		}
		if result.Cleared {
			transitioned++
		}
	}

	return transitioned, passErr
}
