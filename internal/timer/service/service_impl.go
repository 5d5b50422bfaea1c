package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/fixtrack/fixtrack/internal/actorcontext"
	auditdomain "github.com/fixtrack/fixtrack/internal/audit/domain"
	"github.com/fixtrack/fixtrack/internal/authorization"
	"github.com/fixtrack/fixtrack/internal/clock"
	"github.com/fixtrack/fixtrack/internal/observability/metrics"
	ticketdomain "github.com/fixtrack/fixtrack/internal/ticket/domain"
	"github.com/fixtrack/fixtrack/internal/timer/domain"
	"github.com/fixtrack/fixtrack/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// errTimerChanged aborts a stop transaction when the snapshot no longer
// matches the stored row. Never escapes the service.
var errTimerChanged = errors.New("timer changed concurrently")

const defaultClearReason = "manually cleared"

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Tickets ticketdomain.Repository
	Audit   auditdomain.Service
	Authz   authorization.Service
}

type ServiceImpl struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	tickets ticketdomain.Repository
	audit   auditdomain.Service
	authz   authorization.Service
	metrics *metrics.EngineMetrics
}

func NewService(p Params) domain.Service {
	return &ServiceImpl{
		db:      p.DB,
		log:     p.Log.Named("timer.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		tickets: p.Tickets,
		audit:   p.Audit,
		authz:   p.Authz,
		metrics: metrics.Engine(),
	}
}

func (s *ServiceImpl) Start(ctx context.Context, req domain.StartRequest) (domain.TimerResult, error) {
	actor, err := s.authorizeOwn(ctx, req.UserID)
	if err != nil {
		return domain.TimerResult{}, err
	}
	return s.doStart(ctx, actor, req.TicketID, req.UserID, nil)
}

func (s *ServiceImpl) Pause(ctx context.Context, req domain.PauseRequest) (domain.TimerResult, error) {
	actor, err := s.authorizeOwn(ctx, req.UserID)
	if err != nil {
		return domain.TimerResult{}, err
	}
	return s.doPause(ctx, actor, req.TicketID, req.UserID, nil)
}

func (s *ServiceImpl) Resume(ctx context.Context, req domain.ResumeRequest) (domain.TimerResult, error) {
	actor, err := s.authorizeOwn(ctx, req.UserID)
	if err != nil {
		return domain.TimerResult{}, err
	}
	return s.doResume(ctx, actor, req.TicketID, req.UserID, false, nil)
}

func (s *ServiceImpl) Stop(ctx context.Context, req domain.StopRequest) (domain.StopResult, error) {
	actor, err := s.authorizeOwn(ctx, req.UserID)
	if err != nil {
		return domain.StopResult{}, err
	}
	return s.doStop(ctx, actor, req.TicketID, req.UserID, req.Notes, nil)
}

func (s *ServiceImpl) Clear(ctx context.Context, req domain.ClearRequest) (domain.ClearResult, error) {
	if req.TicketID == 0 {
		return domain.ClearResult{}, domain.ErrInvalidTicket
	}
	actor, ok := actorcontext.ActorFromContext(ctx)
	if !ok {
		return domain.ClearResult{}, authorization.ErrUnauthorized
	}

	timer, err := s.repo.FindByTicket(ctx, s.db, req.TicketID)
	if err != nil {
		return domain.ClearResult{}, err
	}

	action := authorization.ActionTimerStartOwn
	if timer != nil && timer.UserID != actor.UserID && actor.Role != actorcontext.SystemRole {
		action = authorization.ActionTimerEditAny
	}
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectTimer, action); err != nil {
		return domain.ClearResult{}, err
	}

	ticket, err := s.tickets.FindByID(ctx, s.db, req.TicketID)
	if err != nil {
		return domain.ClearResult{}, err
	}
	if ticket == nil {
		s.metrics.IncTimerTransition("clear", string(domain.CodeNotFound))
		return domain.ClearResult{Result: domain.Failed(domain.CodeNotFound, "ticket not found")}, nil
	}

	reason := req.Reason
	if reason == "" {
		reason = defaultClearReason
	}

	now := s.clock.Now().UTC()
	var discardedSeconds int64
	if timer != nil {
		discardedSeconds = domain.ElapsedSecondsAt(timer, now)
	}

	cleared := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted, err := s.repo.DeleteByTicket(ctx, tx, req.TicketID)
		if err != nil {
			return err
		}
		cleared = deleted
		// Clear the ticket mirror even without a timer row so a stuck
		// timer_is_running flag heals.
		return s.tickets.ClearTimerState(ctx, tx, req.TicketID)
	})
	if err != nil {
		return domain.ClearResult{}, err
	}

	meta := map[string]any{"reason": reason}
	if cleared {
		meta["discarded_seconds"] = discardedSeconds
	}
	s.publishAudit(ctx, actor, req.TicketID, "timer.clear", auditdomain.ResultSuccess, meta)

	if !cleared {
		s.metrics.IncTimerTransition("clear", string(domain.CodeNothingToClear))
		return domain.ClearResult{
			Result:  domain.Result{Success: true, Code: domain.CodeNothingToClear, Message: "no active timer to clear"},
			Cleared: false,
		}, nil
	}

	s.metrics.IncTimerTransition("clear", "ok")
	return domain.ClearResult{Result: domain.OK("timer cleared, no time banked"), Cleared: true}, nil
}

func (s *ServiceImpl) Reset(ctx context.Context, req domain.ResetRequest) (domain.ResetResult, error) {
	if req.TicketID == 0 {
		return domain.ResetResult{}, domain.ErrInvalidTicket
	}
	actor, ok := actorcontext.ActorFromContext(ctx)
	if !ok {
		return domain.ResetResult{}, authorization.ErrUnauthorized
	}
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectTimer, authorization.ActionTimerEditAny); err != nil {
		return domain.ResetResult{}, err
	}

	ticket, err := s.tickets.FindByID(ctx, s.db, req.TicketID)
	if err != nil {
		return domain.ResetResult{}, err
	}
	if ticket == nil {
		s.metrics.IncTimerTransition("reset", string(domain.CodeNotFound))
		return domain.ResetResult{Result: domain.Failed(domain.CodeNotFound, "ticket not found")}, nil
	}

	previous, err := s.tickets.ResetTimerStartedAt(ctx, s.db, req.TicketID)
	if err != nil {
		return domain.ResetResult{}, err
	}

	meta := map[string]any{}
	if previous != nil {
		meta["previous_started_at"] = previous.UTC()
	}
	s.publishAudit(ctx, actor, req.TicketID, "timer.reset", auditdomain.ResultSuccess, meta)
	s.metrics.IncTimerTransition("reset", "ok")

	return domain.ResetResult{
		Result:            domain.OK("timer start field reset"),
		PreviousStartedAt: previous,
	}, nil
}

func (s *ServiceImpl) GetForTicket(ctx context.Context, ticketID snowflake.ID) (*domain.ActiveTimer, error) {
	if ticketID == 0 {
		return nil, domain.ErrInvalidTicket
	}
	return s.repo.FindByTicket(ctx, s.db, ticketID)
}

func (s *ServiceImpl) GetForUser(ctx context.Context, userID snowflake.ID) (*domain.ActiveTimer, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	return s.repo.FindByUser(ctx, s.db, userID)
}

func (s *ServiceImpl) ListActive(ctx context.Context) ([]domain.ActiveTimer, error) {
	rows, err := s.repo.ListActive(ctx, s.db, 0)
	if err != nil {
		return nil, err
	}
	timers := make([]domain.ActiveTimer, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		timers = append(timers, *row)
	}
	return timers, nil
}

// AutoPause demotes a long-running timer to the auto-paused state. Only
// the sweep calls this, under the system actor.
func (s *ServiceImpl) AutoPause(ctx context.Context, ticketID snowflake.ID) (domain.TimerResult, error) {
	if ticketID == 0 {
		return domain.TimerResult{}, domain.ErrInvalidTicket
	}
	actor, ok := actorcontext.ActorFromContext(ctx)
	if !ok {
		return domain.TimerResult{}, authorization.ErrUnauthorized
	}
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectTimer, authorization.ActionTimerEditAny); err != nil {
		return domain.TimerResult{}, err
	}

	timer, err := s.repo.FindByTicket(ctx, s.db, ticketID)
	if err != nil {
		return domain.TimerResult{}, err
	}
	if timer == nil {
		s.metrics.IncTimerTransition("auto_pause", string(domain.CodeNotFound))
		return domain.TimerResult{Result: domain.Failed(domain.CodeNotFound, "no active timer for ticket")}, nil
	}
	if timer.State() != domain.StateRunning {
		s.metrics.IncTimerTransition("auto_pause", string(domain.CodeInvalidState))
		return domain.TimerResult{Result: domain.Failed(domain.CodeInvalidState, "timer is not running")}, nil
	}

	now := s.clock.Now().UTC()
	banked := domain.ElapsedSecondsAt(timer, now)
	matched, err := s.repo.MarkAutoPaused(ctx, s.db, ticketID, timer.StartedAt, now, banked)
	if err != nil {
		return domain.TimerResult{}, err
	}
	if !matched {
		s.metrics.IncTimerTransition("auto_pause", string(domain.CodeNotFound))
		return domain.TimerResult{Result: domain.Failed(domain.CodeNotFound, "timer changed before auto-pause applied")}, nil
	}

	timer.AutoPausedAt = &now
	timer.ElapsedSeconds = banked
	timer.UpdatedAt = now

	s.publishAudit(ctx, actor, ticketID, "timer.auto_pause", auditdomain.ResultSuccess, map[string]any{
		"elapsed_seconds": banked,
		"owner_id":        timer.UserID.String(),
	})
	s.metrics.IncTimerTransition("auto_pause", "ok")

	return domain.TimerResult{Result: domain.OK("timer auto-paused"), Timer: timer}, nil
}

func (s *ServiceImpl) doStart(ctx context.Context, actor actorcontext.Actor, ticketID, userID snowflake.ID, extraMeta map[string]any) (domain.TimerResult, error) {
	if ticketID == 0 {
		return domain.TimerResult{}, domain.ErrInvalidTicket
	}
	ticket, err := s.tickets.FindByID(ctx, s.db, ticketID)
	if err != nil {
		return domain.TimerResult{}, err
	}
	if ticket == nil {
		s.metrics.IncTimerTransition("start", string(domain.CodeNotFound))
		return domain.TimerResult{Result: domain.Failed(domain.CodeNotFound, "ticket not found")}, nil
	}

	now := s.clock.Now().UTC()
	timer := &domain.ActiveTimer{
		ID:                s.genID.Generate(),
		TicketID:          ticketID,
		UserID:            userID,
		StartedAt:         now,
		LifetimeStartedAt: now,
		ElapsedSeconds:    0,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, timer); err != nil {
			return err
		}
		return s.tickets.SetTimerStarted(ctx, tx, ticketID, now)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return s.startConflict(ctx, actor, ticketID, userID, extraMeta)
		}
		return domain.TimerResult{}, err
	}

	s.publishAudit(ctx, actor, ticketID, "timer.start", auditdomain.ResultSuccess, mergeMeta(map[string]any{
		"owner_id": userID.String(),
	}, extraMeta))
	s.metrics.IncTimerTransition("start", "ok")

	return domain.TimerResult{Result: domain.OK("timer started"), Timer: timer}, nil
}

// startConflict names the timer that blocked a start. One of the two
// uniqueness constraints fired; look up which.
func (s *ServiceImpl) startConflict(ctx context.Context, actor actorcontext.Actor, ticketID, userID snowflake.ID, extraMeta map[string]any) (domain.TimerResult, error) {
	s.metrics.IncTimerTransition("start", string(domain.CodeConflict))

	if existing, err := s.repo.FindByTicket(ctx, s.db, ticketID); err != nil {
		return domain.TimerResult{}, err
	} else if existing != nil {
		message := "a timer is already running on this ticket"
		if existing.UserID == userID {
			message = "you already have a timer on this ticket"
		}
		s.publishAudit(ctx, actor, ticketID, "timer.start", auditdomain.ResultFailed, mergeMeta(map[string]any{
			"reason":   "ticket_conflict",
			"owner_id": existing.UserID.String(),
		}, extraMeta))
		return domain.TimerResult{
			Result:           domain.Failed(domain.CodeConflict, message),
			Timer:            existing,
			ConflictTicketID: ticketID,
		}, nil
	}

	if existing, err := s.repo.FindByUser(ctx, s.db, userID); err != nil {
		return domain.TimerResult{}, err
	} else if existing != nil {
		s.publishAudit(ctx, actor, ticketID, "timer.start", auditdomain.ResultFailed, mergeMeta(map[string]any{
			"reason":             "user_conflict",
			"conflict_ticket_id": existing.TicketID.String(),
		}, extraMeta))
		return domain.TimerResult{
			Result:           domain.Failed(domain.CodeConflict, "user already has an active timer on another ticket"),
			Timer:            existing,
			ConflictTicketID: existing.TicketID,
		}, nil
	}

	// Both lookups came back empty: the blocking timer was removed in the
	// window since the insert failed. The caller can simply retry.
	return domain.TimerResult{
		Result:           domain.Failed(domain.CodeConflict, "timer conflict, please retry"),
		ConflictTicketID: ticketID,
	}, nil
}

func (s *ServiceImpl) doPause(ctx context.Context, actor actorcontext.Actor, ticketID, userID snowflake.ID, extraMeta map[string]any) (domain.TimerResult, error) {
	timer, result, err := s.findOwned(ctx, "pause", ticketID, userID)
	if err != nil || timer == nil {
		return result, err
	}
	if timer.State() != domain.StateRunning {
		s.metrics.IncTimerTransition("pause", string(domain.CodeInvalidState))
		return domain.TimerResult{Result: domain.Failed(domain.CodeInvalidState, "timer is not running")}, nil
	}

	now := s.clock.Now().UTC()
	banked := domain.ElapsedSecondsAt(timer, now)
	matched, err := s.repo.MarkPaused(ctx, s.db, ticketID, timer.StartedAt, now, banked)
	if err != nil {
		return domain.TimerResult{}, err
	}
	if !matched {
		s.metrics.IncTimerTransition("pause", string(domain.CodeNotFound))
		return domain.TimerResult{Result: domain.Failed(domain.CodeNotFound, "timer changed before pause applied")}, nil
	}

	timer.IsPaused = true
	timer.PauseTime = &now
	timer.ElapsedSeconds = banked
	timer.UpdatedAt = now

	s.publishAudit(ctx, actor, ticketID, "timer.pause", auditdomain.ResultSuccess, mergeMeta(map[string]any{
		"elapsed_seconds": banked,
		"owner_id":        userID.String(),
	}, extraMeta))
	s.metrics.IncTimerTransition("pause", "ok")

	return domain.TimerResult{Result: domain.OK("timer paused"), Timer: timer}, nil
}

func (s *ServiceImpl) doResume(ctx context.Context, actor actorcontext.Actor, ticketID, userID snowflake.ID, allowAutoPaused bool, extraMeta map[string]any) (domain.TimerResult, error) {
	timer, result, err := s.findOwned(ctx, "resume", ticketID, userID)
	if err != nil || timer == nil {
		return result, err
	}

	switch timer.State() {
	case domain.StateRunning:
		s.metrics.IncTimerTransition("resume", string(domain.CodeInvalidState))
		return domain.TimerResult{Result: domain.Failed(domain.CodeInvalidState, "timer is already running")}, nil
	case domain.StateAutoPaused:
		if !allowAutoPaused {
			s.metrics.IncTimerTransition("resume", string(domain.CodeInvalidState))
			return domain.TimerResult{Result: domain.Failed(domain.CodeInvalidState, "timer was auto-paused and needs an admin resume")}, nil
		}
		if _, err := s.repo.NormalizeAutoPaused(ctx, s.db, ticketID); err != nil {
			return domain.TimerResult{}, err
		}
	}

	now := s.clock.Now().UTC()
	matched, err := s.repo.MarkResumed(ctx, s.db, ticketID, now)
	if err != nil {
		return domain.TimerResult{}, err
	}
	if !matched {
		s.metrics.IncTimerTransition("resume", string(domain.CodeNotFound))
		return domain.TimerResult{Result: domain.Failed(domain.CodeNotFound, "timer changed before resume applied")}, nil
	}

	timer.IsPaused = false
	timer.PauseTime = nil
	timer.AutoPausedAt = nil
	timer.StartedAt = now
	timer.UpdatedAt = now

	s.publishAudit(ctx, actor, ticketID, "timer.resume", auditdomain.ResultSuccess, mergeMeta(map[string]any{
		"owner_id": userID.String(),
	}, extraMeta))
	s.metrics.IncTimerTransition("resume", "ok")

	return domain.TimerResult{Result: domain.OK("timer resumed"), Timer: timer}, nil
}

func (s *ServiceImpl) doStop(ctx context.Context, actor actorcontext.Actor, ticketID, userID snowflake.ID, notes string, extraMeta map[string]any) (domain.StopResult, error) {
	timer, result, err := s.findOwned(ctx, "stop", ticketID, userID)
	if err != nil {
		return domain.StopResult{}, err
	}
	if timer == nil {
		return domain.StopResult{Result: result.Result}, nil
	}

	now := s.clock.Now().UTC()
	finalSeconds := domain.ElapsedSecondsAt(timer, now)
	minutes := domain.DurationMinutes(finalSeconds)

	entry := &domain.TimeEntry{
		ID:              s.genID.Generate(),
		TicketID:        ticketID,
		UserID:          timer.UserID,
		StartTime:       timer.LifetimeStartedAt,
		EndTime:         now,
		DurationMinutes: minutes,
		Description:     notes,
		CreatedAt:       now,
	}

	var totalMinutes int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		matched, err := s.repo.DeleteMatching(ctx, tx, timer)
		if err != nil {
			return err
		}
		if !matched {
			return errTimerChanged
		}
		if err := s.repo.InsertEntry(ctx, tx, entry); err != nil {
			return err
		}
		totalMinutes, err = s.tickets.RecomputeTotalTime(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		return s.tickets.ClearTimerState(ctx, tx, ticketID)
	})
	if err != nil {
		if errors.Is(err, errTimerChanged) {
			s.metrics.IncTimerTransition("stop", string(domain.CodeNotFound))
			return domain.StopResult{Result: domain.Failed(domain.CodeNotFound, "timer changed before stop applied")}, nil
		}
		return domain.StopResult{}, err
	}

	s.publishAudit(ctx, actor, ticketID, "timer.stop", auditdomain.ResultSuccess, mergeMeta(map[string]any{
		"owner_id":           timer.UserID.String(),
		"elapsed_seconds":    finalSeconds,
		"duration_minutes":   minutes,
		"total_time_minutes": totalMinutes,
	}, extraMeta))
	s.metrics.IncTimerTransition("stop", "ok")

	return domain.StopResult{
		Result:          domain.OK("timer stopped, time banked"),
		Entry:           entry,
		DurationMinutes: minutes,
	}, nil
}

// findOwned fetches the ticket's timer and checks it belongs to userID.
// A nil timer in the return means the operation already failed; the
// accompanying TimerResult carries the outcome.
func (s *ServiceImpl) findOwned(ctx context.Context, action string, ticketID, userID snowflake.ID) (*domain.ActiveTimer, domain.TimerResult, error) {
	if ticketID == 0 {
		return nil, domain.TimerResult{}, domain.ErrInvalidTicket
	}
	timer, err := s.repo.FindByTicket(ctx, s.db, ticketID)
	if err != nil {
		return nil, domain.TimerResult{}, err
	}
	if timer == nil || timer.UserID != userID {
		s.metrics.IncTimerTransition(action, string(domain.CodeNotFound))
		return nil, domain.TimerResult{Result: domain.Failed(domain.CodeNotFound, "no active timer for ticket and user")}, nil
	}
	return timer, domain.TimerResult{}, nil
}

func (s *ServiceImpl) authorizeOwn(ctx context.Context, userID snowflake.ID) (actorcontext.Actor, error) {
	if userID == 0 {
		return actorcontext.Actor{}, domain.ErrInvalidUser
	}
	actor, ok := actorcontext.ActorFromContext(ctx)
	if !ok {
		return actorcontext.Actor{}, authorization.ErrUnauthorized
	}

	action := authorization.ActionTimerStartOwn
	if actor.UserID != userID && actor.Role != actorcontext.SystemRole {
		action = authorization.ActionTimerEditAny
	}
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectTimer, action); err != nil {
		return actorcontext.Actor{}, err
	}
	return actor, nil
}

func (s *ServiceImpl) publishAudit(ctx context.Context, actor actorcontext.Actor, ticketID snowflake.ID, action, result string, meta map[string]any) {
	actorType := auditdomain.ActorTypeUser
	if actor.Role == actorcontext.SystemRole {
		actorType = auditdomain.ActorTypeSystem
	}
	s.audit.Publish(ctx, auditdomain.Event{
		TicketID:  ticketID,
		ActorID:   actor.UserID,
		ActorName: actor.Name,
		ActorType: actorType,
		Action:    action,
		Result:    result,
		Metadata:  meta,
	})
}

func mergeMeta(base, extra map[string]any) map[string]any {
	for key, value := range extra {
		base[key] = value
	}
	return base
}
