package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/fixtrack/fixtrack/internal/actorcontext"
	"github.com/fixtrack/fixtrack/internal/authorization"
	"github.com/fixtrack/fixtrack/internal/timer/domain"
)

// Admin operations act on another user's timer. The timer keeps belonging
// to the owner; the acting administrator is recorded in the audit trail.

func (s *ServiceImpl) AdminStart(ctx context.Context, req domain.AdminRequest) (domain.TimerResult, error) {
	if req.OwnerID == 0 {
		return domain.TimerResult{}, domain.ErrInvalidUser
	}
	actor, err := s.authorizeAdmin(ctx)
	if err != nil {
		return domain.TimerResult{}, err
	}
	return s.doStart(ctx, actor, req.TicketID, req.OwnerID, adminMeta(actor))
}

func (s *ServiceImpl) AdminPause(ctx context.Context, req domain.AdminRequest) (domain.TimerResult, error) {
	actor, err := s.authorizeAdmin(ctx)
	if err != nil {
		return domain.TimerResult{}, err
	}
	ownerID, failed, err := s.resolveOwner(ctx, req)
	if err != nil {
		return domain.TimerResult{}, err
	}
	if failed != nil {
		return domain.TimerResult{Result: *failed}, nil
	}
	return s.doPause(ctx, actor, req.TicketID, ownerID, adminMeta(actor))
}

// AdminResume restarts a paused or auto-paused timer. Auto-paused rows are
// first normalized to the manually paused shape so the one resume path
// applies; the owner sees no difference afterwards.
func (s *ServiceImpl) AdminResume(ctx context.Context, req domain.AdminRequest) (domain.TimerResult, error) {
	actor, err := s.authorizeAdmin(ctx)
	if err != nil {
		return domain.TimerResult{}, err
	}
	ownerID, failed, err := s.resolveOwner(ctx, req)
	if err != nil {
		return domain.TimerResult{}, err
	}
	if failed != nil {
		return domain.TimerResult{Result: *failed}, nil
	}
	return s.doResume(ctx, actor, req.TicketID, ownerID, true, adminMeta(actor))
}

func (s *ServiceImpl) AdminStop(ctx context.Context, req domain.AdminRequest) (domain.StopResult, error) {
	actor, err := s.authorizeAdmin(ctx)
	if err != nil {
		return domain.StopResult{}, err
	}
	ownerID, failed, err := s.resolveOwner(ctx, req)
	if err != nil {
		return domain.StopResult{}, err
	}
	if failed != nil {
		return domain.StopResult{Result: *failed}, nil
	}
	return s.doStop(ctx, actor, req.TicketID, ownerID, req.Notes, adminMeta(actor))
}

func (s *ServiceImpl) authorizeAdmin(ctx context.Context) (actorcontext.Actor, error) {
	actor, ok := actorcontext.ActorFromContext(ctx)
	if !ok {
		return actorcontext.Actor{}, authorization.ErrUnauthorized
	}
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectTimer, authorization.ActionTimerEditAny); err != nil {
		return actorcontext.Actor{}, err
	}
	return actor, nil
}

// resolveOwner fills in the owner from the stored timer when the request
// leaves it unset.
func (s *ServiceImpl) resolveOwner(ctx context.Context, req domain.AdminRequest) (snowflake.ID, *domain.Result, error) {
	if req.OwnerID != 0 {
		return req.OwnerID, nil, nil
	}
	if req.TicketID == 0 {
		return 0, nil, domain.ErrInvalidTicket
	}
	timer, err := s.repo.FindByTicket(ctx, s.db, req.TicketID)
	if err != nil {
		return 0, nil, err
	}
	if timer == nil {
		failed := domain.Failed(domain.CodeNotFound, "no active timer for ticket")
		return 0, &failed, nil
	}
	return timer.UserID, nil, nil
}

func adminMeta(actor actorcontext.Actor) map[string]any {
	return map[string]any{
		"admin_id":   actor.UserID.String(),
		"admin_name": actor.Name,
	}
}
