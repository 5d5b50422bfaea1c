package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fixtrack/fixtrack/internal/actorcontext"
	auditdomain "github.com/fixtrack/fixtrack/internal/audit/domain"
	"github.com/fixtrack/fixtrack/internal/authorization"
	ticketdomain "github.com/fixtrack/fixtrack/internal/ticket/domain"
	"github.com/fixtrack/fixtrack/internal/timeentry/domain"
	timerdomain "github.com/fixtrack/fixtrack/internal/timer/domain"
	"github.com/fixtrack/fixtrack/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    domain.Repository
	Tickets ticketdomain.Repository
	Audit   auditdomain.Service
	Authz   authorization.Service
}

type ServiceImpl struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    domain.Repository
	tickets ticketdomain.Repository
	audit   auditdomain.Service
	authz   authorization.Service
}

func NewService(p Params) domain.Service {
	return &ServiceImpl{
		db:      p.DB,
		log:     p.Log.Named("timeentry.service"),
		repo:    p.Repo,
		tickets: p.Tickets,
		audit:   p.Audit,
		authz:   p.Authz,
	}
}

func (s *ServiceImpl) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	actor, ok := actorcontext.ActorFromContext(ctx)
	if !ok {
		return domain.ListResponse{}, authorization.ErrUnauthorized
	}
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectTimeEntry, authorization.ActionTimeEntryView); err != nil {
		return domain.ListResponse{}, err
	}

	var cursor *domain.EntryCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339, decoded.CreatedAt)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		cursor = &domain.EntryCursor{ID: id, CreatedAt: createdAt}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		TicketID: req.TicketID,
		UserID:   req.UserID,
		Cursor:   cursor,
		Limit:    pageSize,
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *timerdomain.TimeEntry) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	entries := make([]timerdomain.TimeEntry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, *item)
	}

	resp := domain.ListResponse{Entries: entries}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *ServiceImpl) Get(ctx context.Context, entryID snowflake.ID) (*timerdomain.TimeEntry, error) {
	if entryID == 0 {
		return nil, domain.ErrInvalidEntry
	}
	actor, ok := actorcontext.ActorFromContext(ctx)
	if !ok {
		return nil, authorization.ErrUnauthorized
	}
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectTimeEntry, authorization.ActionTimeEntryView); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, s.db, entryID)
}

// Delete removes a banked entry and re-derives the ticket total from the
// remaining rows, so the aggregate never drifts from its source.
func (s *ServiceImpl) Delete(ctx context.Context, req domain.DeleteRequest) (domain.DeleteResult, error) {
	if req.EntryID == 0 {
		return domain.DeleteResult{}, domain.ErrInvalidEntry
	}
	actor, ok := actorcontext.ActorFromContext(ctx)
	if !ok {
		return domain.DeleteResult{}, authorization.ErrUnauthorized
	}
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectTimeEntry, authorization.ActionTimeEntryDelete); err != nil {
		return domain.DeleteResult{}, err
	}

	entry, err := s.repo.FindByID(ctx, s.db, req.EntryID)
	if err != nil {
		return domain.DeleteResult{}, err
	}
	if entry == nil {
		return domain.DeleteResult{
			Result: timerdomain.Failed(timerdomain.CodeNotFound, "time entry not found"),
		}, nil
	}

	var totalMinutes int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted, err := s.repo.Delete(ctx, tx, req.EntryID)
		if err != nil {
			return err
		}
		if !deleted {
			return nil
		}
		totalMinutes, err = s.tickets.RecomputeTotalTime(ctx, tx, entry.TicketID)
		return err
	})
	if err != nil {
		return domain.DeleteResult{}, err
	}

	meta := map[string]any{
		"entry_id":         req.EntryID.String(),
		"duration_minutes": entry.DurationMinutes,
	}
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		meta["reason"] = reason
	}
	s.audit.Publish(ctx, auditdomain.Event{
		TicketID:  entry.TicketID,
		ActorID:   actor.UserID,
		ActorName: actor.Name,
		ActorType: auditdomain.ActorTypeUser,
		Action:    "time_entry.delete",
		Result:    auditdomain.ResultSuccess,
		Metadata:  meta,
	})

	return domain.DeleteResult{
		Result:           timerdomain.OK("time entry deleted"),
		TotalTimeMinutes: totalMinutes,
	}, nil
}
