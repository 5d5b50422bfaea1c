package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fixtrack/fixtrack/internal/actorcontext"
	auditdomain "github.com/fixtrack/fixtrack/internal/audit/domain"
	"github.com/fixtrack/fixtrack/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const queueDepth = 256

type Params struct {
	fx.In

	LC    fx.Lifecycle `optional:"true"`
	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
}

// Service persists audit events off the request path: Publish enqueues,
// a single writer goroutine inserts. Insert failures are logged and
// dropped; the state transition they describe has already committed.
type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository

	queue  chan *auditdomain.AuditEvent
	wg     sync.WaitGroup
	closed atomic.Bool
	done   chan struct{}
}

func NewService(p Params) auditdomain.Service {
	s := &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
		queue: make(chan *auditdomain.AuditEvent, queueDepth),
		done:  make(chan struct{}),
	}
	go s.run()

	if p.LC != nil {
		p.LC.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				s.close()
				return nil
			},
		})
	}
	return s
}

func (s *Service) run() {
	for event := range s.queue {
		s.persist(event)
		s.wg.Done()
	}
	close(s.done)
}

func (s *Service) Publish(ctx context.Context, event auditdomain.Event) {
	row := s.buildRow(ctx, event)
	if row == nil {
		return
	}

	s.wg.Add(1)
	if s.closed.Load() {
		s.persist(row)
		s.wg.Done()
		return
	}
	select {
	case s.queue <- row:
	default:
		// Queue saturated; take the hit inline rather than dropping.
		s.persist(row)
		s.wg.Done()
	}
}

func (s *Service) Flush() {
	s.wg.Wait()
}

func (s *Service) close() {
	if s.closed.Swap(true) {
		return
	}
	s.wg.Wait()
	close(s.queue)
	<-s.done
}

func (s *Service) persist(event *auditdomain.AuditEvent) {
	if err := s.repo.Insert(context.Background(), s.db, event); err != nil {
		s.log.Warn("failed to write audit event",
			zap.String("action", event.Action),
			zap.String("ticket_id", event.TicketID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) buildRow(ctx context.Context, event auditdomain.Event) *auditdomain.AuditEvent {
	action := strings.TrimSpace(event.Action)
	if action == "" {
		return nil
	}

	result := event.Result
	if result == "" {
		result = auditdomain.ResultSuccess
	}

	actorType := event.ActorType
	if actorType == "" {
		actorType = auditdomain.ActorTypeSystem
	}

	payload := map[string]any{}
	for key, value := range event.Metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}
	if requestID := actorcontext.RequestIDFromContext(ctx); requestID != "" {
		payload["request_id"] = requestID
	}

	row := &auditdomain.AuditEvent{
		ID:        s.genID.Generate(),
		TicketID:  event.TicketID,
		ActorType: string(actorType),
		ActorName: strings.TrimSpace(event.ActorName),
		Action:    action,
		Result:    result,
		Metadata:  datatypes.JSONMap(payload),
		CreatedAt: time.Now().UTC(),
	}
	if event.ActorID != 0 {
		actorID := event.ActorID.String()
		row.ActorID = &actorID
	}
	if ip := actorcontext.IPAddressFromContext(ctx); ip != "" {
		row.IPAddress = &ip
	}
	if agent := actorcontext.UserAgentFromContext(ctx); agent != "" {
		row.UserAgent = &agent
	}
	return row
}

func (s *Service) List(ctx context.Context, req auditdomain.ListRequest) (auditdomain.ListResponse, error) {
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListResponse{}, auditdomain.ErrInvalidTimeRange
	}

	var ticketID snowflake.ID
	if strings.TrimSpace(req.TicketID) != "" {
		parsed, err := auditdomain.ParseTicketID(strings.TrimSpace(req.TicketID))
		if err != nil {
			return auditdomain.ListResponse{}, err
		}
		ticketID = parsed
	}

	var cursor *auditdomain.AuditCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return auditdomain.ListResponse{}, auditdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339, decoded.CreatedAt)
		if err != nil {
			return auditdomain.ListResponse{}, auditdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return auditdomain.ListResponse{}, auditdomain.ErrInvalidPageToken
		}
		cursor = &auditdomain.AuditCursor{ID: id, CreatedAt: createdAt}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		TicketID:  ticketID,
		Action:    req.Action,
		ActorType: req.ActorType,
		StartAt:   req.StartAt,
		EndAt:     req.EndAt,
		Cursor:    cursor,
		Limit:     pageSize,
	})
	if err != nil {
		return auditdomain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *auditdomain.AuditEvent) string {
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

	events := make([]auditdomain.AuditEvent, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		events = append(events, *item)
	}

	resp := auditdomain.ListResponse{AuditEvents: events}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}
