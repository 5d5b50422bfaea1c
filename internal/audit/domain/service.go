package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fixtrack/fixtrack/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListRequest struct {
	pagination.Pagination
	TicketID  string
	Action    string
	ActorType string
	StartAt   *time.Time
	EndAt     *time.Time
}

type ListResponse struct {
	pagination.PageInfo
	AuditEvents []AuditEvent `json:"audit_events"`
}

// Service is the audit sink. Publish is fire-and-forget: the transition
// has already committed by the time an event is published, so a failed
// write is logged and swallowed, never surfaced to the caller.
type Service interface {
	Publish(ctx context.Context, event Event)
	// Flush blocks until every published event has been persisted or
	// dropped. The sweeper and tests call it before shutdown.
	Flush()
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *AuditEvent) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditEvent, error)
}

var (
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidTicket    = errors.New("invalid_ticket")
)

func ParseTicketID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(value)
	if err != nil || id == 0 {
		return 0, ErrInvalidTicket
	}
	return id, nil
}
