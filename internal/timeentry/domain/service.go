package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	timerdomain "github.com/fixtrack/fixtrack/internal/timer/domain"
	"github.com/fixtrack/fixtrack/pkg/db/pagination"
	"gorm.io/gorm"
)

var (
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTicket    = errors.New("invalid_ticket")
	ErrInvalidEntry     = errors.New("invalid_entry")
)

type EntryCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	TicketID snowflake.ID
	UserID   snowflake.ID
	Cursor   *EntryCursor
	Limit    int
}

type ListRequest struct {
	pagination.Pagination

	TicketID snowflake.ID
	UserID   snowflake.ID
}

type ListResponse struct {
	Entries  []timerdomain.TimeEntry `json:"entries"`
	PageInfo pagination.PageInfo     `json:"page_info"`
}

type DeleteRequest struct {
	EntryID snowflake.ID
	Reason  string
}

type DeleteResult struct {
	timerdomain.Result
	TotalTimeMinutes int64 `json:"total_time_minutes"`
}

// Service reads and prunes the banked time entries. Entries are only ever
// created by the timer coordinator's stop path.
type Service interface {
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Get(ctx context.Context, entryID snowflake.ID) (*timerdomain.TimeEntry, error)
	// Delete removes an entry and re-derives the ticket's total.
	Delete(ctx context.Context, req DeleteRequest) (DeleteResult, error)
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*timerdomain.TimeEntry, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*timerdomain.TimeEntry, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}
