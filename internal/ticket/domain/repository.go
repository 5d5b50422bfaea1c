package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository updates the denormalized timer fields on the ticket row.
type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*RepairTicket, error)
	// SetTimerStarted mirrors a freshly started timer onto the aggregate.
	SetTimerStarted(ctx context.Context, db *gorm.DB, id snowflake.ID, startedAt time.Time) error
	// ClearTimerState drops the mirror fields after stop or clear.
	ClearTimerState(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	// RecomputeTotalTime re-sums time entries into total_time_minutes and
	// returns the new total.
	RecomputeTotalTime(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
	// ResetTimerStartedAt nulls timer_started_at directly, returning the
	// previous value for the audit trail. Emergency use only.
	ResetTimerStartedAt(ctx context.Context, db *gorm.DB, id snowflake.ID) (*time.Time, error)
}
