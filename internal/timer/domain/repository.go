package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the storage contract for active timers and the time
// entries that stop banks. Transition methods are single-row conditional
// writes scoped by (ticket, expected state); they return false when the
// row was not in the expected state, which callers surface as NotFound
// rather than double-applying a transition.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, timer *ActiveTimer) error
	FindByTicket(ctx context.Context, db *gorm.DB, ticketID snowflake.ID) (*ActiveTimer, error)
	FindByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*ActiveTimer, error)
	ListActive(ctx context.Context, db *gorm.DB, limit int) ([]*ActiveTimer, error)

	// MarkPaused moves running -> paused, banking the folded interval.
	// startedAt guards against a concurrent resume having rewritten the row.
	MarkPaused(ctx context.Context, db *gorm.DB, ticketID snowflake.ID, startedAt, pausedAt time.Time, bankedSeconds int64) (bool, error)
	// MarkAutoPaused moves running -> auto-paused on behalf of the sweep.
	MarkAutoPaused(ctx context.Context, db *gorm.DB, ticketID snowflake.ID, startedAt, autoPausedAt time.Time, bankedSeconds int64) (bool, error)
	// MarkResumed moves a manually paused timer back to running with a
	// fresh interval start. Auto-paused rows do not match.
	MarkResumed(ctx context.Context, db *gorm.DB, ticketID snowflake.ID, resumedAt time.Time) (bool, error)
	// NormalizeAutoPaused rewrites auto-paused -> paused (pause_time takes
	// the auto_paused_at instant) so the ordinary resume path applies.
	NormalizeAutoPaused(ctx context.Context, db *gorm.DB, ticketID snowflake.ID) (bool, error)

	// DeleteMatching removes the row only if it still matches the given
	// snapshot's state; the loser of two concurrent stops gets false.
	DeleteMatching(ctx context.Context, db *gorm.DB, snapshot *ActiveTimer) (bool, error)
	DeleteByTicket(ctx context.Context, db *gorm.DB, ticketID snowflake.ID) (bool, error)

	InsertEntry(ctx context.Context, db *gorm.DB, entry *TimeEntry) error
}
