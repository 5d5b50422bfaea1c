package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// State is the tagged state of an active timer. The two legacy columns
// (is_paused, auto_paused_at) are a storage detail; everything above the
// repository reasons in terms of this enum.
type State string

const (
	StateRunning    State = "running"
	StatePaused     State = "paused"
	StateAutoPaused State = "auto_paused"
)

// ActiveTimer is the mutable record of an in-progress work session on a
// repair ticket. At most one row exists per ticket and per user; both
// invariants are enforced by unique indexes, not application checks.
type ActiveTimer struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	TicketID snowflake.ID `gorm:"not null;uniqueIndex" json:"ticket_id"`
	UserID   snowflake.ID `gorm:"not null;uniqueIndex" json:"user_id"`

	// StartedAt is the instant the current running interval began. It is
	// rewritten on every resume.
	StartedAt time.Time `gorm:"not null" json:"started_at"`
	// LifetimeStartedAt is the instant the timer was first started. It
	// survives pause/resume cycles and becomes TimeEntry.StartTime on stop.
	LifetimeStartedAt time.Time `gorm:"not null" json:"lifetime_started_at"`

	IsPaused     bool       `gorm:"not null;default:false" json:"is_paused"`
	PauseTime    *time.Time `json:"pause_time,omitempty"`
	AutoPausedAt *time.Time `json:"auto_paused_at,omitempty"`

	// ElapsedSeconds holds the seconds banked from completed running
	// intervals before the current StartedAt.
	ElapsedSeconds int64 `gorm:"not null;default:0" json:"elapsed_seconds"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// State decodes the legacy column pair into the tagged enum. Exactly one
// of the three states holds for any row the repository hands out.
func (t *ActiveTimer) State() State {
	switch {
	case t.IsPaused:
		return StatePaused
	case t.AutoPausedAt != nil:
		return StateAutoPaused
	default:
		return StateRunning
	}
}

// TimeEntry is the immutable record of banked work time, created only
// when a timer is stopped. Clear and discard paths never write one.
type TimeEntry struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	TicketID        snowflake.ID `gorm:"not null;index" json:"ticket_id"`
	UserID          snowflake.ID `gorm:"not null;index" json:"user_id"`
	StartTime       time.Time    `gorm:"not null" json:"start_time"`
	EndTime         time.Time    `gorm:"not null" json:"end_time"`
	DurationMinutes int64        `gorm:"not null" json:"duration_minutes"`
	Description     string       `json:"description,omitempty"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}
