package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// RepairTicket carries only the aggregate fields the timer engine
// mutates. Ticket CRUD itself belongs to the surrounding application.
type RepairTicket struct {
	ID      snowflake.ID `gorm:"primaryKey" json:"id"`
	Subject string       `json:"subject"`
	Status  string       `json:"status"`

	// TimerIsRunning mirrors ActiveTimer existence for cheap list views.
	TimerIsRunning bool       `gorm:"not null;default:false" json:"timer_is_running"`
	TimerStartedAt *time.Time `json:"timer_started_at,omitempty"`
	// TotalTimeMinutes is the sum of all banked time entries, recomputed
	// after every stop and after every entry deletion.
	TotalTimeMinutes int64 `gorm:"not null;default:0" json:"total_time_minutes"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}
