package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
)

// Event is the publish payload handed to the sink by the coordinator and
// the sweeps. Request-scoped fields (ip, user agent, request id) are
// filled in from the context.
type Event struct {
	TicketID  snowflake.ID
	ActorID   snowflake.ID
	ActorName string
	ActorType ActorType
	Action    string
	Result    string
	Metadata  map[string]any
}

// AuditEvent is the append-only stored record. Rows are never updated or
// deleted by the engine.
type AuditEvent struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	TicketID  snowflake.ID      `gorm:"not null;index" json:"ticket_id"`
	ActorType string            `gorm:"not null" json:"actor_type"`
	ActorID   *string           `json:"actor_id,omitempty"`
	ActorName string            `json:"actor_name,omitempty"`
	Action    string            `gorm:"not null;index" json:"action"`
	Result    string            `gorm:"not null" json:"result"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	IPAddress *string           `json:"ip_address,omitempty"`
	UserAgent *string           `json:"user_agent,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	TicketID  snowflake.ID
	Action    string
	ActorType string
	StartAt   *time.Time
	EndAt     *time.Time
	Cursor    *AuditCursor
	Limit     int
}
