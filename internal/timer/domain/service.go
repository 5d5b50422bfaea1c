package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Code classifies the outcome of a coordinator operation. Business
// conditions (conflicts, missing timers, invalid transitions) come back
// as codes on a Result, never as errors; only infrastructure faults
// propagate through the error return.
type Code string

const (
	CodeOK             Code = "ok"
	CodeConflict       Code = "conflict"
	CodeNotFound       Code = "not_found"
	CodeInvalidState   Code = "invalid_state"
	CodeNothingToClear Code = "nothing_to_clear"
)

type Result struct {
	Success bool   `json:"success"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func OK(message string) Result {
	return Result{Success: true, Code: CodeOK, Message: message}
}

func Failed(code Code, message string) Result {
	return Result{Success: false, Code: code, Message: message}
}

// TimerResult is returned by transitions that leave a timer in place.
// ConflictTicketID names the ticket blocking a start so callers can
// present "you already have a timer running on ticket X".
type TimerResult struct {
	Result
	Timer            *ActiveTimer `json:"timer,omitempty"`
	ConflictTicketID snowflake.ID `json:"conflict_ticket_id,omitempty"`
}

type StopResult struct {
	Result
	Entry           *TimeEntry `json:"entry,omitempty"`
	DurationMinutes int64      `json:"duration_minutes"`
}

type ClearResult struct {
	Result
	Cleared bool `json:"cleared"`
}

type ResetResult struct {
	Result
	PreviousStartedAt *time.Time `json:"previous_started_at,omitempty"`
}

type StartRequest struct {
	TicketID snowflake.ID
	UserID   snowflake.ID
}

type PauseRequest struct {
	TicketID snowflake.ID
	UserID   snowflake.ID
}

type ResumeRequest struct {
	TicketID snowflake.ID
	UserID   snowflake.ID
}

type StopRequest struct {
	TicketID snowflake.ID
	UserID   snowflake.ID
	Notes    string
}

type ClearRequest struct {
	TicketID snowflake.ID
	Reason   string
}

type ResetRequest struct {
	TicketID snowflake.ID
}

// AdminRequest targets another user's timer. The acting administrator is
// taken from the request context; the timer keeps belonging to the owner.
type AdminRequest struct {
	TicketID snowflake.ID
	OwnerID  snowflake.ID
	Notes    string
}

// Service is the timer coordinator: the only writer of ActiveTimer rows
// and the only producer of TimeEntry rows.
type Service interface {
	Start(ctx context.Context, req StartRequest) (TimerResult, error)
	Pause(ctx context.Context, req PauseRequest) (TimerResult, error)
	Resume(ctx context.Context, req ResumeRequest) (TimerResult, error)
	Stop(ctx context.Context, req StopRequest) (StopResult, error)
	Clear(ctx context.Context, req ClearRequest) (ClearResult, error)
	Reset(ctx context.Context, req ResetRequest) (ResetResult, error)

	GetForTicket(ctx context.Context, ticketID snowflake.ID) (*ActiveTimer, error)
	GetForUser(ctx context.Context, userID snowflake.ID) (*ActiveTimer, error)
	ListActive(ctx context.Context) ([]ActiveTimer, error)

	// AutoPause demotes a long-running timer on behalf of the sweep.
	AutoPause(ctx context.Context, ticketID snowflake.ID) (TimerResult, error)

	AdminStart(ctx context.Context, req AdminRequest) (TimerResult, error)
	AdminPause(ctx context.Context, req AdminRequest) (TimerResult, error)
	AdminResume(ctx context.Context, req AdminRequest) (TimerResult, error)
	AdminStop(ctx context.Context, req AdminRequest) (StopResult, error)
}

var (
	ErrInvalidTicket = errors.New("invalid_ticket")
	ErrInvalidUser   = errors.New("invalid_user")
)
