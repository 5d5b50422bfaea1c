package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fixtrack/fixtrack/internal/actorcontext"
	auditdomain "github.com/fixtrack/fixtrack/internal/audit/domain"
	auditrepository "github.com/fixtrack/fixtrack/internal/audit/repository"
	auditservice "github.com/fixtrack/fixtrack/internal/audit/service"
	"github.com/fixtrack/fixtrack/internal/authorization"
	"github.com/fixtrack/fixtrack/internal/clock"
	ticketdomain "github.com/fixtrack/fixtrack/internal/ticket/domain"
	ticketrepository "github.com/fixtrack/fixtrack/internal/ticket/repository"
	"github.com/fixtrack/fixtrack/internal/timer/domain"
	timerrepository "github.com/fixtrack/fixtrack/internal/timer/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	db       *gorm.DB
	clock    *clock.FakeClock
	genID    *snowflake.Node
	svc      domain.Service
	auditSvc auditdomain.Service
	tickets  ticketdomain.Repository
	repo     domain.Repository
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&ticketdomain.RepairTicket{},
		&domain.ActiveTimer{},
		&domain.TimeEntry{},
		&auditdomain.AuditEvent{},
	))

	genID, err := snowflake.NewNode(1)
	require.NoError(t, err)

	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	authzSvc := authorization.NewService(authorization.Params{
		DB:       db,
		Log:      zap.NewNop(),
		Enforcer: enforcer,
	})

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: genID,
		Repo:  auditrepository.Provide(),
	})

	fake := clock.NewFakeClock(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
	repo := timerrepository.Provide()
	tickets := ticketrepository.Provide()

	svc := NewService(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   genID,
		Clock:   fake,
		Repo:    repo,
		Tickets: tickets,
		Audit:   auditSvc,
		Authz:   authzSvc,
	})

	h := &harness{
		db:       db,
		clock:    fake,
		genID:    genID,
		svc:      svc,
		auditSvc: auditSvc,
		tickets:  tickets,
		repo:     repo,
	}
	t.Cleanup(auditSvc.Flush)
	return h
}

func (h *harness) createTicket(t *testing.T, subject string) snowflake.ID {
	t.Helper()
	ticket := &ticketdomain.RepairTicket{
		ID:        h.genID.Generate(),
		Subject:   subject,
		Status:    "open",
		CreatedAt: h.clock.Now(),
		UpdatedAt: h.clock.Now(),
	}
	require.NoError(t, h.db.Create(ticket).Error)
	return ticket.ID
}

func (h *harness) ticket(t *testing.T, id snowflake.ID) *ticketdomain.RepairTicket {
	t.Helper()
	ticket, err := h.tickets.FindByID(context.Background(), h.db, id)
	require.NoError(t, err)
	require.NotNil(t, ticket)
	return ticket
}

func techCtx(userID snowflake.ID) context.Context {
	return actorcontext.WithActor(context.Background(), actorcontext.Actor{
		UserID: userID,
		Name:   "tech",
		Role:   authorization.RoleTechnician,
	})
}

func adminCtx(userID snowflake.ID) context.Context {
	return actorcontext.WithActor(context.Background(), actorcontext.Actor{
		UserID: userID,
		Name:   "admin",
		Role:   authorization.RoleAdmin,
	})
}

func systemCtx() context.Context {
	return actorcontext.WithActor(context.Background(), actorcontext.SystemActor())
}

func TestStartStopBanksRoundedMinutes(t *testing.T) {
	h := newHarness(t)
	ticketID := h.createTicket(t, "cracked screen")
	userID := h.genID.Generate()
	ctx := techCtx(userID)

	started, err := h.svc.Start(ctx, domain.StartRequest{TicketID: ticketID, UserID: userID})
	require.NoError(t, err)
	require.True(t, started.Success)
	require.Equal(t, domain.StateRunning, started.Timer.State())

	ticket := h.ticket(t, ticketID)
	require.True(t, ticket.TimerIsRunning)
	require.NotNil(t, ticket.TimerStartedAt)

	h.clock.Advance(35 * time.Minute)

	stopped, err := h.svc.Stop(ctx, domain.StopRequest{TicketID: ticketID, UserID: userID, Notes: "replaced panel"})
	require.NoError(t, err)
	require.True(t, stopped.Success)
	require.EqualValues(t, 35, stopped.DurationMinutes)
	require.NotNil(t, stopped.Entry)
	require.Equal(t, started.Timer.LifetimeStartedAt, stopped.Entry.StartTime)
	require.Equal(t, "replaced panel", stopped.Entry.Description)

	ticket = h.ticket(t, ticketID)
	require.False(t, ticket.TimerIsRunning)
	require.Nil(t, ticket.TimerStartedAt)
	require.EqualValues(t, 35, ticket.TotalTimeMinutes)

	timer, err := h.svc.GetForTicket(ctx, ticketID)
	require.NoError(t, err)
	require.Nil(t, timer)
}

func TestStartConflictNamesBlockingTicket(t *testing.T) {
	h := newHarness(t)
	first := h.createTicket(t, "battery swap")
	second := h.createTicket(t, "water damage")
	userID := h.genID.Generate()
	ctx := techCtx(userID)

	_, err := h.svc.Start(ctx, domain.StartRequest{TicketID: first, UserID: userID})
	require.NoError(t, err)

	result, err := h.svc.Start(ctx, domain.StartRequest{TicketID: second, UserID: userID})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, domain.CodeConflict, result.Code)
	require.Equal(t, first, result.ConflictTicketID)
}

func TestStartConflictOnBusyTicket(t *testing.T) {
	h := newHarness(t)
	ticketID := h.createTicket(t, "no power")
	owner := h.genID.Generate()
	other := h.genID.Generate()

	_, err := h.svc.Start(techCtx(owner), domain.StartRequest{TicketID: ticketID, UserID: owner})
	require.NoError(t, err)

	result, err := h.svc.Start(techCtx(other), domain.StartRequest{TicketID: ticketID, UserID: other})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, domain.CodeConflict, result.Code)
	require.Equal(t, ticketID, result.ConflictTicketID)
}

func TestStartUnknownTicket(t *testing.T) {
	h := newHarness(t)
	userID := h.genID.Generate()

	result, err := h.svc.Start(techCtx(userID), domain.StartRequest{
		TicketID: h.genID.Generate(),
		UserID:   userID,
	})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, domain.CodeNotFound, result.Code)
}

func TestPauseResumeBanksOnlyRunningIntervals(t *testing.T) {
	h := newHarness(t)
	ticketID := h.createTicket(t, "slow laptop")
	userID := h.genID.Generate()
	ctx := techCtx(userID)

	_, err := h.svc.Start(ctx, domain.StartRequest{TicketID: ticketID, UserID: userID})
	require.NoError(t, err)

	h.clock.Advance(10 * time.Minute)
	paused, err := h.svc.Pause(ctx, domain.PauseRequest{TicketID: ticketID, UserID: userID})
	require.NoError(t, err)
	require.True(t, paused.Success)
	require.Equal(t, domain.StatePaused, paused.Timer.State())
	require.EqualValues(t, 600, paused.Timer.ElapsedSeconds)

	// Paused time accrues nothing.
	h.clock.Advance(30 * time.Minute)

	resumed, err := h.svc.Resume(ctx, domain.ResumeRequest{TicketID: ticketID, UserID: userID})
	require.NoError(t, err)
	require.True(t, resumed.Success)
	require.Equal(t, domain.StateRunning, resumed.Timer.State())

	h.clock.Advance(5 * time.Minute)
	stopped, err := h.svc.Stop(ctx, domain.StopRequest{TicketID: ticketID, UserID: userID})
	require.NoError(t, err)
	require.True(t, stopped.Success)
	require.EqualValues(t, 15, stopped.DurationMinutes)
}

func TestPausePausedTimerFails(t *testing.T) {
	h := newHarness(t)
	ticketID := h.createTicket(t, "dim display")
	userID := h.genID.Generate()
	ctx := techCtx(userID)

	_, err := h.svc.Start(ctx, domain.StartRequest{TicketID: ticketID, UserID: userID})
	require.NoError(t, err)
	_, err = h.svc.Pause(ctx, domain.PauseRequest{TicketID: ticketID, UserID: userID})
	require.NoError(t, err)

	result, err := h.svc.Pause(ctx, domain.PauseRequest{TicketID: ticketID, UserID: userID})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, domain.CodeInvalidState, result.Code)
}

func TestStopWithoutTimer(t *testing.T) {
	h := newHarness(t)
	ticketID := h.createTicket(t, "quote only")
	userID := h.genID.Generate()

	result, err := h.svc.Stop(techCtx(userID), domain.StopRequest{TicketID: ticketID, UserID: userID})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, domain.CodeNotFound, result.Code)
}

func TestClearDiscardsWithoutBanking(t *testing.T) {
	h := newHarness(t)
	ticketID := h.createTicket(t, "forgot to stop")
	userID := h.genID.Generate()
	ctx := techCtx(userID)

	_, err := h.svc.Start(ctx, domain.StartRequest{TicketID: ticketID, UserID: userID})
	require.NoError(t, err)
	h.clock.Advance(2 * time.Hour)

	cleared, err := h.svc.Clear(ctx, domain.ClearRequest{TicketID: ticketID})
	require.NoError(t, err)
	require.True(t, cleared.Success)
	require.True(t, cleared.Cleared)

	var entryCount int64
	require.NoError(t, h.db.Model(&domain.TimeEntry{}).Where("ticket_id = ?", ticketID).Count(&entryCount).Error)
	require.Zero(t, entryCount)

	ticket := h.ticket(t, ticketID)
	require.False(t, ticket.TimerIsRunning)
	require.Zero(t, ticket.TotalTimeMinutes)

	// Clearing again succeeds but reports there was nothing left.
	again, err := h.svc.Clear(ctx, domain.ClearRequest{TicketID: ticketID})
	require.NoError(t, err)
	require.True(t, again.Success)
	require.False(t, again.Cleared)
	require.Equal(t, domain.CodeNothingToClear, again.Code)
}

func TestClearHealsStuckTicketMirror(t *testing.T) {
	h := newHarness(t)
	ticketID := h.createTicket(t, "ghost timer")
	now := h.clock.Now()
	require.NoError(t, h.db.Exec(
		`UPDATE repair_tickets SET timer_is_running = ?, timer_started_at = ? WHERE id = ?`,
		true, now, ticketID,
	).Error)

	cleared, err := h.svc.Clear(techCtx(h.genID.Generate()), domain.ClearRequest{TicketID: ticketID})
	require.NoError(t, err)
	require.True(t, cleared.Success)
	require.False(t, cleared.Cleared)

	ticket := h.ticket(t, ticketID)
	require.False(t, ticket.TimerIsRunning)
	require.Nil(t, ticket.TimerStartedAt)
}

func TestResetReturnsPreviousStart(t *testing.T) {
	h := newHarness(t)
	ticketID := h.createTicket(t, "stuck start field")
	userID := h.genID.Generate()
	admin := h.genID.Generate()

	_, err := h.svc.Start(techCtx(userID), domain.StartRequest{TicketID: ticketID, UserID: userID})
	require.NoError(t, err)

	result, err := h.svc.Reset(adminCtx(admin), domain.ResetRequest{TicketID: ticketID})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotNil(t, result.PreviousStartedAt)

	ticket := h.ticket(t, ticketID)
	require.Nil(t, ticket.TimerStartedAt)
}

func TestResetForbiddenForTechnician(t *testing.T) {
	h := newHarness(t)
	ticketID := h.createTicket(t, "no shortcuts")

	_, err := h.svc.Reset(techCtx(h.genID.Generate()), domain.ResetRequest{TicketID: ticketID})
	require.ErrorIs(t, err, authorization.ErrForbidden)
}

func TestAutoPauseFreezesAccrual(t *testing.T) {
	h := newHarness(t)
	ticketID := h.createTicket(t, "long diagnostic")
	userID := h.genID.Generate()

	_, err := h.svc.Start(techCtx(userID), domain.StartRequest{TicketID: ticketID, UserID: userID})
	require.NoError(t, err)

	h.clock.Advance(4 * time.Hour)
	result, err := h.svc.AutoPause(systemCtx(), ticketID)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, domain.StateAutoPaused, result.Timer.State())
	require.EqualValues(t, 4*60*60, result.Timer.ElapsedSeconds)

	// Worked time is frozen while auto-paused.
	h.clock.Advance(3 * time.Hour)
	timer, err := h.svc.GetForTicket(techCtx(userID), ticketID)
	require.NoError(t, err)
	require.EqualValues(t, 4*60*60, domain.ElapsedSecondsAt(timer, h.clock.Now()))
}

func TestResumeAutoPausedNeedsAdmin(t *testing.T) {
	h := newHarness(t)
	ticketID := h.createTicket(t, "abandoned overnight")
	userID := h.genID.Generate()
	ctx := techCtx(userID)

	_, err := h.svc.Start(ctx, domain.StartRequest{TicketID: ticketID, UserID: userID})
	require.NoError(t, err)
	h.clock.Advance(5 * time.Hour)
	_, err = h.svc.AutoPause(systemCtx(), ticketID)
	require.NoError(t, err)

	result, err := h.svc.Resume(ctx, domain.ResumeRequest{TicketID: ticketID, UserID: userID})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, domain.CodeInvalidState, result.Code)
}

func TestResumeRunningTimerFails(t *testing.T) {
	h := newHarness(t)
	ticketID := h.createTicket(t, "already going")
	userID := h.genID.Generate()
	ctx := techCtx(userID)

	_, err := h.svc.Start(ctx, domain.StartRequest{TicketID: ticketID, UserID: userID})
	require.NoError(t, err)

	result, err := h.svc.Resume(ctx, domain.ResumeRequest{TicketID: ticketID, UserID: userID})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, domain.CodeInvalidState, result.Code)
}

func TestTechnicianCannotDriveOthersTimer(t *testing.T) {
	h := newHarness(t)
	ticketID := h.createTicket(t, "territorial")
	owner := h.genID.Generate()
	intruder := h.genID.Generate()

	_, err := h.svc.Start(techCtx(owner), domain.StartRequest{TicketID: ticketID, UserID: owner})
	require.NoError(t, err)

	_, err = h.svc.Pause(techCtx(intruder), domain.PauseRequest{TicketID: ticketID, UserID: owner})
	require.ErrorIs(t, err, authorization.ErrForbidden)
}

func TestMissingActorIsUnauthorized(t *testing.T) {
	h := newHarness(t)
	ticketID := h.createTicket(t, "anonymous")

	_, err := h.svc.Start(context.Background(), domain.StartRequest{
		TicketID: ticketID,
		UserID:   h.genID.Generate(),
	})
	require.ErrorIs(t, err, authorization.ErrUnauthorized)
}

func TestDurationRoundsHalfUp(t *testing.T) {
	h := newHarness(t)
	ticketID := h.createTicket(t, "quick look")
	userID := h.genID.Generate()
	ctx := techCtx(userID)

	_, err := h.svc.Start(ctx, domain.StartRequest{TicketID: ticketID, UserID: userID})
	require.NoError(t, err)
	h.clock.Advance(90 * time.Second)

	stopped, err := h.svc.Stop(ctx, domain.StopRequest{TicketID: ticketID, UserID: userID})
	require.NoError(t, err)
	require.EqualValues(t, 2, stopped.DurationMinutes)
}
