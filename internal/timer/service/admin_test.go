package service

import (
	"testing"
	"time"

	"github.com/fixtrack/fixtrack/internal/authorization"
	"github.com/fixtrack/fixtrack/internal/timer/domain"
	"github.com/stretchr/testify/require"
)

func TestAdminStartRequiresOwner(t *testing.T) {
	h := newHarness(t)
	ticketID := h.createTicket(t, "front desk start")

	_, err := h.svc.AdminStart(adminCtx(h.genID.Generate()), domain.AdminRequest{TicketID: ticketID})
	require.ErrorIs(t, err, domain.ErrInvalidUser)
}

func TestAdminStartOnBehalfOfTechnician(t *testing.T) {
	h := newHarness(t)
	ticketID := h.createTicket(t, "walk-in repair")
	owner := h.genID.Generate()
	admin := h.genID.Generate()

	result, err := h.svc.AdminStart(adminCtx(admin), domain.AdminRequest{TicketID: ticketID, OwnerID: owner})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, owner, result.Timer.UserID)

	// The owner drives the timer afterwards as if they started it.
	h.clock.Advance(20 * time.Minute)
	stopped, err := h.svc.Stop(techCtx(owner), domain.StopRequest{TicketID: ticketID, UserID: owner})
	require.NoError(t, err)
	require.True(t, stopped.Success)
	require.EqualValues(t, 20, stopped.DurationMinutes)
}

func TestAdminOpsForbiddenForTechnician(t *testing.T) {
	h := newHarness(t)
	ticketID := h.createTicket(t, "nice try")
	tech := h.genID.Generate()

	_, err := h.svc.AdminStart(techCtx(tech), domain.AdminRequest{TicketID: ticketID, OwnerID: tech})
	require.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = h.svc.AdminStop(techCtx(tech), domain.AdminRequest{TicketID: ticketID})
	require.ErrorIs(t, err, authorization.ErrForbidden)
}

func TestAdminResumeNormalizesAutoPaused(t *testing.T) {
	h := newHarness(t)
	ticketID := h.createTicket(t, "left over lunch")
	owner := h.genID.Generate()
	admin := h.genID.Generate()

	_, err := h.svc.Start(techCtx(owner), domain.StartRequest{TicketID: ticketID, UserID: owner})
	require.NoError(t, err)
	h.clock.Advance(4 * time.Hour)
	_, err = h.svc.AutoPause(systemCtx(), ticketID)
	require.NoError(t, err)

	result, err := h.svc.AdminResume(adminCtx(admin), domain.AdminRequest{TicketID: ticketID})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, domain.StateRunning, result.Timer.State())
	require.Nil(t, result.Timer.AutoPausedAt)

	// Ordinary owner flows work again after the admin resume.
	h.clock.Advance(30 * time.Minute)
	stopped, err := h.svc.Stop(techCtx(owner), domain.StopRequest{TicketID: ticketID, UserID: owner})
	require.NoError(t, err)
	require.True(t, stopped.Success)
	require.EqualValues(t, 4*60+30, stopped.DurationMinutes)
}

func TestAdminStopResolvesOwnerFromTimer(t *testing.T) {
	h := newHarness(t)
	ticketID := h.createTicket(t, "customer waiting")
	owner := h.genID.Generate()
	admin := h.genID.Generate()

	_, err := h.svc.Start(techCtx(owner), domain.StartRequest{TicketID: ticketID, UserID: owner})
	require.NoError(t, err)
	h.clock.Advance(12 * time.Minute)

	stopped, err := h.svc.AdminStop(adminCtx(admin), domain.AdminRequest{TicketID: ticketID, Notes: "closed at pickup"})
	require.NoError(t, err)
	require.True(t, stopped.Success)
	require.EqualValues(t, 12, stopped.DurationMinutes)
	require.Equal(t, owner, stopped.Entry.UserID)
}

func TestAdminPauseWithoutTimer(t *testing.T) {
	h := newHarness(t)
	ticketID := h.createTicket(t, "nothing running")

	result, err := h.svc.AdminPause(adminCtx(h.genID.Generate()), domain.AdminRequest{TicketID: ticketID})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, domain.CodeNotFound, result.Code)
}
