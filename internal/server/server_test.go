package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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
	"github.com/fixtrack/fixtrack/internal/config"
	"github.com/fixtrack/fixtrack/internal/identity"
	"github.com/fixtrack/fixtrack/internal/observability"
	ticketdomain "github.com/fixtrack/fixtrack/internal/ticket/domain"
	ticketrepository "github.com/fixtrack/fixtrack/internal/ticket/repository"
	timeentryrepository "github.com/fixtrack/fixtrack/internal/timeentry/repository"
	timeentryservice "github.com/fixtrack/fixtrack/internal/timeentry/service"
	timerdomain "github.com/fixtrack/fixtrack/internal/timer/domain"
	timerrepository "github.com/fixtrack/fixtrack/internal/timer/repository"
	timerservice "github.com/fixtrack/fixtrack/internal/timer/service"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSecret = "server-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type serverHarness struct {
	db     *gorm.DB
	clock  *clock.FakeClock
	genID  *snowflake.Node
	server *Server
}

func newServerHarness(t *testing.T) *serverHarness {
	t.Helper()

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&ticketdomain.RepairTicket{},
		&timerdomain.ActiveTimer{},
		&timerdomain.TimeEntry{},
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
	t.Cleanup(auditSvc.Flush)

	fake := clock.NewFakeClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	tickets := ticketrepository.Provide()

	timerSvc := timerservice.NewService(timerservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   genID,
		Clock:   fake,
		Repo:    timerrepository.Provide(),
		Tickets: tickets,
		Audit:   auditSvc,
		Authz:   authzSvc,
	})

	timeEntrySvc := timeentryservice.NewService(timeentryservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		Repo:    timeentryrepository.Provide(),
		Tickets: tickets,
		Audit:   auditSvc,
		Authz:   authzSvc,
	})

	srv := NewServer(ServerParams{
		Gin:          NewEngine(observability.Config{Environment: "test"}),
		Cfg:          config.Config{AuthJWTSecret: testSecret},
		DB:           db,
		GenID:        genID,
		AuthzSvc:     authzSvc,
		AuditSvc:     auditSvc,
		TimerSvc:     timerSvc,
		TimeEntrySvc: timeEntrySvc,
		TicketRepo:   tickets,
	})

	return &serverHarness{db: db, clock: fake, genID: genID, server: srv}
}

func (h *serverHarness) createTicket(t *testing.T, subject string) snowflake.ID {
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

func (h *serverHarness) token(t *testing.T, userID snowflake.ID, role string) string {
	t.Helper()
	token, err := identity.SignToken(testSecret, actorcontext.Actor{
		UserID: userID,
		Name:   "test " + role,
		Role:   role,
	}, time.Hour)
	require.NoError(t, err)
	return token
}

func (h *serverHarness) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.server.Engine().ServeHTTP(rec, req)

	decoded := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestTimerLifecycleOverHTTP(t *testing.T) {
	h := newServerHarness(t)
	ticketID := h.createTicket(t, "screen replacement")
	tech := h.token(t, h.genID.Generate(), authorization.RoleTechnician)

	rec, body := h.do(t, http.MethodPost, "/api/tickets/"+ticketID.String()+"/timer/start", tech, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	h.clock.Advance(35 * time.Minute)

	rec, body = h.do(t, http.MethodPost, "/api/tickets/"+ticketID.String()+"/timer/stop", tech,
		map[string]string{"notes": "replaced panel"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 35, body["duration_minutes"])

	rec, body = h.do(t, http.MethodGet, "/api/tickets/"+ticketID.String()+"/timer", tech, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, body["timer"])
}

func TestStartConflictReturns409(t *testing.T) {
	h := newServerHarness(t)
	first := h.createTicket(t, "ticket one")
	second := h.createTicket(t, "ticket two")
	tech := h.token(t, h.genID.Generate(), authorization.RoleTechnician)

	rec, _ := h.do(t, http.MethodPost, "/api/tickets/"+first.String()+"/timer/start", tech, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := h.do(t, http.MethodPost, "/api/tickets/"+second.String()+"/timer/start", tech, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(timerdomain.CodeConflict), body["code"])
	assert.Equal(t, first.String(), body["conflict_ticket_id"])
}

func TestMissingTokenReturns401(t *testing.T) {
	h := newServerHarness(t)
	ticketID := h.createTicket(t, "locked out")

	rec, _ := h.do(t, http.MethodPost, "/api/tickets/"+ticketID.String()+"/timer/start", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutesForbiddenForTechnician(t *testing.T) {
	h := newServerHarness(t)
	ticketID := h.createTicket(t, "no override for you")
	tech := h.token(t, h.genID.Generate(), authorization.RoleTechnician)

	rec, _ := h.do(t, http.MethodPost, "/api/admin/tickets/"+ticketID.String()+"/timer/reset", tech, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInvalidTicketIDReturns400(t *testing.T) {
	h := newServerHarness(t)
	tech := h.token(t, h.genID.Generate(), authorization.RoleTechnician)

	rec, _ := h.do(t, http.MethodPost, "/api/tickets/not-an-id/timer/start", tech, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminStartRequiresOwnerID(t *testing.T) {
	h := newServerHarness(t)
	ticketID := h.createTicket(t, "front desk start")
	admin := h.token(t, h.genID.Generate(), authorization.RoleAdmin)

	rec, _ := h.do(t, http.MethodPost, "/api/admin/tickets/"+ticketID.String()+"/timer/start", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTimeEntriesOverHTTP(t *testing.T) {
	h := newServerHarness(t)
	ticketID := h.createTicket(t, "billable work")
	userID := h.genID.Generate()
	tech := h.token(t, userID, authorization.RoleTechnician)

	rec, _ := h.do(t, http.MethodPost, "/api/tickets/"+ticketID.String()+"/timer/start", tech, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	h.clock.Advance(20 * time.Minute)
	rec, _ = h.do(t, http.MethodPost, "/api/tickets/"+ticketID.String()+"/timer/stop", tech, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := h.do(t, http.MethodGet, "/api/tickets/"+ticketID.String()+"/time-entries", tech, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries, ok := body["entries"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 1)
}

func TestMyTimerOverHTTP(t *testing.T) {
	h := newServerHarness(t)
	ticketID := h.createTicket(t, "in progress")
	userID := h.genID.Generate()
	tech := h.token(t, userID, authorization.RoleTechnician)

	rec, body := h.do(t, http.MethodGet, "/api/timers/me", tech, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, body["timer"])

	rec, _ = h.do(t, http.MethodPost, "/api/tickets/"+ticketID.String()+"/timer/start", tech, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = h.do(t, http.MethodGet, "/api/timers/me", tech, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, body["timer"])
	assert.Equal(t, string(timerdomain.StateRunning), body["state"])
}
