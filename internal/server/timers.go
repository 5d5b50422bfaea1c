package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/fixtrack/fixtrack/internal/actorcontext"
	"github.com/fixtrack/fixtrack/internal/authorization"
	timerdomain "github.com/fixtrack/fixtrack/internal/timer/domain"
	"github.com/gin-gonic/gin"
)

type stopTimerRequest struct {
	Notes string `json:"notes"`
}

type clearTimerRequest struct {
	Reason string `json:"reason"`
}

type adminTimerRequest struct {
	OwnerID string `json:"owner_id"`
	Notes   string `json:"notes"`
}

func (s *Server) StartTimer(c *gin.Context) {
	ticketID, actor, ok := s.ticketAndActor(c)
	if !ok {
		return
	}

	result, err := s.timerSvc.Start(c.Request.Context(), timerdomain.StartRequest{
		TicketID: ticketID,
		UserID:   actor.UserID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(timerStatus(result.Result), result)
}

func (s *Server) PauseTimer(c *gin.Context) {
	ticketID, actor, ok := s.ticketAndActor(c)
	if !ok {
		return
	}

	result, err := s.timerSvc.Pause(c.Request.Context(), timerdomain.PauseRequest{
		TicketID: ticketID,
		UserID:   actor.UserID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(timerStatus(result.Result), result)
}

func (s *Server) ResumeTimer(c *gin.Context) {
	ticketID, actor, ok := s.ticketAndActor(c)
	if !ok {
		return
	}

	result, err := s.timerSvc.Resume(c.Request.Context(), timerdomain.ResumeRequest{
		TicketID: ticketID,
		UserID:   actor.UserID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(timerStatus(result.Result), result)
}

func (s *Server) StopTimer(c *gin.Context) {
	ticketID, actor, ok := s.ticketAndActor(c)
	if !ok {
		return
	}

	var req stopTimerRequest
	_ = c.ShouldBindJSON(&req)

	result, err := s.timerSvc.Stop(c.Request.Context(), timerdomain.StopRequest{
		TicketID: ticketID,
		UserID:   actor.UserID,
		Notes:    strings.TrimSpace(req.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(timerStatus(result.Result), result)
}

func (s *Server) ClearTimer(c *gin.Context) {
	ticketID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req clearTimerRequest
	_ = c.ShouldBindJSON(&req)

	result, err := s.timerSvc.Clear(c.Request.Context(), timerdomain.ClearRequest{
		TicketID: ticketID,
		Reason:   strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(timerStatus(result.Result), result)
}

func (s *Server) ResetTimer(c *gin.Context) {
	ticketID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	result, err := s.timerSvc.Reset(c.Request.Context(), timerdomain.ResetRequest{
		TicketID: ticketID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(timerStatus(result.Result), result)
}

func (s *Server) GetTicketTimer(c *gin.Context) {
	ticketID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	timer, err := s.timerSvc.GetForTicket(c.Request.Context(), ticketID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if timer == nil {
		c.JSON(http.StatusOK, gin.H{"timer": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"timer": timer, "state": timer.State()})
}

func (s *Server) GetMyTimer(c *gin.Context) {
	actor, ok := actorcontext.ActorFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, authorization.ErrUnauthorized)
		return
	}

	timer, err := s.timerSvc.GetForUser(c.Request.Context(), actor.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if timer == nil {
		c.JSON(http.StatusOK, gin.H{"timer": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"timer": timer, "state": timer.State()})
}

func (s *Server) ListActiveTimers(c *gin.Context) {
	actor, ok := actorcontext.ActorFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, authorization.ErrUnauthorized)
		return
	}
	if err := s.authzSvc.Authorize(c.Request.Context(), actor, authorization.ObjectTimer, authorization.ActionTimerViewAll); err != nil {
		AbortWithError(c, err)
		return
	}

	timers, err := s.timerSvc.ListActive(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timers": timers})
}

func (s *Server) AdminStartTimer(c *gin.Context) {
	ticketID, req, ok := s.adminRequest(c, true)
	if !ok {
		return
	}

	result, err := s.timerSvc.AdminStart(c.Request.Context(), timerdomain.AdminRequest{
		TicketID: ticketID,
		OwnerID:  req.ownerID,
		Notes:    req.notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(timerStatus(result.Result), result)
}

func (s *Server) AdminPauseTimer(c *gin.Context) {
	ticketID, req, ok := s.adminRequest(c, false)
	if !ok {
		return
	}

	result, err := s.timerSvc.AdminPause(c.Request.Context(), timerdomain.AdminRequest{
		TicketID: ticketID,
		OwnerID:  req.ownerID,
		Notes:    req.notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(timerStatus(result.Result), result)
}

func (s *Server) AdminResumeTimer(c *gin.Context) {
	ticketID, req, ok := s.adminRequest(c, false)
	if !ok {
		return
	}

	result, err := s.timerSvc.AdminResume(c.Request.Context(), timerdomain.AdminRequest{
		TicketID: ticketID,
		OwnerID:  req.ownerID,
		Notes:    req.notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(timerStatus(result.Result), result)
}

func (s *Server) AdminStopTimer(c *gin.Context) {
	ticketID, req, ok := s.adminRequest(c, false)
	if !ok {
		return
	}

	result, err := s.timerSvc.AdminStop(c.Request.Context(), timerdomain.AdminRequest{
		TicketID: ticketID,
		OwnerID:  req.ownerID,
		Notes:    req.notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(timerStatus(result.Result), result)
}

type parsedAdminRequest struct {
	ownerID snowflake.ID
	notes   string
}

func (s *Server) adminRequest(c *gin.Context, ownerRequired bool) (snowflake.ID, parsedAdminRequest, bool) {
	ticketID, ok := parseIDParam(c, "id")
	if !ok {
		return 0, parsedAdminRequest{}, false
	}

	var body adminTimerRequest
	_ = c.ShouldBindJSON(&body)

	parsed := parsedAdminRequest{notes: strings.TrimSpace(body.Notes)}
	if raw := strings.TrimSpace(body.OwnerID); raw != "" {
		ownerID, err := snowflake.ParseString(raw)
		if err != nil || ownerID == 0 {
			AbortWithError(c, newValidationError("owner_id", "invalid_owner_id", "invalid owner id"))
			return 0, parsedAdminRequest{}, false
		}
		parsed.ownerID = ownerID
	} else if ownerRequired {
		AbortWithError(c, newValidationError("owner_id", "invalid_owner_id", "owner id is required"))
		return 0, parsedAdminRequest{}, false
	}

	return ticketID, parsed, true
}

func (s *Server) ticketAndActor(c *gin.Context) (snowflake.ID, actorcontext.Actor, bool) {
	ticketID, ok := parseIDParam(c, "id")
	if !ok {
		return 0, actorcontext.Actor{}, false
	}
	actor, found := actorcontext.ActorFromContext(c.Request.Context())
	if !found {
		AbortWithError(c, authorization.ErrUnauthorized)
		return 0, actorcontext.Actor{}, false
	}
	return ticketID, actor, true
}

func parseIDParam(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError(name, "invalid_"+name, "invalid identifier"))
		return 0, false
	}
	return id, true
}

func timerStatus(result timerdomain.Result) int {
	if result.Success {
		return http.StatusOK
	}
	switch result.Code {
	case timerdomain.CodeConflict, timerdomain.CodeInvalidState:
		return http.StatusConflict
	case timerdomain.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusUnprocessableEntity
	}
}
