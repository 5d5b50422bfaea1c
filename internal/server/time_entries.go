package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	timeentrydomain "github.com/fixtrack/fixtrack/internal/timeentry/domain"
	"github.com/fixtrack/fixtrack/pkg/db/pagination"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListTicketTimeEntries(c *gin.Context) {
	ticketID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	s.listTimeEntries(c, ticketID)
}

func (s *Server) ListTimeEntries(c *gin.Context) {
	var ticketID snowflake.ID
	if raw := strings.TrimSpace(c.Query("ticket_id")); raw != "" {
		parsed, err := snowflake.ParseString(raw)
		if err != nil || parsed == 0 {
			AbortWithError(c, newValidationError("ticket_id", "invalid_ticket_id", "invalid ticket id"))
			return
		}
		ticketID = parsed
	}
	s.listTimeEntries(c, ticketID)
}

func (s *Server) listTimeEntries(c *gin.Context, ticketID snowflake.ID) {
	var userID snowflake.ID
	if raw := strings.TrimSpace(c.Query("user_id")); raw != "" {
		parsed, err := snowflake.ParseString(raw)
		if err != nil || parsed == 0 {
			AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user id"))
			return
		}
		userID = parsed
	}

	resp, err := s.timeEntrySvc.List(c.Request.Context(), timeentrydomain.ListRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(c.Query("page_token")),
			PageSize:  parsePageSize(c.Query("page_size")),
		},
		TicketID: ticketID,
		UserID:   userID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetTimeEntry(c *gin.Context) {
	entryID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	entry, err := s.timeEntrySvc.Get(c.Request.Context(), entryID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if entry == nil {
		AbortWithError(c, ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

func (s *Server) DeleteTimeEntry(c *gin.Context) {
	entryID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	result, err := s.timeEntrySvc.Delete(c.Request.Context(), timeentrydomain.DeleteRequest{
		EntryID: entryID,
		Reason:  strings.TrimSpace(c.Query("reason")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(timerStatus(result.Result), result)
}

func parsePageSize(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	size, err := strconv.Atoi(raw)
	if err != nil || size < 0 {
		return 0
	}
	return size
}
