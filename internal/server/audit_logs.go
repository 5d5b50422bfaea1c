package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/fixtrack/fixtrack/internal/actorcontext"
	auditdomain "github.com/fixtrack/fixtrack/internal/audit/domain"
	"github.com/fixtrack/fixtrack/internal/authorization"
	"github.com/fixtrack/fixtrack/pkg/db/pagination"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListAuditLogs(c *gin.Context) {
	actor, ok := actorcontext.ActorFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, authorization.ErrUnauthorized)
		return
	}
	if err := s.authzSvc.Authorize(c.Request.Context(), actor, authorization.ObjectAuditLog, authorization.ActionAuditLogView); err != nil {
		AbortWithError(c, err)
		return
	}

	req := auditdomain.ListRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(c.Query("page_token")),
			PageSize:  parsePageSize(c.Query("page_size")),
		},
		TicketID:  strings.TrimSpace(c.Query("ticket_id")),
		Action:    strings.TrimSpace(c.Query("action")),
		ActorType: strings.TrimSpace(c.Query("actor_type")),
	}

	startAt, ok := parseTimeQuery(c, "start_at")
	if !ok {
		return
	}
	endAt, ok := parseTimeQuery(c, "end_at")
	if !ok {
		return
	}
	req.StartAt = startAt
	req.EndAt = endAt

	resp, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func parseTimeQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		AbortWithError(c, newValidationError(name, "invalid_"+name, "invalid timestamp"))
		return nil, false
	}
	return &parsed, true
}
