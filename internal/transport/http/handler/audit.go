package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"shout-chat/internal/model"
	"shout-chat/internal/transport/http/response"
)

// TurnEventLister reads the audit trail the worker persists.
type TurnEventLister interface {
	ListBySessionID(sessionID string, limit int) ([]model.TurnEvent, error)
}

type AuditHandler struct {
	events TurnEventLister
}

func NewAuditHandler(events TurnEventLister) *AuditHandler {
	return &AuditHandler{events: events}
}

// ListTurnEvents returns a session's audit trail, newest first.
func (h *AuditHandler) ListTurnEvents(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("sessionId"))
	if sessionID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session id")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	events, err := h.events.ListBySessionID(sessionID, limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list turn events failed")
		return
	}

	if events == nil {
		events = []model.TurnEvent{}
	}
	response.OK(c, events)
}
