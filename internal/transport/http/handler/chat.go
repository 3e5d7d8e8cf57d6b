package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"shout-chat/internal/app"
	"shout-chat/internal/model"
	"shout-chat/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

type SendMessageRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Content   string `json:"content" binding:"required,max=500"`
}

type EditMessageRequest struct {
	Content string `json:"content" binding:"required,max=500"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// SendMessage runs one turn. A degraded fallback reply is still a 200; a
// client-cancelled generation maps to 499 with no assistant message.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.chatService.SubmitTurn(c.Request.Context(), req.SessionID, req.Content)
	if err != nil {
		h.writeTurnError(c, err, "send message failed")
		return
	}

	response.OK(c, result)
}

func (h *ChatHandler) GetHistory(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("sessionId"))
	if sessionID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session id")
		return
	}

	history, err := h.chatService.GetHistory(c.Request.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get history failed")
		}
		return
	}

	if history == nil {
		history = []model.Message{} // empty session marshals as [], not null
	}
	response.OK(c, history)
}

func (h *ChatHandler) EditMessage(c *gin.Context) {
	messageID := strings.TrimSpace(c.Param("messageId"))
	if messageID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid message id")
		return
	}

	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.chatService.EditAndRegenerate(c.Request.Context(), messageID, req.Content)
	if err != nil {
		h.writeTurnError(c, err, "edit message failed")
		return
	}

	response.OK(c, result)
}

// DeleteMessage is idempotent: deleting an unknown id still succeeds.
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	messageID := strings.TrimSpace(c.Param("messageId"))
	if messageID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid message id")
		return
	}

	if err := h.chatService.DeleteMessage(c.Request.Context(), messageID); err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete message failed")
		}
		return
	}

	response.OK(c, gin.H{"deleted_message_id": messageID})
}

func (h *ChatHandler) ClearHistory(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("sessionId"))
	if sessionID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session id")
		return
	}

	if err := h.chatService.ClearSession(c.Request.Context(), sessionID); err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "clear history failed")
		}
		return
	}

	response.OK(c, gin.H{"cleared_session_id": sessionID})
}

func (h *ChatHandler) writeTurnError(c *gin.Context, err error, internalMsg string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, app.ErrMessageEmpty),
		errors.Is(err, app.ErrMessageTooLong):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrMessageNotFound):
		response.Error(c, http.StatusNotFound, response.CodeMessageNotFound, err.Error())
	case errors.Is(err, app.ErrGenerationCancelled):
		response.Error(c, response.StatusClientClosedRequest, response.CodeGenerationCancelled, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, internalMsg)
	}
}
