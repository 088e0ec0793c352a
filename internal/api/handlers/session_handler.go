package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/fellahtech/agribot/internal/services"
	"github.com/fellahtech/agribot/internal/utils"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	svc services.ChatService
}

func NewSessionHandler(svc services.ChatService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

func (h *SessionHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	limit := 20
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	sessions, err := h.svc.ListSessions(c.Request.Context(), userID, limit, c.Query("before"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *SessionHandler) History(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID := c.Param("session_id")

	limit := 50
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	var afterSeq int64
	if s := c.Query("after_seq"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.History", "invalid after_seq", err))
			return
		}
		afterSeq = n
	}

	hist, err := h.svc.SessionHistory(c.Request.Context(), userID, sessionID, afterSeq, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, hist)
}

type CloseSessionRequest struct {
	Summary string `json:"summary"`
}

func (h *SessionHandler) Close(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID := c.Param("session_id")

	// body is optional; an absent body just means no summary
	var req CloseSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.Close", "invalid request body", err))
		return
	}

	if err := h.svc.CloseSession(c.Request.Context(), userID, sessionID, req.Summary); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "status": "closed"})
}

func (h *SessionHandler) Delete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID := c.Param("session_id")
	if err := h.svc.DeleteSession(c.Request.Context(), userID, sessionID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "deleted": true})
}
