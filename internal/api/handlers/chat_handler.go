package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/fellahtech/agribot/internal/models"
	"github.com/fellahtech/agribot/internal/services"
	"github.com/fellahtech/agribot/internal/storage"
	"github.com/fellahtech/agribot/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var allowedAudioExts = map[string]string{
	".ogg":  "audio/ogg",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".flac": "audio/flac",
}

type ChatHandler struct {
	svc      services.ChatService
	uploader storage.Uploader // optional; nil disables audio uploads
}

func NewChatHandler(svc services.ChatService, uploader storage.Uploader) *ChatHandler {
	return &ChatHandler{svc: svc, uploader: uploader}
}

type MessageRequest struct {
	Message    string           `json:"message"`
	SessionID  string           `json:"session_id"`
	IsVoice    bool             `json:"is_voice"`
	AudioURL   string           `json:"audio_url"`
	DeviceType string           `json:"device_type"`
	Location   *models.GeoPoint `json:"location"`
}

func (h *ChatHandler) Message(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "ChatHandler.Message", "invalid request body", err))
		return
	}

	res, err := h.svc.HandleMessage(c.Request.Context(), userID, req.Message, services.MessageOptions{
		SessionID:    req.SessionID,
		IsVoice:      req.IsVoice,
		AudioURL:     req.AudioURL,
		DeviceType:   req.DeviceType,
		UserLocation: req.Location,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// UploadAudio stores a voice note and runs it through the same pipeline as a
// text message, letting transcription supply the text.
func (h *ChatHandler) UploadAudio(c *gin.Context) {
	const op = "ChatHandler.UploadAudio"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	if h.uploader == nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "audio uploads are not enabled", nil))
		return
	}

	fh, err := c.FormFile("audio")
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "missing multipart field 'audio'", err))
		return
	}
	if fh.Size <= 0 || fh.Size > 10<<20 {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "audio too large (max 10MB)", nil))
		return
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	contentType, allowed := allowedAudioExts[ext]
	if !allowed {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "unsupported audio format", nil))
		return
	}

	file, err := fh.Open()
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "failed to open upload", err))
		return
	}
	defer file.Close()

	objectName := "voice/" + userID + "/" + uuid.NewString() + ext
	audioURL, err := h.uploader.Upload(c.Request.Context(), objectName, contentType, file)
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "failed to store audio", err))
		return
	}

	res, err := h.svc.HandleMessage(c.Request.Context(), userID, "", services.MessageOptions{
		SessionID:  c.PostForm("session_id"),
		IsVoice:    true,
		AudioURL:   audioURL,
		DeviceType: c.PostForm("device_type"),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}
