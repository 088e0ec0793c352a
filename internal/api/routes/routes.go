package routes

import (
	"github.com/fellahtech/agribot/internal/api/handlers"
	"github.com/fellahtech/agribot/internal/api/middleware"
	"github.com/gin-gonic/gin"
)

type Deps struct {
	Chat    *handlers.ChatHandler
	Session *handlers.SessionHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Protected routes (JWT)
	api := r.Group("/api/chatbot")
	api.Use(middleware.JWTAuth())

	api.POST("/message", d.Chat.Message)
	api.POST("/audio", d.Chat.UploadAudio)

	api.GET("/sessions", d.Session.List)
	api.GET("/sessions/:session_id/history", d.Session.History)
	api.POST("/sessions/:session_id/close", d.Session.Close)
	api.DELETE("/sessions/:session_id", d.Session.Delete)
}
