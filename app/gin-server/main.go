package main

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/fellahtech/agribot/config"
	"github.com/fellahtech/agribot/internal/api/handlers"
	"github.com/fellahtech/agribot/internal/api/middleware"
	"github.com/fellahtech/agribot/internal/api/routes"
	"github.com/fellahtech/agribot/internal/cache"
	"github.com/fellahtech/agribot/internal/logger"
	"github.com/fellahtech/agribot/internal/providers/llm"
	"github.com/fellahtech/agribot/internal/providers/search"
	"github.com/fellahtech/agribot/internal/providers/stt"
	mongorepo "github.com/fellahtech/agribot/internal/repositories/mongo"
	pgrepo "github.com/fellahtech/agribot/internal/repositories/postgres"
	"github.com/fellahtech/agribot/internal/services"
	"github.com/fellahtech/agribot/internal/storage"
)

func main() {
	_ = godotenv.Load()

	log := logger.New()
	ctx := context.Background()

	if err := config.InitMongo(); err != nil {
		log.WithError(err).Fatal("MongoDB init error")
	}
	log.Info("MongoDB connected")

	if err := config.EnsureMongoIndexes(); err != nil {
		log.WithError(err).Fatal("MongoDB index error")
	}

	if err := config.InitPostgres(); err != nil {
		log.WithError(err).Fatal("PostgreSQL init error")
	}
	log.Info("PostgreSQL connected")

	if err := config.InitRedis(); err != nil {
		log.WithError(err).Fatal("Redis init error")
	}
	log.Info("Redis connected")

	// Providers. The search provider falls back to canned results so the
	// pipeline stays testable without a Tavily key.
	var searchProvider search.Provider
	if key := os.Getenv("TAVILY_API_KEY"); key != "" {
		searchProvider = search.NewTavily(key)
	} else {
		log.Warn("TAVILY_API_KEY not set, using mock search results")
		searchProvider = search.Mock{}
	}

	projectID := os.Getenv("VERTEX_PROJECT_ID")
	if projectID == "" {
		log.Fatal("VERTEX_PROJECT_ID environment variable is not set")
	}
	location := os.Getenv("VERTEX_LOCATION")
	if location == "" {
		location = "europe-west1"
	}
	model, err := llm.NewVertexGemini(ctx, projectID, location, os.Getenv("VERTEX_MODEL"))
	if err != nil {
		log.WithError(err).Fatal("Vertex AI init error")
	}
	defer model.Close()

	var speechProvider stt.Provider
	if os.Getenv("ENABLE_SPEECH") == "true" {
		sp, err := stt.NewGoogleSpeech(ctx)
		if err != nil {
			log.WithError(err).Fatal("Speech-to-Text init error")
		}
		defer sp.Close()
		speechProvider = sp
	}

	var uploader storage.Uploader
	if bucket := os.Getenv("GCS_BUCKET"); bucket != "" {
		up, err := storage.NewGCSUploader(ctx, bucket)
		if err != nil {
			log.WithError(err).Fatal("GCS init error")
		}
		defer up.Close()
		uploader = up
	}

	// Repositories
	mongoDB := config.MongoDatabase()
	sessionRepo := mongorepo.NewSessionRepo(mongoDB)
	messageRepo := pgrepo.NewMessageRepo(config.PostgresDB)
	historyRepo := pgrepo.NewHistoryRepo(config.PostgresDB)
	cacheRepo := pgrepo.NewContextCacheRepo(config.PostgresDB)

	// Services
	redisCache := cache.NewRedisCache(config.RedisClient)
	contextSvc := services.NewContextService(historyRepo, cacheRepo, log)
	searchSvc := services.NewSearchService(redisCache, searchProvider, log)
	window := services.NewHistoryWindow(model, log)

	chatSvc := services.NewChatService(services.ChatDeps{
		Sessions: sessionRepo,
		Messages: messageRepo,
		Contexts: contextSvc,
		Searches: searchSvc,
		Window:   window,
		Model:    model,
		Speech:   speechProvider,
		Log:      log,
	})

	// HTTP
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		Chat:    handlers.NewChatHandler(chatSvc, uploader),
		Session: handlers.NewSessionHandler(chatSvc),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := r.Run(":" + port); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}
