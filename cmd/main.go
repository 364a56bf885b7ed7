package main

import (
	"fmt"
	"os"

	"github.com/yungbote/deeptutor-backend/internal/db"
	"github.com/yungbote/deeptutor-backend/internal/gemini"
	"github.com/yungbote/deeptutor-backend/internal/http/handlers"
	"github.com/yungbote/deeptutor-backend/internal/logger"
	"github.com/yungbote/deeptutor-backend/internal/repos"
	"github.com/yungbote/deeptutor-backend/internal/server"
	"github.com/yungbote/deeptutor-backend/internal/services"
	"github.com/yungbote/deeptutor-backend/internal/store"
	"github.com/yungbote/deeptutor-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	port := utils.GetEnv("PORT", "8080", log)

	// Sqlite
	sqliteService, err := db.NewSqliteService(log)
	if err != nil {
		log.Error("Sqlite init failed", "error", err)
		os.Exit(1)
	}
	if err = sqliteService.AutoMigrateAll(); err != nil {
		log.Error("Sqlite auto migration failed", "error", err)
		os.Exit(1)
	}
	theDB := sqliteService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	stateRepo := repos.NewWorkspaceStateRepo(theDB, log)

	// Store
	workspaceStore, err := store.NewWorkspaceStore(log, stateRepo)
	if err != nil {
		log.Error("Could not load workspace state", "error", err)
		os.Exit(1)
	}

	// Services
	log.Info("Setting up Services from main...")
	geminiClient, err := gemini.NewClient(log, gemini.LoadConfig(log))
	if err != nil {
		log.Error("Could not init Gemini client", "error", err)
		os.Exit(1)
	}
	attachmentService := services.NewAttachmentService(log)
	synthesizerService := services.NewSynthesizerService(log, geminiClient)
	enrichmentService := services.NewEnrichmentService(log, workspaceStore, synthesizerService)
	workspaceService := services.NewWorkspaceService(log, workspaceStore, attachmentService, synthesizerService, enrichmentService)
	studyService := services.NewStudyService(log, workspaceStore, synthesizerService)

	// Handlers
	log.Info("Setting up Handlers from main...")
	healthHandler := handlers.NewHealthHandler()
	workspaceHandler := handlers.NewWorkspaceHandler(workspaceService, enrichmentService)
	studyHandler := handlers.NewStudyHandler(studyService)

	// Router
	router := server.NewRouter(server.RouterConfig{
		Log:              log,
		HealthHandler:    healthHandler,
		WorkspaceHandler: workspaceHandler,
		StudyHandler:     studyHandler,
	})

	log.Info("Starting DeepTutor backend", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
