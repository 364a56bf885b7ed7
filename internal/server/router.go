package server

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/deeptutor-backend/internal/http/handlers"
	"github.com/yungbote/deeptutor-backend/internal/http/middleware"
	"github.com/yungbote/deeptutor-backend/internal/logger"
)

type RouterConfig struct {
	Log              *logger.Logger
	HealthHandler    *handlers.HealthHandler
	WorkspaceHandler *handlers.WorkspaceHandler
	StudyHandler     *handlers.StudyHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(cfg.Log))
	router.Use(middleware.CORS())

	router.GET("/healthcheck", cfg.HealthHandler.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/workspaces", cfg.WorkspaceHandler.Create)
		api.GET("/workspaces", cfg.WorkspaceHandler.List)
		api.DELETE("/workspaces", cfg.WorkspaceHandler.ClearAll)
		api.GET("/workspaces/active", cfg.WorkspaceHandler.GetActive)
		api.PUT("/workspaces/active", cfg.WorkspaceHandler.SetActive)
		api.GET("/workspaces/:id", cfg.WorkspaceHandler.Get)
		api.POST("/workspaces/:id/advance", cfg.WorkspaceHandler.Advance)
		api.POST("/workspaces/:id/schedule", cfg.StudyHandler.GenerateSchedule)

		sections := api.Group("/workspaces/:id/sections")
		{
			sections.POST("/:index/activate", cfg.WorkspaceHandler.ActivateSection)
			sections.GET("/:index/mindmap", cfg.StudyHandler.Mindmap)
			sections.PUT("/:index/mindmap", cfg.StudyHandler.UpdateMindmap)
			sections.GET("/:index/status", cfg.WorkspaceHandler.SectionStatus)

			sections.POST("/:index/flashcards", cfg.StudyHandler.AddFlashcard)
			sections.PUT("/:index/flashcards/:cardId", cfg.StudyHandler.UpdateFlashcard)
			sections.DELETE("/:index/flashcards/:cardId", cfg.StudyHandler.DeleteFlashcard)
			sections.PUT("/:index/flashcards/:cardId/status", cfg.StudyHandler.SetFlashcardStatus)

			sections.POST("/:index/questions/generate", cfg.StudyHandler.GenerateQuestions)
			sections.POST("/:index/questions/:questionId/answer", cfg.StudyHandler.AnswerQuestion)

			sections.POST("/:index/chat", cfg.StudyHandler.Chat)
		}
	}

	return router
}
