package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/deeptutor-backend/internal/http/response"
	"github.com/yungbote/deeptutor-backend/internal/services"
)

type StudyHandler struct {
	svc services.StudyService
}

func NewStudyHandler(svc services.StudyService) *StudyHandler {
	return &StudyHandler{svc: svc}
}

func sectionIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "INVALID_SECTION_INDEX", fmt.Errorf("section index must be an integer"))
		return 0, false
	}
	return index, true
}

// POST /api/workspaces/:id/sections/:index/flashcards
func (h *StudyHandler) AddFlashcard(c *gin.Context) {
	index, ok := sectionIndex(c)
	if !ok {
		return
	}
	var body services.FlashcardInput
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondError(c, http.StatusBadRequest, "INVALID_BODY", err)
		return
	}
	ws, err := h.svc.AddFlashcard(c.Request.Context(), c.Param("id"), index, body)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"workspace": ws})
}

// PUT /api/workspaces/:id/sections/:index/flashcards/:cardId
func (h *StudyHandler) UpdateFlashcard(c *gin.Context) {
	index, ok := sectionIndex(c)
	if !ok {
		return
	}
	var body services.FlashcardInput
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondError(c, http.StatusBadRequest, "INVALID_BODY", err)
		return
	}
	ws, err := h.svc.UpdateFlashcard(c.Request.Context(), c.Param("id"), index, c.Param("cardId"), body)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"workspace": ws})
}

// DELETE /api/workspaces/:id/sections/:index/flashcards/:cardId
func (h *StudyHandler) DeleteFlashcard(c *gin.Context) {
	index, ok := sectionIndex(c)
	if !ok {
		return
	}
	ws, err := h.svc.DeleteFlashcard(c.Request.Context(), c.Param("id"), index, c.Param("cardId"))
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"workspace": ws})
}

// PUT /api/workspaces/:id/sections/:index/flashcards/:cardId/status
func (h *StudyHandler) SetFlashcardStatus(c *gin.Context) {
	index, ok := sectionIndex(c)
	if !ok {
		return
	}
	var body struct {
		MasteryStatus string `json:"masteryStatus"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondError(c, http.StatusBadRequest, "INVALID_BODY", err)
		return
	}
	ws, err := h.svc.SetFlashcardStatus(c.Request.Context(), c.Param("id"), index, c.Param("cardId"), body.MasteryStatus)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"workspace": ws})
}

// POST /api/workspaces/:id/sections/:index/questions/generate
func (h *StudyHandler) GenerateQuestions(c *gin.Context) {
	index, ok := sectionIndex(c)
	if !ok {
		return
	}
	var body struct {
		Difficulty int `json:"difficulty"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondError(c, http.StatusBadRequest, "INVALID_BODY", err)
		return
	}
	ws, err := h.svc.GenerateQuestions(c.Request.Context(), c.Param("id"), index, body.Difficulty)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"workspace": ws})
}

// POST /api/workspaces/:id/sections/:index/questions/:questionId/answer
func (h *StudyHandler) AnswerQuestion(c *gin.Context) {
	index, ok := sectionIndex(c)
	if !ok {
		return
	}
	var body struct {
		SelectedIndex *int `json:"selectedIndex"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.SelectedIndex == nil {
		response.RespondError(c, http.StatusBadRequest, "INVALID_BODY", fmt.Errorf("selectedIndex is required"))
		return
	}
	review, ws, err := h.svc.AnswerQuestion(c.Request.Context(), c.Param("id"), index, c.Param("questionId"), *body.SelectedIndex)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"review": review, "workspace": ws})
}

// POST /api/workspaces/:id/sections/:index/chat
func (h *StudyHandler) Chat(c *gin.Context) {
	index, ok := sectionIndex(c)
	if !ok {
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondError(c, http.StatusBadRequest, "INVALID_BODY", err)
		return
	}
	ws, err := h.svc.Chat(c.Request.Context(), c.Param("id"), index, body.Text)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"workspace": ws})
}

// GET /api/workspaces/:id/sections/:index/mindmap
func (h *StudyHandler) Mindmap(c *gin.Context) {
	index, ok := sectionIndex(c)
	if !ok {
		return
	}
	chart, err := h.svc.Mindmap(c.Param("id"), index)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"mindmap": chart})
}

// PUT /api/workspaces/:id/sections/:index/mindmap
func (h *StudyHandler) UpdateMindmap(c *gin.Context) {
	index, ok := sectionIndex(c)
	if !ok {
		return
	}
	var body struct {
		Mindmap string `json:"mindmap"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondError(c, http.StatusBadRequest, "INVALID_BODY", err)
		return
	}
	ws, err := h.svc.UpdateMindmap(c.Param("id"), index, body.Mindmap)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"workspace": ws})
}

// POST /api/workspaces/:id/schedule
func (h *StudyHandler) GenerateSchedule(c *gin.Context) {
	items, err := h.svc.GenerateSchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"schedule": items})
}
