package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/deeptutor-backend/internal/http/response"
	"github.com/yungbote/deeptutor-backend/internal/services"
)

type WorkspaceHandler struct {
	svc    services.WorkspaceService
	enrich services.EnrichmentService
}

func NewWorkspaceHandler(svc services.WorkspaceService, enrich services.EnrichmentService) *WorkspaceHandler {
	return &WorkspaceHandler{svc: svc, enrich: enrich}
}

// POST /api/workspaces
func (h *WorkspaceHandler) Create(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "MISSING_FILE", fmt.Errorf("multipart field %q is required", "file"))
		return
	}
	ws, err := h.svc.CreateFromUpload(c.Request.Context(), file)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"workspace": ws})
}

// GET /api/workspaces
func (h *WorkspaceHandler) List(c *gin.Context) {
	response.RespondOK(c, gin.H{"workspaces": h.svc.List()})
}

// GET /api/workspaces/active
func (h *WorkspaceHandler) GetActive(c *gin.Context) {
	ws, found := h.svc.Active()
	if !found {
		response.RespondError(c, http.StatusNotFound, "NO_ACTIVE_WORKSPACE", fmt.Errorf("no active workspace"))
		return
	}
	response.RespondOK(c, gin.H{"workspace": ws})
}

// PUT /api/workspaces/active
func (h *WorkspaceHandler) SetActive(c *gin.Context) {
	var body struct {
		ID string `json:"id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondError(c, http.StatusBadRequest, "INVALID_BODY", err)
		return
	}
	if err := h.svc.SetActive(body.ID); err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"activeWorkspaceId": body.ID})
}

// GET /api/workspaces/:id
func (h *WorkspaceHandler) Get(c *gin.Context) {
	ws, err := h.svc.Get(c.Param("id"))
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"workspace": ws})
}

// DELETE /api/workspaces
func (h *WorkspaceHandler) ClearAll(c *gin.Context) {
	if err := h.svc.ClearAll(); err != nil {
		response.RespondFromError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/workspaces/:id/sections/:index/activate
func (h *WorkspaceHandler) ActivateSection(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "INVALID_SECTION_INDEX", fmt.Errorf("section index must be an integer"))
		return
	}
	ws, err := h.enrich.Activate(c.Request.Context(), c.Param("id"), index)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"workspace": ws})
}

// POST /api/workspaces/:id/advance
func (h *WorkspaceHandler) Advance(c *gin.Context) {
	ws, err := h.enrich.Advance(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"workspace": ws})
}

// GET /api/workspaces/:id/sections/:index/status
func (h *WorkspaceHandler) SectionStatus(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "INVALID_SECTION_INDEX", fmt.Errorf("section index must be an integer"))
		return
	}
	ws, err := h.svc.Get(c.Param("id"))
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	if index < 0 || index >= len(ws.Sections) {
		response.RespondError(c, http.StatusBadRequest, "SECTION_INDEX_OUT_OF_RANGE", fmt.Errorf("section index %d out of range", index))
		return
	}
	response.RespondOK(c, h.enrich.Status(ws.FileInfo.ID, ws.Sections[index].ID))
}
