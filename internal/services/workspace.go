package services

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/yungbote/deeptutor-backend/internal/logger"
	"github.com/yungbote/deeptutor-backend/internal/platform/apierr"
	"github.com/yungbote/deeptutor-backend/internal/store"
	"github.com/yungbote/deeptutor-backend/internal/types"
)

type WorkspaceService interface {
	// CreateFromUpload ingests a document, discovers its structure, and
	// commits a new workspace with enrichment of the first section under way.
	// Nothing is committed when discovery fails.
	CreateFromUpload(ctx context.Context, file *multipart.FileHeader) (types.Workspace, error)
	List() []types.Workspace
	Get(id string) (types.Workspace, error)
	Active() (types.Workspace, bool)
	SetActive(id string) error
	ClearAll() error
}

type workspaceService struct {
	log    *logger.Logger
	store  *store.WorkspaceStore
	codec  AttachmentService
	synth  SynthesizerService
	enrich EnrichmentService
}

func NewWorkspaceService(baseLog *logger.Logger, st *store.WorkspaceStore, codec AttachmentService, synth SynthesizerService, enrich EnrichmentService) WorkspaceService {
	return &workspaceService{
		log:    baseLog.With("service", "WorkspaceService"),
		store:  st,
		codec:  codec,
		synth:  synth,
		enrich: enrich,
	}
}

func (s *workspaceService) CreateFromUpload(ctx context.Context, file *multipart.FileHeader) (types.Workspace, error) {
	attachment, err := s.codec.DecodeUpload(file)
	if err != nil {
		return types.Workspace{}, apierr.New(http.StatusBadRequest, "INVALID_UPLOAD", err)
	}

	sections, err := s.synth.DiscoverStructure(ctx, attachment)
	if err != nil {
		return types.Workspace{}, apierr.New(http.StatusBadGateway, "STRUCTURE_DISCOVERY_FAILED", err)
	}

	ws := types.NewWorkspace(attachment, sections)
	s.store.Add(ws)
	s.enrich.Begin(ws.FileInfo.ID)

	s.log.Info("Workspace created", "workspace_id", ws.FileInfo.ID, "subject", ws.Subject, "units", len(sections))
	committed, _ := s.store.Get(ws.FileInfo.ID)
	return committed, nil
}

func (s *workspaceService) List() []types.Workspace {
	return s.store.All()
}

func (s *workspaceService) Get(id string) (types.Workspace, error) {
	ws, found := s.store.Get(id)
	if !found {
		return types.Workspace{}, apierr.New(http.StatusNotFound, "WORKSPACE_NOT_FOUND", fmt.Errorf("workspace %s not found", id))
	}
	return ws, nil
}

func (s *workspaceService) Active() (types.Workspace, bool) {
	return s.store.Active()
}

func (s *workspaceService) SetActive(id string) error {
	// The store accepts an empty id because clearing the pointer is an
	// internal operation. Callers must name a workspace.
	if strings.TrimSpace(id) == "" {
		return apierr.New(http.StatusBadRequest, "MISSING_WORKSPACE_ID", fmt.Errorf("workspace id is required"))
	}
	if err := s.store.SetActive(id); err != nil {
		return apierr.New(http.StatusNotFound, "WORKSPACE_NOT_FOUND", err)
	}
	return nil
}

func (s *workspaceService) ClearAll() error {
	s.store.ReplaceAll(nil)
	s.log.Info("All workspaces cleared")
	return nil
}
