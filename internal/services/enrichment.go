package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/yungbote/deeptutor-backend/internal/logger"
	"github.com/yungbote/deeptutor-backend/internal/platform/apierr"
	"github.com/yungbote/deeptutor-backend/internal/store"
	"github.com/yungbote/deeptutor-backend/internal/types"
)

// Section synthesis states as seen by clients polling enrichment progress.
const (
	StateUnsynthesized = "unsynthesized"
	StateSynthesizing  = "synthesizing"
	StateSynthesized   = "synthesized"
	StateFailed        = "failed"
)

// SectionSyncStatus reports where one section sits in the enrichment
// lifecycle. Error is set only in the failed state; failed sections stay
// retriable and return to synthesizing on the next activation.
type SectionSyncStatus struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

type EnrichmentService interface {
	// Activate selects a section, unlocking it if needed, and starts
	// enrichment when the section has no synthesized theory yet. Repeat
	// activations while synthesis is in flight join the existing run.
	Activate(ctx context.Context, workspaceID string, index int) (types.Workspace, error)
	// Advance moves to the next section and activates it.
	Advance(ctx context.Context, workspaceID string) (types.Workspace, error)
	// Begin kicks off enrichment of the workspace's active section without
	// changing selection. Used right after workspace creation.
	Begin(workspaceID string)
	// Status reports the synthesis state of one section.
	Status(workspaceID, sectionID string) SectionSyncStatus
}

type enrichmentService struct {
	log   *logger.Logger
	store *store.WorkspaceStore
	synth SynthesizerService

	group singleflight.Group

	mu      sync.Mutex
	lastErr map[string]string
}

func NewEnrichmentService(baseLog *logger.Logger, st *store.WorkspaceStore, synth SynthesizerService) EnrichmentService {
	return &enrichmentService{
		log:     baseLog.With("service", "EnrichmentService"),
		store:   st,
		synth:   synth,
		lastErr: make(map[string]string),
	}
}

func (s *enrichmentService) Activate(ctx context.Context, workspaceID string, index int) (types.Workspace, error) {
	ws, found := s.store.Get(workspaceID)
	if !found {
		return types.Workspace{}, apierr.New(http.StatusNotFound, "WORKSPACE_NOT_FOUND", fmt.Errorf("workspace %s not found", workspaceID))
	}
	if index < 0 || index >= len(ws.Sections) {
		return types.Workspace{}, apierr.New(http.StatusBadRequest, "SECTION_INDEX_OUT_OF_RANGE", fmt.Errorf("section index %d out of range", index))
	}

	sections := ws.Sections
	if sections[index].Status == types.SectionLocked {
		sections[index].Status = types.SectionInProgress
	}
	updated, err := s.store.Update(workspaceID, store.WorkspacePatch{
		Sections:           &sections,
		ActiveSectionIndex: &index,
	})
	if err != nil {
		return types.Workspace{}, err
	}

	s.kickOffIfNeeded(updated, index)
	return updated, nil
}

func (s *enrichmentService) Advance(ctx context.Context, workspaceID string) (types.Workspace, error) {
	ws, found := s.store.Get(workspaceID)
	if !found {
		return types.Workspace{}, apierr.New(http.StatusNotFound, "WORKSPACE_NOT_FOUND", fmt.Errorf("workspace %s not found", workspaceID))
	}
	next := ws.ActiveSectionIndex + 1
	if next >= len(ws.Sections) {
		return types.Workspace{}, apierr.New(http.StatusBadRequest, "NO_NEXT_SECTION", fmt.Errorf("already at the last section"))
	}
	return s.Activate(ctx, workspaceID, next)
}

func (s *enrichmentService) Begin(workspaceID string) {
	ws, found := s.store.Get(workspaceID)
	if !found {
		return
	}
	s.kickOffIfNeeded(ws, ws.ActiveSectionIndex)
}

func (s *enrichmentService) Status(workspaceID, sectionID string) SectionSyncStatus {
	key := flightKey(workspaceID, sectionID)

	ws, found := s.store.Get(workspaceID)
	if found {
		for _, section := range ws.Sections {
			if section.ID == sectionID && section.IsSynthesized {
				return SectionSyncStatus{State: StateSynthesized}
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight(key) {
		return SectionSyncStatus{State: StateSynthesizing}
	}
	if msg, failed := s.lastErr[key]; failed {
		return SectionSyncStatus{State: StateFailed, Error: msg}
	}
	return SectionSyncStatus{State: StateUnsynthesized}
}

func (s *enrichmentService) kickOffIfNeeded(ws types.Workspace, index int) {
	if index < 0 || index >= len(ws.Sections) {
		return
	}
	section := ws.Sections[index]
	if section.IsSynthesized {
		return
	}
	key := flightKey(ws.FileInfo.ID, section.ID)

	s.mu.Lock()
	s.markStarted(key)
	s.mu.Unlock()

	// Detached from the request context: enrichment outlives the HTTP call
	// that triggered it. Duplicate kicks join the in-flight run.
	go func() {
		_, err, _ := s.group.Do(key, func() (any, error) {
			return nil, s.synthesize(context.Background(), ws.FileInfo.ID, section.ID)
		})
		s.mu.Lock()
		s.markFinished(key, err)
		s.mu.Unlock()
	}()
}

// synthesize runs the full enrichment round trip and merges the bundle into
// whatever the section looks like by completion time. Learner edits made while
// synthesis was running (chat turns, card edits) are preserved.
func (s *enrichmentService) synthesize(ctx context.Context, workspaceID, sectionID string) error {
	ws, found := s.store.Get(workspaceID)
	if !found {
		return fmt.Errorf("workspace %s disappeared before synthesis", workspaceID)
	}
	idx := sectionIndexByID(ws.Sections, sectionID)
	if idx < 0 {
		return fmt.Errorf("section %s no longer present in workspace %s", sectionID, workspaceID)
	}
	if ws.Sections[idx].IsSynthesized {
		return nil
	}

	s.log.Info("Synthesizing section", "workspace_id", workspaceID, "section", ws.Sections[idx].Title)
	bundle, err := s.synth.SynthesizeUnit(ctx, ws.Sections[idx], ws.Attachment)
	if err != nil {
		s.log.Error("Section synthesis failed", "workspace_id", workspaceID, "section_id", sectionID, "error", err)
		return err
	}

	current, found := s.store.Get(workspaceID)
	if !found {
		return fmt.Errorf("workspace %s removed during synthesis", workspaceID)
	}
	idx = sectionIndexByID(current.Sections, sectionID)
	if idx < 0 {
		return fmt.Errorf("section %s removed during synthesis", sectionID)
	}

	sections := current.Sections
	target := &sections[idx]
	target.Summary = bundle.Summary
	target.DetailedSummary = bundle.Summary
	target.Content = bundle.Content
	target.KeyTerms = bundle.KeyTerms
	target.Lexicon = bundle.Lexicon
	target.Formulas = bundle.Formulas
	target.Mindmap = bundle.Mindmap
	target.Flashcards = bundle.Flashcards
	target.PracticeQuestions = bundle.Questions
	target.Resources = bundle.Resources
	target.IsSynthesized = true

	if _, err := s.store.Update(workspaceID, store.WorkspacePatch{Sections: &sections}); err != nil {
		return err
	}
	s.log.Info("Section synthesized", "workspace_id", workspaceID, "section_id", sectionID)
	return nil
}

// Callers hold s.mu. An empty-string entry in lastErr marks "in flight"; a
// non-empty one marks a failed, retriable run.
func (s *enrichmentService) markStarted(key string) {
	s.lastErr[key] = ""
}

func (s *enrichmentService) markFinished(key string, err error) {
	if err != nil {
		s.lastErr[key] = err.Error()
		return
	}
	delete(s.lastErr, key)
}

func (s *enrichmentService) inFlight(key string) bool {
	msg, present := s.lastErr[key]
	return present && msg == ""
}

func flightKey(workspaceID, sectionID string) string {
	return workspaceID + "/" + sectionID
}

func sectionIndexByID(sections []types.Section, id string) int {
	for i := range sections {
		if sections[i].ID == id {
			return i
		}
	}
	return -1
}
