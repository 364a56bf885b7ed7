package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/yungbote/deeptutor-backend/internal/logger"
	"github.com/yungbote/deeptutor-backend/internal/repos"
	"github.com/yungbote/deeptutor-backend/internal/types"
)

// WorkspacePatch is a shallow partial update. Nil fields are left untouched;
// stats are never patched directly, they are recomputed on every update.
type WorkspacePatch struct {
	Subject            *string
	Sections           *[]types.Section
	ActiveSectionIndex *int
}

// WorkspaceStore owns all workspace state. It is the only writer: every
// mutation is a synchronous replace-and-recompute under one lock, then a
// write-through of the full blob. Reads get deep copies so no caller can
// reach into live state.
type WorkspaceStore struct {
	mu    sync.RWMutex
	log   *logger.Logger
	repo  repos.WorkspaceStateRepo
	state types.PersistedState
}

func NewWorkspaceStore(baseLog *logger.Logger, repo repos.WorkspaceStateRepo) (*WorkspaceStore, error) {
	storeLog := baseLog.With("service", "WorkspaceStore")

	s := &WorkspaceStore{log: storeLog, repo: repo}
	if repo != nil {
		state, found, err := repo.Load(context.Background())
		if err != nil {
			return nil, fmt.Errorf("load persisted workspace state: %w", err)
		}
		if found {
			s.state = state
			storeLog.Info("Loaded persisted workspace state", "workspaces", len(state.Workspaces))
		}
	}
	return s, nil
}

// Add prepends a workspace (most recently added first) and makes it active.
func (s *WorkspaceStore) Add(ws types.Workspace) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws = recompute(ws)
	s.state.Workspaces = append([]types.Workspace{ws}, s.state.Workspaces...)
	s.state.ActiveWorkspaceID = ws.FileInfo.ID
	s.persistLocked()
}

// ReplaceAll swaps the whole collection; used for the global clear.
func (s *WorkspaceStore) ReplaceAll(workspaces []types.Workspace) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range workspaces {
		workspaces[i] = recompute(workspaces[i])
	}
	s.state.Workspaces = workspaces
	if _, ok := findLocked(workspaces, s.state.ActiveWorkspaceID); !ok {
		s.state.ActiveWorkspaceID = ""
	}
	s.persistLocked()
}

func (s *WorkspaceStore) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if _, ok := findLocked(s.state.Workspaces, id); !ok {
			return fmt.Errorf("workspace %s not found", id)
		}
	}
	s.state.ActiveWorkspaceID = id
	s.persistLocked()
	return nil
}

// Update shallow-merges the patch onto the workspace with the given id, then
// unconditionally recomputes coverage stats from the merged section list.
// Applying the same patch twice yields identical stats.
func (s *WorkspaceStore) Update(id string, patch WorkspacePatch) (types.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := findLocked(s.state.Workspaces, id)
	if !ok {
		return types.Workspace{}, fmt.Errorf("workspace %s not found", id)
	}

	merged := cloneWorkspace(s.state.Workspaces[idx])
	if patch.Subject != nil {
		merged.Subject = *patch.Subject
	}
	if patch.Sections != nil {
		merged.Sections = *patch.Sections
	}
	if patch.ActiveSectionIndex != nil {
		merged.ActiveSectionIndex = *patch.ActiveSectionIndex
	}
	if len(merged.Sections) > 0 {
		if merged.ActiveSectionIndex < 0 {
			merged.ActiveSectionIndex = 0
		}
		if merged.ActiveSectionIndex >= len(merged.Sections) {
			merged.ActiveSectionIndex = len(merged.Sections) - 1
		}
	}
	merged = recompute(merged)

	s.state.Workspaces[idx] = merged
	s.persistLocked()
	return cloneWorkspace(merged), nil
}

func (s *WorkspaceStore) Get(id string) (types.Workspace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := findLocked(s.state.Workspaces, id)
	if !ok {
		return types.Workspace{}, false
	}
	return cloneWorkspace(s.state.Workspaces[idx]), true
}

func (s *WorkspaceStore) Active() (types.Workspace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := findLocked(s.state.Workspaces, s.state.ActiveWorkspaceID)
	if !ok {
		return types.Workspace{}, false
	}
	return cloneWorkspace(s.state.Workspaces[idx]), true
}

func (s *WorkspaceStore) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ActiveWorkspaceID
}

func (s *WorkspaceStore) All() []types.Workspace {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Workspace, 0, len(s.state.Workspaces))
	for _, ws := range s.state.Workspaces {
		out = append(out, cloneWorkspace(ws))
	}
	return out
}

// persistLocked writes the full blob through to storage. A storage failure is
// logged, not propagated: the in-memory state stays authoritative for the
// life of the process.
func (s *WorkspaceStore) persistLocked() {
	if s.repo == nil {
		return
	}
	if err := s.repo.Save(context.Background(), s.state); err != nil {
		s.log.Error("Failed to persist workspace state", "error", err)
	}
}

func findLocked(workspaces []types.Workspace, id string) (int, bool) {
	if id == "" {
		return 0, false
	}
	for i := range workspaces {
		if workspaces[i].FileInfo.ID == id {
			return i, true
		}
	}
	return 0, false
}

// recompute enforces the per-section invariants (mastery clamp, completion)
// and derives coverage stats from the section list. Deterministic and
// idempotent; stats are never stored independently of the sections they
// summarize.
func recompute(ws types.Workspace) types.Workspace {
	ingested := 0
	totalCards, masteredCards := 0, 0
	totalQuestions, answeredCorrect := 0, 0

	for i := range ws.Sections {
		sect := &ws.Sections[i]
		if sect.Mastery < 0 {
			sect.Mastery = 0
		}
		if sect.Mastery > 100 {
			sect.Mastery = 100
		}
		if sect.Mastery >= 100 {
			sect.Status = types.SectionCompleted
		}
		if sect.Content != "" {
			ingested++
		}
		for _, card := range sect.Flashcards {
			totalCards++
			if card.MasteryStatus == types.CardMastered {
				masteredCards++
			}
		}
		for _, q := range sect.PracticeQuestions {
			totalQuestions++
			if q.HasBeenAnswered && q.WasCorrect {
				answeredCorrect++
			}
		}
	}

	ws.CoverageStats = types.CoverageStats{
		Ingested:  percentage(ingested, len(ws.Sections)),
		Retained:  percentage(masteredCards, totalCards),
		Validated: percentage(answeredCorrect, totalQuestions),
	}
	return ws
}

func percentage(count, total int) int {
	if total < 1 {
		total = 1
	}
	return int(math.Round(float64(count) / float64(total) * 100))
}

// cloneWorkspace deep-copies through the JSON form; every field is already
// JSON-serializable because the whole state round-trips through the blob.
func cloneWorkspace(ws types.Workspace) types.Workspace {
	raw, err := json.Marshal(ws)
	if err != nil {
		return ws
	}
	var out types.Workspace
	if err := json.Unmarshal(raw, &out); err != nil {
		return ws
	}
	return out
}
