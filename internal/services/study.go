package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/deeptutor-backend/internal/gemini"
	"github.com/yungbote/deeptutor-backend/internal/logger"
	"github.com/yungbote/deeptutor-backend/internal/platform/apierr"
	"github.com/yungbote/deeptutor-backend/internal/sanitize"
	"github.com/yungbote/deeptutor-backend/internal/store"
	"github.com/yungbote/deeptutor-backend/internal/types"
)

// Mastery deltas applied by study interactions.
const (
	masteryPerChatTurn   = 2
	masteryPerCorrectMCQ = 5
)

type FlashcardInput struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type StudyService interface {
	AddFlashcard(ctx context.Context, workspaceID string, sectionIndex int, input FlashcardInput) (types.Workspace, error)
	UpdateFlashcard(ctx context.Context, workspaceID string, sectionIndex int, cardID string, input FlashcardInput) (types.Workspace, error)
	DeleteFlashcard(ctx context.Context, workspaceID string, sectionIndex int, cardID string) (types.Workspace, error)
	// SetFlashcardStatus flips a card between learning and mastered. Dropping
	// a mastered card back to learning increments its failure count.
	SetFlashcardStatus(ctx context.Context, workspaceID string, sectionIndex int, cardID, masteryStatus string) (types.Workspace, error)

	GenerateQuestions(ctx context.Context, workspaceID string, sectionIndex, difficulty int) (types.Workspace, error)
	// AnswerQuestion marks the instance permanently answered, applies the
	// mastery reward when correct, and returns a populated review.
	AnswerQuestion(ctx context.Context, workspaceID string, sectionIndex int, questionID string, selectedIndex int) (types.McqReview, types.Workspace, error)

	// Chat appends the learner turn, asks the tutor, and appends the reply.
	// Gateway failures still produce a model turn carrying remediation text.
	Chat(ctx context.Context, workspaceID string, sectionIndex int, text string) (types.Workspace, error)

	GenerateSchedule(ctx context.Context, workspaceID string) ([]types.ScheduleItem, error)
	Mindmap(workspaceID string, sectionIndex int) (string, error)
	// UpdateMindmap stores a learner-edited chart, sanitized the same way
	// model output is.
	UpdateMindmap(workspaceID string, sectionIndex int, chart string) (types.Workspace, error)
}

type studyService struct {
	log   *logger.Logger
	store *store.WorkspaceStore
	synth SynthesizerService
}

func NewStudyService(baseLog *logger.Logger, st *store.WorkspaceStore, synth SynthesizerService) StudyService {
	return &studyService{
		log:   baseLog.With("service", "StudyService"),
		store: st,
		synth: synth,
	}
}

func (s *studyService) AddFlashcard(ctx context.Context, workspaceID string, sectionIndex int, input FlashcardInput) (types.Workspace, error) {
	if strings.TrimSpace(input.Question) == "" || strings.TrimSpace(input.Answer) == "" {
		return types.Workspace{}, apierr.New(http.StatusBadRequest, "INVALID_FLASHCARD", fmt.Errorf("question and answer are required"))
	}
	return s.mutateSection(workspaceID, sectionIndex, func(section *types.Section) error {
		section.Flashcards = append(section.Flashcards, types.Flashcard{
			ID:            uuid.NewString(),
			Question:      input.Question,
			Answer:        input.Answer,
			IsAiSuggested: false,
			MasteryStatus: types.CardLearning,
			Difficulty:    "medium",
		})
		return nil
	})
}

func (s *studyService) UpdateFlashcard(ctx context.Context, workspaceID string, sectionIndex int, cardID string, input FlashcardInput) (types.Workspace, error) {
	return s.mutateSection(workspaceID, sectionIndex, func(section *types.Section) error {
		for i := range section.Flashcards {
			if section.Flashcards[i].ID != cardID {
				continue
			}
			if strings.TrimSpace(input.Question) != "" {
				section.Flashcards[i].Question = input.Question
			}
			if strings.TrimSpace(input.Answer) != "" {
				section.Flashcards[i].Answer = input.Answer
			}
			return nil
		}
		return apierr.New(http.StatusNotFound, "FLASHCARD_NOT_FOUND", fmt.Errorf("flashcard %s not found", cardID))
	})
}

func (s *studyService) DeleteFlashcard(ctx context.Context, workspaceID string, sectionIndex int, cardID string) (types.Workspace, error) {
	return s.mutateSection(workspaceID, sectionIndex, func(section *types.Section) error {
		for i := range section.Flashcards {
			if section.Flashcards[i].ID == cardID {
				section.Flashcards = append(section.Flashcards[:i], section.Flashcards[i+1:]...)
				return nil
			}
		}
		return apierr.New(http.StatusNotFound, "FLASHCARD_NOT_FOUND", fmt.Errorf("flashcard %s not found", cardID))
	})
}

func (s *studyService) SetFlashcardStatus(ctx context.Context, workspaceID string, sectionIndex int, cardID, masteryStatus string) (types.Workspace, error) {
	if masteryStatus != types.CardLearning && masteryStatus != types.CardMastered {
		return types.Workspace{}, apierr.New(http.StatusBadRequest, "INVALID_MASTERY_STATUS", fmt.Errorf("masteryStatus must be %q or %q", types.CardLearning, types.CardMastered))
	}
	return s.mutateSection(workspaceID, sectionIndex, func(section *types.Section) error {
		for i := range section.Flashcards {
			card := &section.Flashcards[i]
			if card.ID != cardID {
				continue
			}
			if card.MasteryStatus == types.CardMastered && masteryStatus == types.CardLearning {
				card.FailureCount++
			}
			card.MasteryStatus = masteryStatus
			return nil
		}
		return apierr.New(http.StatusNotFound, "FLASHCARD_NOT_FOUND", fmt.Errorf("flashcard %s not found", cardID))
	})
}

func (s *studyService) GenerateQuestions(ctx context.Context, workspaceID string, sectionIndex, difficulty int) (types.Workspace, error) {
	ws, section, err := s.resolve(workspaceID, sectionIndex)
	if err != nil {
		return types.Workspace{}, err
	}

	batch := s.synth.GenerateFollowupQuestions(ctx, section, difficulty)
	if len(batch) == 0 {
		// Safe default: keep the existing set untouched.
		return ws, nil
	}

	return s.mutateSection(workspaceID, sectionIndex, func(target *types.Section) error {
		target.PracticeQuestions = append(target.PracticeQuestions, batch...)
		return nil
	})
}

func (s *studyService) AnswerQuestion(ctx context.Context, workspaceID string, sectionIndex int, questionID string, selectedIndex int) (types.McqReview, types.Workspace, error) {
	_, section, err := s.resolve(workspaceID, sectionIndex)
	if err != nil {
		return types.McqReview{}, types.Workspace{}, err
	}

	var answered *types.PracticeQuestion
	for i := range section.PracticeQuestions {
		if section.PracticeQuestions[i].ID == questionID {
			answered = &section.PracticeQuestions[i]
			break
		}
	}
	if answered == nil {
		return types.McqReview{}, types.Workspace{}, apierr.New(http.StatusNotFound, "QUESTION_NOT_FOUND", fmt.Errorf("question %s not found", questionID))
	}
	if answered.HasBeenAnswered {
		return types.McqReview{}, types.Workspace{}, apierr.New(http.StatusConflict, "QUESTION_ALREADY_ANSWERED", fmt.Errorf("question %s was already answered", questionID))
	}
	if selectedIndex < 0 || selectedIndex >= len(answered.Options) {
		return types.McqReview{}, types.Workspace{}, apierr.New(http.StatusBadRequest, "INVALID_OPTION_INDEX", fmt.Errorf("selected index %d out of range", selectedIndex))
	}

	review := s.synth.EvaluateAnswer(ctx, *answered, selectedIndex, section)

	ws, err := s.mutateSection(workspaceID, sectionIndex, func(target *types.Section) error {
		for i := range target.PracticeQuestions {
			q := &target.PracticeQuestions[i]
			if q.ID != questionID {
				continue
			}
			q.HasBeenAnswered = true
			q.WasCorrect = review.IsCorrect
			if review.IsCorrect {
				target.Mastery += masteryPerCorrectMCQ
			}
			return nil
		}
		return apierr.New(http.StatusNotFound, "QUESTION_NOT_FOUND", fmt.Errorf("question %s not found", questionID))
	})
	if err != nil {
		return types.McqReview{}, types.Workspace{}, err
	}
	return review, ws, nil
}

func (s *studyService) Chat(ctx context.Context, workspaceID string, sectionIndex int, text string) (types.Workspace, error) {
	if strings.TrimSpace(text) == "" {
		return types.Workspace{}, apierr.New(http.StatusBadRequest, "EMPTY_MESSAGE", fmt.Errorf("message text is required"))
	}
	_, section, err := s.resolve(workspaceID, sectionIndex)
	if err != nil {
		return types.Workspace{}, err
	}

	userTurn := types.Message{
		Role:      "user",
		Text:      text,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	reply, chatErr := s.synth.Chat(ctx, section.ChatHistory, section, text)
	if chatErr != nil {
		s.log.Warn("Tutor chat failed, replying with remediation", "workspace_id", workspaceID, "error", chatErr)
		reply = types.Message{
			Role:      "model",
			Text:      remediationText(chatErr),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
	}

	return s.mutateSection(workspaceID, sectionIndex, func(target *types.Section) error {
		target.ChatHistory = append(target.ChatHistory, userTurn, reply)
		if chatErr == nil {
			target.Mastery += masteryPerChatTurn
		}
		return nil
	})
}

func (s *studyService) GenerateSchedule(ctx context.Context, workspaceID string) ([]types.ScheduleItem, error) {
	ws, found := s.store.Get(workspaceID)
	if !found {
		return nil, apierr.New(http.StatusNotFound, "WORKSPACE_NOT_FOUND", fmt.Errorf("workspace %s not found", workspaceID))
	}
	return s.synth.GenerateSchedule(ctx, ws.Subject, ws.Sections), nil
}

func (s *studyService) Mindmap(workspaceID string, sectionIndex int) (string, error) {
	_, section, err := s.resolve(workspaceID, sectionIndex)
	if err != nil {
		return "", err
	}
	return sanitize.Mindmap(section.Mindmap), nil
}

func (s *studyService) UpdateMindmap(workspaceID string, sectionIndex int, chart string) (types.Workspace, error) {
	return s.mutateSection(workspaceID, sectionIndex, func(section *types.Section) error {
		section.Mindmap = sanitize.Mindmap(chart)
		return nil
	})
}

func (s *studyService) resolve(workspaceID string, sectionIndex int) (types.Workspace, types.Section, error) {
	ws, found := s.store.Get(workspaceID)
	if !found {
		return types.Workspace{}, types.Section{}, apierr.New(http.StatusNotFound, "WORKSPACE_NOT_FOUND", fmt.Errorf("workspace %s not found", workspaceID))
	}
	if sectionIndex < 0 || sectionIndex >= len(ws.Sections) {
		return types.Workspace{}, types.Section{}, apierr.New(http.StatusBadRequest, "SECTION_INDEX_OUT_OF_RANGE", fmt.Errorf("section index %d out of range", sectionIndex))
	}
	return ws, ws.Sections[sectionIndex], nil
}

// mutateSection re-reads the workspace, applies the mutation to a fresh copy
// of the indexed section, and commits the whole section slice through the
// store so stats recompute and persistence happen in one place.
func (s *studyService) mutateSection(workspaceID string, sectionIndex int, mutate func(section *types.Section) error) (types.Workspace, error) {
	ws, found := s.store.Get(workspaceID)
	if !found {
		return types.Workspace{}, apierr.New(http.StatusNotFound, "WORKSPACE_NOT_FOUND", fmt.Errorf("workspace %s not found", workspaceID))
	}
	if sectionIndex < 0 || sectionIndex >= len(ws.Sections) {
		return types.Workspace{}, apierr.New(http.StatusBadRequest, "SECTION_INDEX_OUT_OF_RANGE", fmt.Errorf("section index %d out of range", sectionIndex))
	}

	sections := ws.Sections
	if err := mutate(&sections[sectionIndex]); err != nil {
		return types.Workspace{}, err
	}
	return s.store.Update(workspaceID, store.WorkspacePatch{Sections: &sections})
}

// remediationText maps a gateway failure to learner-facing guidance.
func remediationText(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "Unsupported MIME type"):
		return "The current file format is not supported for direct visual analysis. DeepTutor is attempting text-only extraction."
	case errors.Is(err, gemini.ErrProxyUnavailable), strings.Contains(msg, "404"), strings.Contains(msg, "not found"):
		return "Neural gateway not found. Ensure the generation proxy is deployed."
	default:
		return "DeepTutor Engine Interrupted. Retrying progressive sync..."
	}
}
