package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yungbote/deeptutor-backend/internal/types"
)

func studySections() []types.Section {
	return []types.Section{{
		ID:      "sec-1",
		Title:   "Limits",
		Content: "theory body",
		Mindmap: "mindmap\nRoot\n    Child",
		Flashcards: []types.Flashcard{
			{ID: "card-1", Question: "q", Answer: "a", MasteryStatus: types.CardLearning},
			{ID: "card-2", Question: "q2", Answer: "a2", MasteryStatus: types.CardMastered},
		},
		PracticeQuestions: []types.PracticeQuestion{
			{ID: "mcq-1", Question: "2+2?", Options: []string{"3", "4"}, CorrectIndex: 1, Explanation: "arith"},
			{ID: "mcq-2", Question: "3+3?", Options: []string{"6", "7"}, CorrectIndex: 0, Explanation: "arith"},
		},
	}}
}

func newStudyService(t *testing.T, synth SynthesizerService) (StudyService, types.Workspace) {
	t.Helper()
	st := newTestStore(t)
	ws := seedWorkspace(t, st, studySections())
	return NewStudyService(testLogger(t), st, synth), ws
}

func TestAddAndDeleteFlashcard(t *testing.T) {
	svc, ws := newStudyService(t, &fakeSynth{})

	updated, err := svc.AddFlashcard(context.Background(), ws.FileInfo.ID, 0, FlashcardInput{Question: "new q", Answer: "new a"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	cards := updated.Sections[0].Flashcards
	if len(cards) != 3 {
		t.Fatalf("cards = %d, want 3", len(cards))
	}
	added := cards[2]
	if added.IsAiSuggested {
		t.Fatalf("manual card must not be flagged ai-suggested")
	}
	if added.MasteryStatus != types.CardLearning {
		t.Fatalf("new card status = %q, want learning", added.MasteryStatus)
	}

	updated, err = svc.DeleteFlashcard(context.Background(), ws.FileInfo.ID, 0, added.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(updated.Sections[0].Flashcards) != 2 {
		t.Fatalf("delete did not remove the card")
	}

	if _, err = svc.DeleteFlashcard(context.Background(), ws.FileInfo.ID, 0, "ghost"); err == nil {
		t.Fatalf("expected error deleting unknown card")
	}
}

func TestAddFlashcardRejectsBlanks(t *testing.T) {
	svc, ws := newStudyService(t, &fakeSynth{})
	if _, err := svc.AddFlashcard(context.Background(), ws.FileInfo.ID, 0, FlashcardInput{Question: " ", Answer: "a"}); err == nil {
		t.Fatalf("expected error for blank question")
	}
}

func TestFlashcardStatusTransitions(t *testing.T) {
	svc, ws := newStudyService(t, &fakeSynth{})

	// learning -> mastered: no failure recorded.
	updated, err := svc.SetFlashcardStatus(context.Background(), ws.FileInfo.ID, 0, "card-1", types.CardMastered)
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if updated.Sections[0].Flashcards[0].FailureCount != 0 {
		t.Fatalf("promotion must not count as a failure")
	}
	// Both cards mastered now: retained hits 100.
	if updated.CoverageStats.Retained != 100 {
		t.Fatalf("retained = %d, want 100", updated.CoverageStats.Retained)
	}

	// mastered -> learning: failure recorded.
	updated, err = svc.SetFlashcardStatus(context.Background(), ws.FileInfo.ID, 0, "card-2", types.CardLearning)
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if updated.Sections[0].Flashcards[1].FailureCount != 1 {
		t.Fatalf("failureCount = %d, want 1 after dropping back", updated.Sections[0].Flashcards[1].FailureCount)
	}
	if updated.CoverageStats.Retained != 50 {
		t.Fatalf("retained = %d, want 50", updated.CoverageStats.Retained)
	}

	if _, err = svc.SetFlashcardStatus(context.Background(), ws.FileInfo.ID, 0, "card-1", "perfected"); err == nil {
		t.Fatalf("expected error for invalid status value")
	}
}

func TestAnswerQuestionCorrect(t *testing.T) {
	svc, ws := newStudyService(t, &fakeSynth{})

	review, updated, err := svc.AnswerQuestion(context.Background(), ws.FileInfo.ID, 0, "mcq-1", 1)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !review.IsCorrect {
		t.Fatalf("expected correct review")
	}
	q := updated.Sections[0].PracticeQuestions[0]
	if !q.HasBeenAnswered || !q.WasCorrect {
		t.Fatalf("question state not recorded: %+v", q)
	}
	if updated.Sections[0].Mastery != masteryPerCorrectMCQ {
		t.Fatalf("mastery = %d, want +%d", updated.Sections[0].Mastery, masteryPerCorrectMCQ)
	}
	if updated.CoverageStats.Validated != 50 {
		t.Fatalf("validated = %d, want 50", updated.CoverageStats.Validated)
	}

	// Answered means answered.
	if _, _, err := svc.AnswerQuestion(context.Background(), ws.FileInfo.ID, 0, "mcq-1", 1); err == nil {
		t.Fatalf("expected conflict answering the same instance twice")
	}
}

func TestAnswerQuestionIncorrectGivesNoMastery(t *testing.T) {
	svc, ws := newStudyService(t, &fakeSynth{})

	review, updated, err := svc.AnswerQuestion(context.Background(), ws.FileInfo.ID, 0, "mcq-1", 0)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if review.IsCorrect {
		t.Fatalf("expected incorrect review")
	}
	if updated.Sections[0].Mastery != 0 {
		t.Fatalf("mastery = %d, want unchanged", updated.Sections[0].Mastery)
	}
	if updated.CoverageStats.Validated != 0 {
		t.Fatalf("wrong answers must not count as validated")
	}
}

func TestChatAppendsTurnsAndMastery(t *testing.T) {
	synth := &fakeSynth{chat: func(history []types.Message, section types.Section, input string) (types.Message, error) {
		return types.Message{Role: "model", Text: "a limit is an approach", Timestamp: "now"}, nil
	}}
	svc, ws := newStudyService(t, synth)

	updated, err := svc.Chat(context.Background(), ws.FileInfo.ID, 0, "what is a limit?")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	history := updated.Sections[0].ChatHistory
	if len(history) != 2 {
		t.Fatalf("history = %d turns, want user+model", len(history))
	}
	if history[0].Role != "user" || history[1].Role != "model" {
		t.Fatalf("turn roles wrong: %+v", history)
	}
	if updated.Sections[0].Mastery != masteryPerChatTurn {
		t.Fatalf("mastery = %d, want +%d", updated.Sections[0].Mastery, masteryPerChatTurn)
	}
}

func TestChatFailureAppendsRemediation(t *testing.T) {
	synth := &fakeSynth{chat: func(history []types.Message, section types.Section, input string) (types.Message, error) {
		return types.Message{}, errors.New("boom")
	}}
	svc, ws := newStudyService(t, synth)

	updated, err := svc.Chat(context.Background(), ws.FileInfo.ID, 0, "hello?")
	if err != nil {
		t.Fatalf("chat failure must not error outward: %v", err)
	}
	history := updated.Sections[0].ChatHistory
	if len(history) != 2 {
		t.Fatalf("history = %d turns, want user turn plus remediation", len(history))
	}
	if !strings.Contains(history[1].Text, "DeepTutor Engine Interrupted") {
		t.Fatalf("remediation text missing: %q", history[1].Text)
	}
	if updated.Sections[0].Mastery != 0 {
		t.Fatalf("failed chat must not grant mastery")
	}
}

func TestGenerateQuestionsKeepsSetOnFailure(t *testing.T) {
	synth := &fakeSynth{followups: func(section types.Section, difficulty int) []types.PracticeQuestion {
		return nil
	}}
	svc, ws := newStudyService(t, synth)

	updated, err := svc.GenerateQuestions(context.Background(), ws.FileInfo.ID, 0, 3)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(updated.Sections[0].PracticeQuestions) != 2 {
		t.Fatalf("existing question set must survive an empty batch")
	}
}

func TestGenerateQuestionsAppendsBatch(t *testing.T) {
	synth := &fakeSynth{followups: func(section types.Section, difficulty int) []types.PracticeQuestion {
		return []types.PracticeQuestion{{ID: "mcq-3", Question: "new", Options: []string{"A", "B"}, DifficultyLevel: difficulty}}
	}}
	svc, ws := newStudyService(t, synth)

	updated, err := svc.GenerateQuestions(context.Background(), ws.FileInfo.ID, 0, 5)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	questions := updated.Sections[0].PracticeQuestions
	if len(questions) != 3 {
		t.Fatalf("questions = %d, want appended batch", len(questions))
	}
	if questions[2].DifficultyLevel != 5 {
		t.Fatalf("difficulty not forwarded")
	}
}

func TestMindmapEndpointSanitizes(t *testing.T) {
	svc, ws := newStudyService(t, &fakeSynth{})

	chart, err := svc.Mindmap(ws.FileInfo.ID, 0)
	if err != nil {
		t.Fatalf("mindmap: %v", err)
	}
	if !strings.HasPrefix(chart, "mindmap\n") {
		t.Fatalf("chart missing header:\n%s", chart)
	}

	if _, err := svc.Mindmap(ws.FileInfo.ID, 9); err == nil {
		t.Fatalf("expected error for out-of-range section")
	}
}

func TestUpdateMindmapStoresSanitizedChart(t *testing.T) {
	svc, ws := newStudyService(t, &fakeSynth{})

	edited := "```mermaid\nmindmap\nRoot\n  Child(label)\n```"
	updated, err := svc.UpdateMindmap(ws.FileInfo.ID, 0, edited)
	if err != nil {
		t.Fatalf("update mindmap: %v", err)
	}
	stored := updated.Sections[0].Mindmap
	if !strings.HasPrefix(stored, "mindmap\n") {
		t.Fatalf("stored chart missing header:\n%s", stored)
	}
	if strings.Contains(stored, "```") || strings.Contains(stored, "(") {
		t.Fatalf("stored chart not sanitized:\n%s", stored)
	}

	chart, err := svc.Mindmap(ws.FileInfo.ID, 0)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(chart, "Child") {
		t.Fatalf("edit did not survive the round trip:\n%s", chart)
	}

	if _, err := svc.UpdateMindmap(ws.FileInfo.ID, 9, edited); err == nil {
		t.Fatalf("expected error for out-of-range section")
	}
}

func TestGenerateScheduleDelegates(t *testing.T) {
	synth := &fakeSynth{schedule: func(subject string, sections []types.Section) []types.ScheduleItem {
		if subject == "" || len(sections) == 0 {
			return nil
		}
		return []types.ScheduleItem{{ID: "sched-1", Title: "Session", DurationMinutes: 25}}
	}}
	svc, ws := newStudyService(t, synth)

	items, err := svc.GenerateSchedule(context.Background(), ws.FileInfo.ID)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if _, err := svc.GenerateSchedule(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error for unknown workspace")
	}
}
