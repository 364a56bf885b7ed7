package services

import (
	"context"
	"testing"

	"github.com/yungbote/deeptutor-backend/internal/gemini"
	"github.com/yungbote/deeptutor-backend/internal/logger"
	"github.com/yungbote/deeptutor-backend/internal/sanitize"
	"github.com/yungbote/deeptutor-backend/internal/store"
	"github.com/yungbote/deeptutor-backend/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("production")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func newTestStore(t *testing.T) *store.WorkspaceStore {
	t.Helper()
	s, err := store.NewWorkspaceStore(testLogger(t), nil)
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	return s
}

// fakeAI scripts the generation gateway with one function.
type fakeAI struct {
	generate func(req gemini.Request) (gemini.Response, error)
	calls    int
	lastReq  gemini.Request
}

func (f *fakeAI) Generate(ctx context.Context, req gemini.Request) (gemini.Response, error) {
	f.calls++
	f.lastReq = req
	return f.generate(req)
}

// jsonResponse builds a gateway response the way the real client would: raw
// text plus the sanitized value.
func jsonResponse(t *testing.T, raw string) gemini.Response {
	t.Helper()
	res := sanitize.RecoverJSON(raw)
	if !res.OK {
		t.Fatalf("test fixture is not recoverable JSON: %s", raw)
	}
	return gemini.Response{Text: raw, Data: res}
}

// fakeSynth scripts the synthesizer seam for orchestrator and study tests.
// Unset operations return zero values.
type fakeSynth struct {
	discover   func(att types.FileAttachment) ([]types.Section, error)
	synthesize func(section types.Section) (UnitBundle, error)
	followups  func(section types.Section, difficulty int) []types.PracticeQuestion
	evaluate   func(question types.PracticeQuestion, selectedIndex int) types.McqReview
	chat       func(history []types.Message, section types.Section, input string) (types.Message, error)
	schedule   func(subject string, sections []types.Section) []types.ScheduleItem
}

func (f *fakeSynth) DiscoverStructure(ctx context.Context, att types.FileAttachment) ([]types.Section, error) {
	if f.discover == nil {
		return nil, nil
	}
	return f.discover(att)
}

func (f *fakeSynth) SynthesizeUnit(ctx context.Context, section types.Section, att *types.FileAttachment) (UnitBundle, error) {
	if f.synthesize == nil {
		return UnitBundle{}, nil
	}
	return f.synthesize(section)
}

func (f *fakeSynth) GenerateFollowupQuestions(ctx context.Context, section types.Section, difficulty int) []types.PracticeQuestion {
	if f.followups == nil {
		return nil
	}
	return f.followups(section, difficulty)
}

func (f *fakeSynth) EvaluateAnswer(ctx context.Context, question types.PracticeQuestion, selectedIndex int, section types.Section) types.McqReview {
	if f.evaluate == nil {
		return localReview(question, selectedIndex)
	}
	return f.evaluate(question, selectedIndex)
}

func (f *fakeSynth) Chat(ctx context.Context, history []types.Message, section types.Section, userInput string) (types.Message, error) {
	if f.chat == nil {
		return types.Message{Role: "model", Text: "ok"}, nil
	}
	return f.chat(history, section, userInput)
}

func (f *fakeSynth) GenerateSchedule(ctx context.Context, subject string, sections []types.Section) []types.ScheduleItem {
	if f.schedule == nil {
		return nil
	}
	return f.schedule(subject, sections)
}

func seedWorkspace(t *testing.T, st *store.WorkspaceStore, sections []types.Section) types.Workspace {
	t.Helper()
	ws := types.NewWorkspace(types.FileAttachment{
		Data:     "aGVsbG8=",
		MimeType: "text/plain",
		Name:     "calculus.txt",
	}, sections)
	st.Add(ws)
	committed, ok := st.Get(ws.FileInfo.ID)
	if !ok {
		t.Fatalf("seed workspace not committed")
	}
	return committed
}
