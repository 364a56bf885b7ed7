package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/deeptutor-backend/internal/gemini"
	"github.com/yungbote/deeptutor-backend/internal/logger"
	"github.com/yungbote/deeptutor-backend/internal/sanitize"
	"github.com/yungbote/deeptutor-backend/internal/types"
)

const (
	flashcardCount     = 5
	questionCount      = 5
	maxResourceCount   = 3
	resourceScore      = 0.9
	defaultQuestion    = 3
	chatContextChars   = 1500
	scheduleSessionLen = 25
)

var defaultOptions = []string{"A", "B", "C", "D"}

// UnitBundle is the complete enrichment for one section, produced by a single
// model round trip and already normalized to fixed counts and fresh IDs.
type UnitBundle struct {
	Summary    string
	Content    string
	KeyTerms   []types.KeyTerm
	Lexicon    []types.LexiconEntry
	Formulas   []types.Formula
	Mindmap    string
	Flashcards []types.Flashcard
	Questions  []types.PracticeQuestion
	Difficulty string
	Resources  []types.LearningResource
}

type SynthesizerService interface {
	DiscoverStructure(ctx context.Context, attachment types.FileAttachment) ([]types.Section, error)
	SynthesizeUnit(ctx context.Context, section types.Section, attachment *types.FileAttachment) (UnitBundle, error)
	GenerateFollowupQuestions(ctx context.Context, section types.Section, difficulty int) []types.PracticeQuestion
	EvaluateAnswer(ctx context.Context, question types.PracticeQuestion, selectedIndex int, section types.Section) types.McqReview
	Chat(ctx context.Context, history []types.Message, section types.Section, userInput string) (types.Message, error)
	GenerateSchedule(ctx context.Context, subject string, sections []types.Section) []types.ScheduleItem
}

type synthesizerService struct {
	log *logger.Logger
	ai  gemini.Client
}

func NewSynthesizerService(baseLog *logger.Logger, ai gemini.Client) SynthesizerService {
	return &synthesizerService{
		log: baseLog.With("service", "SynthesizerService"),
		ai:  ai,
	}
}

// DiscoverStructure runs the fast structural pass over the uploaded document
// and returns skeleton sections with theory withheld for later enrichment.
func (s *synthesizerService) DiscoverStructure(ctx context.Context, attachment types.FileAttachment) ([]types.Section, error) {
	prompt := `INSTANT STRUCTURE. Identify 6-8 logical units in the attached document.
JSON: [{"title": "...", "summary": "brief description", "sourceRange": "pages/slides", "dependencies": []}]`

	resp, err := s.ai.Generate(ctx, gemini.Request{
		Prompt:       prompt,
		Attachment:   &attachment,
		ModelTier:    gemini.TierFlash,
		ResponseType: gemini.ResponseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("discover structure: %w", err)
	}

	raw, ok := resp.Data.AsSlice()
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("discover structure: model returned no units")
	}

	sections := make([]types.Section, 0, len(raw))
	for _, member := range raw {
		unit := asMap(member)
		if unit == nil {
			continue
		}
		sections = append(sections, types.Section{
			ID:              uuid.NewString(),
			Title:           strField(unit, "title", "Untitled Unit"),
			Summary:         strField(unit, "summary", ""),
			SourceReference: strField(unit, "sourceRange", strField(unit, "sourceReference", "")),
			Dependencies:    strSliceField(unit, "dependencies"),
			Status:          types.SectionLocked,
		})
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("discover structure: no usable units in model output")
	}

	s.log.Info("Discovered document structure", "units", len(sections), "file", attachment.Name)
	return sections, nil
}

// SynthesizeUnit produces the full enrichment for one section in a single
// round trip. Output is normalized: exactly the fixed number of flashcards and
// practice questions, at most maxResourceCount resources.
func (s *synthesizerService) SynthesizeUnit(ctx context.Context, section types.Section, attachment *types.FileAttachment) (UnitBundle, error) {
	prompt := fmt.Sprintf(`FULL UNIT SYNTHESIS for section: %q.
Return JSON: {
  "summary": "Academic summary",
  "content": "Comprehensive theory in Markdown",
  "definitions": [{"term": "...", "definition": "..."}],
  "lexicon": [{"word": "...", "meaning": "..."}],
  "axioms": [{"label": "...", "expression": "LaTeX without $$ wrappers"}],
  "mindmap": "Mermaid mindmap syntax ONLY. Start with \"mindmap\".",
  "flashcards": [{"question": "...", "answer": "..."}] (exactly %d),
  "questions": [{"question": "...", "options": ["...", "..."], "correctIndex": 0, "explanation": "..."}] (exactly %d),
  "difficulty": "Beginner|Intermediate|Advanced",
  "resources": [{"title": "...", "type": "...", "platform": "...", "url": "...", "reason": "..."}] (up to %d authoritative clickable links)
}`, section.Title, flashcardCount, questionCount, maxResourceCount)

	// The bundle folds resource search into the same round trip, so this call
	// runs on the pro tier with the search tool attached. All other structured
	// calls stay on flash without tools.
	resp, err := s.ai.Generate(ctx, gemini.Request{
		Prompt:       prompt,
		Attachment:   attachment,
		ModelTier:    gemini.TierPro,
		ResponseType: gemini.ResponseJSON,
		UseSearch:    true,
	})
	if err != nil {
		return UnitBundle{}, fmt.Errorf("synthesize unit %q: %w", section.Title, err)
	}

	payload, ok := resp.Data.AsMap()
	if !ok {
		return UnitBundle{}, fmt.Errorf("synthesize unit %q: model returned non-object payload", section.Title)
	}

	bundle := UnitBundle{
		Summary:    strField(payload, "summary", section.Summary),
		Content:    strField(payload, "content", ""),
		KeyTerms:   coerceKeyTerms(payload["definitions"]),
		Lexicon:    coerceLexicon(payload["lexicon"]),
		Formulas:   coerceFormulas(payload["axioms"]),
		Mindmap:    sanitize.Mindmap(strField(payload, "mindmap", "")),
		Difficulty: normalizeDifficultyLabel(strField(payload, "difficulty", "")),
	}
	bundle.Flashcards = normalizeFlashcards(coerceFlashcards(payload["flashcards"]), bundle.KeyTerms, section.Title, bundle.Difficulty)
	bundle.Questions = normalizeQuestions(coerceQuestions(payload["questions"], defaultQuestion), section.Title)
	bundle.Resources = coerceResources(payload["resources"])

	if bundle.Content == "" {
		return UnitBundle{}, fmt.Errorf("synthesize unit %q: model returned empty content", section.Title)
	}
	return bundle, nil
}

// GenerateFollowupQuestions returns a fresh MCQ batch at the requested
// difficulty. Failures degrade to an empty slice so the caller keeps the
// already-answered set intact.
func (s *synthesizerService) GenerateFollowupQuestions(ctx context.Context, section types.Section, difficulty int) []types.PracticeQuestion {
	if difficulty < 1 || difficulty > 5 {
		difficulty = defaultQuestion
	}
	prompt := fmt.Sprintf(`Generate %d challenging MCQs for: %s. Difficulty %d/5. JSON Array: [{question, options, correctIndex, explanation}]`,
		questionCount, section.Title, difficulty)

	resp, err := s.ai.Generate(ctx, gemini.Request{
		Prompt:       prompt,
		ModelTier:    gemini.TierFlash,
		ResponseType: gemini.ResponseJSON,
	})
	if err != nil {
		s.log.Warn("Follow-up question generation failed", "section", section.Title, "error", err)
		return nil
	}
	questions := coerceQuestions(resp.Data.Value, difficulty)
	if len(questions) == 0 {
		s.log.Warn("Follow-up question batch was empty", "section", section.Title)
	}
	return questions
}

// EvaluateAnswer grades one MCQ attempt. Correctness is decided locally from
// the stored index; the model only narrates the explanation, and when it is
// unreachable the review falls back to the question's own explanation so the
// caller always receives a populated verdict.
func (s *synthesizerService) EvaluateAnswer(ctx context.Context, question types.PracticeQuestion, selectedIndex int, section types.Section) types.McqReview {
	review := localReview(question, selectedIndex)

	prompt := fmt.Sprintf(`Review this multiple-choice attempt for the unit %q.
Question: %s
Options: %s
Correct option: %s
Selected option: %s
The selection is %s.
JSON: {"verdict": "one short sentence", "explanation": "why the correct option is right"}`,
		section.Title,
		question.Question,
		strings.Join(question.Options, " | "),
		review.CorrectOption,
		review.SelectedOption,
		map[bool]string{true: "correct", false: "incorrect"}[review.IsCorrect])

	resp, err := s.ai.Generate(ctx, gemini.Request{
		Prompt:       prompt,
		ModelTier:    gemini.TierFlash,
		ResponseType: gemini.ResponseJSON,
	})
	if err != nil {
		s.log.Warn("Answer evaluation fell back to local review", "section", section.Title, "error", err)
		return review
	}
	payload, ok := resp.Data.AsMap()
	if !ok {
		return review
	}
	review.Verdict = strField(payload, "verdict", review.Verdict)
	review.Explanation = strField(payload, "explanation", review.Explanation)
	return review
}

// Chat answers a learner message grounded in the active section's theory.
func (s *synthesizerService) Chat(ctx context.Context, history []types.Message, section types.Section, userInput string) (types.Message, error) {
	contextText := section.Content
	if len(contextText) > chatContextChars {
		contextText = contextText[:chatContextChars]
	}
	prompt := fmt.Sprintf(`Answer based on: %s.
Context: %s.
User question: %s
JSON: { "text": "...", "isExternal": boolean, "groundingScore": number, "citations": [] }`,
		section.Title, contextText, userInput)

	resp, err := s.ai.Generate(ctx, gemini.Request{
		Prompt:       prompt,
		History:      history,
		ModelTier:    gemini.TierFlash,
		ResponseType: gemini.ResponseJSON,
	})
	if err != nil {
		return types.Message{}, fmt.Errorf("chat for section %q: %w", section.Title, err)
	}

	payload, ok := resp.Data.AsMap()
	if !ok {
		return types.Message{}, fmt.Errorf("chat for section %q: malformed reply", section.Title)
	}

	msg := types.Message{
		Role:      "model",
		Text:      strField(payload, "text", ""),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if msg.Text == "" {
		return types.Message{}, fmt.Errorf("chat for section %q: empty reply text", section.Title)
	}
	if _, present := payload["groundingScore"]; present {
		score := floatField(payload, "groundingScore", 0)
		msg.GroundingScore = &score
	}
	if _, present := payload["isExternal"]; present {
		external := boolField(payload, "isExternal", false)
		msg.IsExternal = &external
	}
	msg.Citations = coerceCitations(payload["citations"])
	return msg, nil
}

// GenerateSchedule builds the seven-session study plan. Failures degrade to an
// empty plan rather than blocking the workspace.
func (s *synthesizerService) GenerateSchedule(ctx context.Context, subject string, sections []types.Section) []types.ScheduleItem {
	titles := make([]string, 0, len(sections))
	for _, section := range sections {
		titles = append(titles, section.Title)
	}
	prompt := fmt.Sprintf(`STUDY PLAN for: %s. Units: %s. 7 sessions. JSON Array: [{title, durationMinutes, focus, activity}]`,
		subject, strings.Join(titles, "; "))

	resp, err := s.ai.Generate(ctx, gemini.Request{
		Prompt:       prompt,
		ModelTier:    gemini.TierFlash,
		ResponseType: gemini.ResponseJSON,
	})
	if err != nil {
		s.log.Warn("Schedule generation failed", "subject", subject, "error", err)
		return nil
	}
	raw, ok := resp.Data.AsSlice()
	if !ok {
		return nil
	}

	items := make([]types.ScheduleItem, 0, len(raw))
	for _, member := range raw {
		session := asMap(member)
		if session == nil {
			continue
		}
		items = append(items, types.ScheduleItem{
			ID:              uuid.NewString(),
			Title:           strField(session, "title", "Study Session"),
			DurationMinutes: intField(session, "durationMinutes", scheduleSessionLen),
			Focus:           strField(session, "focus", ""),
			Activity:        strField(session, "activity", ""),
		})
	}
	return items
}

func localReview(question types.PracticeQuestion, selectedIndex int) types.McqReview {
	review := types.McqReview{
		IsCorrect:      selectedIndex == question.CorrectIndex,
		CorrectOption:  optionAt(question.Options, question.CorrectIndex),
		SelectedOption: optionAt(question.Options, selectedIndex),
		Explanation:    question.Explanation,
	}
	if review.IsCorrect {
		review.Verdict = "Correct."
	} else {
		review.Verdict = "Not quite."
	}
	if review.Explanation == "" {
		review.Explanation = fmt.Sprintf("The correct answer is %s.", review.CorrectOption)
	}
	return review
}

func optionAt(options []string, index int) string {
	if index < 0 || index >= len(options) {
		return "(none)"
	}
	return options[index]
}

func coerceKeyTerms(v any) []types.KeyTerm {
	raw := asSlice(v)
	terms := make([]types.KeyTerm, 0, len(raw))
	for _, member := range raw {
		entry := asMap(member)
		if entry == nil {
			continue
		}
		term := strField(entry, "term", "")
		if term == "" {
			continue
		}
		terms = append(terms, types.KeyTerm{
			Term:       term,
			Definition: strField(entry, "definition", ""),
		})
	}
	return terms
}

func coerceLexicon(v any) []types.LexiconEntry {
	raw := asSlice(v)
	entries := make([]types.LexiconEntry, 0, len(raw))
	for _, member := range raw {
		entry := asMap(member)
		if entry == nil {
			continue
		}
		word := strField(entry, "word", strField(entry, "term", ""))
		if word == "" {
			continue
		}
		entries = append(entries, types.LexiconEntry{
			Word:    word,
			Meaning: strField(entry, "meaning", strField(entry, "definition", "")),
		})
	}
	return entries
}

func coerceFormulas(v any) []types.Formula {
	raw := asSlice(v)
	formulas := make([]types.Formula, 0, len(raw))
	for _, member := range raw {
		entry := asMap(member)
		if entry == nil {
			continue
		}
		expression := strField(entry, "expression", "")
		if expression == "" {
			continue
		}
		formulas = append(formulas, types.Formula{
			Label:      strField(entry, "label", ""),
			Expression: expression,
		})
	}
	return formulas
}

func coerceFlashcards(v any) []types.Flashcard {
	raw := asSlice(v)
	cards := make([]types.Flashcard, 0, len(raw))
	for _, member := range raw {
		entry := asMap(member)
		if entry == nil {
			continue
		}
		question := strField(entry, "question", "")
		answer := strField(entry, "answer", "")
		if question == "" || answer == "" {
			continue
		}
		cards = append(cards, types.Flashcard{
			ID:            uuid.NewString(),
			Question:      question,
			Answer:        answer,
			IsAiSuggested: true,
			MasteryStatus: types.CardLearning,
			FailureCount:  0,
		})
	}
	return cards
}

func normalizeDifficultyLabel(label string) string {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "easy":
		return "easy"
	case "hard":
		return "hard"
	default:
		return "medium"
	}
}

// normalizeFlashcards pads or truncates the generated deck to the fixed size
// and stamps every card with the unit's difficulty label. Padding draws on key
// terms first, then generic review prompts, so a short model batch still
// yields a usable deck.
func normalizeFlashcards(cards []types.Flashcard, terms []types.KeyTerm, sectionTitle, difficulty string) []types.Flashcard {
	if len(cards) > flashcardCount {
		cards = cards[:flashcardCount]
	}
	for i := 0; len(cards) < flashcardCount; i++ {
		card := types.Flashcard{
			ID:            uuid.NewString(),
			IsAiSuggested: true,
			MasteryStatus: types.CardLearning,
		}
		if i < len(terms) {
			card.Question = fmt.Sprintf("Define: %s", terms[i].Term)
			card.Answer = terms[i].Definition
		} else {
			card.Question = fmt.Sprintf("Summarize a core idea from %q.", sectionTitle)
			card.Answer = "Review the unit theory and restate one central concept in your own words."
		}
		cards = append(cards, card)
	}
	for i := range cards {
		cards[i].Difficulty = difficulty
	}
	return cards
}

func coerceQuestions(v any, difficulty int) []types.PracticeQuestion {
	raw := asSlice(v)
	questions := make([]types.PracticeQuestion, 0, len(raw))
	for _, member := range raw {
		entry := asMap(member)
		if entry == nil {
			continue
		}
		text := strField(entry, "question", "")
		if text == "" {
			continue
		}
		options := strSliceField(entry, "options")
		if len(options) == 0 {
			options = append([]string(nil), defaultOptions...)
		}
		correct := intField(entry, "correctIndex", 0)
		if correct < 0 || correct >= len(options) {
			correct = 0
		}
		questions = append(questions, types.PracticeQuestion{
			ID:              uuid.NewString(),
			Question:        text,
			Options:         options,
			CorrectIndex:    correct,
			Explanation:     strField(entry, "explanation", ""),
			HasBeenAnswered: false,
			DifficultyLevel: intField(entry, "difficultyLevel", difficulty),
		})
	}
	return questions
}

func normalizeQuestions(questions []types.PracticeQuestion, sectionTitle string) []types.PracticeQuestion {
	if len(questions) > questionCount {
		return questions[:questionCount]
	}
	for len(questions) < questionCount {
		questions = append(questions, types.PracticeQuestion{
			ID:              uuid.NewString(),
			Question:        fmt.Sprintf("Which statement best reflects the core material of %q?", sectionTitle),
			Options:         append([]string(nil), defaultOptions...),
			CorrectIndex:    0,
			Explanation:     "Revisit the unit theory to confirm the central claim.",
			DifficultyLevel: defaultQuestion,
		})
	}
	return questions
}

func coerceResources(v any) []types.LearningResource {
	raw := asSlice(v)
	resources := make([]types.LearningResource, 0, maxResourceCount)
	for _, member := range raw {
		if len(resources) == maxResourceCount {
			break
		}
		entry := asMap(member)
		if entry == nil {
			continue
		}
		url := strField(entry, "url", "")
		if url == "" {
			continue
		}
		score := resourceScore
		resources = append(resources, types.LearningResource{
			Title:    strField(entry, "title", "Learning Resource"),
			Type:     strField(entry, "type", "article"),
			Platform: strField(entry, "platform", ""),
			URL:      url,
			Reason:   strField(entry, "reason", ""),
			Score:    &score,
		})
	}
	return resources
}

func coerceCitations(v any) []types.Citation {
	raw := asSlice(v)
	citations := make([]types.Citation, 0, len(raw))
	for _, member := range raw {
		entry := asMap(member)
		if entry == nil {
			continue
		}
		source := strField(entry, "source", strField(entry, "url", ""))
		if source == "" {
			continue
		}
		citations = append(citations, types.Citation{
			Unit:   strField(entry, "unit", strField(entry, "title", "")),
			Source: source,
		})
	}
	return citations
}
