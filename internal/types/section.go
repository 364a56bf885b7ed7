package types

const (
	SectionLocked     = "locked"
	SectionInProgress = "in-progress"
	SectionCompleted  = "completed"
)

type KeyTerm struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// LexiconEntry is a domain-vocabulary pair, distinct from KeyTerm glossary
// definitions: word-level usage rather than concept definition.
type LexiconEntry struct {
	Word    string `json:"word"`
	Meaning string `json:"meaning"`
}

type Formula struct {
	Label      string `json:"label"`
	Expression string `json:"expression"` // LaTeX without $$ wrappers
}

type Citation struct {
	Unit   string `json:"unit"`
	Source string `json:"source"`
}

type Message struct {
	Role           string     `json:"role"` // user | model
	Text           string     `json:"text"`
	Timestamp      string     `json:"timestamp"`
	GroundingScore *float64   `json:"groundingScore,omitempty"`
	IsExternal     *bool      `json:"isExternal,omitempty"`
	Citations      []Citation `json:"citations,omitempty"`
}

// Section is one topic unit of the curriculum. Mutated only by replacing the
// owning workspace's section slice.
type Section struct {
	ID                string             `json:"id"`
	Title             string             `json:"title"`
	Summary           string             `json:"summary"`
	DetailedSummary   string             `json:"detailedSummary"`
	Content           string             `json:"content"`
	KeyTerms          []KeyTerm          `json:"keyTerms"`
	Lexicon           []LexiconEntry     `json:"lexicon,omitempty"`
	Formulas          []Formula          `json:"formulas"`
	Mindmap           string             `json:"mindmap"`
	SourceReference   string             `json:"sourceReference"`
	Status            string             `json:"status"`
	Mastery           int                `json:"mastery"` // 0-100
	ChatHistory       []Message          `json:"chatHistory"`
	Flashcards        []Flashcard        `json:"flashcards"`
	PracticeQuestions []PracticeQuestion `json:"practiceQuestions"`
	Resources         []LearningResource `json:"resources,omitempty"`
	Dependencies      []string           `json:"dependencies"`
	IsSynthesized     bool               `json:"isSynthesized,omitempty"`
}

type ScheduleItem struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	DurationMinutes int    `json:"durationMinutes"`
	Focus           string `json:"focus"`
	Activity        string `json:"activity,omitempty"`
}
