package types

const (
	CardLearning = "learning"
	CardMastered = "mastered"
)

type Flashcard struct {
	ID            string `json:"id"`
	Question      string `json:"question"`
	Answer        string `json:"answer"`
	IsAiSuggested bool   `json:"isAiSuggested,omitempty"`
	MasteryStatus string `json:"masteryStatus"` // learning | mastered
	FailureCount  int    `json:"failureCount"`
	Difficulty    string `json:"difficulty"` // easy | medium | hard
}

// PracticeQuestion is a single MCQ instance. Once answered it stays answered;
// reviewing requires generating a new instance.
type PracticeQuestion struct {
	ID              string   `json:"id"`
	Question        string   `json:"question"`
	Options         []string `json:"options"`
	CorrectIndex    int      `json:"correctIndex"`
	Explanation     string   `json:"explanation"`
	HasBeenAnswered bool     `json:"hasBeenAnswered"`
	WasCorrect      bool     `json:"wasCorrect"`
	DifficultyLevel int      `json:"difficultyLevel"` // 1-5
}

type LearningResource struct {
	Title    string   `json:"title"`
	Type     string   `json:"type"` // video | article | course | documentation
	Platform string   `json:"platform"`
	URL      string   `json:"url"`
	Reason   string   `json:"reason"`
	Score    *float64 `json:"score,omitempty"`
}

// McqReview is the always-populated outcome of evaluating an answered MCQ.
type McqReview struct {
	IsCorrect      bool   `json:"isCorrect"`
	Verdict        string `json:"verdict"`
	Explanation    string `json:"explanation"`
	CorrectOption  string `json:"correctOption"`
	SelectedOption string `json:"selectedOption"`
}
