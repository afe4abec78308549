package model

import (
	"fmt"
	"slices"
	"time"
)

// CategoryAll is the category value recorded when a session draws from the
// whole pool instead of a single category.
const CategoryAll = "all"

// Question represents a stored multiple-choice question.
type Question struct {
	ID          int64     `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Text        string    `json:"question"`
	Options     []string  `json:"options"`
	Answer      string    `json:"answer"`
	Explanation string    `json:"explanation"`
	Category    string    `json:"category"`
	IsIncorrect bool      `json:"is_incorrect"`
}

// QuestionDraft is a question awaiting persistence. Drafts come from manual
// entry or the bulk text parser; the parser leaves Category empty and the
// caller injects one for the whole batch.
type QuestionDraft struct {
	Text        string   `json:"question"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation"`
	Category    string   `json:"category"`
}

// Validate checks the draft invariants: at least two options and an answer
// that is one of them.
func (d QuestionDraft) Validate() error {
	if d.Text == "" {
		return fmt.Errorf("question text is empty")
	}
	if len(d.Options) < 2 {
		return fmt.Errorf("question needs at least 2 options, got %d", len(d.Options))
	}
	if !slices.Contains(d.Options, d.Answer) {
		return fmt.Errorf("answer %q is not one of the options", d.Answer)
	}
	return nil
}

// SessionAnswer records one answer slot in a session. Selected is empty
// until the user picks an option; Correct is computed at selection time.
type SessionAnswer struct {
	QuestionID int64  `json:"question_id"`
	Selected   string `json:"selected"`
	Correct    bool   `json:"correct"`
}

// SessionResult summarizes a finished exam session. It is created once at
// grading time and never mutated afterward.
type SessionResult struct {
	ID               string    `json:"id"`
	StartedAt        time.Time `json:"started_at"`
	Category         string    `json:"category"`
	Total            int       `json:"total"`
	CorrectCount     int       `json:"correct"`
	WrongQuestionIDs []int64   `json:"wrong_ids"`
}
