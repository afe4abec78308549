package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"quizbank/internal/model"
)

// ExamState is the lifecycle state of an exam session.
type ExamState int

const (
	// ExamAnswering accepts selections and bidirectional navigation.
	ExamAnswering ExamState = iota
	// ExamGraded is terminal; the result has been computed.
	ExamGraded
)

func (s ExamState) String() string {
	switch s {
	case ExamAnswering:
		return "answering"
	case ExamGraded:
		return "graded"
	}
	return fmt.Sprintf("ExamState(%d)", int(s))
}

// Exam is a deferred-feedback session. Selections are recorded silently
// and can be revised until grading; correctness is revealed only in the
// final result.
type Exam struct {
	questions []model.Question
	answers   []model.SessionAnswer
	idx       int
	state     ExamState
	category  string
	startedAt time.Time
	result    model.SessionResult
}

// NewExam starts an exam over the given questions. The answer slots are
// created up front, one per question, all unanswered. An empty category is
// recorded as the all-categories sentinel.
func NewExam(questions []model.Question, category string) (*Exam, error) {
	if len(questions) == 0 {
		return nil, ErrEmptyPool
	}
	if category == "" {
		category = model.CategoryAll
	}
	answers := make([]model.SessionAnswer, len(questions))
	for i, q := range questions {
		answers[i] = model.SessionAnswer{QuestionID: q.ID}
	}
	return &Exam{
		questions: questions,
		answers:   answers,
		category:  category,
		startedAt: time.Now(),
	}, nil
}

// Select records the given option for the current question, overwriting
// any prior selection. Nothing is revealed. Selections after grading are
// ignored.
func (e *Exam) Select(option string) {
	if e.state != ExamAnswering {
		return
	}
	q := e.questions[e.idx]
	e.answers[e.idx] = model.SessionAnswer{
		QuestionID: q.ID,
		Selected:   option,
		Correct:    option == q.Answer,
	}
}

// Prev moves to the previous question, stopping at the first.
func (e *Exam) Prev() {
	if e.state != ExamAnswering {
		return
	}
	if e.idx > 0 {
		e.idx--
	}
}

// Next moves to the next question and reports whether it moved. It returns
// false on the last question; the caller should grade then.
func (e *Exam) Next() bool {
	if e.state != ExamAnswering || e.idx+1 >= len(e.questions) {
		return false
	}
	e.idx++
	return true
}

// Grade computes the session result from the recorded answers: unanswered
// questions count as wrong. It flags every wrong question in the store,
// appends the result to the ledger, and records the missed ids — all
// best-effort: their failures are joined into the returned error but the
// result is still produced and the session still completes. Grading twice
// returns the stored result without repeating the side effects.
func (e *Exam) Grade(ctx context.Context, flagger Flagger, ledger Ledger) (model.SessionResult, error) {
	if e.state == ExamGraded {
		return e.result, nil
	}

	correct := 0
	wrongIDs := make([]int64, 0, len(e.answers))
	for _, a := range e.answers {
		if a.Correct {
			correct++
		} else {
			wrongIDs = append(wrongIDs, a.QuestionID)
		}
	}

	e.result = model.SessionResult{
		ID:               uuid.NewString(),
		StartedAt:        e.startedAt,
		Category:         e.category,
		Total:            len(e.answers),
		CorrectCount:     correct,
		WrongQuestionIDs: wrongIDs,
	}
	e.state = ExamGraded

	var errs []error
	for _, id := range wrongIDs {
		if err := flagger.SetIncorrectFlag(ctx, id, true); err != nil {
			errs = append(errs, fmt.Errorf("flag question %d incorrect: %w", id, err))
		}
	}
	if err := ledger.Append(e.result); err != nil {
		errs = append(errs, fmt.Errorf("append result to history: %w", err))
	}
	if err := ledger.RecordMissed(wrongIDs); err != nil {
		errs = append(errs, fmt.Errorf("record missed questions: %w", err))
	}
	return e.result, errors.Join(errs...)
}

// State returns the exam lifecycle state.
func (e *Exam) State() ExamState { return e.state }

// Index returns the zero-based index of the current question.
func (e *Exam) Index() int { return e.idx }

// Len returns the number of questions in the exam.
func (e *Exam) Len() int { return len(e.questions) }

// Category returns the category the exam was drawn from.
func (e *Exam) Category() string { return e.category }

// Current returns the current question and the answer recorded for it.
func (e *Exam) Current() (model.Question, model.SessionAnswer) {
	return e.questions[e.idx], e.answers[e.idx]
}

// Answers returns a copy of the recorded answer sequence.
func (e *Exam) Answers() []model.SessionAnswer {
	out := make([]model.SessionAnswer, len(e.answers))
	copy(out, e.answers)
	return out
}
