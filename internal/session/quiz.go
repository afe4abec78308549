package session

import (
	"context"
	"errors"
	"fmt"

	"quizbank/internal/model"
)

// QuizState is the per-question state of a quiz or review session.
type QuizState int

const (
	// QuizPresenting shows the current question and accepts one selection.
	QuizPresenting QuizState = iota
	// QuizRevealed shows correctness for the current question; further
	// selections are no-ops until the session advances.
	QuizRevealed
	// QuizFinished is terminal.
	QuizFinished
)

func (s QuizState) String() string {
	switch s {
	case QuizPresenting:
		return "presenting"
	case QuizRevealed:
		return "revealed"
	case QuizFinished:
		return "finished"
	}
	return fmt.Sprintf("QuizState(%d)", int(s))
}

// Quiz is an immediate-feedback session. Each answer is revealed as soon
// as it is selected; wrong answers flag the question in the store. A quiz
// produces no result record, only per-question flag side effects.
type Quiz struct {
	questions   []model.Question
	flagger     Flagger
	review      bool
	idx         int
	state       QuizState
	lastCorrect bool
}

// NewQuiz starts an immediate-feedback quiz over the given questions.
// The question sequence is fixed for the life of the session.
func NewQuiz(questions []model.Question, flagger Flagger) (*Quiz, error) {
	if len(questions) == 0 {
		return nil, ErrEmptyPool
	}
	return &Quiz{questions: questions, flagger: flagger}, nil
}

// NewReview starts a review session. Review behaves like a quiz but adds
// the Master action for clearing a question's incorrect flag.
func NewReview(questions []model.Question, flagger Flagger) (*Quiz, error) {
	q, err := NewQuiz(questions, flagger)
	if err != nil {
		return nil, err
	}
	q.review = true
	return q, nil
}

// Select answers the current question. The first selection per question is
// accepted and moves the session to revealed; selecting again before
// advancing is a no-op that reports the recorded correctness. A wrong
// answer flags the question incorrect in the store; a flag failure is
// returned but the reveal stands.
func (q *Quiz) Select(ctx context.Context, option string) (bool, error) {
	if q.state != QuizPresenting {
		return q.lastCorrect, nil
	}
	current := q.questions[q.idx]
	q.lastCorrect = option == current.Answer
	q.state = QuizRevealed
	if !q.lastCorrect {
		if err := q.flagger.SetIncorrectFlag(ctx, current.ID, true); err != nil {
			return q.lastCorrect, fmt.Errorf("flag question %d incorrect: %w", current.ID, err)
		}
	}
	return q.lastCorrect, nil
}

// Master clears the current question's incorrect flag and advances without
// requiring an answer. Only review sessions offer it. A flag failure is
// returned but the session still advances.
func (q *Quiz) Master(ctx context.Context) error {
	if !q.review {
		return errors.New("master is only available in review sessions")
	}
	if q.state == QuizFinished {
		return nil
	}
	current := q.questions[q.idx]
	err := q.flagger.SetIncorrectFlag(ctx, current.ID, false)
	q.advance()
	if err != nil {
		return fmt.Errorf("clear incorrect flag on question %d: %w", current.ID, err)
	}
	return nil
}

// Advance moves past a revealed question to the next one, or finishes the
// session after the last. It does nothing while the current question is
// still unanswered.
func (q *Quiz) Advance() {
	if q.state != QuizRevealed {
		return
	}
	q.advance()
}

func (q *Quiz) advance() {
	if q.idx+1 >= len(q.questions) {
		q.state = QuizFinished
		return
	}
	q.idx++
	q.state = QuizPresenting
}

// Quit ends the session immediately, discarding the remaining questions.
func (q *Quiz) Quit() {
	q.state = QuizFinished
}

// State returns the session state for the current question.
func (q *Quiz) State() QuizState { return q.state }

// Review reports whether this is a review session.
func (q *Quiz) Review() bool { return q.review }

// Index returns the zero-based index of the current question.
func (q *Quiz) Index() int { return q.idx }

// Len returns the number of questions in the session.
func (q *Quiz) Len() int { return len(q.questions) }

// Current returns the current question. ok is false once the session has
// finished.
func (q *Quiz) Current() (model.Question, bool) {
	if q.state == QuizFinished {
		return model.Question{}, false
	}
	return q.questions[q.idx], true
}
