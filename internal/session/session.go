// Package session drives quiz, review, and exam sessions over a fixed
// question sequence. A session owns its state explicitly; callers feed it
// user actions and it reports what to show next. Store and ledger failures
// are surfaced to the caller but never roll back session state.
package session

import (
	"context"
	"errors"

	"quizbank/internal/model"
)

// ErrEmptyPool means a session was requested over zero questions. It is a
// "nothing to do" condition, not a failure: no state machine is started.
var ErrEmptyPool = errors.New("no questions available for this session")

// Flagger is the question-store collaborator sessions use to mark a
// question's incorrect flag.
type Flagger interface {
	SetIncorrectFlag(ctx context.Context, id int64, incorrect bool) error
}

// Ledger receives finished exam results and accumulates missed question ids.
type Ledger interface {
	Append(result model.SessionResult) error
	RecordMissed(ids []int64) error
}
