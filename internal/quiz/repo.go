package quiz

import "context"

// Store is the persistence contract of the attempt engine. Implementations
// must make InsertAttempt fail with ErrOpenAttemptExists when the student
// already has an open attempt at the quiz, and CloseAttempt must be a single
// conditional write that fails with ErrAttemptAlreadySubmitted once closed.
type Store interface {
	PutQuiz(ctx context.Context, q Quiz) error
	GetQuiz(ctx context.Context, id string) (Quiz, error) // with answer keys

	FindOpenAttempt(ctx context.Context, studentID, quizID string) (*Attempt, error)
	CountClosedAttempts(ctx context.Context, studentID, quizID string) (int, error)
	InsertAttempt(ctx context.Context, a Attempt) (Attempt, error)
	CloseAttempt(ctx context.Context, attemptID string, c Closing) (Attempt, error)
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)
}

// Event is emitted on every attempt transition.
type Event struct {
	Type    string
	Key     string // attempt id
	Payload any
}

const (
	EventAttemptStarted   = "attempt.started"
	EventAttemptSubmitted = "attempt.submitted"
	EventAttemptExpired   = "attempt.expired"
)

// Publisher receives lifecycle events after the transition is persisted.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Recorder observes lifecycle outcomes for metrics.
type Recorder interface {
	AttemptStarted(quizID string)
	StartDenied(reason string)
	AttemptSubmitted(quizID string, score int, passed, late bool)
	SubmitConflict()
}
