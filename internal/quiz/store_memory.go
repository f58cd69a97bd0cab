package quiz

import (
	"context"
	"sort"
	"sync"
)

type memoryStore struct {
	mu       sync.RWMutex
	quizzes  map[string]Quiz
	attempts map[string]Attempt
	open     map[string]string // student|quiz -> open attempt id
}

// NewInMemoryStore keeps everything in process memory. The mutex is the
// serialization point for the one-open-attempt rule and the close CAS.
func NewInMemoryStore() Store {
	return &memoryStore{
		quizzes:  map[string]Quiz{},
		attempts: map[string]Attempt{},
		open:     map[string]string{},
	}
}

func openKey(studentID, quizID string) string { return studentID + "|" + quizID }

func (m *memoryStore) PutQuiz(_ context.Context, q Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.QuizID == q.ID {
			return ErrQuizInUse
		}
	}
	m.quizzes[q.ID] = cloneQuiz(q)
	return nil
}

func (m *memoryStore) GetQuiz(_ context.Context, id string) (Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[id]
	if !ok {
		return Quiz{}, ErrQuizNotFound
	}
	return cloneQuiz(q), nil
}

func (m *memoryStore) FindOpenAttempt(_ context.Context, studentID, quizID string) (*Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.open[openKey(studentID, quizID)]
	if !ok {
		return nil, nil
	}
	a := cloneAttempt(m.attempts[id])
	return &a, nil
}

func (m *memoryStore) CountClosedAttempts(_ context.Context, studentID, quizID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.attempts {
		if a.StudentID == studentID && a.QuizID == quizID && !a.IsOpen() {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) InsertAttempt(_ context.Context, a Attempt) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.quizzes[a.QuizID]; !ok {
		return Attempt{}, ErrQuizNotFound
	}
	k := openKey(a.StudentID, a.QuizID)
	if _, busy := m.open[k]; busy {
		return Attempt{}, ErrOpenAttemptExists
	}
	a.SubmittedAt, a.Score, a.IsPassed, a.Answers = nil, nil, nil, nil
	m.attempts[a.ID] = a
	m.open[k] = a.ID
	return cloneAttempt(a), nil
}

func (m *memoryStore) CloseAttempt(_ context.Context, attemptID string, c Closing) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	if !a.IsOpen() {
		return Attempt{}, ErrAttemptAlreadySubmitted
	}
	score, passed, at := c.Score, c.IsPassed, c.SubmittedAt
	a.Score, a.IsPassed, a.SubmittedAt = &score, &passed, &at
	a.Late, a.AutoSubmitted = c.Late, c.AutoSubmitted
	a.Answers = append([]AnswerRecord(nil), c.Answers...)
	m.attempts[attemptID] = a
	delete(m.open, openKey(a.StudentID, a.QuizID))
	return cloneAttempt(a), nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return cloneAttempt(a), nil
}

func (m *memoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, error) {
	m.mu.RLock()
	out := make([]Attempt, 0)
	for _, a := range m.attempts {
		if !matchesList(a, opts) {
			continue
		}
		out = append(out, cloneAttempt(a))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []Attempt{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func matchesList(a Attempt, opts AttemptListOpts) bool {
	if opts.QuizID != "" && a.QuizID != opts.QuizID {
		return false
	}
	if opts.StudentID != "" && a.StudentID != opts.StudentID {
		return false
	}
	switch opts.Status {
	case "open":
		return a.IsOpen()
	case StatusSubmitted:
		return !a.IsOpen()
	}
	return true
}

func cloneQuiz(q Quiz) Quiz {
	qs := make([]Question, len(q.Questions))
	for i, qu := range q.Questions {
		qu.Options = append([]string(nil), qu.Options...)
		qs[i] = qu
	}
	q.Questions = qs
	return q
}

func cloneAttempt(a Attempt) Attempt {
	if a.Answers != nil {
		a.Answers = append([]AnswerRecord(nil), a.Answers...)
	}
	return a
}
