package quiz

import (
	"fmt"
	"time"
)

const (
	MinOptions = 2
	MaxOptions = 6
)

// Policy is the read-only view of a quiz's attempt rules.
type Policy struct {
	TimeLimit          time.Duration // 0 = unlimited
	PassingScore       int
	MaxAttempts        int // 0 = unlimited
	ShuffleQuestions   bool
	ShuffleOptions     bool
	ShowCorrectAnswers bool
	AvailableFrom      *time.Time
	AvailableTo        *time.Time
}

func ResolvePolicy(q Quiz) Policy {
	p := Policy{
		PassingScore:       q.PassingScore,
		ShuffleQuestions:   q.ShuffleQuestions,
		ShuffleOptions:     q.ShuffleOptions,
		ShowCorrectAnswers: q.ShowCorrectAnswers,
		AvailableFrom:      q.AvailableFrom,
		AvailableTo:        q.AvailableTo,
	}
	if q.TimeLimitMinutes != nil && *q.TimeLimitMinutes > 0 {
		p.TimeLimit = time.Duration(*q.TimeLimitMinutes) * time.Minute
	}
	if q.MaxAttempts != nil && *q.MaxAttempts > 0 {
		p.MaxAttempts = *q.MaxAttempts
	}
	return p
}

// Deadline returns startedAt plus the time limit, or nil when untimed.
func (p Policy) Deadline(startedAt time.Time) *time.Time {
	if p.TimeLimit <= 0 {
		return nil
	}
	t := startedAt.Add(p.TimeLimit)
	return &t
}

// History summarizes a student's past attempts at one quiz.
type History struct {
	Open   *Attempt
	Closed int
}

func HistoryOf(attempts []Attempt) History {
	var h History
	for i := range attempts {
		if attempts[i].IsOpen() {
			a := attempts[i]
			h.Open = &a
			continue
		}
		h.Closed++
	}
	return h
}

type Decision struct {
	Eligible  bool
	Reason    DenyReason
	AttemptID string
}

func (d Decision) Err() error {
	if d.Eligible {
		return nil
	}
	return &NotEligibleError{Reason: d.Reason, AttemptID: d.AttemptID}
}

// CanStart checks availability window, quota and open attempts, in that
// order, and stops at the first failure.
func CanStart(now time.Time, p Policy, h History) Decision {
	if p.AvailableFrom != nil && now.Before(*p.AvailableFrom) {
		return Decision{Reason: ReasonNotYetOpen}
	}
	if p.AvailableTo != nil && now.After(*p.AvailableTo) {
		return Decision{Reason: ReasonClosed}
	}
	if p.MaxAttempts > 0 && h.Closed >= p.MaxAttempts {
		return Decision{Reason: ReasonAttemptsExhausted}
	}
	if h.Open != nil {
		return Decision{Reason: ReasonInProgress, AttemptID: h.Open.ID}
	}
	return Decision{Eligible: true}
}

// ValidateQuiz enforces the authoring invariants the attempt engine relies on.
func ValidateQuiz(q Quiz) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if q.ID == "" {
		add("id required")
	}
	if q.PassingScore < 0 || q.PassingScore > 100 {
		add("passing_score must be between 0 and 100")
	}
	if q.TimeLimitMinutes != nil && *q.TimeLimitMinutes <= 0 {
		add("time_limit_minutes must be positive when set")
	}
	if q.MaxAttempts != nil && *q.MaxAttempts <= 0 {
		add("max_attempts must be positive when set")
	}
	if q.AvailableFrom != nil && q.AvailableTo != nil && q.AvailableTo.Before(*q.AvailableFrom) {
		add("available_to is before available_from")
	}
	if len(q.Questions) == 0 {
		add("at least one question required")
	}

	seen := make(map[string]struct{}, len(q.Questions))
	for i, qu := range q.Questions {
		if qu.ID == "" {
			add("question %d: id required", i)
		} else if _, dup := seen[qu.ID]; dup {
			add("question %d: duplicate id %q", i, qu.ID)
		}
		seen[qu.ID] = struct{}{}
		if n := len(qu.Options); n < MinOptions || n > MaxOptions {
			add("question %q: needs %d-%d options, has %d", qu.ID, MinOptions, MaxOptions, n)
		}
		if qu.CorrectAnswerIndex < 0 || qu.CorrectAnswerIndex >= len(qu.Options) {
			add("question %q: correct_answer_index %d out of range", qu.ID, qu.CorrectAnswerIndex)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
