package quiz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/logging"
)

// LatePolicy decides what happens to answers submitted after the deadline.
type LatePolicy string

const (
	LateGrade   LatePolicy = "grade"   // grade normally, flag as late
	LateForfeit LatePolicy = "forfeit" // discard answers, grade as blank
)

// ParseLatePolicy is case-insensitive; empty means LateGrade.
func ParseLatePolicy(s string) (LatePolicy, error) {
	switch LatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", LateGrade:
		return LateGrade, nil
	case LateForfeit:
		return LateForfeit, nil
	}
	return "", fmt.Errorf("unknown late policy %q", s)
}

type Option func(*Service)

func WithClock(now func() time.Time) Option    { return func(s *Service) { s.now = now } }
func WithIDGenerator(f func() string) Option   { return func(s *Service) { s.newID = f } }
func WithPublisher(p Publisher) Option         { return func(s *Service) { s.pub = p } }
func WithRecorder(r Recorder) Option           { return func(s *Service) { s.rec = r } }
func WithLatePolicy(p LatePolicy) Option       { return func(s *Service) { s.late = p } }
func WithAutoCloseOverdue(enabled bool) Option { return func(s *Service) { s.autoClose = enabled } }

// Service is the attempt lifecycle manager. It holds no per-attempt state;
// every decision is made from what the store returns.
type Service struct {
	store     Store
	pub       Publisher
	rec       Recorder
	now       func() time.Time
	newID     func() string
	late      LatePolicy
	autoClose bool
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
		late:  LateGrade,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type StartResult struct {
	AttemptID        string           `json:"attempt_id"`
	QuizID           string           `json:"quiz_id"`
	Questions        []PublicQuestion `json:"questions"`
	StartedAt        time.Time        `json:"started_at"`
	ExpiresAt        *time.Time       `json:"expires_at"`
	TimeLimitSeconds *int             `json:"time_limit_seconds"`
}

type SubmitInput struct {
	AttemptID  string
	Answers    []Answer // presented option positions
	AutoSubmit bool
}

// QuestionResult reports one graded question in the order the student saw
// its options.
type QuestionResult struct {
	QuestionID          string `json:"question_id"`
	SelectedAnswerIndex int    `json:"selected_answer_index"`
	IsCorrect           bool   `json:"is_correct"`
	CorrectAnswerIndex  *int   `json:"correct_answer_index,omitempty"`
	Explanation         string `json:"explanation,omitempty"`
}

type SubmitResult struct {
	AttemptID   string           `json:"attempt_id"`
	Score       int              `json:"score"`
	IsPassed    bool             `json:"is_passed"`
	SubmittedAt time.Time        `json:"submitted_at"`
	Late        bool             `json:"late"`
	PerQuestion []QuestionResult `json:"per_question,omitempty"`
}

// Viewer identifies who is reading an attempt.
type Viewer struct {
	ID    string
	Staff bool // may read any attempt and always sees answer keys
}

type AttemptView struct {
	Attempt
	Status      string           `json:"status"`
	QuizTitle   string           `json:"quiz_title,omitempty"`
	PerQuestion []QuestionResult `json:"per_question,omitempty"`
}

// Start opens a new attempt after the eligibility checks pass.
func (s *Service) Start(ctx context.Context, studentID, quizID string) (StartResult, error) {
	log := logging.FromContext(ctx).WithFields(logrus.Fields{"student_id": studentID, "quiz_id": quizID})

	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return StartResult{}, err
	}
	p := ResolvePolicy(q)
	now := s.clock()

	h, err := s.history(ctx, studentID, quizID)
	if err != nil {
		return StartResult{}, err
	}
	if s.autoClose && h.Open != nil && h.Open.Overdue(now) {
		if err := s.expire(ctx, *h.Open, q, now); err != nil && !errors.Is(err, ErrAttemptAlreadySubmitted) {
			return StartResult{}, err
		}
		if h, err = s.history(ctx, studentID, quizID); err != nil {
			return StartResult{}, err
		}
	}

	if d := CanStart(now, p, h); !d.Eligible {
		s.recordDenied(string(d.Reason))
		log.WithField("reason", d.Reason).Info("start denied")
		return StartResult{}, d.Err()
	}

	a, err := s.store.InsertAttempt(ctx, Attempt{
		ID:        s.newID(),
		StudentID: studentID,
		QuizID:    quizID,
		StartedAt: now,
		ExpiresAt: p.Deadline(now),
	})
	if errors.Is(err, ErrOpenAttemptExists) {
		// Lost a race with a concurrent start; point the client at the winner.
		s.recordDenied(string(ReasonInProgress))
		nee := &NotEligibleError{Reason: ReasonInProgress}
		if open, ferr := s.store.FindOpenAttempt(ctx, studentID, quizID); ferr == nil && open != nil {
			nee.AttemptID = open.ID
		}
		return StartResult{}, nee
	}
	if err != nil {
		return StartResult{}, err
	}

	if s.rec != nil {
		s.rec.AttemptStarted(quizID)
	}
	s.publish(ctx, Event{Type: EventAttemptStarted, Key: a.ID, Payload: a})
	log.WithFields(logrus.Fields{"attempt_id": a.ID, "expires_at": a.ExpiresAt}).Info("attempt started")

	return startResult(a, q, p), nil
}

// Resume returns the question set of an open attempt owned by the student.
func (s *Service) Resume(ctx context.Context, studentID, attemptID string) (StartResult, error) {
	a, err := s.ownedAttempt(ctx, Viewer{ID: studentID}, attemptID)
	if err != nil {
		return StartResult{}, err
	}
	if !a.IsOpen() {
		return StartResult{}, ErrAttemptAlreadySubmitted
	}
	q, err := s.store.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return StartResult{}, err
	}
	return startResult(a, q, ResolvePolicy(q)), nil
}

// Submit grades the final answer set and closes the attempt. The deadline
// stored at start is the only one consulted.
func (s *Service) Submit(ctx context.Context, studentID string, in SubmitInput) (SubmitResult, error) {
	log := logging.FromContext(ctx).WithFields(logrus.Fields{"student_id": studentID, "attempt_id": in.AttemptID})

	a, err := s.ownedAttempt(ctx, Viewer{ID: studentID}, in.AttemptID)
	if err != nil {
		return SubmitResult{}, err
	}
	if !a.IsOpen() {
		s.recordConflict()
		return SubmitResult{}, ErrAttemptAlreadySubmitted
	}
	q, err := s.store.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return SubmitResult{}, err
	}
	p := ResolvePolicy(q)
	layout := NewLayout(a.ID, q)

	answers, err := canonicalAnswers(layout, in.Answers)
	if err != nil {
		return SubmitResult{}, err
	}

	// Lateness uses the precise instant; stored times are whole seconds.
	at := s.now().UTC()
	now := at.Truncate(time.Second)
	late := a.ExpiresAt != nil && at.After(*a.ExpiresAt)
	if late && s.late == LateForfeit {
		answers = nil
	}

	res, err := grade(p, q, answers)
	if err != nil {
		return SubmitResult{}, err
	}

	records := frozenAnswers(res)
	closed, err := s.store.CloseAttempt(ctx, a.ID, Closing{
		Score:         res.Score,
		IsPassed:      res.IsPassed,
		Answers:       records,
		SubmittedAt:   now,
		Late:          late,
		AutoSubmitted: in.AutoSubmit,
	})
	if err != nil {
		if errors.Is(err, ErrAttemptAlreadySubmitted) {
			s.recordConflict()
			log.Info("submit lost race with an earlier submit")
		}
		return SubmitResult{}, err
	}

	if s.rec != nil {
		s.rec.AttemptSubmitted(a.QuizID, res.Score, res.IsPassed, late)
	}
	s.publish(ctx, Event{Type: EventAttemptSubmitted, Key: a.ID, Payload: closed})
	log.WithFields(logrus.Fields{"score": res.Score, "passed": res.IsPassed, "late": late, "auto_submit": in.AutoSubmit}).
		Info("attempt submitted")

	out := SubmitResult{
		AttemptID:   closed.ID,
		Score:       res.Score,
		IsPassed:    res.IsPassed,
		SubmittedAt: now,
		Late:        late,
	}
	if p.ShowCorrectAnswers {
		out.PerQuestion = questionResults(layout, q, records)
	}
	return out, nil
}

// GetAttempt returns an attempt for display. Attempts that belong to someone
// else are reported as missing unless the viewer is staff.
func (s *Service) GetAttempt(ctx context.Context, v Viewer, attemptID string) (AttemptView, error) {
	a, err := s.ownedAttempt(ctx, v, attemptID)
	if err != nil {
		return AttemptView{}, err
	}
	q, err := s.store.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return AttemptView{}, err
	}
	view := AttemptView{Attempt: a, Status: a.Status(s.clock()), QuizTitle: q.Title}
	view.Answers = nil // canonical order; PerQuestion carries what the student saw

	if a.IsOpen() || !(q.ShowCorrectAnswers || v.Staff) {
		return view, nil
	}
	view.PerQuestion = questionResults(NewLayout(a.ID, q), q, a.Answers)
	return view, nil
}

// ListAttempts returns attempt headers with their derived status. Answers
// are not included; use GetAttempt for detail.
func (s *Service) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]AttemptView, error) {
	list, err := s.store.ListAttempts(ctx, opts)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	out := make([]AttemptView, 0, len(list))
	for _, a := range list {
		a.Answers = nil
		out = append(out, AttemptView{Attempt: a, Status: a.Status(now)})
	}
	return out, nil
}

// PutQuiz validates and stores a quiz authored elsewhere. A quiz that has
// attempts is frozen and the store refuses it with ErrQuizInUse.
func (s *Service) PutQuiz(ctx context.Context, q Quiz) error {
	if err := ValidateQuiz(q); err != nil {
		return err
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = s.clock()
	}
	return s.store.PutQuiz(ctx, q)
}

func (s *Service) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	return s.store.GetQuiz(ctx, id)
}

// expire closes an overdue attempt as a blank, auto-submitted forfeit.
func (s *Service) expire(ctx context.Context, a Attempt, q Quiz, now time.Time) error {
	res, err := grade(ResolvePolicy(q), q, nil)
	if err != nil {
		return err
	}
	closed, err := s.store.CloseAttempt(ctx, a.ID, Closing{
		Score:         res.Score,
		IsPassed:      res.IsPassed,
		Answers:       frozenAnswers(res),
		SubmittedAt:   now,
		Late:          true,
		AutoSubmitted: true,
	})
	if err != nil {
		return err
	}
	s.publish(ctx, Event{Type: EventAttemptExpired, Key: a.ID, Payload: closed})
	logging.FromContext(ctx).WithField("attempt_id", a.ID).Info("closed overdue attempt")
	return nil
}

func (s *Service) history(ctx context.Context, studentID, quizID string) (History, error) {
	open, err := s.store.FindOpenAttempt(ctx, studentID, quizID)
	if err != nil {
		return History{}, err
	}
	closed, err := s.store.CountClosedAttempts(ctx, studentID, quizID)
	if err != nil {
		return History{}, err
	}
	return History{Open: open, Closed: closed}, nil
}

func (s *Service) ownedAttempt(ctx context.Context, v Viewer, attemptID string) (Attempt, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if !v.Staff && a.StudentID != v.ID {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, nil
}

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func (s *Service) publish(ctx context.Context, e Event) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, e); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("event", e.Type).Error("publish event")
	}
}

func (s *Service) recordDenied(reason string) {
	if s.rec != nil {
		s.rec.StartDenied(reason)
	}
}

func (s *Service) recordConflict() {
	if s.rec != nil {
		s.rec.SubmitConflict()
	}
}

func startResult(a Attempt, q Quiz, p Policy) StartResult {
	out := StartResult{
		AttemptID: a.ID,
		QuizID:    q.ID,
		Questions: NewLayout(a.ID, q).Questions(q),
		StartedAt: a.StartedAt,
		ExpiresAt: a.ExpiresAt,
	}
	if p.TimeLimit > 0 {
		secs := int(p.TimeLimit / time.Second)
		out.TimeLimitSeconds = &secs
	}
	return out
}

func canonicalAnswers(l Layout, in []Answer) ([]Answer, error) {
	out := make([]Answer, 0, len(in))
	for _, ans := range in {
		if _, known := l.options[ans.QuestionID]; !known {
			return nil, fmt.Errorf("%w: %q", ErrUnknownQuestion, ans.QuestionID)
		}
		idx, ok := l.ToCanonical(ans.QuestionID, ans.SelectedAnswerIndex)
		if !ok {
			return nil, fmt.Errorf("%w: question %q index %d out of range", ErrInvalidAnswer, ans.QuestionID, ans.SelectedAnswerIndex)
		}
		out = append(out, Answer{QuestionID: ans.QuestionID, SelectedAnswerIndex: idx})
	}
	return out, nil
}

func grade(p Policy, q Quiz, answers []Answer) (grading.Result, error) {
	qs := make([]grading.Q, 0, len(q.Questions))
	for _, qu := range q.Questions {
		qs = append(qs, grading.Q{ID: qu.ID, OptionCount: len(qu.Options), CorrectIndex: qu.CorrectAnswerIndex})
	}
	as := make([]grading.Answer, 0, len(answers))
	for _, a := range answers {
		as = append(as, grading.Answer{QuestionID: a.QuestionID, SelectedIndex: a.SelectedAnswerIndex})
	}
	res, err := grading.Grade(p.PassingScore, qs, as)
	if errors.Is(err, grading.ErrDuplicateAnswer) || errors.Is(err, grading.ErrAnswerOutOfRange) {
		return grading.Result{}, fmt.Errorf("%w: %v", ErrInvalidAnswer, err)
	}
	return res, err
}

// frozenAnswers records every question, unanswered ones as -1, in quiz order.
func frozenAnswers(res grading.Result) []AnswerRecord {
	out := make([]AnswerRecord, 0, len(res.PerQuestion))
	for _, o := range res.PerQuestion {
		out = append(out, AnswerRecord{
			QuestionID:          o.QuestionID,
			SelectedAnswerIndex: o.SelectedIndex,
			CorrectAnswerIndex:  o.CorrectIndex,
			IsCorrect:           o.IsCorrect,
		})
	}
	return out
}

func questionResults(l Layout, q Quiz, records []AnswerRecord) []QuestionResult {
	explain := make(map[string]string, len(q.Questions))
	for _, qu := range q.Questions {
		explain[qu.ID] = qu.Explanation
	}
	out := make([]QuestionResult, 0, len(records))
	for _, r := range records {
		qr := QuestionResult{
			QuestionID:          r.QuestionID,
			SelectedAnswerIndex: l.ToPresented(r.QuestionID, r.SelectedAnswerIndex),
			IsCorrect:           r.IsCorrect,
			Explanation:         explain[r.QuestionID],
		}
		ci := l.ToPresented(r.QuestionID, r.CorrectAnswerIndex)
		qr.CorrectAnswerIndex = &ci
		out = append(out, qr)
	}
	return out
}
