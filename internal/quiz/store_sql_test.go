package quiz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/db"
)

var memDBSeq atomic.Int64

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, memDBSeq.Add(1))
	conn, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewSQLStore(conn)
}

func TestSQLStoreQuizRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	q := sampleQuiz()
	q.TimeLimitMinutes = intp(15)
	q.ShowCorrectAnswers = true
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	q.AvailableFrom = &from
	q.CreatedAt = from
	if err := s.PutQuiz(ctx, q); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.GetQuiz(ctx, q.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != q.Title || *got.TimeLimitMinutes != 15 || got.MaxAttempts != nil || !got.ShowCorrectAnswers {
		t.Fatalf("settings=%+v", got)
	}
	if got.AvailableFrom == nil || !got.AvailableFrom.Equal(from) || got.AvailableTo != nil {
		t.Fatalf("window=%v..%v", got.AvailableFrom, got.AvailableTo)
	}
	if len(got.Questions) != 3 || got.Questions[2].ID != "q3" || got.Questions[2].CorrectAnswerIndex != 2 ||
		got.Questions[0].Options[2] != "1/4" || got.Questions[0].Explanation != "halves" {
		t.Fatalf("questions=%+v", got.Questions)
	}

	// upsert replaces the question set
	q.Title = "Fractions II"
	q.Questions = q.Questions[:2]
	if err := s.PutQuiz(ctx, q); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetQuiz(ctx, q.ID)
	if got.Title != "Fractions II" || len(got.Questions) != 2 {
		t.Fatalf("after upsert: %q with %d questions", got.Title, len(got.Questions))
	}

	if _, err := s.GetQuiz(ctx, "missing"); !errors.Is(err, ErrQuizNotFound) {
		t.Fatalf("missing: %v", err)
	}
}

func TestSQLStoreOneOpenAttempt(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	if err := s.PutQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	exp := now.Add(10 * time.Minute)

	a, err := s.InsertAttempt(ctx, Attempt{ID: "a1", StudentID: "s1", QuizID: "quiz-1", StartedAt: now, ExpiresAt: &exp})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !a.IsOpen() {
		t.Fatal("new attempt not open")
	}
	_, err = s.InsertAttempt(ctx, Attempt{ID: "a2", StudentID: "s1", QuizID: "quiz-1", StartedAt: now})
	if !errors.Is(err, ErrOpenAttemptExists) {
		t.Fatalf("second open insert: %v", err)
	}

	open, err := s.FindOpenAttempt(ctx, "s1", "quiz-1")
	if err != nil || open == nil || open.ID != "a1" || !open.ExpiresAt.Equal(exp) {
		t.Fatalf("open=%+v err=%v", open, err)
	}
	if none, err := s.FindOpenAttempt(ctx, "s2", "quiz-1"); err != nil || none != nil {
		t.Fatalf("s2 open=%+v err=%v", none, err)
	}

	// closing frees the slot
	if _, err := s.CloseAttempt(ctx, "a1", Closing{Score: 50, SubmittedAt: now.Add(time.Minute), Answers: graded(0, -1, -1)}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertAttempt(ctx, Attempt{ID: "a2", StudentID: "s1", QuizID: "quiz-1", StartedAt: now.Add(2 * time.Minute)}); err != nil {
		t.Fatalf("insert after close: %v", err)
	}
	n, err := s.CountClosedAttempts(ctx, "s1", "quiz-1")
	if err != nil || n != 1 {
		t.Fatalf("closed=%d err=%v", n, err)
	}
}

func TestSQLStoreCloseIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	s.PutQuiz(ctx, sampleQuiz())
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s.InsertAttempt(ctx, Attempt{ID: "a1", StudentID: "s1", QuizID: "quiz-1", StartedAt: now})

	closed, err := s.CloseAttempt(ctx, "a1", Closing{
		Score: 67, IsPassed: false, SubmittedAt: now.Add(time.Minute), Late: true,
		Answers: graded(0, 1, 1),
	})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.IsOpen() || *closed.Score != 67 || *closed.IsPassed || !closed.Late || len(closed.Answers) != 3 {
		t.Fatalf("closed=%+v", closed)
	}

	_, err = s.CloseAttempt(ctx, "a1", Closing{Score: 100, IsPassed: true, SubmittedAt: now.Add(2 * time.Minute), Answers: graded(0, 1, 2)})
	if !errors.Is(err, ErrAttemptAlreadySubmitted) {
		t.Fatalf("second close: %v", err)
	}
	again, _ := s.GetAttempt(ctx, "a1")
	if *again.Score != 67 || again.Answers[2].SelectedAnswerIndex != 1 || !again.SubmittedAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("stored result changed: %+v", again)
	}
	if a := again.Answers[2]; a.CorrectAnswerIndex != 2 || a.IsCorrect || !again.Answers[0].IsCorrect {
		t.Fatalf("graded answer columns: %+v", again.Answers)
	}

	if _, err := s.CloseAttempt(ctx, "missing", Closing{SubmittedAt: now}); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("missing: %v", err)
	}
}

func TestSQLStoreListAttempts(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	s.PutQuiz(ctx, sampleQuiz())
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, student := range []string{"s1", "s2", "s3"} {
		s.InsertAttempt(ctx, Attempt{ID: fmt.Sprintf("a%d", i+1), StudentID: student, QuizID: "quiz-1", StartedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	s.CloseAttempt(ctx, "a1", Closing{Score: 100, IsPassed: true, SubmittedAt: base.Add(5 * time.Minute), Answers: graded(0, 1, 2)})

	all, err := s.ListAttempts(ctx, AttemptListOpts{QuizID: "quiz-1"})
	if err != nil || len(all) != 3 || all[0].ID != "a3" || all[2].ID != "a1" {
		t.Fatalf("all=%+v err=%v", all, err)
	}
	open, _ := s.ListAttempts(ctx, AttemptListOpts{Status: "open"})
	if len(open) != 2 {
		t.Fatalf("open=%d", len(open))
	}
	done, _ := s.ListAttempts(ctx, AttemptListOpts{Status: StatusSubmitted})
	if len(done) != 1 || done[0].ID != "a1" || *done[0].Score != 100 {
		t.Fatalf("submitted=%+v", done)
	}
	page, _ := s.ListAttempts(ctx, AttemptListOpts{Limit: 1, Offset: 1})
	if len(page) != 1 || page[0].ID != "a2" {
		t.Fatalf("page=%+v", page)
	}
	tail, _ := s.ListAttempts(ctx, AttemptListOpts{Offset: 2})
	if len(tail) != 1 || tail[0].ID != "a1" {
		t.Fatalf("tail=%+v", tail)
	}
	mine, _ := s.ListAttempts(ctx, AttemptListOpts{StudentID: "s2"})
	if len(mine) != 1 || mine[0].ID != "a2" {
		t.Fatalf("mine=%+v", mine)
	}
}

func TestServiceOverSQLite(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	clock := newFakeClock()
	svc := NewService(store, WithClock(clock.Now))

	q := sampleQuiz()
	q.TimeLimitMinutes = intp(10)
	if err := svc.PutQuiz(ctx, q); err != nil {
		t.Fatal(err)
	}

	assertOneOpenAttempt(t, ctx, svc, store)

	open, _ := store.FindOpenAttempt(ctx, "s1", "quiz-1")
	clock.Advance(9*time.Minute + 59*time.Second)
	res, err := svc.Submit(ctx, "s1", SubmitInput{AttemptID: open.ID, Answers: answers(0, 1, 1)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Score != 67 || res.IsPassed || res.Late {
		t.Fatalf("res=%+v", res)
	}
	if _, err := svc.Submit(ctx, "s1", SubmitInput{AttemptID: open.ID, Answers: answers(0, 1, 2)}); !errors.Is(err, ErrAttemptAlreadySubmitted) {
		t.Fatalf("resubmit: %v", err)
	}

	stored, _ := store.GetAttempt(ctx, open.ID)
	if !stored.ExpiresAt.Equal(stored.StartedAt.Add(10 * time.Minute)) {
		t.Fatalf("expires=%v started=%v", stored.ExpiresAt, stored.StartedAt)
	}
}

func TestSQLStoreRefusesQuizWithAttempts(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	if err := s.PutQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatal(err)
	}
	if err := s.PutQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatalf("re-put before any attempt: %v", err)
	}
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	if _, err := s.InsertAttempt(ctx, Attempt{ID: "a1", StudentID: "s1", QuizID: "quiz-1", StartedAt: now}); err != nil {
		t.Fatal(err)
	}

	trimmed := sampleQuiz()
	trimmed.Questions = trimmed.Questions[:1]
	if err := s.PutQuiz(ctx, trimmed); !errors.Is(err, ErrQuizInUse) {
		t.Fatalf("put with attempt: %v", err)
	}
	q, err := s.GetQuiz(ctx, "quiz-1")
	if err != nil || len(q.Questions) != 3 {
		t.Fatalf("questions=%d err=%v", len(q.Questions), err)
	}
}
