package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/db"
)

// SQLStore persists quizzes and attempts in SQLite or Postgres. Both drivers
// accept $N placeholders.
type SQLStore struct {
	DB *sql.DB
}

func NewSQLStore(conn *sql.DB) *SQLStore { return &SQLStore{DB: conn} }

// PutQuiz upserts a quiz and replaces its questions. Once any attempt
// references the quiz it fails with ErrQuizInUse and nothing is written.
func (s *SQLStore) PutQuiz(ctx context.Context, q Quiz) error {
	return db.WithTx(ctx, s.DB, nil, func(tx *sql.Tx) error {
		var inUse int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM attempts WHERE quiz_id = $1 LIMIT 1`, q.ID).Scan(&inUse)
		switch {
		case err == nil:
			return ErrQuizInUse
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("check attempts for %s: %w", q.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO quizzes (id, course_id, chapter_id, title, time_limit_minutes, passing_score, max_attempts,
				shuffle_questions, shuffle_options, show_correct_answers, available_from, available_to, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
			ON CONFLICT (id) DO UPDATE SET
				course_id = excluded.course_id,
				chapter_id = excluded.chapter_id,
				title = excluded.title,
				time_limit_minutes = excluded.time_limit_minutes,
				passing_score = excluded.passing_score,
				max_attempts = excluded.max_attempts,
				shuffle_questions = excluded.shuffle_questions,
				shuffle_options = excluded.shuffle_options,
				show_correct_answers = excluded.show_correct_answers,
				available_from = excluded.available_from,
				available_to = excluded.available_to`,
			q.ID, q.CourseID, q.ChapterID, q.Title, nullInt(q.TimeLimitMinutes), q.PassingScore, nullInt(q.MaxAttempts),
			q.ShuffleQuestions, q.ShuffleOptions, q.ShowCorrectAnswers,
			nullUnix(q.AvailableFrom), nullUnix(q.AvailableTo), q.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("upsert quiz %s: %w", q.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE quiz_id = $1`, q.ID); err != nil {
			return err
		}
		for i, qu := range q.Questions {
			opts, err := json.Marshal(qu.Options)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO questions (quiz_id, id, position, prompt, options_json, correct_index, explanation)
				VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				q.ID, qu.ID, i, qu.Prompt, string(opts), qu.CorrectAnswerIndex, qu.Explanation,
			); err != nil {
				return fmt.Errorf("insert question %s/%s: %w", q.ID, qu.ID, err)
			}
		}
		return nil
	})
}

func (s *SQLStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	var (
		q             Quiz
		limit, maxAtt sql.NullInt64
		from, to      sql.NullInt64
		createdAt     int64
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, course_id, chapter_id, title, time_limit_minutes, passing_score, max_attempts,
			shuffle_questions, shuffle_options, show_correct_answers, available_from, available_to, created_at
		FROM quizzes WHERE id = $1`, id).
		Scan(&q.ID, &q.CourseID, &q.ChapterID, &q.Title, &limit, &q.PassingScore, &maxAtt,
			&q.ShuffleQuestions, &q.ShuffleOptions, &q.ShowCorrectAnswers, &from, &to, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, ErrQuizNotFound
	}
	if err != nil {
		return Quiz{}, err
	}
	q.TimeLimitMinutes = intPtr(limit)
	q.MaxAttempts = intPtr(maxAtt)
	q.AvailableFrom = timePtr(from)
	q.AvailableTo = timePtr(to)
	q.CreatedAt = time.Unix(createdAt, 0).UTC()

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, prompt, options_json, correct_index, explanation
		FROM questions WHERE quiz_id = $1 ORDER BY position`, id)
	if err != nil {
		return Quiz{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			qu   Question
			opts string
		)
		if err := rows.Scan(&qu.ID, &qu.Prompt, &opts, &qu.CorrectAnswerIndex, &qu.Explanation); err != nil {
			return Quiz{}, err
		}
		if err := json.Unmarshal([]byte(opts), &qu.Options); err != nil {
			return Quiz{}, fmt.Errorf("decode options for %s/%s: %w", id, qu.ID, err)
		}
		q.Questions = append(q.Questions, qu)
	}
	return q, rows.Err()
}

const attemptCols = `id, user_id, quiz_id, started_at, expires_at, submitted_at, score, is_passed, late, auto_submitted`

func (s *SQLStore) FindOpenAttempt(ctx context.Context, studentID, quizID string) (*Attempt, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts
		WHERE user_id = $1 AND quiz_id = $2 AND submitted_at IS NULL`, studentID, quizID)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *SQLStore) CountClosedAttempts(ctx context.Context, studentID, quizID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM attempts
		WHERE user_id = $1 AND quiz_id = $2 AND submitted_at IS NOT NULL`, studentID, quizID).Scan(&n)
	return n, err
}

func (s *SQLStore) InsertAttempt(ctx context.Context, a Attempt) (Attempt, error) {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO attempts (id, quiz_id, user_id, started_at, expires_at, late, auto_submitted)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.QuizID, a.StudentID, a.StartedAt.Unix(), nullUnix(a.ExpiresAt), false, false,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Attempt{}, ErrOpenAttemptExists
		}
		if isForeignKeyViolation(err) {
			return Attempt{}, ErrQuizNotFound
		}
		return Attempt{}, err
	}
	a.SubmittedAt, a.Score, a.IsPassed, a.Answers = nil, nil, nil, nil
	a.Late, a.AutoSubmitted = false, false
	return a, nil
}

// CloseAttempt is a compare-and-set on submitted_at IS NULL. The answer rows
// are written in the same transaction only when the update won.
func (s *SQLStore) CloseAttempt(ctx context.Context, attemptID string, c Closing) (Attempt, error) {
	err := db.WithTx(ctx, s.DB, nil, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE attempts
			SET submitted_at = $2, score = $3, is_passed = $4, late = $5, auto_submitted = $6
			WHERE id = $1 AND submitted_at IS NULL`,
			attemptID, c.SubmittedAt.Unix(), c.Score, c.IsPassed, c.Late, c.AutoSubmitted,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM attempts WHERE id = $1`, attemptID).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAttemptNotFound
			}
			if err != nil {
				return err
			}
			return ErrAttemptAlreadySubmitted
		}
		for i, ans := range c.Answers {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO attempt_answers (attempt_id, question_id, position, selected_index, correct_index, is_correct)
				VALUES ($1,$2,$3,$4,$5,$6)`,
				attemptID, ans.QuestionID, i, ans.SelectedAnswerIndex, ans.CorrectAnswerIndex, ans.IsCorrect,
			); err != nil {
				return fmt.Errorf("insert answer %s/%s: %w", attemptID, ans.QuestionID, err)
			}
		}
		return nil
	})
	if err != nil {
		return Attempt{}, err
	}
	return s.GetAttempt(ctx, attemptID)
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts WHERE id = $1`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	if err != nil {
		return Attempt{}, err
	}
	if a.IsOpen() {
		return a, nil
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT question_id, selected_index, correct_index, is_correct FROM attempt_answers
		WHERE attempt_id = $1 ORDER BY position`, id)
	if err != nil {
		return Attempt{}, err
	}
	defer rows.Close()
	a.Answers = []AnswerRecord{}
	for rows.Next() {
		var ans AnswerRecord
		if err := rows.Scan(&ans.QuestionID, &ans.SelectedAnswerIndex, &ans.CorrectAnswerIndex, &ans.IsCorrect); err != nil {
			return Attempt{}, err
		}
		a.Answers = append(a.Answers, ans)
	}
	return a, rows.Err()
}

// ListAttempts returns attempt headers without their answer rows.
func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if opts.QuizID != "" {
		where = append(where, "quiz_id = "+arg(opts.QuizID))
	}
	if opts.StudentID != "" {
		where = append(where, "user_id = "+arg(opts.StudentID))
	}
	switch opts.Status {
	case "open":
		where = append(where, "submitted_at IS NULL")
	case StatusSubmitted:
		where = append(where, "submitted_at IS NOT NULL")
	}

	q := `SELECT ` + attemptCols + ` FROM attempts`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY started_at DESC, id ASC"
	if opts.Limit > 0 {
		q += " LIMIT " + arg(opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			q += " LIMIT " + arg(int64(math.MaxInt64))
		}
		q += " OFFSET " + arg(opts.Offset)
	}

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Attempt, 0)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(r rowScanner) (Attempt, error) {
	var (
		a                      Attempt
		startedAt              int64
		expiresAt, submittedAt sql.NullInt64
		score                  sql.NullInt64
		passed                 sql.NullBool
	)
	if err := r.Scan(&a.ID, &a.StudentID, &a.QuizID, &startedAt, &expiresAt, &submittedAt,
		&score, &passed, &a.Late, &a.AutoSubmitted); err != nil {
		return Attempt{}, err
	}
	a.StartedAt = time.Unix(startedAt, 0).UTC()
	a.ExpiresAt = timePtr(expiresAt)
	a.SubmittedAt = timePtr(submittedAt)
	a.Score = intPtr(score)
	if passed.Valid {
		p := passed.Bool
		a.IsPassed = &p
	}
	return a, nil
}

func isForeignKeyViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "foreign key constraint") || strings.Contains(msg, "violates foreign key")
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func nullUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
