package quiz

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

var resultsHeader = []string{
	"attempt_id", "student_id", "started_at", "submitted_at",
	"score", "is_passed", "late", "auto_submitted",
}

// ExportResults writes one CSV row per closed attempt of the quiz, newest first.
func (s *Service) ExportResults(ctx context.Context, quizID string, w io.Writer) error {
	if _, err := s.store.GetQuiz(ctx, quizID); err != nil {
		return err
	}
	attempts, err := s.store.ListAttempts(ctx, AttemptListOpts{QuizID: quizID, Status: StatusSubmitted})
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(resultsHeader); err != nil {
		return err
	}
	for _, a := range attempts {
		if err := cw.Write(resultRow(a)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func resultRow(a Attempt) []string {
	row := []string{a.ID, a.StudentID, a.StartedAt.Format(time.RFC3339), "", "", "", strconv.FormatBool(a.Late), strconv.FormatBool(a.AutoSubmitted)}
	if a.SubmittedAt != nil {
		row[3] = a.SubmittedAt.Format(time.RFC3339)
	}
	if a.Score != nil {
		row[4] = strconv.Itoa(*a.Score)
	}
	if a.IsPassed != nil {
		row[5] = strconv.FormatBool(*a.IsPassed)
	}
	return row
}
