package quiz

import (
	"context"
	"time"
)

// Summary is what students see of a quiz before starting it.
type Summary struct {
	ID                 string     `json:"id"`
	CourseID           string     `json:"course_id"`
	ChapterID          string     `json:"chapter_id,omitempty"`
	Title              string     `json:"title"`
	TimeLimitMinutes   *int       `json:"time_limit_minutes,omitempty"`
	PassingScore       int        `json:"passing_score"`
	MaxAttempts        *int       `json:"max_attempts,omitempty"`
	ShowCorrectAnswers bool       `json:"show_correct_answers"`
	AvailableFrom      *time.Time `json:"available_from,omitempty"`
	AvailableTo        *time.Time `json:"available_to,omitempty"`
	QuestionCount      int        `json:"question_count"`
}

func Summarize(q Quiz) Summary {
	return Summary{
		ID:                 q.ID,
		CourseID:           q.CourseID,
		ChapterID:          q.ChapterID,
		Title:              q.Title,
		TimeLimitMinutes:   q.TimeLimitMinutes,
		PassingScore:       q.PassingScore,
		MaxAttempts:        q.MaxAttempts,
		ShowCorrectAnswers: q.ShowCorrectAnswers,
		AvailableFrom:      q.AvailableFrom,
		AvailableTo:        q.AvailableTo,
		QuestionCount:      len(q.Questions),
	}
}

func (s *Service) QuizSummary(ctx context.Context, id string) (Summary, error) {
	q, err := s.store.GetQuiz(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(q), nil
}
