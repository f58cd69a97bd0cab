package quiz

import "time"

type Question struct {
	ID                 string   `json:"id"`
	Prompt             string   `json:"prompt"`
	Options            []string `json:"options"`
	CorrectAnswerIndex int      `json:"correct_answer_index"`
	Explanation        string   `json:"explanation,omitempty"`
}

// PublicQuestion is what a student sees while an attempt is open.
type PublicQuestion struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

type Quiz struct {
	ID                 string     `json:"id"`
	CourseID           string     `json:"course_id"`
	ChapterID          string     `json:"chapter_id,omitempty"`
	Title              string     `json:"title"`
	TimeLimitMinutes   *int       `json:"time_limit_minutes,omitempty"` // nil = unlimited
	PassingScore       int        `json:"passing_score"`
	MaxAttempts        *int       `json:"max_attempts,omitempty"` // nil = unlimited
	ShuffleQuestions   bool       `json:"shuffle_questions"`
	ShuffleOptions     bool       `json:"shuffle_options"`
	ShowCorrectAnswers bool       `json:"show_correct_answers"`
	AvailableFrom      *time.Time `json:"available_from,omitempty"`
	AvailableTo        *time.Time `json:"available_to,omitempty"`
	Questions          []Question `json:"questions"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Answer is keyed by question id; SelectedAnswerIndex -1 means unanswered.
type Answer struct {
	QuestionID          string `json:"question_id"`
	SelectedAnswerIndex int    `json:"selected_answer_index"`
}

type Attempt struct {
	ID            string         `json:"id"`
	StudentID     string         `json:"student_id"`
	QuizID        string         `json:"quiz_id"`
	StartedAt     time.Time      `json:"started_at"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
	SubmittedAt   *time.Time     `json:"submitted_at,omitempty"`
	Score         *int           `json:"score,omitempty"`
	IsPassed      *bool          `json:"is_passed,omitempty"`
	Late          bool           `json:"late"`
	AutoSubmitted bool           `json:"auto_submitted"`
	Answers       []AnswerRecord `json:"answers,omitempty"`
}

// AnswerRecord is one answer as graded at submit time, in canonical option
// order. Reads of a closed attempt render from these and never regrade.
type AnswerRecord struct {
	QuestionID          string `json:"question_id"`
	SelectedAnswerIndex int    `json:"selected_answer_index"`
	CorrectAnswerIndex  int    `json:"correct_answer_index"`
	IsCorrect           bool   `json:"is_correct"`
}

const (
	StatusInProgress = "in_progress"
	StatusOverdue    = "overdue"
	StatusSubmitted  = "submitted"
)

func (a Attempt) IsOpen() bool { return a.SubmittedAt == nil }

// Overdue reports whether an open attempt has passed its stored deadline.
func (a Attempt) Overdue(now time.Time) bool {
	return a.IsOpen() && a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// Status is derived on read; it is never stored.
func (a Attempt) Status(now time.Time) string {
	switch {
	case !a.IsOpen():
		return StatusSubmitted
	case a.Overdue(now):
		return StatusOverdue
	default:
		return StatusInProgress
	}
}

// Closing is the single terminal write applied to an open attempt.
type Closing struct {
	Score         int
	IsPassed      bool
	Answers       []AnswerRecord
	SubmittedAt   time.Time
	Late          bool
	AutoSubmitted bool
}

type AttemptListOpts struct {
	QuizID    string
	StudentID string
	Status    string // "", open, submitted
	Limit     int
	Offset    int
}
