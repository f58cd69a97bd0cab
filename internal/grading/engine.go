package grading

import (
	"errors"
	"fmt"
)

// Unanswered marks a question the student left blank.
const Unanswered = -1

var (
	ErrInvalidQuizState = errors.New("invalid quiz state")
	ErrUnknownQuestion  = errors.New("unknown question")
	ErrDuplicateAnswer  = errors.New("duplicate answer for question")
	ErrAnswerOutOfRange = errors.New("selected answer index out of range")
)

// Q is a minimal view of a question needed for grading.
// Keep this in sync with whatever fields the quiz store uses.
type Q struct {
	ID           string
	OptionCount  int
	CorrectIndex int
}

// Answer is a submitted choice in canonical option order.
type Answer struct {
	QuestionID    string
	SelectedIndex int
}

// Outcome is the grading of a single question.
type Outcome struct {
	QuestionID    string `json:"question_id"`
	SelectedIndex int    `json:"selected_answer_index"`
	CorrectIndex  int    `json:"correct_answer_index"`
	IsCorrect     bool   `json:"is_correct"`
}

// Result is the outcome of grading a whole submission.
type Result struct {
	Score        int       `json:"score"`
	IsPassed     bool      `json:"is_passed"`
	CorrectCount int       `json:"correct_count"`
	Total        int       `json:"total"`
	PerQuestion  []Outcome `json:"per_question"`
}

// Grade scores answers against every question of the quiz. Questions with no
// answer count as incorrect and stay in the denominator. Any answer that
// cannot be matched to the bank rejects the whole submission.
func Grade(passingScore int, questions []Q, answers []Answer) (Result, error) {
	if len(questions) == 0 {
		return Result{}, fmt.Errorf("%w: quiz has no questions", ErrInvalidQuizState)
	}

	lookup := make(map[string]Q, len(questions))
	for _, q := range questions {
		if q.OptionCount < 2 || q.CorrectIndex < 0 || q.CorrectIndex >= q.OptionCount {
			return Result{}, fmt.Errorf("%w: question %q has a bad answer key", ErrInvalidQuizState, q.ID)
		}
		lookup[q.ID] = q
	}

	selected := make(map[string]int, len(answers))
	for _, a := range answers {
		q, ok := lookup[a.QuestionID]
		if !ok {
			return Result{}, fmt.Errorf("%w: %q", ErrUnknownQuestion, a.QuestionID)
		}
		if _, dup := selected[a.QuestionID]; dup {
			return Result{}, fmt.Errorf("%w %q", ErrDuplicateAnswer, a.QuestionID)
		}
		if a.SelectedIndex < Unanswered || a.SelectedIndex >= q.OptionCount {
			return Result{}, fmt.Errorf("%w: question %q index %d", ErrAnswerOutOfRange, a.QuestionID, a.SelectedIndex)
		}
		selected[a.QuestionID] = a.SelectedIndex
	}

	res := Result{
		Total:       len(questions),
		PerQuestion: make([]Outcome, 0, len(questions)),
	}
	for _, q := range questions {
		idx, ok := selected[q.ID]
		if !ok {
			idx = Unanswered
		}
		correct := idx != Unanswered && idx == q.CorrectIndex
		if correct {
			res.CorrectCount++
		}
		res.PerQuestion = append(res.PerQuestion, Outcome{
			QuestionID:    q.ID,
			SelectedIndex: idx,
			CorrectIndex:  q.CorrectIndex,
			IsCorrect:     correct,
		})
	}

	res.Score = Percent(res.CorrectCount, res.Total)
	res.IsPassed = res.Score >= passingScore
	return res, nil
}

// Percent returns correct/total as an integer percentage, ties rounding up.
func Percent(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return (correct*200 + total) / (2 * total)
}
