package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// POST /attempts {"quiz_id": "..."} and POST /quizzes/{quizID}/attempts
func StartAttemptHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizID := chi.URLParam(r, "quizID")
		if quizID == "" {
			var req struct {
				QuizID string `json:"quiz_id"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				badRequest(w, "bad json")
				return
			}
			quizID = strings.TrimSpace(req.QuizID)
		}
		if quizID == "" {
			badRequest(w, "quiz_id required")
			return
		}
		res, err := svc.Start(r.Context(), auth.SubjectFromContext(r.Context()), quizID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

// GET /attempts/{attemptID}/questions
func ResumeAttemptHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Resume(r.Context(), auth.SubjectFromContext(r.Context()), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type submitRequest struct {
	Answers []struct {
		QuestionID          string `json:"question_id"`
		SelectedAnswerIndex *int   `json:"selected_answer_index"` // null = unanswered
	} `json:"answers"`
	AutoSubmit bool `json:"auto_submit"`
}

// POST /attempts/{attemptID}/submit
func SubmitAttemptHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "bad json")
			return
		}
		in := quiz.SubmitInput{
			AttemptID:  chi.URLParam(r, "attemptID"),
			AutoSubmit: req.AutoSubmit,
			Answers:    make([]quiz.Answer, 0, len(req.Answers)),
		}
		for _, a := range req.Answers {
			idx := -1
			if a.SelectedAnswerIndex != nil {
				idx = *a.SelectedAnswerIndex
			}
			in.Answers = append(in.Answers, quiz.Answer{QuestionID: a.QuestionID, SelectedAnswerIndex: idx})
		}
		res, err := svc.Submit(r.Context(), auth.SubjectFromContext(r.Context()), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /attempts/{attemptID}
func GetAttemptHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := viewer(r)
		view, err := svc.GetAttempt(r.Context(), v, chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func viewer(r *http.Request) quiz.Viewer {
	return quiz.Viewer{
		ID:    auth.SubjectFromContext(r.Context()),
		Staff: rbac.Can(r.Context(), rbac.PermAttemptViewAll),
	}
}
