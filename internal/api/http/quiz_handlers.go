package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/logging"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// POST /quizzes  (upsert, teacher/admin)
func PutQuizHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q quiz.Quiz
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			badRequest(w, "bad json")
			return
		}
		if err := svc.PutQuiz(r.Context(), q); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": q.ID})
	}
}

// GET /quizzes/{quizID}
// Authors get the full quiz with answer keys; everyone else a summary.
func GetQuizHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "quizID")
		if rbac.Can(r.Context(), rbac.PermQuizCreate) {
			q, err := svc.GetQuiz(r.Context(), id)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, q)
			return
		}
		sum, err := svc.QuizSummary(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

// GET /quizzes/{quizID}/results.csv
func ExportResultsHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "quizID")
		if _, err := svc.GetQuiz(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+id+`-results.csv"`)
		if err := svc.ExportResults(r.Context(), id, w); err != nil {
			// headers already sent
			logging.FromContext(r.Context()).WithError(err).WithField("quiz_id", id).Error("export aborted")
		}
	}
}
