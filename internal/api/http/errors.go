package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mind-engage/mindengage-quiz/internal/logging"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

type errorBody struct {
	Error     string   `json:"error"`
	Message   string   `json:"message"`
	Reason    string   `json:"reason,omitempty"`
	AttemptID string   `json:"attempt_id,omitempty"`
	Problems  []string `json:"problems,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: msg})
}

// writeError is the single place lifecycle errors become HTTP responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= 500 {
		logging.FromContext(r.Context()).WithError(err).Error("request failed")
	}
	writeJSON(w, status, body)
}

func classify(err error) (int, errorBody) {
	var nee *quiz.NotEligibleError
	if errors.As(err, &nee) {
		if nee.Reason == quiz.ReasonInProgress {
			return http.StatusConflict, errorBody{
				Error:     "attempt_in_progress",
				Message:   "an attempt is already in progress",
				Reason:    string(nee.Reason),
				AttemptID: nee.AttemptID,
			}
		}
		return http.StatusForbidden, errorBody{Error: "not_eligible", Message: err.Error(), Reason: string(nee.Reason)}
	}
	var ve *quiz.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, errorBody{Error: "invalid_quiz", Message: "quiz failed validation", Problems: ve.Problems}
	}

	switch {
	case errors.Is(err, quiz.ErrQuizNotFound):
		return http.StatusNotFound, errorBody{Error: "quiz_not_found", Message: err.Error()}
	case errors.Is(err, quiz.ErrAttemptNotFound):
		return http.StatusNotFound, errorBody{Error: "attempt_not_found", Message: err.Error()}
	case errors.Is(err, quiz.ErrQuizInUse):
		return http.StatusConflict, errorBody{Error: "quiz_in_use", Message: "quiz has attempts and can no longer be changed"}
	case errors.Is(err, quiz.ErrAttemptAlreadySubmitted):
		return http.StatusConflict, errorBody{Error: "attempt_already_submitted", Message: err.Error()}
	case errors.Is(err, quiz.ErrUnknownQuestion):
		return http.StatusUnprocessableEntity, errorBody{Error: "unknown_question", Message: err.Error()}
	case errors.Is(err, quiz.ErrInvalidAnswer):
		return http.StatusUnprocessableEntity, errorBody{Error: "invalid_answer", Message: err.Error()}
	case errors.Is(err, quiz.ErrInvalidQuizState):
		return http.StatusInternalServerError, errorBody{Error: "invalid_quiz_state", Message: "quiz cannot be graded"}
	}
	return http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"}
}
