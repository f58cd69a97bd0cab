package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

const maxListLimit = 500

// GET /attempts?quiz_id=...&student_id=...&status=open|submitted&limit=50&offset=0
// Callers without attempt:view-all only ever see their own attempts.
func ListAttemptsHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		status := strings.TrimSpace(q.Get("status"))
		switch status {
		case "", "open", quiz.StatusSubmitted:
		default:
			badRequest(w, "status must be open or submitted")
			return
		}
		opts := quiz.AttemptListOpts{
			QuizID:    strings.TrimSpace(q.Get("quiz_id")),
			StudentID: strings.TrimSpace(q.Get("student_id")),
			Status:    status,
			Limit:     parseIntDefault(q.Get("limit"), 50),
			Offset:    parseIntDefault(q.Get("offset"), 0),
		}
		if opts.Limit == 0 || opts.Limit > maxListLimit {
			opts.Limit = maxListLimit
		}
		if v := viewer(r); !v.Staff {
			opts.StudentID = v.ID
		}

		list, err := svc.ListAttempts(r.Context(), opts)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items":  list,
			"limit":  opts.Limit,
			"offset": opts.Offset,
		})
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
