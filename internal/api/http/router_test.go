package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/metrics"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

type testAPI struct {
	h     http.Handler
	authn *auth.AuthService
}

func newTestAPI(t *testing.T, ready func(context.Context) error) *testAPI {
	t.Helper()
	a := auth.NewAuthService("test-secret")
	svc := quiz.NewService(quiz.NewInMemoryStore())
	h := NewRouter(Deps{
		Service:     svc,
		Auth:        a,
		Login:       auth.LoginConfig{AllowDevLogin: true},
		Metrics:     metrics.New(prometheus.NewRegistry()),
		CORSOrigins: []string{"http://localhost:3000"},
		Ready:       ready,
	})
	return &testAPI{h: h, authn: a}
}

func (api *testAPI) token(t *testing.T, sub, role string) string {
	t.Helper()
	tok, err := api.authn.IssueJWT(sub, role)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (api *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func testQuiz(maxAttempts int) map[string]any {
	return map[string]any{
		"id":            "quiz-1",
		"course_id":     "c1",
		"title":         "Fractions",
		"passing_score": 70,
		"max_attempts":  maxAttempts,
		"questions": []map[string]any{
			{"id": "q1", "prompt": "p1", "options": []string{"a", "b", "c"}, "correct_answer_index": 0},
			{"id": "q2", "prompt": "p2", "options": []string{"a", "b", "c"}, "correct_answer_index": 1},
			{"id": "q3", "prompt": "p3", "options": []string{"a", "b", "c"}, "correct_answer_index": 2},
		},
	}
}

func TestAttemptFlow(t *testing.T) {
	api := newTestAPI(t, nil)
	teacher := api.token(t, "t1", "teacher")
	s1 := api.token(t, "s1", "student")
	s2 := api.token(t, "s2", "student")

	if rec := api.do(t, http.MethodPost, "/quizzes", s1, testQuiz(1)); rec.Code != http.StatusForbidden {
		t.Fatalf("student upload: %d", rec.Code)
	}
	if rec := api.do(t, http.MethodPost, "/quizzes", teacher, testQuiz(1)); rec.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}

	rec := api.do(t, http.MethodGet, "/quizzes/quiz-1", s1, nil)
	if rec.Code != http.StatusOK || strings.Contains(rec.Body.String(), "correct_answer_index") {
		t.Fatalf("student quiz view: %d %s", rec.Code, rec.Body.String())
	}
	if sum := decode[quiz.Summary](t, rec); sum.QuestionCount != 3 {
		t.Fatalf("summary=%+v", sum)
	}

	rec = api.do(t, http.MethodPost, "/quizzes/quiz-1/attempts", s1, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start: %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "correct_answer_index") {
		t.Fatal("start leaked answer keys")
	}
	st := decode[quiz.StartResult](t, rec)

	rec = api.do(t, http.MethodPost, "/attempts", s1, map[string]string{"quiz_id": "quiz-1"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second start: %d", rec.Code)
	}
	if eb := decode[errorBody](t, rec); eb.Error != "attempt_in_progress" || eb.AttemptID != st.AttemptID {
		t.Fatalf("conflict body=%+v", eb)
	}

	if rec := api.do(t, http.MethodGet, "/attempts/"+st.AttemptID+"/questions", s1, nil); rec.Code != http.StatusOK {
		t.Fatalf("resume: %d", rec.Code)
	}
	if rec := api.do(t, http.MethodGet, "/attempts/"+st.AttemptID, s2, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign read: %d", rec.Code)
	}

	bad := map[string]any{"answers": []map[string]any{{"question_id": "q9", "selected_answer_index": 0}}}
	rec = api.do(t, http.MethodPost, "/attempts/"+st.AttemptID+"/submit", s1, bad)
	if rec.Code != http.StatusUnprocessableEntity || decode[errorBody](t, rec).Error != "unknown_question" {
		t.Fatalf("unknown question: %d %s", rec.Code, rec.Body.String())
	}

	sub := map[string]any{"answers": []map[string]any{
		{"question_id": "q1", "selected_answer_index": 0},
		{"question_id": "q2", "selected_answer_index": 1},
		{"question_id": "q3", "selected_answer_index": nil},
	}}
	rec = api.do(t, http.MethodPost, "/attempts/"+st.AttemptID+"/submit", s1, sub)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", rec.Code, rec.Body.String())
	}
	if res := decode[quiz.SubmitResult](t, rec); res.Score != 67 || res.IsPassed {
		t.Fatalf("result=%+v", res)
	}

	rec = api.do(t, http.MethodPost, "/attempts/"+st.AttemptID+"/submit", s1, sub)
	if rec.Code != http.StatusConflict || decode[errorBody](t, rec).Error != "attempt_already_submitted" {
		t.Fatalf("resubmit: %d %s", rec.Code, rec.Body.String())
	}

	rec = api.do(t, http.MethodPost, "/quizzes/quiz-1/attempts", s1, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("exhausted start: %d", rec.Code)
	}
	if eb := decode[errorBody](t, rec); eb.Error != "not_eligible" || eb.Reason != "attempts_exhausted" {
		t.Fatalf("exhausted body=%+v", eb)
	}

	rec = api.do(t, http.MethodGet, "/attempts/"+st.AttemptID, teacher, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("teacher read: %d", rec.Code)
	}
	if v := decode[quiz.AttemptView](t, rec); len(v.PerQuestion) != 3 || v.Status != quiz.StatusSubmitted {
		t.Fatalf("teacher view=%+v", v)
	}

	edited := testQuiz(1)
	edited["questions"] = edited["questions"].([]map[string]any)[:2]
	rec = api.do(t, http.MethodPost, "/quizzes", teacher, edited)
	if rec.Code != http.StatusConflict || decode[errorBody](t, rec).Error != "quiz_in_use" {
		t.Fatalf("re-upload with attempts: %d %s", rec.Code, rec.Body.String())
	}
	if rec := api.do(t, http.MethodGet, "/attempts/"+st.AttemptID, teacher, nil); rec.Code != http.StatusOK {
		t.Fatalf("read after refused re-upload: %d", rec.Code)
	}

	rec = api.do(t, http.MethodGet, "/quizzes/quiz-1/results.csv", teacher, nil)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("export: %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n"); len(lines) != 2 {
		t.Fatalf("csv lines=%q", lines)
	}
	if rec := api.do(t, http.MethodGet, "/quizzes/quiz-1/results.csv", s1, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("student export: %d", rec.Code)
	}
}

func TestListAttemptsScopesStudents(t *testing.T) {
	api := newTestAPI(t, nil)
	teacher := api.token(t, "t1", "teacher")
	api.do(t, http.MethodPost, "/quizzes", teacher, testQuiz(3))
	for _, s := range []string{"s1", "s2"} {
		if rec := api.do(t, http.MethodPost, "/quizzes/quiz-1/attempts", api.token(t, s, "student"), nil); rec.Code != http.StatusCreated {
			t.Fatalf("start %s: %d", s, rec.Code)
		}
	}

	type page struct {
		Items []quiz.AttemptView `json:"items"`
	}
	rec := api.do(t, http.MethodGet, "/attempts?student_id=s2", api.token(t, "s1", "student"), nil)
	if got := decode[page](t, rec); len(got.Items) != 1 || got.Items[0].StudentID != "s1" {
		t.Fatalf("student list=%+v", got)
	}
	rec = api.do(t, http.MethodGet, "/attempts?quiz_id=quiz-1&status=open", teacher, nil)
	if got := decode[page](t, rec); len(got.Items) != 2 {
		t.Fatalf("teacher list=%+v", got)
	}
	if rec := api.do(t, http.MethodGet, "/attempts?status=weird", teacher, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad status: %d", rec.Code)
	}
}

func TestAuthAndProbes(t *testing.T) {
	api := newTestAPI(t, func(context.Context) error { return errors.New("db down") })

	if rec := api.do(t, http.MethodGet, "/attempts", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", rec.Code)
	}
	if rec := api.do(t, http.MethodGet, "/attempts", "garbage", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", rec.Code)
	}
	if rec := api.do(t, http.MethodGet, "/quizzes/missing", api.token(t, "s1", "student"), nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing quiz: %d", rec.Code)
	}

	rec := api.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "s1", "password": "s1", "role": "student"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d", rec.Code)
	}
	tok := decode[map[string]string](t, rec)["access_token"]
	if rec := api.do(t, http.MethodGet, "/attempts", tok, nil); rec.Code != http.StatusOK {
		t.Fatalf("with login token: %d", rec.Code)
	}

	if rec := api.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	if rec := api.do(t, http.MethodGet, "/readyz", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz: %d", rec.Code)
	}
	if rec := api.do(t, http.MethodGet, "/metrics", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&quiz.NotEligibleError{Reason: quiz.ReasonClosed}, http.StatusForbidden, "not_eligible"},
		{&quiz.NotEligibleError{Reason: quiz.ReasonInProgress, AttemptID: "a"}, http.StatusConflict, "attempt_in_progress"},
		{quiz.ErrQuizNotFound, http.StatusNotFound, "quiz_not_found"},
		{quiz.ErrAttemptNotFound, http.StatusNotFound, "attempt_not_found"},
		{quiz.ErrAttemptAlreadySubmitted, http.StatusConflict, "attempt_already_submitted"},
		{quiz.ErrQuizInUse, http.StatusConflict, "quiz_in_use"},
		{quiz.ErrInvalidAnswer, http.StatusUnprocessableEntity, "invalid_answer"},
		{&quiz.ValidationError{Problems: []string{"x"}}, http.StatusBadRequest, "invalid_quiz"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		status, body := classify(tc.err)
		if status != tc.status || body.Error != tc.code {
			t.Errorf("%v: got %d/%s want %d/%s", tc.err, status, body.Error, tc.status, tc.code)
		}
	}
}
