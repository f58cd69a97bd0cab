package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDefaultPolicy(t *testing.T) {
	c := NewChecker(nil)
	cases := []struct {
		role, perm string
		want       bool
	}{
		{RoleStudent, PermAttemptCreate, true},
		{RoleStudent, PermAttemptViewAll, false},
		{RoleStudent, PermQuizCreate, false},
		{RoleTeacher, PermQuizCreate, true},
		{RoleTeacher, PermQuizExport, true},
		{RoleTeacher, PermAttemptSubmit, false},
		{RoleAdmin, PermAttemptSubmit, true},
		{"guest", PermQuizView, false},
	}
	for _, tc := range cases {
		if got := c.Has(tc.role, tc.perm); got != tc.want {
			t.Errorf("Has(%s, %s)=%v want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestRequireAny(t *testing.T) {
	h := RequireAny(PermAttemptViewOwn, PermAttemptViewAll)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for role, want := range map[string]int{
		RoleStudent: http.StatusNoContent,
		RoleTeacher: http.StatusNoContent,
		"":          http.StatusForbidden,
		"guest":     http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithRole(req.Context(), role))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("role %q: code=%d want %d", role, rec.Code, want)
		}
	}
}

func TestCan(t *testing.T) {
	ctx := WithRole(context.Background(), RoleTeacher)
	if !Can(ctx, PermAttemptViewAll) {
		t.Fatal("teacher should view all attempts")
	}
	if Can(context.Background(), PermQuizView) {
		t.Fatal("no role should have no permissions")
	}
}
