package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

func TestNewParsesLevelAndFormat(t *testing.T) {
	l := New("debug", "text")
	if l.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level=%v", l.GetLevel())
	}
	if _, ok := l.Formatter.(*logrus.TextFormatter); !ok {
		t.Fatalf("formatter=%T", l.Formatter)
	}

	l = New("nonsense", "")
	if l.GetLevel() != logrus.InfoLevel {
		t.Fatalf("fallback level=%v", l.GetLevel())
	}
	if _, ok := l.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("fallback formatter=%T", l.Formatter)
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("nil entry")
	}
	e := logrus.NewEntry(logrus.New()).WithField("k", "v")
	got := FromContext(WithLogger(context.Background(), e))
	if got.Data["k"] != "v" {
		t.Fatalf("entry not carried: %+v", got.Data)
	}
}

func TestMiddlewareLogsRequest(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "info", "json")

	var sawEntry bool
	h := middleware.RequestID(Middleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawEntry = FromContext(r.Context()).Data["request_id"] != ""
		w.WriteHeader(http.StatusTeapot)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/attempts", nil))

	if !sawEntry {
		t.Fatal("handler did not see request-scoped entry")
	}
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if line["path"] != "/attempts" || line["status"] != float64(http.StatusTeapot) || line["level"] != "warning" {
		t.Fatalf("unexpected log line: %v", line)
	}
}
