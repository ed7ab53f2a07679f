package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCorrelationID(t *testing.T) {
	handler := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := r.Context().Value(CorrelationKey).(string)
		if !ok || id == "" {
			t.Error("correlation id missing from context")
		}
	}))

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get("X-Correlation-ID") == "" {
		t.Error("header missing")
	}
}

func TestCorrelationID_KeepsIncomingHeader(t *testing.T) {
	var got string
	handler := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetCorrelationID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got != "abc-123" {
		t.Errorf("expected abc-123, got %q", got)
	}
}

func TestCorrelationID_TagsProject(t *testing.T) {
	mux := http.NewServeMux()
	var got string
	mux.Handle("GET /projects/{project_id}/info", CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetProjectID(r.Context())
	})))

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/projects/p42/info", nil))

	if got != "p42" {
		t.Errorf("expected p42, got %q", got)
	}
}

func TestGetCorrelationID_Unknown(t *testing.T) {
	if id := GetCorrelationID(context.Background()); id != "unknown" {
		t.Errorf("expected unknown, got %q", id)
	}
}
