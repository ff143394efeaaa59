package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	appmw "github.com/taskshare/taskshare-api/internal/middleware"
)

type staticVerifier struct {
	token  string
	userID string
}

func (v staticVerifier) Verify(token string) (string, error) {
	if token == v.token {
		return v.userID, nil
	}
	return "", errors.New("invalid or expired token")
}

func TestIdentity(t *testing.T) {
	r := chi.NewRouter()
	r.Use(appmw.Identity(staticVerifier{token: "tok_abc", userID: "user-1"}))
	r.Get("/tasks", func(w http.ResponseWriter, r *http.Request) {
		id, ok := appmw.CallerID(r.Context())
		if !ok || id != "user-1" {
			t.Errorf("expected caller id user-1, got %q (ok=%v)", id, ok)
		}
		w.WriteHeader(200)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/tasks", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/tasks", nil)
	req.Header.Set("Authorization", "Bearer tok_bad")
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/tasks", nil)
	req.Header.Set("Authorization", "tok_abc") // missing Bearer prefix
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without Bearer prefix, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/tasks", nil)
	req.Header.Set("Authorization", "Bearer tok_abc")
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", rec.Code)
	}
}
