package tasks_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taskshare/taskshare-api/internal/auth"
	"github.com/taskshare/taskshare-api/internal/middleware"
	"github.com/taskshare/taskshare-api/internal/tasks"
	"github.com/taskshare/taskshare-api/internal/users"
)

type testEnv struct {
	router *chi.Mux
	tokens *auth.Tokens
	users  *users.InMemoryRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	userRepo := users.NewInMemoryRepo()
	taskRepo := tasks.NewInMemoryRepo(userRepo)
	tokens := auth.NewTokens("test-secret", time.Hour)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Identity(tokens))
		tasks.RegisterRoutes(r, taskRepo, logger)
	})
	return &testEnv{router: r, tokens: tokens, users: userRepo}
}

// signup registers a user directly against the store and returns a bearer
// token, skipping the auth handlers which have their own tests.
func (e *testEnv) signup(t *testing.T, email, name string) (users.User, string) {
	t.Helper()
	u, err := e.users.Create(context.Background(), email, name, "hash")
	if err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	token, err := e.tokens.Issue(u.ID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return u, token
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeTask(t *testing.T, rec *httptest.ResponseRecorder) tasks.Task {
	t.Helper()
	var task tasks.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &task); err != nil {
		t.Fatalf("failed to parse task JSON: %v (body=%s)", err, rec.Body.String())
	}
	return task
}

func decodeTasks(t *testing.T, rec *httptest.ResponseRecorder) []tasks.Task {
	t.Helper()
	var list []tasks.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to parse list JSON: %v (body=%s)", err, rec.Body.String())
	}
	return list
}

func TestTasks_RequireAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/tasks", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/tasks", "bogus-token", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}
}

func TestTasks_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signup(t, "ada@example.com", "Ada")

	rec := env.do(t, http.MethodPost, "/tasks", token, `{"title":"   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank title, got %d, body=%s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/tasks", token, `{"title":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid JSON, got %d", rec.Code)
	}
}

// TestTasks_ShareLifecycle walks the whole collaboration flow: create,
// share, collaborator toggles, owner deletes, collaborator loses access.
func TestTasks_ShareLifecycle(t *testing.T) {
	env := newTestEnv(t)
	_, adaToken := env.signup(t, "ada@example.com", "Ada")
	bob, bobToken := env.signup(t, "bob@example.com", "Bob")

	// Ada creates a task.
	rec := env.do(t, http.MethodPost, "/tasks", adaToken, `{"title":"Buy milk"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d, body=%s", rec.Code, rec.Body.String())
	}
	task := decodeTask(t, rec)
	if len(task.SharedWith) != 0 {
		t.Fatalf("new task must have empty shared set: %+v", task.SharedWith)
	}

	// It shows up in Ada's "all" and "mine", not "shared"; Bob sees nothing.
	if got := decodeTasks(t, env.do(t, http.MethodGet, "/tasks", adaToken, "")); len(got) != 1 {
		t.Fatalf("ada /tasks: expected 1, got %d", len(got))
	}
	if got := decodeTasks(t, env.do(t, http.MethodGet, "/tasks/my-tasks", adaToken, "")); len(got) != 1 {
		t.Fatalf("ada /tasks/my-tasks: expected 1, got %d", len(got))
	}
	if got := decodeTasks(t, env.do(t, http.MethodGet, "/tasks/shared-tasks", adaToken, "")); len(got) != 0 {
		t.Fatalf("ada /tasks/shared-tasks: expected 0, got %d", len(got))
	}
	if got := decodeTasks(t, env.do(t, http.MethodGet, "/tasks", bobToken, "")); len(got) != 0 {
		t.Fatalf("bob /tasks: expected 0, got %d", len(got))
	}

	// Ada shares with Bob.
	rec = env.do(t, http.MethodPost, "/tasks/share", adaToken,
		`{"taskId":"`+task.ID+`","userEmail":"bob@example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("share: expected 200, got %d, body=%s", rec.Code, rec.Body.String())
	}
	sharedTask := decodeTask(t, rec)
	if len(sharedTask.SharedWith) != 1 || sharedTask.SharedWith[0].ID != bob.ID {
		t.Fatalf("expected shared set {bob}, got %+v", sharedTask.SharedWith)
	}

	// Sharing twice is rejected.
	rec = env.do(t, http.MethodPost, "/tasks/share", adaToken,
		`{"taskId":"`+task.ID+`","userEmail":"bob@example.com"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate share: expected 400, got %d", rec.Code)
	}

	// Sharing with an unknown email is a 404.
	rec = env.do(t, http.MethodPost, "/tasks/share", adaToken,
		`{"taskId":"`+task.ID+`","userEmail":"ghost@example.com"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown target: expected 404, got %d", rec.Code)
	}

	// Bob sees the task in "all" and "shared", never in "mine".
	if got := decodeTasks(t, env.do(t, http.MethodGet, "/tasks/shared-tasks", bobToken, "")); len(got) != 1 {
		t.Fatalf("bob /tasks/shared-tasks: expected 1, got %d", len(got))
	}
	if got := decodeTasks(t, env.do(t, http.MethodGet, "/tasks/my-tasks", bobToken, "")); len(got) != 0 {
		t.Fatalf("bob /tasks/my-tasks: expected 0, got %d", len(got))
	}

	// Bob can toggle completion and both sides see the flip.
	rec = env.do(t, http.MethodPatch, "/tasks/"+task.ID+"/toggle", bobToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle: expected 200, got %d, body=%s", rec.Code, rec.Body.String())
	}
	if !decodeTask(t, rec).Completed {
		t.Fatalf("expected completed=true after toggle")
	}
	if got := decodeTasks(t, env.do(t, http.MethodGet, "/tasks", adaToken, "")); !got[0].Completed {
		t.Fatalf("ada should see the toggled state")
	}

	// Bob cannot delete; the task survives.
	rec = env.do(t, http.MethodDelete, "/tasks/"+task.ID, bobToken, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("collaborator delete: expected 404, got %d", rec.Code)
	}
	if got := decodeTasks(t, env.do(t, http.MethodGet, "/tasks", adaToken, "")); len(got) != 1 {
		t.Fatalf("task should survive a collaborator's delete attempt")
	}

	// Ada deletes; the task is gone for everyone.
	rec = env.do(t, http.MethodDelete, "/tasks/"+task.ID, adaToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("owner delete: expected 200, got %d", rec.Code)
	}
	for _, path := range []string{"/tasks", "/tasks/my-tasks", "/tasks/shared-tasks"} {
		if got := decodeTasks(t, env.do(t, http.MethodGet, path, adaToken, "")); len(got) != 0 {
			t.Fatalf("ada %s: expected empty after delete", path)
		}
		if got := decodeTasks(t, env.do(t, http.MethodGet, path, bobToken, "")); len(got) != 0 {
			t.Fatalf("bob %s: expected empty after delete", path)
		}
	}

	// Bob's update after the delete gets the conflated not-found signal.
	rec = env.do(t, http.MethodPut, "/tasks/"+task.ID, bobToken, `{"title":"too late"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("update after delete: expected 404, got %d", rec.Code)
	}
}

func TestTasks_UpdateBySharedUser(t *testing.T) {
	env := newTestEnv(t)
	_, adaToken := env.signup(t, "ada@example.com", "Ada")
	_, bobToken := env.signup(t, "bob@example.com", "Bob")

	rec := env.do(t, http.MethodPost, "/tasks", adaToken, `{"title":"Buy milk","description":"2 liters"}`)
	task := decodeTask(t, rec)

	// Not yet shared: Bob's edit is indistinguishable from a missing task.
	rec = env.do(t, http.MethodPut, "/tasks/"+task.ID, bobToken, `{"title":"hijack"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before sharing, got %d", rec.Code)
	}

	env.do(t, http.MethodPost, "/tasks/share", adaToken,
		`{"taskId":"`+task.ID+`","userEmail":"bob@example.com"}`)

	rec = env.do(t, http.MethodPut, "/tasks/"+task.ID, bobToken, `{"title":"Buy oat milk","description":"from Bob"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("shared user update: expected 200, got %d, body=%s", rec.Code, rec.Body.String())
	}
	updated := decodeTask(t, rec)
	if updated.Title != "Buy oat milk" || updated.Description != "from Bob" {
		t.Fatalf("update not applied: %+v", updated)
	}
}
