package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/taskshare/taskshare-api/internal/middleware"
)

type taskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type shareRequest struct {
	TaskID    string `json:"taskId"`
	UserEmail string `json:"userEmail"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errResponse struct {
	Error   string       `json:"error"`
	Details []fieldError `json:"details,omitempty"`
}

func RegisterRoutes(r chi.Router, repo Repository, logger *slog.Logger) {
	r.Get("/tasks", listTasks(repo, logger, Repository.ListVisible))
	r.Get("/tasks/my-tasks", listTasks(repo, logger, Repository.ListOwned))
	r.Get("/tasks/shared-tasks", listTasks(repo, logger, Repository.ListSharedWith))
	r.Post("/tasks", createTask(repo, logger))
	r.Put("/tasks/{id}", updateTask(repo, logger))
	r.Patch("/tasks/{id}/toggle", toggleTask(repo, logger))
	r.Delete("/tasks/{id}", deleteTask(repo, logger))
	r.Post("/tasks/share", shareTask(repo, logger))
}

func listTasks(repo Repository, logger *slog.Logger, scope func(Repository, context.Context, string) ([]Task, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		callerID, ok := middleware.CallerID(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errResponse{Error: "unauthorized"})
			return
		}

		list, err := scope(repo, r.Context(), callerID)
		if err != nil {
			writeError(w, logger, "list_tasks", err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func createTask(repo Repository, logger *slog.Logger) http.HandlerFunc {
	const maxTitleLen = 200

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		callerID, ok := middleware.CallerID(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errResponse{Error: "unauthorized"})
			return
		}

		var req taskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid_json"})
			return
		}

		if vErrs := validateTitle(req.Title, maxTitleLen); len(vErrs) > 0 {
			writeJSON(w, http.StatusBadRequest, errResponse{
				Error:   "validation_error",
				Details: vErrs,
			})
			return
		}

		t, err := repo.Create(r.Context(), callerID, req.Title, req.Description)
		if err != nil {
			writeError(w, logger, "create_task", err)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

func updateTask(repo Repository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		callerID, ok := middleware.CallerID(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errResponse{Error: "unauthorized"})
			return
		}

		var req taskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid_json"})
			return
		}

		t, err := repo.Update(r.Context(), callerID, chi.URLParam(r, "id"), req.Title, req.Description)
		if err != nil {
			writeError(w, logger, "update_task", err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func toggleTask(repo Repository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		callerID, ok := middleware.CallerID(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errResponse{Error: "unauthorized"})
			return
		}

		t, err := repo.ToggleCompletion(r.Context(), callerID, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, logger, "toggle_task", err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func deleteTask(repo Repository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		callerID, ok := middleware.CallerID(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errResponse{Error: "unauthorized"})
			return
		}

		if err := repo.Delete(r.Context(), callerID, chi.URLParam(r, "id")); err != nil {
			writeError(w, logger, "delete_task", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func shareTask(repo Repository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		callerID, ok := middleware.CallerID(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errResponse{Error: "unauthorized"})
			return
		}

		var req shareRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid_json"})
			return
		}
		if req.TaskID == "" || req.UserEmail == "" {
			writeJSON(w, http.StatusBadRequest, errResponse{
				Error: "validation_error",
				Details: []fieldError{
					{Field: "taskId", Message: "taskId and userEmail are required"},
				},
			})
			return
		}

		t, err := repo.Share(r.Context(), callerID, req.TaskID, req.UserEmail)
		if err != nil {
			writeError(w, logger, "share_task", err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func validateTitle(title string, maxLen int) []fieldError {
	var errs []fieldError

	if strings.TrimSpace(title) == "" {
		errs = append(errs, fieldError{
			Field:   "title",
			Message: "title is required",
		})
	}

	if l := len(title); l > maxLen {
		errs = append(errs, fieldError{
			Field:   "title",
			Message: fmt.Sprintf("title must be at most %d characters", maxLen),
		})
	}

	return errs
}

// writeError maps domain errors to the API's status codes. A missing task
// and an invisible one produce the same 404 so task ids never leak.
func writeError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch err {
	case ErrNotFound:
		writeJSON(w, http.StatusNotFound, errResponse{Error: "task_not_found"})
	case ErrUserNotFound:
		writeJSON(w, http.StatusNotFound, errResponse{Error: "user_not_found"})
	case ErrAlreadyShared:
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "already_shared"})
	case ErrSelfShare:
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "cannot_share_with_self"})
	case ErrTitleRequired:
		writeJSON(w, http.StatusBadRequest, errResponse{
			Error: "validation_error",
			Details: []fieldError{
				{Field: "title", Message: "title is required"},
			},
		})
	default:
		logger.Error(op+"_failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errResponse{Error: "unexpected_error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
