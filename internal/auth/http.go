package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/taskshare/taskshare-api/internal/users"
)

const minPasswordLen = 6

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User  users.Public `json:"user"`
	Token string       `json:"token"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errResponse struct {
	Error   string       `json:"error"`
	Details []fieldError `json:"details,omitempty"`
}

func RegisterRoutes(r chi.Router, repo users.Repository, tokens *Tokens, logger *slog.Logger) {
	r.Post("/auth/signup", signup(repo, tokens, logger))
	r.Post("/auth/login", login(repo, tokens, logger))
}

func signup(repo users.Repository, tokens *Tokens, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		var req signupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid_json"})
			return
		}
		req.Email = strings.TrimSpace(req.Email)
		req.Name = strings.TrimSpace(req.Name)

		if vErrs := validateSignup(req); len(vErrs) > 0 {
			writeJSON(w, http.StatusBadRequest, errResponse{
				Error:   "validation_error",
				Details: vErrs,
			})
			return
		}

		hash, err := HashPassword(req.Password)
		if err != nil {
			logger.Error("password_hash_failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errResponse{Error: "unexpected_error"})
			return
		}

		u, err := repo.Create(r.Context(), req.Email, req.Name, hash)
		if err != nil {
			if err == users.ErrEmailTaken {
				writeJSON(w, http.StatusBadRequest, errResponse{Error: "email_taken"})
				return
			}
			logger.Error("signup_failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errResponse{Error: "unexpected_error"})
			return
		}

		token, err := tokens.Issue(u.ID)
		if err != nil {
			logger.Error("token_issue_failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errResponse{Error: "unexpected_error"})
			return
		}

		writeJSON(w, http.StatusCreated, sessionResponse{User: u.Public(), Token: token})
	}
}

func login(repo users.Repository, tokens *Tokens, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid_json"})
			return
		}

		// Unknown email and wrong password produce the same response so a
		// caller cannot probe which addresses are registered.
		u, err := repo.ByEmail(r.Context(), strings.TrimSpace(req.Email))
		if err != nil {
			if err == users.ErrNotFound {
				writeJSON(w, http.StatusUnauthorized, errResponse{Error: "invalid_credentials"})
				return
			}
			logger.Error("login_lookup_failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errResponse{Error: "unexpected_error"})
			return
		}
		if !CheckPassword(u.PasswordHash, req.Password) {
			writeJSON(w, http.StatusUnauthorized, errResponse{Error: "invalid_credentials"})
			return
		}

		token, err := tokens.Issue(u.ID)
		if err != nil {
			logger.Error("token_issue_failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errResponse{Error: "unexpected_error"})
			return
		}

		writeJSON(w, http.StatusOK, sessionResponse{User: u.Public(), Token: token})
	}
}

func validateSignup(req signupRequest) []fieldError {
	var errs []fieldError

	if req.Email == "" {
		errs = append(errs, fieldError{Field: "email", Message: "email is required"})
	} else if _, err := mail.ParseAddress(req.Email); err != nil {
		errs = append(errs, fieldError{Field: "email", Message: "email is not valid"})
	}

	if len(req.Password) < minPasswordLen {
		errs = append(errs, fieldError{
			Field:   "password",
			Message: "password must be at least 6 characters",
		})
	}

	if req.Name == "" {
		errs = append(errs, fieldError{Field: "name", Message: "name is required"})
	}

	return errs
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
