package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// TokenVerifier validates a bearer token and returns the user id it embeds.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

type ctxKey int

const callerIDKey ctxKey = 0

// CallerID returns the authenticated user id resolved by Identity.
func CallerID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(callerIDKey).(string)
	return id, ok && id != ""
}

// WithCallerID is for tests that exercise handlers without the middleware.
func WithCallerID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, callerIDKey, userID)
}

type authErr struct {
	Error string `json:"error"`
}

// Identity rejects requests without a valid bearer token and resolves the
// caller's user id into the request context. Handlers read it once with
// CallerID and pass it explicitly into every store call.
func Identity(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			token := strings.TrimPrefix(authz, "Bearer ")
			if token == authz || strings.TrimSpace(token) == "" {
				unauthorized(w, `Bearer realm="tasks"`)
				return
			}

			userID, err := verifier.Verify(strings.TrimSpace(token))
			if err != nil {
				unauthorized(w, `Bearer realm="tasks", error="invalid_token"`)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCallerID(r.Context(), userID)))
		})
	}
}

func unauthorized(w http.ResponseWriter, challenge string) {
	w.Header().Set("Content-Type", "application/json")
	if challenge != "" {
		w.Header().Set("WWW-Authenticate", challenge)
	}
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(authErr{Error: "unauthorized"})
}
