package auth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Verifier checks a bearer token and returns its assertion.
type Verifier interface {
	Verify(tokenString string) (Assertion, error)
}

// RequireAuth gates a handler on a valid bearer token. Every rejection gets the
// same 401 response; the reason is only logged. On success the Identity is
// attached to the request context and next is invoked.
func RequireAuth(verifier Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				reject(w, r, logger, err)
				return
			}

			assertion, err := verifier.Verify(tokenString)
			if err != nil {
				reject(w, r, logger, fmt.Errorf("%w: %w", ErrInvalidCredential, err))
				return
			}

			ctx := WithIdentity(r.Context(), Identity{
				Subject: assertion.Subject,
				Role:    assertion.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, logger *slog.Logger, reason error) {
	logger.DebugContext(r.Context(), "request rejected by auth gate",
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("reason", reason.Error()),
	)
	WriteUnauthorized(w)
}

// WriteUnauthorized writes the uniform 401 response.
func WriteUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", ErrMissingCredential
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("%w: not a bearer authorization", ErrInvalidCredential)
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", fmt.Errorf("%w: empty bearer token", ErrInvalidCredential)
	}
	return token, nil
}
