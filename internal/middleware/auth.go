package middleware

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/PortNumber53/readflash/backend/internal/auth"
	"github.com/PortNumber53/readflash/backend/internal/models"
)

// TokenVerifier turns a bearer token into an identity.
type TokenVerifier interface {
	Verify(raw string) (models.Identity, error)
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: message})
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's identity in the request context.
func RequireAuth(verifier TokenVerifier, log *zap.Logger) func(http.Handler) http.Handler {
	return authenticate(verifier, log, true)
}

// OptionalAuth attaches the caller's identity when a valid token is present
// and lets anonymous requests through.
func OptionalAuth(verifier TokenVerifier, log *zap.Logger) func(http.Handler) http.Handler {
	return authenticate(verifier, log, false)
}

func authenticate(verifier TokenVerifier, log *zap.Logger, required bool) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				if required {
					writeError(w, http.StatusUnauthorized, "No authorization header provided")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				log.Debug("bearer token rejected", zap.String("path", r.URL.Path), zap.Error(err))
				if required {
					writeError(w, http.StatusUnauthorized, "Invalid or expired token")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}
