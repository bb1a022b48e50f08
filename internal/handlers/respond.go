package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PortNumber53/readflash/backend/internal/apperr"
	"github.com/PortNumber53/readflash/backend/internal/auth"
	"github.com/PortNumber53/readflash/backend/internal/models"
	"github.com/PortNumber53/readflash/backend/internal/store"
)

const maxJSONBody = 1 << 20

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError renders err as {error, details} with the status of its Kind.
// Unclassified errors are reported as internal errors.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	kind := apperr.KindOf(err)
	status := kind.Status()
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("kind", kind.String()), zap.Error(err))
	} else {
		log.Debug("request rejected", zap.String("kind", kind.String()), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: apperr.Message(err), Details: apperr.Details(err)})
}

// decodeJSON reads a JSON body of at most limit bytes into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	if limit <= 0 {
		limit = maxJSONBody
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperr.Wrap(apperr.KindValidation, "Request body is too large", err)
		case errors.Is(err, io.EOF):
			return apperr.New(apperr.KindValidation, "Request body is required")
		default:
			return apperr.Wrap(apperr.KindValidation, "Invalid JSON payload", err)
		}
	}
	return nil
}

func requireIdentity(r *http.Request) (models.Identity, error) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return models.Identity{}, apperr.New(apperr.KindAuthentication, "User not authenticated")
	}
	return id, nil
}

func pathBookID(r *http.Request, param string) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.KindValidation, fmt.Sprintf("Invalid book id %q", raw))
	}
	return id, nil
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.New(apperr.KindValidation, fmt.Sprintf("Invalid id %q", raw))
	}
	return id, nil
}

// storeError classifies store sentinels; anything else is internal.
func storeError(err error, notFound string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, notFound, err)
	case errors.Is(err, store.ErrDuplicate):
		return apperr.Wrap(apperr.KindConflict, "Already exists", err)
	default:
		return apperr.Wrap(apperr.KindInternal, "Database error", err)
	}
}

func nopIfNil(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
