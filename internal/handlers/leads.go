package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/PortNumber53/readflash/backend/internal/apperr"
	"github.com/PortNumber53/readflash/backend/internal/sheets"
)

// RowAppender appends a row to the lead spreadsheet.
type RowAppender interface {
	AppendRow(ctx context.Context, values ...string) (*sheets.AppendResult, error)
}

type leadRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RecordLead appends {name, email} to the lead spreadsheet.
func RecordLead(sheet RowAppender, log *zap.Logger) http.HandlerFunc {
	log = nopIfNil(log)
	return func(w http.ResponseWriter, r *http.Request) {
		var req leadRequest
		if err := decodeJSON(w, r, 0, &req); err != nil {
			writeError(w, log, err)
			return
		}
		name := strings.TrimSpace(req.Name)
		email := strings.TrimSpace(req.Email)
		if name == "" || email == "" {
			writeError(w, log, apperr.New(apperr.KindValidation, "Name and email are required"))
			return
		}
		if _, err := mail.ParseAddress(email); err != nil {
			writeError(w, log, apperr.Wrap(apperr.KindValidation, "Invalid email address", err))
			return
		}

		res, err := sheet.AppendRow(r.Context(), name, email)
		if err != nil {
			var apiErr *sheets.APIError
			switch {
			case errors.Is(err, sheets.ErrMissingAPIKey):
				writeError(w, log, apperr.Wrap(apperr.KindConfiguration, "Spreadsheet integration is not configured", err))
			case errors.As(err, &apiErr):
				writeError(w, log, apperr.Wrap(apperr.KindUpstream, "Failed to save to the spreadsheet", err))
			default:
				writeError(w, log, apperr.Wrap(apperr.KindUpstream, "Failed to reach the spreadsheet service", err))
			}
			return
		}

		log.Info("lead recorded", zap.String("updated_range", res.Updates.UpdatedRange))
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Lead saved"})
	}
}
