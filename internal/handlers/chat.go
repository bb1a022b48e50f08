package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/PortNumber53/readflash/backend/internal/auth"
	"github.com/PortNumber53/readflash/backend/internal/chat"
)

// Base64 inflates the 5MB image limit by a third; leave room for the rest of the payload.
const maxChatBody = 8 << 20

// Asker answers assistant questions.
type Asker interface {
	Ask(ctx context.Context, req chat.Request) (string, error)
}

type chatResponse struct {
	Response string `json:"response"`
}

// AIChat answers a reading question. An authenticated caller's own id is used
// for the history row regardless of the userId in the body.
func AIChat(asker Asker, log *zap.Logger) http.HandlerFunc {
	log = nopIfNil(log)
	return func(w http.ResponseWriter, r *http.Request) {
		var req chat.Request
		if err := decodeJSON(w, r, maxChatBody, &req); err != nil {
			writeError(w, log, err)
			return
		}
		if id, ok := auth.IdentityFromContext(r.Context()); ok {
			req.UserID = id.UserID.String()
		}

		answer, err := asker.Ask(r.Context(), req)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, chatResponse{Response: answer})
	}
}
