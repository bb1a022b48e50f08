package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/PortNumber53/readflash/backend/internal/billing"
	"github.com/PortNumber53/readflash/backend/internal/models"
)

// SessionInitiator opens hosted checkout and portal pages.
type SessionInitiator interface {
	Checkout(ctx context.Context, id models.Identity, selector, origin string) (string, error)
	Portal(ctx context.Context, id models.Identity, origin string) (string, error)
	Catalog() billing.Catalog
}

type checkoutRequest struct {
	Plan string `json:"plan"`
}

type urlResponse struct {
	URL string `json:"url"`
}

// requestOrigin picks the app origin for return URLs: the request's Origin
// header when present, else the configured base URL.
func requestOrigin(r *http.Request, fallback string) string {
	if origin := strings.TrimSpace(r.Header.Get("Origin")); origin != "" && origin != "null" {
		return strings.TrimRight(origin, "/")
	}
	return strings.TrimRight(fallback, "/")
}

// CreateCheckout starts a subscription checkout for the requested plan.
func CreateCheckout(initiator SessionInitiator, appBaseURL string, log *zap.Logger) http.HandlerFunc {
	log = nopIfNil(log)
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := requireIdentity(r)
		if err != nil {
			writeError(w, log, err)
			return
		}

		var req checkoutRequest
		if err := decodeJSON(w, r, 0, &req); err != nil {
			writeError(w, log, err)
			return
		}

		url, err := initiator.Checkout(r.Context(), id, strings.TrimSpace(req.Plan), requestOrigin(r, appBaseURL))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, urlResponse{URL: url})
	}
}

// OpenCustomerPortal returns the billing portal URL for the caller.
func OpenCustomerPortal(initiator SessionInitiator, appBaseURL string, log *zap.Logger) http.HandlerFunc {
	log = nopIfNil(log)
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := requireIdentity(r)
		if err != nil {
			writeError(w, log, err)
			return
		}

		url, err := initiator.Portal(r.Context(), id, requestOrigin(r, appBaseURL))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, urlResponse{URL: url})
	}
}

// ListPlans returns the plans on sale.
func ListPlans(initiator SessionInitiator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"plans": initiator.Catalog().Plans()})
	}
}
