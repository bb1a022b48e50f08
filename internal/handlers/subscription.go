package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/PortNumber53/readflash/backend/internal/apperr"
	"github.com/PortNumber53/readflash/backend/internal/billing"
	"github.com/PortNumber53/readflash/backend/internal/models"
	"github.com/PortNumber53/readflash/backend/internal/store"
)

// Reconciler refreshes a caller's entitlement from the payment provider.
type Reconciler interface {
	Reconcile(ctx context.Context, id models.Identity) (billing.Result, error)
}

// EntitlementReader reads the cached entitlement row.
type EntitlementReader interface {
	GetEntitlementByEmail(ctx context.Context, email string) (models.Entitlement, error)
}

type subscriptionResponse struct {
	Subscribed       bool        `json:"subscribed"`
	SubscriptionTier models.Tier `json:"subscription_tier"`
	SubscriptionEnd  *time.Time  `json:"subscription_end"`
	WasCanceled      *bool       `json:"was_canceled,omitempty"`
	ReconciledAt     *time.Time  `json:"reconciled_at,omitempty"`
}

// ReconcileSubscription re-derives the caller's entitlement from the payment
// provider and returns what was written.
func ReconcileSubscription(rec Reconciler, log *zap.Logger) http.HandlerFunc {
	log = nopIfNil(log)
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := requireIdentity(r)
		if err != nil {
			writeError(w, log, err)
			return
		}

		res, err := rec.Reconcile(r.Context(), id)
		if err != nil {
			writeError(w, log, err)
			return
		}

		canceled := res.WasRecentlyCanceled
		writeJSON(w, http.StatusOK, subscriptionResponse{
			Subscribed:       res.Entitlement.Subscribed,
			SubscriptionTier: res.Entitlement.Tier,
			SubscriptionEnd:  res.Entitlement.PeriodEnd,
			WasCanceled:      &canceled,
		})
	}
}

// GetSubscription returns the cached entitlement without calling the payment
// provider. Callers never reconciled read as unsubscribed.
func GetSubscription(reader EntitlementReader, log *zap.Logger) http.HandlerFunc {
	log = nopIfNil(log)
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := requireIdentity(r)
		if err != nil {
			writeError(w, log, err)
			return
		}

		ent, err := entitlementFor(r.Context(), reader, id)
		if err != nil {
			writeError(w, log, err)
			return
		}

		resp := subscriptionResponse{
			Subscribed:       ent.Subscribed,
			SubscriptionTier: ent.Tier,
			SubscriptionEnd:  ent.PeriodEnd,
		}
		if !ent.ReconciledAt.IsZero() {
			at := ent.ReconciledAt
			resp.ReconciledAt = &at
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// entitlementFor returns the caller's cached entitlement, or an unsubscribed
// zero value when none has been written yet.
func entitlementFor(ctx context.Context, reader EntitlementReader, id models.Identity) (models.Entitlement, error) {
	email := strings.TrimSpace(id.Email)
	if email == "" {
		return models.Entitlement{UserID: id.UserID}, nil
	}
	ent, err := reader.GetEntitlementByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return models.Entitlement{UserID: id.UserID, Email: email}, nil
	}
	if err != nil {
		return models.Entitlement{}, apperr.Wrap(apperr.KindInternal, "Failed to load subscription", err)
	}
	return ent, nil
}
