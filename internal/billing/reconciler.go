package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/PortNumber53/readflash/backend/internal/apperr"
	"github.com/PortNumber53/readflash/backend/internal/metrics"
	"github.com/PortNumber53/readflash/backend/internal/models"
	"github.com/PortNumber53/readflash/backend/internal/stripe"
)

const (
	// SubscriptionPageSize bounds how many subscriptions are inspected per
	// reconciliation. Older history beyond the page is not consulted.
	SubscriptionPageSize = 10

	// RecentCancellationWindow is the look-back for the "recently canceled" hint.
	RecentCancellationWindow = 30 * 24 * time.Hour
)

// SubscriptionProvider is the read side of the payment provider.
type SubscriptionProvider interface {
	FindCustomerByEmail(ctx context.Context, email string) (*stripe.Customer, error)
	ListSubscriptions(ctx context.Context, customerID string, limit int) ([]stripe.Subscription, error)
	RetrievePrice(ctx context.Context, priceID string) (stripe.Price, error)
}

// EntitlementStore persists reconciled entitlements. UpsertEntitlement must
// only overwrite a row whose ReconciledAt is not newer than the incoming one,
// and returns the row as stored.
type EntitlementStore interface {
	UpsertEntitlement(ctx context.Context, e models.Entitlement) (models.Entitlement, error)
}

// Result is the outcome of one reconciliation.
type Result struct {
	Entitlement models.Entitlement
	// WasRecentlyCanceled is informational and never persisted.
	WasRecentlyCanceled bool
}

// Reconciler recomputes a user's entitlement from the payment provider.
type Reconciler struct {
	provider SubscriptionProvider
	store    EntitlementStore
	logger   *zap.Logger
	now      func() time.Time
}

func NewReconciler(provider SubscriptionProvider, store EntitlementStore, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		provider: provider,
		store:    store,
		logger:   logger.With(zap.String("component", "reconcile")),
		now:      time.Now,
	}
}

// Reconcile resolves the caller's customer, picks the first active
// subscription, derives the tier from its price and writes the entitlement.
// Any provider failure aborts before the write.
func (r *Reconciler) Reconcile(ctx context.Context, id models.Identity) (Result, error) {
	email := strings.TrimSpace(id.Email)
	if email == "" {
		return Result{}, classify("", ErrMissingEmail)
	}
	startedAt := r.now().UTC()
	log := r.logger.With(zap.String("user_id", id.UserID.String()))
	log.Info("reconciliation started")

	entitlement := models.Entitlement{
		UserID:       id.UserID,
		Email:        email,
		ReconciledAt: startedAt,
	}

	customer, err := r.provider.FindCustomerByEmail(ctx, email)
	if err != nil {
		return r.fail(log, "Failed to look up payment customer", err)
	}
	if customer == nil {
		log.Info("no customer found, marking unsubscribed")
		return r.write(ctx, log, entitlement, false, "no_customer")
	}
	entitlement.StripeCustomerID = &customer.ID

	subs, err := r.provider.ListSubscriptions(ctx, customer.ID, SubscriptionPageSize)
	if err != nil {
		return r.fail(log, "Failed to list subscriptions", err)
	}

	active := firstActive(subs)
	if active == nil {
		canceled := wasRecentlyCanceled(subs, startedAt)
		log.Info("no active subscription", zap.Bool("was_canceled", canceled))
		return r.write(ctx, log, entitlement, canceled, "unsubscribed")
	}

	if active.PriceID == "" {
		return r.fail(log, "Failed to resolve subscription price", fmt.Errorf("subscription %s has no price", active.ID))
	}
	// Inactive prices still grant access to existing subscribers.
	price, err := r.provider.RetrievePrice(ctx, active.PriceID)
	if err != nil {
		return r.fail(log, "Failed to resolve subscription price", err)
	}

	entitlement.Subscribed = true
	entitlement.Tier = TierForAmount(price.UnitAmount)
	if !active.CurrentPeriodEnd.IsZero() {
		end := active.CurrentPeriodEnd
		entitlement.PeriodEnd = &end
	}
	log.Info("active subscription found",
		zap.String("subscription_id", active.ID),
		zap.Int64("amount", price.UnitAmount),
		zap.String("tier", string(entitlement.Tier)),
	)

	return r.write(ctx, log, entitlement, false, "subscribed")
}

func (r *Reconciler) write(ctx context.Context, log *zap.Logger, e models.Entitlement, wasCanceled bool, outcome string) (Result, error) {
	stored, err := r.store.UpsertEntitlement(ctx, e)
	if err != nil {
		metrics.ReconciliationsTotal.WithLabelValues("error").Inc()
		log.Error("failed to persist entitlement", zap.Error(err))
		return Result{}, apperr.Wrap(apperr.KindInternal, "Failed to save subscription status", err)
	}
	if stored.ReconciledAt.After(e.ReconciledAt) {
		// A newer reconciliation already landed; report what is stored.
		outcome = "stale"
		log.Info("newer entitlement already stored", zap.Time("stored_at", stored.ReconciledAt))
	}
	metrics.ReconciliationsTotal.WithLabelValues(outcome).Inc()
	return Result{Entitlement: stored, WasRecentlyCanceled: wasCanceled && !stored.Subscribed}, nil
}

func (r *Reconciler) fail(log *zap.Logger, message string, err error) (Result, error) {
	metrics.ReconciliationsTotal.WithLabelValues("error").Inc()
	log.Error(message, zap.Error(err))
	return Result{}, classify(message, err)
}

func firstActive(subs []stripe.Subscription) *stripe.Subscription {
	for i := range subs {
		if subs[i].Status == stripe.StatusActive {
			return &subs[i]
		}
	}
	return nil
}

func wasRecentlyCanceled(subs []stripe.Subscription, now time.Time) bool {
	cutoff := now.Add(-RecentCancellationWindow)
	for _, sub := range subs {
		switch sub.Status {
		case stripe.StatusCanceled, stripe.StatusUnpaid, stripe.StatusPastDue:
		default:
			continue
		}
		if sub.CanceledAt != nil && sub.CanceledAt.After(cutoff) {
			return true
		}
	}
	return false
}
