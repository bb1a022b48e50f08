package billing

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/PortNumber53/readflash/backend/internal/metrics"
	"github.com/PortNumber53/readflash/backend/internal/models"
	"github.com/PortNumber53/readflash/backend/internal/stripe"
)

// SessionProvider is the write side of the payment provider.
type SessionProvider interface {
	FindCustomerByEmail(ctx context.Context, email string) (*stripe.Customer, error)
	RetrievePrice(ctx context.Context, priceID string) (stripe.Price, error)
	CreateCheckoutSession(ctx context.Context, p stripe.CheckoutParams) (stripe.Session, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (stripe.Session, error)
}

// Initiator starts hosted checkout and billing portal sessions.
type Initiator struct {
	provider SessionProvider
	catalog  Catalog
	logger   *zap.Logger
}

func NewInitiator(provider SessionProvider, catalog Catalog, logger *zap.Logger) *Initiator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Initiator{provider: provider, catalog: catalog, logger: logger}
}

// Catalog exposes the plans the initiator sells.
func (i *Initiator) Catalog() Catalog { return i.catalog }

// Checkout creates a subscription checkout for the selected plan and returns
// the hosted page URL. origin is the app's base URL for the return pages.
func (i *Initiator) Checkout(ctx context.Context, id models.Identity, selector, origin string) (string, error) {
	log := i.logger.With(zap.String("component", "checkout"), zap.String("plan", selector))

	plan, err := i.catalog.Lookup(selector)
	if err != nil {
		metrics.CheckoutSessionsTotal.WithLabelValues("unknown", "invalid_plan").Inc()
		return "", classify("", err)
	}
	email := strings.TrimSpace(id.Email)
	if email == "" {
		return "", classify("", ErrMissingEmail)
	}
	outcome := func(o string) { metrics.CheckoutSessionsTotal.WithLabelValues(plan.Selector, o).Inc() }

	customer, err := i.provider.FindCustomerByEmail(ctx, email)
	if err != nil {
		outcome("error")
		log.Error("customer lookup failed", zap.Error(err))
		return "", classify("Failed to look up payment customer", err)
	}

	price, err := i.provider.RetrievePrice(ctx, plan.PriceID)
	if err != nil {
		outcome("error")
		log.Error("price lookup failed", zap.String("price_id", plan.PriceID), zap.Error(err))
		return "", classify("Failed to verify plan price", err)
	}
	if !price.Active {
		outcome("price_inactive")
		log.Warn("price is inactive", zap.String("price_id", plan.PriceID))
		return "", classify("", ErrPriceInactive)
	}

	params := stripe.CheckoutParams{
		PriceID:             plan.PriceID,
		SuccessURL:          origin + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:           origin + "/assinaturas?canceled=true",
		AllowPromotionCodes: true,
	}
	if customer != nil {
		params.CustomerID = customer.ID
	} else {
		params.CustomerEmail = email
	}

	session, err := i.provider.CreateCheckoutSession(ctx, params)
	if err != nil {
		outcome("error")
		log.Error("checkout session failed", zap.Error(err))
		return "", classify("Failed to create checkout session", err)
	}

	outcome("created")
	log.Info("checkout session created", zap.String("session_id", session.ID), zap.Bool("existing_customer", customer != nil))
	return session.URL, nil
}

// Portal opens the provider's self-service billing portal for the caller.
func (i *Initiator) Portal(ctx context.Context, id models.Identity, origin string) (string, error) {
	log := i.logger.With(zap.String("component", "customer-portal"))

	email := strings.TrimSpace(id.Email)
	if email == "" {
		return "", classify("", ErrMissingEmail)
	}

	customer, err := i.provider.FindCustomerByEmail(ctx, email)
	if err != nil {
		log.Error("customer lookup failed", zap.Error(err))
		return "", classify("Failed to look up payment customer", err)
	}
	if customer == nil {
		return "", classify("", ErrNoCustomer)
	}

	session, err := i.provider.CreatePortalSession(ctx, customer.ID, origin+"/assinaturas")
	if err != nil {
		log.Error("portal session failed", zap.Error(err))
		return "", classify("Failed to open customer portal", err)
	}
	log.Info("portal session created", zap.String("customer_id", customer.ID))
	return session.URL, nil
}
