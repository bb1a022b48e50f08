package billing

import (
	"errors"

	"github.com/PortNumber53/readflash/backend/internal/apperr"
	"github.com/PortNumber53/readflash/backend/internal/stripe"
)

var (
	ErrUnknownPlan   = errors.New("billing: unknown plan")
	ErrPlanNotPriced = errors.New("billing: plan has no configured price")
	ErrPriceInactive = errors.New("billing: price is not active")
	ErrNoCustomer    = errors.New("billing: no payment provider customer for this account")
	ErrMissingEmail  = errors.New("billing: account has no email")
)

// classify converts provider and billing failures into boundary errors.
func classify(message string, err error) error {
	switch {
	case errors.Is(err, stripe.ErrMissingKey), errors.Is(err, stripe.ErrInvalidKey):
		return apperr.Wrap(apperr.KindConfiguration, "Payment provider is not configured", err)
	case errors.Is(err, ErrPlanNotPriced):
		return apperr.Wrap(apperr.KindConfiguration, "Payment provider is not configured", err)
	case errors.Is(err, ErrUnknownPlan):
		return apperr.Wrap(apperr.KindValidation, "Invalid plan selected", err)
	case errors.Is(err, ErrMissingEmail):
		return apperr.Wrap(apperr.KindAuthentication, "User not authenticated or email not available", err)
	case errors.Is(err, ErrPriceInactive):
		return apperr.Wrap(apperr.KindValidation, "The selected plan is not available at the moment", err)
	case errors.Is(err, stripe.ErrPriceNotFound):
		return apperr.Wrap(apperr.KindNotFound, "The selected plan price was not found", err)
	case errors.Is(err, ErrNoCustomer):
		return apperr.Wrap(apperr.KindNotFound, "No Stripe customer found for this user", err)
	default:
		return apperr.Wrap(apperr.KindUpstream, message, err)
	}
}
