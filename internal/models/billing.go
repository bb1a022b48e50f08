package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Tier is the paid plan level derived from the subscribed price. The zero value
// means no tier and encodes as JSON null.
type Tier string

const (
	TierNone    Tier = ""
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
)

func (t Tier) MarshalJSON() ([]byte, error) {
	if t == TierNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(t))
}

func (t *Tier) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = TierNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = Tier(s)
	return nil
}

// Entitlement is the cached view of a user's subscription, one row per email.
// Only reconciliation against the payment provider writes it.
type Entitlement struct {
	UserID           uuid.UUID  `json:"user_id"`
	Email            string     `json:"email"`
	StripeCustomerID *string    `json:"stripe_customer_id,omitempty"`
	Subscribed       bool       `json:"subscribed"`
	Tier             Tier       `json:"subscription_tier"`
	PeriodEnd        *time.Time `json:"subscription_end"`
	ReconciledAt     time.Time  `json:"reconciled_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// CanDownload reports whether the entitlement unlocks book downloads.
func (e Entitlement) CanDownload() bool {
	return e.Subscribed && e.Tier == TierPremium
}
