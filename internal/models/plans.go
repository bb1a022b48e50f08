package models

// Plan is a purchasable subscription option keyed by its selector.
type Plan struct {
	Selector    string `json:"plan"`
	Name        string `json:"name"`
	Tier        Tier   `json:"tier"`
	PriceID     string `json:"-"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}
