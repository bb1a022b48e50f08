package stripe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.stripe.com/v1"
	defaultTimeout = 15 * time.Second
)

var (
	// ErrMissingKey is returned by every call when no secret key is configured.
	ErrMissingKey = errors.New("stripe: secret key is not set")
	// ErrInvalidKey is returned when the configured key is not a secret key.
	ErrInvalidKey = errors.New("stripe: secret key must start with sk_")
	// ErrProviderUnavailable wraps transport failures and 5xx answers.
	ErrProviderUnavailable = errors.New("stripe: provider unavailable")
	// ErrPriceNotFound is returned when a price id does not resolve.
	ErrPriceNotFound = errors.New("stripe: price not found")
)

// APIError is a non-2xx answer from Stripe.
type APIError struct {
	Status  int
	Type    string
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stripe API error (%d): %s", e.Status, e.Message)
}

// Client wraps Stripe API calls using the REST API directly (no SDK dependency).
type Client struct {
	secretKey  string
	httpClient *http.Client
	baseURL    string
}

type Option func(*Client)

func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a new Stripe API client. The key is validated lazily so a
// service can start without billing configured.
func NewClient(secretKey string, opts ...Option) *Client {
	c := &Client{
		secretKey:  strings.TrimSpace(secretKey),
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ValidateKey checks that a secret key is present and has the secret-key prefix.
func ValidateKey(key string) error {
	if key == "" {
		return ErrMissingKey
	}
	if !strings.HasPrefix(key, "sk_") {
		return ErrInvalidKey
	}
	return nil
}

// Customer is the subset of a Stripe customer the service relies on.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Subscription is a flattened Stripe subscription.
type Subscription struct {
	ID               string
	Status           string
	CurrentPeriodEnd time.Time
	CanceledAt       *time.Time
	PriceID          string
}

const (
	StatusActive   = "active"
	StatusCanceled = "canceled"
	StatusUnpaid   = "unpaid"
	StatusPastDue  = "past_due"
)

type Price struct {
	ID         string `json:"id"`
	UnitAmount int64  `json:"unit_amount"`
	Currency   string `json:"currency"`
	Active     bool   `json:"active"`
}

// Session is a hosted checkout or billing portal session.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CheckoutParams describe a subscription checkout. Exactly one of CustomerID
// and CustomerEmail must be set.
type CheckoutParams struct {
	CustomerID          string
	CustomerEmail       string
	PriceID             string
	SuccessURL          string
	CancelURL           string
	AllowPromotionCodes bool
}

// FindCustomerByEmail returns the first customer registered with email, or nil
// when there is none.
func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	q := url.Values{}
	q.Set("email", email)
	q.Set("limit", "1")

	var resp struct {
		Data []Customer `json:"data"`
	}
	if err := c.get(ctx, "/customers", q, &resp); err != nil {
		return nil, fmt.Errorf("find customer: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	return &resp.Data[0], nil
}

type wireSubscription struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
	CanceledAt       *int64 `json:"canceled_at"`
	Items            struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func (w wireSubscription) flatten() Subscription {
	sub := Subscription{ID: w.ID, Status: w.Status}
	periodEnd := w.CurrentPeriodEnd
	if len(w.Items.Data) > 0 {
		sub.PriceID = w.Items.Data[0].Price.ID
		// Newer API versions only report the period on the item.
		if periodEnd == 0 {
			periodEnd = w.Items.Data[0].CurrentPeriodEnd
		}
	}
	if periodEnd > 0 {
		sub.CurrentPeriodEnd = time.Unix(periodEnd, 0).UTC()
	}
	if w.CanceledAt != nil && *w.CanceledAt > 0 {
		canceled := time.Unix(*w.CanceledAt, 0).UTC()
		sub.CanceledAt = &canceled
	}
	return sub
}

// ListSubscriptions returns up to limit subscriptions of any status for the
// customer, in provider order.
func (c *Client) ListSubscriptions(ctx context.Context, customerID string, limit int) ([]Subscription, error) {
	q := url.Values{}
	q.Set("customer", customerID)
	q.Set("status", "all")
	q.Set("limit", strconv.Itoa(limit))

	var resp struct {
		Data []wireSubscription `json:"data"`
	}
	if err := c.get(ctx, "/subscriptions", q, &resp); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	subs := make([]Subscription, 0, len(resp.Data))
	for _, w := range resp.Data {
		subs = append(subs, w.flatten())
	}
	return subs, nil
}

// RetrievePrice resolves a price id. A missing price yields ErrPriceNotFound.
func (c *Client) RetrievePrice(ctx context.Context, priceID string) (Price, error) {
	var price Price
	if err := c.get(ctx, "/prices/"+url.PathEscape(priceID), nil, &price); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return Price{}, fmt.Errorf("retrieve price %s: %w", priceID, ErrPriceNotFound)
		}
		return Price{}, fmt.Errorf("retrieve price %s: %w", priceID, err)
	}
	return price, nil
}

// CreateCheckoutSession creates a Stripe Checkout session for a subscription.
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (Session, error) {
	if (p.CustomerID == "") == (p.CustomerEmail == "") {
		return Session{}, errors.New("create checkout session: exactly one of customer and customer email is required")
	}

	data := url.Values{}
	data.Set("mode", "subscription")
	if p.CustomerID != "" {
		data.Set("customer", p.CustomerID)
	} else {
		data.Set("customer_email", p.CustomerEmail)
	}
	data.Set("line_items[0][price]", p.PriceID)
	data.Set("line_items[0][quantity]", "1")
	data.Set("success_url", p.SuccessURL)
	data.Set("cancel_url", p.CancelURL)
	if p.AllowPromotionCodes {
		data.Set("allow_promotion_codes", "true")
	}

	var session Session
	if err := c.post(ctx, "/checkout/sessions", data, &session); err != nil {
		return Session{}, fmt.Errorf("create checkout session: %w", err)
	}
	if session.URL == "" {
		return Session{}, fmt.Errorf("create checkout session: missing session URL in response")
	}
	return session, nil
}

// CreatePortalSession opens a billing portal session for an existing customer.
func (c *Client) CreatePortalSession(ctx context.Context, customerID, returnURL string) (Session, error) {
	data := url.Values{}
	data.Set("customer", customerID)
	data.Set("return_url", returnURL)

	var session Session
	if err := c.post(ctx, "/billing_portal/sessions", data, &session); err != nil {
		return Session{}, fmt.Errorf("create portal session: %w", err)
	}
	if session.URL == "" {
		return Session{}, fmt.Errorf("create portal session: missing session URL in response")
	}
	return session, nil
}

// HTTP helpers

func (c *Client) post(ctx context.Context, path string, data url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.doRequest(req, out)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	return c.doRequest(req, out)
}

func (c *Client) doRequest(req *http.Request, out any) error {
	if err := ValidateKey(c.secretKey); err != nil {
		return err
	}
	req.SetBasicAuth(c.secretKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return fmt.Errorf("%w: read response: %v", ErrProviderUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Message: "unknown error"}
		var body struct {
			Error struct {
				Type    string `json:"type"`
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(buf.Bytes(), &body) == nil && body.Error.Message != "" {
			apiErr.Type = body.Error.Type
			apiErr.Code = body.Error.Code
			apiErr.Message = body.Error.Message
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: %w", ErrProviderUnavailable, apiErr)
		}
		return apiErr
	}

	if err := json.Unmarshal(buf.Bytes(), out); err != nil {
		return fmt.Errorf("parse stripe response: %w", err)
	}
	return nil
}
