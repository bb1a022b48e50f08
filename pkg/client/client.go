// Package client is a Go client for the readflash HTTP API. Besides typed
// calls for every route it carries the client-side pieces of the paywall: the
// entitlement Session, post-checkout verification and the free-read countdown.
package client

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

	"github.com/google/uuid"
)

const defaultTimeout = 30 * time.Second

// ErrNoToken is returned by authenticated calls when no token source is set.
var ErrNoToken = errors.New("client: no access token")

// APIError is a non-2xx answer carrying the API's {error, details} body.
type APIError struct {
	Status  int
	Message string
	Details string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("api error (%d): %s: %s", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// TokenSource returns the bearer token for the current user.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken always returns the same token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// Client calls the readflash API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.token = ts }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Entitlement is the caller's subscription state as reported by the API.
type Entitlement struct {
	Subscribed  bool       `json:"subscribed"`
	Tier        string     `json:"subscription_tier"`
	PeriodEnd   *time.Time `json:"subscription_end"`
	WasCanceled bool       `json:"was_canceled"`
}

const (
	TierBasic   = "basic"
	TierPremium = "premium"
)

type Plan struct {
	Selector    string `json:"plan"`
	Name        string `json:"name"`
	Tier        string `json:"tier"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type Book struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Summary     string    `json:"summary"`
	ImageURL    *string   `json:"image_url,omitempty"`
	Benefits    *string   `json:"benefits,omitempty"`
	Area        *string   `json:"area,omitempty"`
	HasDownload bool      `json:"has_download"`
	CreatedAt   time.Time `json:"created_at"`
}

type BookQuery struct {
	Area   string
	Search string
	Limit  int
	Offset int
}

type AreaCount struct {
	Area  string `json:"area"`
	Books int    `json:"books"`
}

// Content is the readable payload of a granted read: a document URL or a
// video id with its embed URL.
type Content struct {
	Kind     string `json:"kind"`
	URL      string `json:"url,omitempty"`
	VideoID  string `json:"video_id,omitempty"`
	EmbedURL string `json:"embed_url,omitempty"`
}

// ReadDecision is the server's answer to a read request.
type ReadDecision struct {
	Status      string     `json:"status"`
	BookID      int64      `json:"book_id"`
	WaitSeconds int        `json:"wait_seconds"`
	ReadyAt     *time.Time `json:"ready_at,omitempty"`
	Content     *Content   `json:"content,omitempty"`
}

const (
	ReadGranted = "granted"
	ReadWaiting = "waiting"
)

type Favorite struct {
	BookID    int64     `json:"book_id"`
	Book      *Book     `json:"book,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type ReadingPlanItem struct {
	ID            uuid.UUID  `json:"id"`
	BookID        int64      `json:"book_id"`
	Book          *Book      `json:"book,omitempty"`
	OrderPosition int        `json:"order_position"`
	IsCompleted   bool       `json:"is_completed"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type ReadingProgress struct {
	BookID             int64     `json:"book_id"`
	Book               *Book     `json:"book,omitempty"`
	StartedReadingAt   time.Time `json:"started_reading_at"`
	LastAccessedAt     time.Time `json:"last_accessed_at"`
	IsCurrentlyReading bool      `json:"is_currently_reading"`
}

// ChatRequest is an assistant question; set Message, ImageData or both.
type ChatRequest struct {
	Message   string `json:"message,omitempty"`
	BookID    string `json:"bookId,omitempty"`
	ImageData string `json:"imageData,omitempty"`
	UserID    string `json:"userId,omitempty"`
}

// ReconcileSubscription asks the API to refresh the entitlement from Stripe.
func (c *Client) ReconcileSubscription(ctx context.Context) (Entitlement, error) {
	var out Entitlement
	err := c.do(ctx, http.MethodPost, "/api/subscription/reconcile", true, nil, &out)
	return out, err
}

// Subscription returns the stored entitlement without contacting Stripe.
func (c *Client) Subscription(ctx context.Context) (Entitlement, error) {
	var out Entitlement
	err := c.do(ctx, http.MethodGet, "/api/subscription", true, nil, &out)
	return out, err
}

// Refresh implements Refresher.
func (c *Client) Refresh(ctx context.Context) (Entitlement, error) {
	return c.ReconcileSubscription(ctx)
}

type urlResponse struct {
	URL string `json:"url"`
}

// CreateCheckout returns the hosted checkout URL for a plan selector.
func (c *Client) CreateCheckout(ctx context.Context, plan string) (string, error) {
	var out urlResponse
	err := c.do(ctx, http.MethodPost, "/api/checkout", true, map[string]string{"plan": plan}, &out)
	return out.URL, err
}

// OpenCustomerPortal returns the billing portal URL.
func (c *Client) OpenCustomerPortal(ctx context.Context) (string, error) {
	var out urlResponse
	err := c.do(ctx, http.MethodPost, "/api/billing/portal", true, nil, &out)
	return out.URL, err
}

func (c *Client) Plans(ctx context.Context) ([]Plan, error) {
	var out struct {
		Plans []Plan `json:"plans"`
	}
	err := c.do(ctx, http.MethodGet, "/api/plans", false, nil, &out)
	return out.Plans, err
}

// Chat sends a question to the reading assistant. The bearer token is sent
// when available.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	var out struct {
		Response string `json:"response"`
	}
	err := c.do(ctx, http.MethodPost, "/api/ai/chat", c.token != nil, req, &out)
	return out.Response, err
}

func (c *Client) RecordLead(ctx context.Context, name, email string) error {
	return c.do(ctx, http.MethodPost, "/api/leads", false, map[string]string{"name": name, "email": email}, nil)
}

func (c *Client) Books(ctx context.Context, q BookQuery) ([]Book, error) {
	params := url.Values{}
	if q.Area != "" {
		params.Set("area", q.Area)
	}
	if q.Search != "" {
		params.Set("q", q.Search)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}
	path := "/api/books"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var out struct {
		Books []Book `json:"books"`
	}
	err := c.do(ctx, http.MethodGet, path, false, nil, &out)
	return out.Books, err
}

func (c *Client) Book(ctx context.Context, id int64) (Book, error) {
	var out Book
	err := c.do(ctx, http.MethodGet, bookPath(id, ""), false, nil, &out)
	return out, err
}

func (c *Client) Areas(ctx context.Context) ([]AreaCount, error) {
	var out struct {
		Areas []AreaCount `json:"areas"`
	}
	err := c.do(ctx, http.MethodGet, "/api/areas", false, nil, &out)
	return out.Areas, err
}

// StartRead asks to read a book. A waiting decision carries the countdown.
func (c *Client) StartRead(ctx context.Context, bookID int64) (ReadDecision, error) {
	var out ReadDecision
	err := c.do(ctx, http.MethodPost, bookPath(bookID, "/read"), true, nil, &out)
	return out, err
}

// ClaimRead completes the free-read countdown.
func (c *Client) ClaimRead(ctx context.Context, bookID int64) (ReadDecision, error) {
	var out ReadDecision
	err := c.do(ctx, http.MethodPost, bookPath(bookID, "/read/claim"), true, nil, &out)
	return out, err
}

// DownloadURL returns the book's download link; premium subscribers only.
func (c *Client) DownloadURL(ctx context.Context, bookID int64) (string, error) {
	var out urlResponse
	err := c.do(ctx, http.MethodGet, bookPath(bookID, "/download"), true, nil, &out)
	return out.URL, err
}

func (c *Client) Favorites(ctx context.Context) ([]Favorite, error) {
	var out struct {
		Favorites []Favorite `json:"favorites"`
	}
	err := c.do(ctx, http.MethodGet, "/api/favorites", true, nil, &out)
	return out.Favorites, err
}

func (c *Client) AddFavorite(ctx context.Context, bookID int64) error {
	return c.do(ctx, http.MethodPost, "/api/favorites", true, map[string]int64{"book_id": bookID}, nil)
}

func (c *Client) RemoveFavorite(ctx context.Context, bookID int64) error {
	return c.do(ctx, http.MethodDelete, "/api/favorites/"+strconv.FormatInt(bookID, 10), true, nil, nil)
}

func (c *Client) ReadingPlan(ctx context.Context) ([]ReadingPlanItem, error) {
	var out struct {
		Items []ReadingPlanItem `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "/api/reading-plan", true, nil, &out)
	return out.Items, err
}

func (c *Client) AddToReadingPlan(ctx context.Context, bookID int64) (ReadingPlanItem, error) {
	var out ReadingPlanItem
	err := c.do(ctx, http.MethodPost, "/api/reading-plan", true, map[string]int64{"book_id": bookID}, &out)
	return out, err
}

func (c *Client) SetPlanItemCompleted(ctx context.Context, itemID uuid.UUID, completed bool) (ReadingPlanItem, error) {
	var out ReadingPlanItem
	err := c.do(ctx, http.MethodPatch, "/api/reading-plan/"+itemID.String(), true, map[string]bool{"is_completed": completed}, &out)
	return out, err
}

func (c *Client) RemoveFromReadingPlan(ctx context.Context, itemID uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/api/reading-plan/"+itemID.String(), true, nil, nil)
}

// ReorderReadingPlan sets the plan order to itemIDs.
func (c *Client) ReorderReadingPlan(ctx context.Context, itemIDs []uuid.UUID) error {
	return c.do(ctx, http.MethodPut, "/api/reading-plan/order", true, map[string][]uuid.UUID{"item_ids": itemIDs}, nil)
}

func (c *Client) ReadingProgress(ctx context.Context) ([]ReadingProgress, error) {
	var out struct {
		Reading []ReadingProgress `json:"reading"`
	}
	err := c.do(ctx, http.MethodGet, "/api/reading-progress", true, nil, &out)
	return out.Reading, err
}

func (c *Client) MarkReading(ctx context.Context, bookID int64) (ReadingProgress, error) {
	var out ReadingProgress
	err := c.do(ctx, http.MethodPut, "/api/reading-progress/"+strconv.FormatInt(bookID, 10), true, nil, &out)
	return out, err
}

func (c *Client) StopReading(ctx context.Context, bookID int64) error {
	return c.do(ctx, http.MethodDelete, "/api/reading-progress/"+strconv.FormatInt(bookID, 10), true, nil, nil)
}

func bookPath(id int64, suffix string) string {
	return "/api/books/" + strconv.FormatInt(id, 10) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, authenticated bool, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		if c.token == nil {
			return ErrNoToken
		}
		token, err := c.token(ctx)
		if err != nil {
			return fmt.Errorf("access token: %w", err)
		}
		if token == "" {
			return ErrNoToken
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	// 202 carries a waiting read decision and is not an error.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var errBody struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		if json.Unmarshal(data, &errBody) == nil && errBody.Error != "" {
			apiErr.Message = errBody.Error
			apiErr.Details = errBody.Details
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
