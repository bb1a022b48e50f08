package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PortNumber53/readflash/backend/internal/apperr"
	"github.com/PortNumber53/readflash/backend/internal/auth"
	"github.com/PortNumber53/readflash/backend/internal/billing"
	"github.com/PortNumber53/readflash/backend/internal/chat"
	"github.com/PortNumber53/readflash/backend/internal/models"
	"github.com/PortNumber53/readflash/backend/internal/sheets"
	"github.com/PortNumber53/readflash/backend/internal/store"
)

var reader = models.Identity{
	UserID: uuid.MustParse("2f0c6a4e-1b7d-4e8a-9c3f-5d6e7f8a9b0c"),
	Email:  "leitor@example.com",
}

func newRequest(method, target, body string, id *models.Identity, params map[string]string) *http.Request {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	ctx := req.Context()
	if id != nil {
		ctx = auth.WithIdentity(ctx, *id)
	}
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

type fakeReconciler struct {
	result billing.Result
	err    error
	calls  int
}

func (f *fakeReconciler) Reconcile(_ context.Context, _ models.Identity) (billing.Result, error) {
	f.calls++
	return f.result, f.err
}

func TestReconcileSubscription(t *testing.T) {
	end := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	rec := &fakeReconciler{result: billing.Result{
		Entitlement: models.Entitlement{Subscribed: true, Tier: models.TierPremium, PeriodEnd: &end},
	}}

	w := httptest.NewRecorder()
	ReconcileSubscription(rec, nil)(w, newRequest(http.MethodPost, "/api/subscription/reconcile", "", &reader, nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"subscribed":true,"subscription_tier":"premium","subscription_end":"2025-10-01T00:00:00Z","was_canceled":false}`, w.Body.String())
}

func TestReconcileSubscriptionUnsubscribedEncodesNulls(t *testing.T) {
	rec := &fakeReconciler{result: billing.Result{WasRecentlyCanceled: true}}

	w := httptest.NewRecorder()
	ReconcileSubscription(rec, nil)(w, newRequest(http.MethodPost, "/", "", &reader, nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"subscribed":false,"subscription_tier":null,"subscription_end":null,"was_canceled":true}`, w.Body.String())
}

func TestReconcileSubscriptionErrors(t *testing.T) {
	w := httptest.NewRecorder()
	ReconcileSubscription(&fakeReconciler{}, nil)(w, newRequest(http.MethodPost, "/", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	rec := &fakeReconciler{err: apperr.Wrap(apperr.KindUpstream, "Failed to list subscriptions", errors.New("stripe 503"))}
	w = httptest.NewRecorder()
	ReconcileSubscription(rec, nil)(w, newRequest(http.MethodPost, "/", "", &reader, nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Failed to list subscriptions", body["error"])
	assert.Equal(t, "stripe 503", body["details"])
}

type fakeEntitlements map[string]models.Entitlement

func (f fakeEntitlements) GetEntitlementByEmail(_ context.Context, email string) (models.Entitlement, error) {
	e, ok := f[email]
	if !ok {
		return models.Entitlement{}, store.ErrNotFound
	}
	return e, nil
}

func TestGetSubscriptionNeverReconciled(t *testing.T) {
	w := httptest.NewRecorder()
	GetSubscription(fakeEntitlements{}, nil)(w, newRequest(http.MethodGet, "/api/subscription", "", &reader, nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"subscribed":false,"subscription_tier":null,"subscription_end":null}`, w.Body.String())
}

type fakeInitiator struct {
	origin   string
	selector string
	err      error
}

func (f *fakeInitiator) Checkout(_ context.Context, _ models.Identity, selector, origin string) (string, error) {
	f.selector, f.origin = selector, origin
	return "https://checkout.stripe.com/c/pay/cs_test", f.err
}

func (f *fakeInitiator) Portal(_ context.Context, _ models.Identity, origin string) (string, error) {
	f.origin = origin
	return "https://billing.stripe.com/p/session/test", f.err
}

func (f *fakeInitiator) Catalog() billing.Catalog {
	return billing.NewCatalog("price_basic", "price_premium")
}

func TestCreateCheckoutUsesOriginHeader(t *testing.T) {
	initiator := &fakeInitiator{}
	req := newRequest(http.MethodPost, "/api/checkout", `{"plan":"premium"}`, &reader, nil)
	req.Header.Set("Origin", "https://readflash.app/")

	w := httptest.NewRecorder()
	CreateCheckout(initiator, "http://localhost:5173", nil)(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://readflash.app", initiator.origin)
	assert.Equal(t, "premium", initiator.selector)
	assert.JSONEq(t, `{"url":"https://checkout.stripe.com/c/pay/cs_test"}`, w.Body.String())
}

func TestCreateCheckoutFallsBackToBaseURL(t *testing.T) {
	initiator := &fakeInitiator{err: apperr.New(apperr.KindValidation, "Invalid plan selected")}
	w := httptest.NewRecorder()
	CreateCheckout(initiator, "http://localhost:5173", nil)(w, newRequest(http.MethodPost, "/api/checkout", `{"plan":"gold"}`, &reader, nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "http://localhost:5173", initiator.origin)
}

func TestCreateCheckoutRejectsBadJSON(t *testing.T) {
	w := httptest.NewRecorder()
	CreateCheckout(&fakeInitiator{}, "", nil)(w, newRequest(http.MethodPost, "/api/checkout", `{`, &reader, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOpenCustomerPortal(t *testing.T) {
	w := httptest.NewRecorder()
	OpenCustomerPortal(&fakeInitiator{}, "http://localhost:5173", nil)(w, newRequest(http.MethodPost, "/api/billing/portal", "", &reader, nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"url":"https://billing.stripe.com/p/session/test"}`, w.Body.String())
}

func TestListPlansHidesPriceIDs(t *testing.T) {
	w := httptest.NewRecorder()
	ListPlans(&fakeInitiator{})(w, newRequest(http.MethodGet, "/api/plans", "", nil, nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "price_basic")
	assert.Contains(t, w.Body.String(), `"plan":"basic"`)
}

type fakeAsker struct {
	got chat.Request
	err error
}

func (f *fakeAsker) Ask(_ context.Context, req chat.Request) (string, error) {
	f.got = req
	return "Olá!", f.err
}

func TestAIChatOverridesUserIDWithIdentity(t *testing.T) {
	asker := &fakeAsker{}
	w := httptest.NewRecorder()
	AIChat(asker, nil)(w, newRequest(http.MethodPost, "/api/ai/chat", `{"message":"oi","bookId":3,"userId":"someone-else"}`, &reader, nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"response":"Olá!"}`, w.Body.String())
	assert.Equal(t, reader.UserID.String(), asker.got.UserID)
	assert.Equal(t, chat.BookRef("3"), asker.got.BookID)
}

func TestAIChatAnonymousKeepsBodyUserID(t *testing.T) {
	asker := &fakeAsker{}
	w := httptest.NewRecorder()
	AIChat(asker, nil)(w, newRequest(http.MethodPost, "/api/ai/chat", `{"message":"oi","userId":"u-1"}`, nil, nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-1", asker.got.UserID)
}

type fakeSheet struct {
	rows [][]string
	err  error
}

func (f *fakeSheet) AppendRow(_ context.Context, values ...string) (*sheets.AppendResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.rows = append(f.rows, values)
	return &sheets.AppendResult{}, nil
}

func TestRecordLead(t *testing.T) {
	sheet := &fakeSheet{}
	w := httptest.NewRecorder()
	RecordLead(sheet, nil)(w, newRequest(http.MethodPost, "/api/leads", `{"name":" Ana ","email":"ana@example.com"}`, nil, nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["success"])
	assert.Equal(t, [][]string{{"Ana", "ana@example.com"}}, sheet.rows)
}

func TestRecordLeadValidation(t *testing.T) {
	sheet := &fakeSheet{}
	for _, body := range []string{`{"name":"Ana"}`, `{"email":"ana@example.com"}`, `{"name":"Ana","email":"not-an-email"}`} {
		w := httptest.NewRecorder()
		RecordLead(sheet, nil)(w, newRequest(http.MethodPost, "/api/leads", body, nil, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Empty(t, sheet.rows)
}

func TestRecordLeadErrors(t *testing.T) {
	w := httptest.NewRecorder()
	RecordLead(&fakeSheet{err: sheets.ErrMissingAPIKey}, nil)(w, newRequest(http.MethodPost, "/api/leads", `{"name":"Ana","email":"ana@example.com"}`, nil, nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = httptest.NewRecorder()
	RecordLead(&fakeSheet{err: &sheets.APIError{Status: 403, Message: "denied"}}, nil)(w, newRequest(http.MethodPost, "/api/leads", `{"name":"Ana","email":"ana@example.com"}`, nil, nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "sheets API error (403): denied", decodeBody(t, w)["details"])
}

type pingFail struct{}

func (pingFail) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	Health(map[string]Pinger{"database": PingFunc(func(context.Context) error { return nil })})(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])

	w = httptest.NewRecorder()
	Health(map[string]Pinger{"redis": pingFail{}})(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", decodeBody(t, w)["status"])
}
