package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memberpay/internal/api/handlers"
	"memberpay/internal/api/middleware"
	"memberpay/internal/app"
	"memberpay/internal/engine/providers"
	"memberpay/internal/platform/auth"
	"memberpay/internal/platform/config"
	"memberpay/internal/platform/secrets"
)

const (
	paystackKey = "sk_test_router"
	opsSecret   = "ops-secret"
)

type testServer struct {
	handler  http.Handler
	app      *app.App
	tokens   *auth.TokenService
	verifies *atomic.Int32
}

type serverOption func(cfg *config.Config)

func withSignatureCheck(cfg *config.Config) { cfg.Paystack.VerifySignature = true }

func withPublicLimit(n int) serverOption {
	return func(cfg *config.Config) { cfg.RateLimit.PublicPerMinute = n }
}

// fakePaystack answers transaction verification for any reference as a
// successful charge from member@example.com.
func fakePaystack(t *testing.T, verifies *atomic.Int32) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/transaction/verify/") {
			http.NotFound(w, r)
			return
		}
		verifies.Add(1)
		ref := strings.TrimPrefix(r.URL.Path, "/transaction/verify/")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":true,"message":"ok","data":{"status":"success","reference":%q,"amount":50000,"currency":"ZAR","customer":{"email":"member@example.com"}}}`, ref)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	verifies := &atomic.Int32{}
	paystack := fakePaystack(t, verifies)

	cfg := &config.Config{
		Database:    config.DatabaseConfig{URL: ":memory:", MaxConnections: 1},
		Idempotency: config.IdempotencyConfig{Backend: app.BackendSQLite, WebhookTTL: 24 * time.Hour},
		Paystack:    config.PaystackConfig{Enabled: true, BaseURL: paystack.URL, SecretName: "paystack", Timeout: 2 * time.Second},
		PayFast: config.PayFastConfig{
			Enabled:           true,
			ProcessURL:        "https://sandbox.payfast.co.za/eng/process",
			MerchantIDSecret:  "payfast_merchant_id",
			MerchantKeySecret: "payfast_merchant_key",
		},
		Jobs: config.JobsConfig{PurgeBatchSize: 50, PurgeMaxBatches: 2, ItemTimeout: 2 * time.Second},
		Ops:  config.OpsConfig{TokenSecretName: "ops_token_secret", TokenTTL: time.Minute},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	sp := secrets.Static{
		"paystack":             paystackKey,
		"ops_token_secret":     opsSecret,
		"payfast_merchant_id":  "10000100",
		"payfast_merchant_key": "46f0cd694581a",
	}

	a, err := app.New(context.Background(), cfg, sp)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	tokens, err := a.TokenService(context.Background())
	require.NoError(t, err)

	deps := &Dependencies{
		WebhookHandler:  handlers.NewWebhookHandler(a.Reconciler, sp, cfg.Paystack.SecretName, cfg.Paystack.VerifySignature),
		MemberHandler:   handlers.NewMemberHandler(a.Members, a.Reconciler),
		CheckoutHandler: handlers.NewCheckoutHandler(a.Checkout),
		JobsHandler:     handlers.NewJobsHandler(context.Background(), a.Runner, a.Jobs()),
		HealthHandler:   handlers.NewHealthHandler(map[string]handlers.HealthCheck{"database": a.DB.PingContext}),
		MetricsHandler:  handlers.NewMetricsHandler(a.Reconciler.Stats()),
		AuditHandler:    handlers.NewAuditHandler(a.Recorder),
		JobsAuth:        middleware.NewJobsAuth(tokens, auth.ScopeJobs),
		RateLimiter:     middleware.NewRateLimiter(nil),
		PublicPerMinute: cfg.RateLimit.PublicPerMinute,
	}

	return &testServer{handler: NewRouter(deps), app: a, tokens: tokens, verifies: verifies}
}

func (s *testServer) do(t *testing.T, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) register(t *testing.T, owner, email string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/members", fmt.Sprintf(`{"owner_id":%q,"email":%q,"full_name":"Test Member"}`, owner, email), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func chargeSuccess(ref string) string {
	return fmt.Sprintf(`{"event":"charge.success","data":{"reference":%q,"amount":50000,"customer":{"email":"member@example.com"}}}`, ref)
}

func TestRegisterMember(t *testing.T) {
	s := newTestServer(t)

	s.register(t, "owner-1", "member@example.com")

	rec := s.do(t, http.MethodPost, "/api/v1/members", `{"owner_id":"owner-1","email":"other@example.com"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "member@example.com", decodeBody(t, rec)["email"])

	rec = s.do(t, http.MethodGet, "/api/v1/members/owner-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["signup_paid"])
	assert.Equal(t, "none", body["plan_status"])
}

func TestRegisterMemberValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/members", `{"owner_id":"owner-1","email":"not-an-email"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "INVALID_INPUT", body["code"])
	assert.Contains(t, body["details"], "email")

	rec = s.do(t, http.MethodPost, "/api/v1/members", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUnknownMember(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/members/ghost", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeBody(t, rec)["code"])
}

func TestSaveProfile(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "owner-1", "member@example.com")

	rec := s.do(t, http.MethodPut, "/api/v1/members/owner-1/profile", `{"email":"New@Example.com","full_name":"Renamed"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Renamed", decodeBody(t, rec)["full_name"])
}

func TestWebhookAppliesOnceAndSuppressesReplay(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "owner-1", "member@example.com")

	rec := s.do(t, http.MethodPost, "/webhooks/paystack", chargeSuccess("ref-1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "applied", decodeBody(t, rec)["state"])

	rec = s.do(t, http.MethodPost, "/webhooks/paystack", chargeSuccess("ref-1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "duplicate_suppressed", decodeBody(t, rec)["state"])
	assert.Equal(t, int32(1), s.verifies.Load())

	rec = s.do(t, http.MethodGet, "/api/v1/members/owner-1", "", nil)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["signup_paid"])
	assert.Equal(t, "Paystack (Webhook)", body["signup_provider"])
	assert.Equal(t, 500.0, body["signup_amount"])
}

func TestWebhookMalformedBody(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/webhooks/paystack", `{"event":"charge.success","data":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MALFORMED_EVENT", decodeBody(t, rec)["code"])
}

func TestWebhookMissingEventIsAcknowledged(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/webhooks/paystack", `{"data":{}}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ignored", decodeBody(t, rec)["state"])
}

func TestWebhookUnknownEventIsAcknowledged(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/webhooks/paystack", `{"event":"transfer.success","data":{"id":42}}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ignored", decodeBody(t, rec)["state"])
}

func TestWebhookSignature(t *testing.T) {
	s := newTestServer(t, withSignatureCheck)
	s.register(t, "owner-1", "member@example.com")

	body := chargeSuccess("ref-sig")

	rec := s.do(t, http.MethodPost, "/webhooks/paystack", body, map[string]string{"x-paystack-signature": "deadbeef"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, int32(0), s.verifies.Load())

	sig := providers.SignPaystack(paystackKey, []byte(body))
	rec = s.do(t, http.MethodPost, "/webhooks/paystack", body, map[string]string{"x-paystack-signature": sig})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "applied", decodeBody(t, rec)["state"])
}

func TestPaymentCheck(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "owner-1", "member@example.com")

	rec := s.do(t, http.MethodPost, "/webhooks/paystack", chargeSuccess("ref-2"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/members/owner-1/payment-check", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["signup_paid"])
	assert.Equal(t, "already_paid", body["outcome"])

	rec = s.do(t, http.MethodPost, "/api/v1/members/ghost/payment-check", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckout(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "owner-1", "member@example.com")

	rec := s.do(t, http.MethodPost, "/api/v1/checkout", `{"owner_id":"owner-1","provider":"bitcoin","amount":500}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UNSUPPORTED_PROVIDER", decodeBody(t, rec)["code"])

	rec = s.do(t, http.MethodPost, "/api/v1/checkout", `{"owner_id":"ghost","provider":"payfast","amount":500}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/checkout", `{"owner_id":"owner-1","provider":"payfast","amount":0}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/checkout", `{"owner_id":"owner-1","provider":"payfast","amount":500}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "payfast", body["provider"])
	assert.Contains(t, body["url"], "sandbox.payfast.co.za")
}

func TestJobsRequireScopedToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/internal/jobs/purge", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	unscoped, err := s.tokens.GenerateToken("ops")
	require.NoError(t, err)
	rec = s.do(t, http.MethodPost, "/internal/jobs/purge", "", map[string]string{"Authorization": "Bearer " + unscoped})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := s.tokens.GenerateToken("ops", auth.ScopeJobs)
	require.NoError(t, err)
	bearer := map[string]string{"Authorization": "Bearer " + token}

	rec = s.do(t, http.MethodPost, "/internal/jobs/rebuild", "", bearer)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/internal/jobs/purge", "", bearer)
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "started", body["status"])
	assert.Equal(t, "ops", body["triggered_by"])

	s.app.Runner.Wait()
}

func TestReconciliationHistory(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "owner-1", "member@example.com")
	rec := s.do(t, http.MethodPost, "/webhooks/paystack", chargeSuccess("ref-3"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	token, err := s.tokens.GenerateToken("ops", auth.ScopeJobs)
	require.NoError(t, err)

	rec = s.do(t, http.MethodGet, "/internal/members/owner-1/reconciliation", "", map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Entries []struct {
			Action string `json:"action"`
			Source string `json:"source"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Entries)
	assert.Equal(t, "payment_confirmed", body.Entries[0].Action)
	assert.Equal(t, "webhook", body.Entries[0].Source)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])

	s.do(t, http.MethodPost, "/webhooks/paystack", `{"event":"transfer.success","data":{"id":1}}`, nil)

	rec = s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "memberpay_up 1")
	assert.Contains(t, rec.Body.String(), "memberpay_webhook_ignored_total 1")
}

func TestPublicRateLimit(t *testing.T) {
	s := newTestServer(t, withPublicLimit(2))

	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodGet, "/api/v1/members/ghost", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	rec := s.do(t, http.MethodGet, "/api/v1/members/ghost", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", decodeBody(t, rec)["code"])

	// Webhook deliveries are never throttled.
	for i := 0; i < 20; i++ {
		rec = s.do(t, http.MethodPost, "/webhooks/paystack", fmt.Sprintf(`{"event":"transfer.success","data":{"id":%d}}`, i), nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
