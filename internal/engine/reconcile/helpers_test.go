package reconcile

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"memberpay/internal/engine/idempotency"
	"memberpay/internal/engine/payments"
	"memberpay/internal/engine/providers"
	"memberpay/internal/platform/audit"
	"memberpay/internal/platform/config"
	"memberpay/internal/platform/database"
	"memberpay/internal/platform/models"
	"memberpay/internal/platform/repositories"
)

type fakePaystack struct {
	mu          sync.Mutex
	verifyCalls int
	findCalls   int
	verify      func(ctx context.Context, ref string) (*providers.Transaction, error)
	find        func(ctx context.Context, email string) (*providers.Transaction, error)
	subs        func(ctx context.Context, email string) (models.SubscriptionState, error)
}

func (f *fakePaystack) Name() string { return payments.ProviderPaystack }

func (f *fakePaystack) VerifyTransaction(ctx context.Context, ref string) (*providers.Transaction, error) {
	f.mu.Lock()
	f.verifyCalls++
	f.mu.Unlock()
	return f.verify(ctx, ref)
}

func (f *fakePaystack) FindSuccessfulTransaction(ctx context.Context, email string) (*providers.Transaction, error) {
	f.mu.Lock()
	f.findCalls++
	f.mu.Unlock()
	if f.find == nil {
		return nil, nil
	}
	return f.find(ctx, email)
}

func (f *fakePaystack) SubscriptionState(ctx context.Context, email string) (models.SubscriptionState, error) {
	if f.subs == nil {
		return models.SubscriptionState{}, nil
	}
	return f.subs(ctx, email)
}

func (f *fakePaystack) calls() (verify, find int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifyCalls, f.findCalls
}

type fakeClock interface {
	clockz.Clock
	Advance(d time.Duration)
}

type fakePayFast struct{}

func (fakePayFast) Name() string { return payments.ProviderPayFast }

func (fakePayFast) ManualReviewNote(p *models.Profile) string {
	return "PayFast fallback: check portal for profile " + p.ID
}

type recordingSink struct {
	mu       sync.Mutex
	messages []string
}

func (s *recordingSink) Notify(_ context.Context, message string) {
	s.mu.Lock()
	s.messages = append(s.messages, message)
	s.mu.Unlock()
}

func (s *recordingSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

type fixture struct {
	db       *sql.DB
	clock    fakeClock
	claims   *idempotency.SQLStore
	profiles *repositories.ProfileRepository
	audit    *audit.Recorder
	paystack *fakePaystack
	sink     *recordingSink
	svc      *Service
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	dbURL    string
	maxConns int
	payfast  bool
	opts     Options
}

func withFileDB(t *testing.T) fixtureOption {
	return func(c *fixtureConfig) {
		c.dbURL = "file:" + filepath.Join(t.TempDir(), "memberpay.db")
		c.maxConns = 8
	}
}

func withPayFast() fixtureOption {
	return func(c *fixtureConfig) { c.payfast = true }
}

func withOptions(o Options) fixtureOption {
	return func(c *fixtureConfig) { c.opts = o }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := fixtureConfig{dbURL: ":memory:", maxConns: 1}
	for _, o := range opts {
		o(&cfg)
	}

	db, err := database.Open(config.DatabaseConfig{URL: cfg.dbURL, MaxConnections: cfg.maxConns})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:       db,
		clock:    clockz.NewFakeClock(),
		profiles: repositories.NewProfileRepository(db),
		audit:    audit.NewRecorder(db),
		paystack: &fakePaystack{},
		sink:     &recordingSink{},
	}
	f.claims = idempotency.NewSQLStore(db, f.clock)

	ps := []providers.Provider{f.paystack}
	if cfg.payfast {
		ps = append(ps, fakePayFast{})
	}

	f.svc = NewService(Dependencies{
		Claims:    f.claims,
		Profiles:  f.profiles,
		Providers: providers.NewRegistry(ps...),
		Sink:      f.sink,
		Audit:     f.audit,
		Clock:     f.clock,
	}, cfg.opts)
	return f
}

func (f *fixture) addProfile(t *testing.T, owner, email string, paid bool) *models.Profile {
	t.Helper()
	p := &models.Profile{OwnerID: owner, Email: email, FullName: owner}
	require.NoError(t, f.profiles.Create(context.Background(), p))
	if paid {
		_, err := f.profiles.ApplyPaymentConfirmation(context.Background(), owner, "seed", 1)
		require.NoError(t, err)
	}
	return p
}

func (f *fixture) profile(t *testing.T, owner string) *models.Profile {
	t.Helper()
	p, err := f.profiles.FindByOwner(context.Background(), owner)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func successTx(ref, email string, amountMinor int64) *providers.Transaction {
	return &providers.Transaction{
		Reference:   ref,
		Success:     true,
		Status:      "success",
		AmountMinor: amountMinor,
		Amount:      payments.MinorToMajor(amountMinor),
		PayerEmail:  email,
	}
}
