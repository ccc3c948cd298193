// Package reconcile applies payment evidence to member profiles. Webhook
// deliveries, the hourly fallback sweep, the daily resync and member-triggered
// checks all converge on the same narrow profile mutations, each idempotent,
// so any interleaving of them yields the same final state.
package reconcile

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/zoobzio/clockz"

	"memberpay/internal/engine/idempotency"
	"memberpay/internal/engine/notify"
	"memberpay/internal/engine/providers"
	"memberpay/internal/pkg/logger"
	"memberpay/internal/platform/models"
)

// ProfileStore is the subset of the profile repository reconciliation uses.
type ProfileStore interface {
	FindByOwner(ctx context.Context, ownerID string) (*models.Profile, error)
	FindByEmail(ctx context.Context, email string) (*models.Profile, error)
	FindUnpaid(ctx context.Context) ([]*models.Profile, error)
	List(ctx context.Context) ([]*models.Profile, error)
	ApplyPaymentConfirmation(ctx context.Context, ownerID, provider string, amount float64) (bool, error)
	MarkPlanAttention(ctx context.Context, ownerID string) (bool, error)
	SetSubscriptionCode(ctx context.Context, ownerID, code string) (bool, error)
	ApplySubscriptionState(ctx context.Context, ownerID string, state models.SubscriptionState) (bool, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, entry models.ReconciliationEntry)
}

type Options struct {
	WebhookTTL      time.Duration
	ItemTimeout     time.Duration
	PurgeBatchSize  int
	PurgeMaxBatches int
}

func (o Options) withDefaults() Options {
	if o.WebhookTTL <= 0 {
		o.WebhookTTL = 24 * time.Hour
	}
	if o.ItemTimeout <= 0 {
		o.ItemTimeout = 15 * time.Second
	}
	if o.PurgeBatchSize <= 0 {
		o.PurgeBatchSize = 200
	}
	if o.PurgeMaxBatches <= 0 {
		o.PurgeMaxBatches = 10
	}
	return o
}

type Service struct {
	claims    idempotency.Store
	profiles  ProfileStore
	providers *providers.Registry
	sink      notify.Sink
	audit     AuditRecorder
	stats     *Stats
	clock     clockz.Clock
	opts      Options
	log       zerolog.Logger
}

type Dependencies struct {
	Claims    idempotency.Store
	Profiles  ProfileStore
	Providers *providers.Registry
	Sink      notify.Sink
	Audit     AuditRecorder
	Stats     *Stats
	Clock     clockz.Clock
}

func NewService(deps Dependencies, opts Options) *Service {
	s := &Service{
		claims:    deps.Claims,
		profiles:  deps.Profiles,
		providers: deps.Providers,
		sink:      deps.Sink,
		audit:     deps.Audit,
		stats:     deps.Stats,
		clock:     deps.Clock,
		opts:      opts.withDefaults(),
		log:       logger.Component("reconcile"),
	}
	if s.providers == nil {
		s.providers = providers.NewRegistry()
	}
	if s.sink == nil {
		s.sink = notify.Nop{}
	}
	if s.audit == nil {
		s.audit = nopAudit{}
	}
	if s.stats == nil {
		s.stats = NewStats()
	}
	if s.clock == nil {
		s.clock = clockz.RealClock
	}
	return s
}

func (s *Service) Stats() *Stats { return s.stats }

type nopAudit struct{}

func (nopAudit) Record(context.Context, models.ReconciliationEntry) {}
