package reconcile

import (
	"context"
	"fmt"

	"memberpay/internal/engine/idempotency"
	"memberpay/internal/engine/payments"
	"memberpay/internal/engine/providers"
	"memberpay/internal/platform/audit"
	"memberpay/internal/platform/models"
)

// State is where a webhook delivery ended up.
type State string

const (
	StateReceived           State = "received"
	StateClaimed            State = "claimed"
	StateVerified           State = "verified"
	StateApplied            State = "applied"
	StateDuplicate          State = "duplicate_suppressed"
	StateVerificationFailed State = "verification_failed"
	StateUnmatched          State = "unmatched"
	StateIgnored            State = "ignored"
	StateFailed             State = "failed"
)

type WebhookResult struct {
	Event       ProviderEvent
	Fingerprint string
	State       State
	OwnerID     string
	// Changed is false when the mutation found the profile already in the
	// target state.
	Changed bool
	Err     error
}

// HandleWebhook runs one Paystack delivery through claim, verification and
// application. The returned error is non-nil only for a malformed body;
// every other failure is reported in the result so the caller can still
// acknowledge the delivery.
func (s *Service) HandleWebhook(ctx context.Context, body []byte) (WebhookResult, error) {
	ev, err := ParsePaystackWebhook(body)
	if err != nil {
		s.stats.Inc("webhook_malformed")
		s.log.Warn().Err(err).Msg("rejected malformed webhook")
		return WebhookResult{State: StateReceived, Err: err}, err
	}

	res := WebhookResult{
		Event:       ev,
		State:       StateReceived,
		Fingerprint: idempotency.Fingerprint(ev.Provider(), "webhook", ev.EventType(), ev.CorrelationID()),
	}
	logger := s.log.With().
		Str("event", ev.EventType()).
		Str("ref", ev.CorrelationID()).
		Str("fingerprint", res.Fingerprint).
		Logger()

	claim, err := s.claims.Claim(ctx, res.Fingerprint, s.opts.WebhookTTL)
	switch {
	case err != nil:
		// A broken claim store must not drop payments; every mutation below
		// is idempotent, so processing without a claim is safe.
		logger.Warn().Err(err).Msg("idempotency claim failed, continuing")
	case !claim.Claimed:
		res.State = StateDuplicate
		res.Err = payments.ErrDuplicateEvent
		s.finish(&res)
		logger.Info().Msg("duplicate webhook suppressed")
		return res, nil
	default:
		res.State = StateClaimed
	}

	switch e := ev.(type) {
	case ChargeSuccess:
		s.applyCharge(ctx, e, &res)
	case InvoicePaymentFailed:
		s.applyByEmail(ctx, e.Email, &res, s.profiles.MarkPlanAttention, "plan_attention", "")
	case SubscriptionCreate:
		if e.SubscriptionCode == "" {
			res.State = StateIgnored
			break
		}
		s.applyByEmail(ctx, e.Email, &res, func(ctx context.Context, owner string) (bool, error) {
			return s.profiles.SetSubscriptionCode(ctx, owner, e.SubscriptionCode)
		}, "subscription_code", e.SubscriptionCode)
	default:
		res.State = StateIgnored
	}

	s.finish(&res)
	entry := logger.Info()
	if res.Err != nil {
		entry = logger.Warn().Err(res.Err)
	}
	entry.Str("state", string(res.State)).
		Str("owner_id", res.OwnerID).
		Bool("changed", res.Changed).
		Msg("webhook processed")

	return res, nil
}

func (s *Service) finish(res *WebhookResult) {
	s.stats.Inc("webhook_" + string(res.State))
}

func (s *Service) applyCharge(ctx context.Context, ev ChargeSuccess, res *WebhookResult) {
	verifier := s.queryable(ev.Provider())
	if verifier == nil {
		res.State = StateVerificationFailed
		res.Err = fmt.Errorf("%w: no verifier for %s", payments.ErrVerificationFailed, ev.Provider())
		return
	}
	if ev.Reference == "" {
		res.State = StateVerificationFailed
		res.Err = fmt.Errorf("%w: charge without reference", payments.ErrVerificationFailed)
		return
	}

	vctx, cancel := context.WithTimeout(ctx, s.opts.ItemTimeout)
	tx, err := verifier.VerifyTransaction(vctx, ev.Reference)
	cancel()
	if err != nil {
		res.State = StateVerificationFailed
		res.Err = err
		return
	}
	if !tx.Success {
		res.State = StateVerificationFailed
		res.Err = fmt.Errorf("%w: transaction %s is %q", payments.ErrVerificationFailed, ev.Reference, tx.Status)
		return
	}
	res.State = StateVerified

	email := tx.PayerEmail
	if email == "" {
		email = ev.Email
	}
	profile, err := s.resolveProfile(ctx, tx.OwnerID, email)
	if err != nil {
		res.State = StateFailed
		res.Err = err
		return
	}
	if profile == nil {
		res.State = StateUnmatched
		res.Err = fmt.Errorf("no profile for payer %s", email)
		s.sink.Notify(ctx, fmt.Sprintf("Verified Paystack payment %s for %s matches no profile", ev.Reference, email))
		return
	}
	res.OwnerID = profile.OwnerID

	changed, err := s.profiles.ApplyPaymentConfirmation(ctx, profile.OwnerID, payments.LabelPaystackWebhook, tx.Amount)
	if err != nil {
		res.State = StateFailed
		res.Err = err
		return
	}
	res.State = StateApplied
	res.Changed = changed
	if changed {
		s.confirmed(ctx, profile, payments.LabelPaystackWebhook, tx.Amount, audit.SourceWebhook, tx.Reference)
	}
}

func (s *Service) applyByEmail(ctx context.Context, email string, res *WebhookResult,
	mutate func(context.Context, string) (bool, error), action, detail string) {
	if email == "" {
		res.State = StateIgnored
		return
	}

	profile, err := s.profiles.FindByEmail(ctx, email)
	if err != nil {
		res.State = StateFailed
		res.Err = err
		return
	}
	if profile == nil {
		res.State = StateUnmatched
		return
	}
	res.OwnerID = profile.OwnerID

	changed, err := mutate(ctx, profile.OwnerID)
	if err != nil {
		res.State = StateFailed
		res.Err = err
		return
	}
	res.State = StateApplied
	res.Changed = changed
	if changed {
		s.audit.Record(ctx, models.ReconciliationEntry{
			OwnerID:   profile.OwnerID,
			Source:    audit.SourceWebhook,
			Provider:  res.Event.Provider(),
			Action:    action,
			Reference: detail,
		})
	}
}

// resolveProfile prefers the owner echoed in checkout metadata and falls
// back to the payer email.
func (s *Service) resolveProfile(ctx context.Context, ownerID, email string) (*models.Profile, error) {
	if ownerID != "" {
		p, err := s.profiles.FindByOwner(ctx, ownerID)
		if err != nil || p != nil {
			return p, err
		}
	}
	if email == "" {
		return nil, nil
	}
	return s.profiles.FindByEmail(ctx, email)
}

// confirmed records and announces a payment confirmation that changed state.
func (s *Service) confirmed(ctx context.Context, p *models.Profile, label string, amount float64, source, reference string) {
	s.stats.Inc("payments_confirmed")
	s.audit.Record(ctx, models.ReconciliationEntry{
		OwnerID:   p.OwnerID,
		Source:    source,
		Provider:  label,
		Action:    "payment_confirmed",
		Reference: reference,
		Metadata:  map[string]interface{}{"amount": amount},
	})
	s.sink.Notify(ctx, fmt.Sprintf("Profile unlocked via %s for %s", label, p.Email))
}

func (s *Service) queryable(name string) providers.Queryable {
	for _, q := range s.providers.Queryable() {
		if q.Name() == name {
			return q
		}
	}
	return nil
}
