package reconcile

import (
	"context"
	"fmt"
	"strings"

	"memberpay/internal/engine/payments"
	"memberpay/internal/platform/audit"
	"memberpay/internal/platform/models"
	"memberpay/internal/platform/repositories"
)

// Outcome of reconciling a single profile against the providers.
type Outcome string

const (
	OutcomeAlreadyPaid  Outcome = "already_paid"
	OutcomeConfirmed    Outcome = "confirmed"
	OutcomeNotFound     Outcome = "not_found"
	OutcomeManualReview Outcome = "manual_review"
	OutcomeFailed       Outcome = "failed"
)

type CheckResult struct {
	Profile *models.Profile
	Outcome Outcome
	// Err explains failed and manual_review outcomes.
	Err error
}

type checkOptions struct {
	label  string
	source string
	// manual asks ManualOnly providers for a review when nothing confirmed.
	manual bool
}

// checkProfile asks every queryable provider for a successful payment by the
// profile's email and applies the first one found.
func (s *Service) checkProfile(ctx context.Context, p *models.Profile, opts checkOptions) CheckResult {
	if p.SignupPaid {
		return CheckResult{Profile: p, Outcome: OutcomeAlreadyPaid}
	}

	var lastErr error
	if email := strings.TrimSpace(p.Email); email != "" {
		for _, q := range s.providers.Queryable() {
			tx, err := q.FindSuccessfulTransaction(ctx, email)
			if err != nil {
				lastErr = err
				continue
			}
			if tx == nil {
				continue
			}

			changed, err := s.profiles.ApplyPaymentConfirmation(ctx, p.OwnerID, opts.label, tx.Amount)
			if err != nil {
				return CheckResult{Profile: p, Outcome: OutcomeFailed, Err: err}
			}
			if changed {
				s.confirmed(ctx, p, opts.label, tx.Amount, opts.source, tx.Reference)
			}
			return CheckResult{Profile: p, Outcome: OutcomeConfirmed}
		}
	}

	if opts.manual {
		if manual := s.providers.ManualOnly(); len(manual) > 0 {
			for _, m := range manual {
				s.sink.Notify(ctx, m.ManualReviewNote(p))
			}
			if lastErr == nil {
				return CheckResult{Profile: p, Outcome: OutcomeManualReview, Err: payments.ErrManualReviewRequired}
			}
		}
	}

	if lastErr != nil {
		return CheckResult{Profile: p, Outcome: OutcomeFailed, Err: lastErr}
	}
	return CheckResult{Profile: p, Outcome: OutcomeNotFound}
}

// checkIsolated bounds one profile's check by the item timeout and turns a
// panic into a failed outcome, so one bad record cannot stop a batch.
func (s *Service) checkIsolated(ctx context.Context, p *models.Profile, opts checkOptions) (res CheckResult) {
	ictx, cancel := context.WithTimeout(ctx, s.opts.ItemTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			res = CheckResult{Profile: p, Outcome: OutcomeFailed, Err: fmt.Errorf("panic checking profile %s: %v", p.OwnerID, r)}
		}
	}()

	return s.checkProfile(ictx, p, opts)
}

// CheckOwner is the member-triggered payment check. It returns the profile
// as stored after the check.
func (s *Service) CheckOwner(ctx context.Context, ownerID string) (CheckResult, error) {
	p, err := s.profiles.FindByOwner(ctx, ownerID)
	if err != nil {
		return CheckResult{}, err
	}
	if p == nil {
		return CheckResult{}, repositories.ErrProfileNotFound
	}

	res := s.checkIsolated(ctx, p, checkOptions{
		label:  payments.LabelPaystackUser,
		source: audit.SourceMember,
		manual: true,
	})
	s.stats.Inc("member_check_" + string(res.Outcome))

	if res.Outcome == OutcomeConfirmed {
		if fresh, err := s.profiles.FindByOwner(ctx, ownerID); err == nil && fresh != nil {
			res.Profile = fresh
		}
	}
	if res.Outcome == OutcomeFailed {
		s.log.Warn().Err(res.Err).Str("owner_id", ownerID).Msg("member payment check failed")
	}
	return res, nil
}
