package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"memberpay/internal/engine/payments"
	"memberpay/internal/platform/audit"
	"memberpay/internal/platform/models"
)

type ResyncReport struct {
	Scanned              int           `json:"scanned"`
	SubscriptionsUpdated int           `json:"subscriptions_updated"`
	Confirmed            int           `json:"confirmed"`
	Failed               int           `json:"failed"`
	Duration             time.Duration `json:"duration"`
}

// Resync pulls subscription state for every profile from the providers that
// expose it, and confirms unpaid profiles through the same path the sweep
// uses (without manual-review notifications).
func (s *Service) Resync(ctx context.Context) (ResyncReport, error) {
	start := s.clock.Now()
	var report ResyncReport

	profiles, err := s.profiles.List(ctx)
	if err != nil {
		s.stats.Inc("resync_errors")
		return report, fmt.Errorf("list profiles: %w", err)
	}

	for _, p := range profiles {
		if err := ctx.Err(); err != nil {
			report.Duration = s.clock.Since(start)
			return report, err
		}
		report.Scanned++

		updated, err := s.resyncProfile(ctx, p)
		if err != nil {
			report.Failed++
			s.log.Warn().Err(err).Str("owner_id", p.OwnerID).Msg("resync failed for profile")
			continue
		}
		if updated {
			report.SubscriptionsUpdated++
		}

		res := s.checkIsolated(ctx, p, checkOptions{label: payments.LabelPaystackResync, source: audit.SourceResync})
		switch res.Outcome {
		case OutcomeConfirmed:
			report.Confirmed++
		case OutcomeFailed:
			report.Failed++
			s.log.Warn().Err(res.Err).Str("owner_id", p.OwnerID).Msg("resync payment check failed")
		}
	}

	report.Duration = s.clock.Since(start)
	s.stats.Inc("resync_runs")
	s.log.Info().
		Int("scanned", report.Scanned).
		Int("subscriptions_updated", report.SubscriptionsUpdated).
		Int("confirmed", report.Confirmed).
		Int("failed", report.Failed).
		Msg("daily resync complete")

	return report, nil
}

func (s *Service) resyncProfile(ctx context.Context, p *models.Profile) (updated bool, err error) {
	if strings.TrimSpace(p.Email) == "" {
		return false, nil
	}

	ictx, cancel := context.WithTimeout(ctx, s.opts.ItemTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic resyncing profile %s: %v", p.OwnerID, r)
		}
	}()

	for _, src := range s.providers.SubscriptionSources() {
		state, err := src.SubscriptionState(ictx, p.Email)
		if err != nil {
			return updated, err
		}
		if !state.Known {
			continue
		}

		changed, err := s.profiles.ApplySubscriptionState(ictx, p.OwnerID, state)
		if err != nil {
			return updated, err
		}
		if changed {
			updated = true
			action := "subscription_inactive"
			if state.Active {
				action = "subscription_active"
			}
			s.audit.Record(ctx, models.ReconciliationEntry{
				OwnerID:   p.OwnerID,
				Source:    audit.SourceResync,
				Provider:  src.Name(),
				Action:    action,
				Reference: state.Code,
			})
		}
	}
	return updated, nil
}
