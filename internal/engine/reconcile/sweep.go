package reconcile

import (
	"context"
	"fmt"
	"time"

	"memberpay/internal/engine/payments"
	"memberpay/internal/platform/audit"
)

type SweepReport struct {
	Scanned      int           `json:"scanned"`
	Confirmed    int           `json:"confirmed"`
	NotFound     int           `json:"not_found"`
	AlreadyPaid  int           `json:"already_paid"`
	ManualReview int           `json:"manual_review"`
	Failed       int           `json:"failed"`
	Duration     time.Duration `json:"duration"`
}

func (r *SweepReport) count(o Outcome) {
	switch o {
	case OutcomeConfirmed:
		r.Confirmed++
	case OutcomeNotFound:
		r.NotFound++
	case OutcomeAlreadyPaid:
		r.AlreadyPaid++
	case OutcomeManualReview:
		r.ManualReview++
	case OutcomeFailed:
		r.Failed++
	}
}

// Sweep re-checks every unpaid profile against the providers. A failure on
// one profile is logged and counted; the sweep moves on to the next.
func (s *Service) Sweep(ctx context.Context) (SweepReport, error) {
	start := s.clock.Now()
	var report SweepReport

	s.log.Info().Msg("running fallback payment check")
	s.sink.Notify(ctx, "Running fallback payment check...")

	unpaid, err := s.profiles.FindUnpaid(ctx)
	if err != nil {
		s.stats.Inc("sweep_errors")
		s.sink.Notify(ctx, "Fallback job error: "+err.Error())
		return report, fmt.Errorf("list unpaid profiles: %w", err)
	}

	opts := checkOptions{label: payments.LabelPaystackFallback, source: audit.SourceFallback, manual: true}
	for _, p := range unpaid {
		if err := ctx.Err(); err != nil {
			report.Duration = s.clock.Since(start)
			return report, err
		}

		report.Scanned++
		res := s.checkIsolated(ctx, p, opts)
		report.count(res.Outcome)

		if res.Outcome == OutcomeFailed {
			s.log.Warn().Err(res.Err).Str("owner_id", p.OwnerID).Msg("fallback check failed for profile")
		} else {
			s.log.Debug().Str("owner_id", p.OwnerID).Str("outcome", string(res.Outcome)).Msg("fallback check")
		}
	}

	report.Duration = s.clock.Since(start)
	s.stats.Inc("sweep_runs")
	s.stats.Add("sweep_confirmed", int64(report.Confirmed))
	s.stats.Add("sweep_failed", int64(report.Failed))

	s.log.Info().
		Int("scanned", report.Scanned).
		Int("confirmed", report.Confirmed).
		Int("manual_review", report.ManualReview).
		Int("failed", report.Failed).
		Dur("duration", report.Duration).
		Msg("fallback payment check complete")
	s.sink.Notify(ctx, fmt.Sprintf("Fallback check complete. Scanned %d, confirmed %d, failed %d.",
		report.Scanned, report.Confirmed, report.Failed))

	return report, nil
}
