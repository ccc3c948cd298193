package reconcile

import (
	"context"
	"fmt"
)

type PurgeReport struct {
	Batches int `json:"batches"`
	Removed int `json:"removed"`
}

// Purge removes expired claims in batches until a batch removes nothing or
// the batch limit is reached.
func (s *Service) Purge(ctx context.Context) (PurgeReport, error) {
	var report PurgeReport

	for i := 0; i < s.opts.PurgeMaxBatches; i++ {
		removed, err := s.claims.Purge(ctx, s.opts.PurgeBatchSize)
		if err != nil {
			s.stats.Inc("purge_errors")
			s.sink.Notify(ctx, "Idempotency purge error: "+err.Error())
			return report, fmt.Errorf("purge batch %d: %w", i+1, err)
		}
		report.Batches++
		report.Removed += removed
		if removed == 0 {
			break
		}
	}

	s.stats.Inc("purge_runs")
	s.stats.Add("purge_removed", int64(report.Removed))
	s.log.Info().Int("batches", report.Batches).Int("removed", report.Removed).Msg("idempotency purge complete")
	s.sink.Notify(ctx, fmt.Sprintf("Idempotency purge complete. Removed: %d", report.Removed))

	return report, nil
}
