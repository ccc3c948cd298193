package workers

import (
	"context"
	"sync"
	"time"
)

type schedule struct {
	name     string
	interval time.Duration
	// dailyHour >= 0 selects a once-a-day run at that UTC hour.
	dailyHour int
	job       Job
}

// Scheduler triggers jobs on fixed intervals or daily at a UTC hour, through
// a Runner so a slow run is never overlapped by the next tick.
type Scheduler struct {
	runner    *Runner
	schedules []schedule
	now       func() time.Time
}

func NewScheduler(runner *Runner) *Scheduler {
	return &Scheduler{runner: runner, now: time.Now}
}

func (s *Scheduler) Every(name string, interval time.Duration, job Job) {
	s.schedules = append(s.schedules, schedule{name: name, interval: interval, dailyHour: -1, job: job})
}

func (s *Scheduler) DailyAt(name string, hourUTC int, job Job) {
	s.schedules = append(s.schedules, schedule{name: name, dailyHour: hourUTC % 24, job: job})
}

// Run blocks until ctx is cancelled, then waits for in-flight jobs.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, sch := range s.schedules {
		wg.Add(1)
		go func(sch schedule) {
			defer wg.Done()
			if sch.dailyHour >= 0 {
				s.runDaily(ctx, sch)
			} else {
				s.runEvery(ctx, sch)
			}
		}(sch)
	}

	wg.Wait()
	s.runner.Wait()
}

func (s *Scheduler) runEvery(ctx context.Context, sch schedule) {
	if sch.interval <= 0 {
		return
	}
	ticker := time.NewTicker(sch.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runner.Go(ctx, sch.name, sch.job)
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context, sch schedule) {
	for {
		wait := NextDaily(s.now(), sch.dailyHour).Sub(s.now())
		s.runner.log.Info().Str("job", sch.name).Dur("sleep", wait).Msg("daily job scheduled")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.runner.Go(ctx, sch.name, sch.job)
		}
	}
}

// NextDaily returns the next instant strictly after now at hour:00 UTC.
func NextDaily(now time.Time, hour int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
