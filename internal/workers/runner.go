// Package workers runs the reconciliation jobs on a schedule and on demand.
package workers

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"memberpay/internal/pkg/logger"
)

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

var ErrAlreadyRunning = errors.New("job already running")

// Runner executes named jobs with at most one run in flight per name. A run
// that arrives while the previous one is still going is skipped, not queued.
type Runner struct {
	mu      sync.Mutex
	running map[string]bool
	wg      sync.WaitGroup
	log     zerolog.Logger
}

func NewRunner() *Runner {
	return &Runner{running: make(map[string]bool), log: logger.Component("workers")}
}

func (r *Runner) acquire(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[name] {
		return false
	}
	r.running[name] = true
	r.wg.Add(1)
	return true
}

func (r *Runner) release(name string) {
	r.mu.Lock()
	delete(r.running, name)
	r.mu.Unlock()
	r.wg.Done()
}

// Run executes job in the calling goroutine. It returns ErrAlreadyRunning
// without running when a run of the same name is in flight.
func (r *Runner) Run(ctx context.Context, name string, job Job) error {
	if !r.acquire(name) {
		r.log.Warn().Str("job", name).Msg("previous run still in progress, skipping")
		return ErrAlreadyRunning
	}
	defer r.release(name)

	r.log.Info().Str("job", name).Msg("job started")
	err := job(ctx)
	if err != nil {
		r.log.Error().Err(err).Str("job", name).Msg("job failed")
	} else {
		r.log.Info().Str("job", name).Msg("job finished")
	}
	return err
}

// Go starts job in the background and reports whether it was started.
func (r *Runner) Go(ctx context.Context, name string, job Job) bool {
	if !r.acquire(name) {
		r.log.Warn().Str("job", name).Msg("previous run still in progress, skipping")
		return false
	}

	go func() {
		defer r.release(name)
		r.log.Info().Str("job", name).Msg("job started")
		if err := job(ctx); err != nil {
			r.log.Error().Err(err).Str("job", name).Msg("job failed")
			return
		}
		r.log.Info().Str("job", name).Msg("job finished")
	}()
	return true
}

func (r *Runner) Running(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running[name]
}

// Wait blocks until every in-flight run has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}
