package idempotency

import (
	"context"
	"time"
)

const (
	ReasonCreated          = "created"
	ReasonRefreshed        = "refreshed"
	ReasonAlreadyProcessed = "already_processed"
)

// Claim is the result of a claim attempt.
type Claim struct {
	Claimed          bool
	Refreshed        bool
	AlreadyProcessed bool
	Reason           string
}

// Store grants exclusive, time-bounded processing rights per fingerprint.
//
// Claim must be an atomic create-if-absent at the storage layer. When two
// callers race on an absent fingerprint exactly one gets Claimed; the other
// gets AlreadyProcessed, never an error.
type Store interface {
	Claim(ctx context.Context, fingerprint string, ttl time.Duration) (Claim, error)
	// Purge removes up to batchSize expired claims and returns how many went.
	Purge(ctx context.Context, batchSize int) (int, error)
}

func claimed() Claim { return Claim{Claimed: true, Reason: ReasonCreated} }

func refreshed() Claim { return Claim{Claimed: true, Refreshed: true, Reason: ReasonRefreshed} }

func alreadyProcessed(reason string) Claim {
	return Claim{AlreadyProcessed: true, Reason: reason}
}
