// Package payments holds the vocabulary shared by the reconciliation engine:
// provider names, amounts and the error taxonomy.
package payments

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateEvent marks an event whose idempotency claim was denied.
	// It is a control-flow outcome, not a failure.
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrVerificationFailed means the provider reports the transaction as not successful.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrProviderUnreachable covers transport, timeout and auth failures talking to a provider.
	ErrProviderUnreachable = errors.New("provider unreachable")

	// ErrManualReviewRequired is returned by providers without a query API.
	ErrManualReviewRequired = errors.New("manual review required")

	// ErrStorageConflict is a duplicate-identity insert race in a store.
	ErrStorageConflict = errors.New("storage conflict")

	// ErrMalformedEvent is an unparseable inbound webhook payload.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrNotFound is returned when a provider has no record for the lookup key.
	ErrNotFound = errors.New("not found")
)

// ProviderError describes a failed outbound call.
type ProviderError struct {
	Provider string
	Op       string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: http %d: %v", e.Provider, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrProviderUnreachable) match any ProviderError
// that does not wrap a more specific sentinel.
func (e *ProviderError) Is(target error) bool {
	if target != ErrProviderUnreachable {
		return false
	}
	return !errors.Is(e.Err, ErrNotFound)
}

// MalformedEventError carries the parse failure behind ErrMalformedEvent.
type MalformedEventError struct {
	Reason string
	Err    error
}

func (e *MalformedEventError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed event: %s: %v", e.Reason, e.Err)
	}
	return "malformed event: " + e.Reason
}

func (e *MalformedEventError) Unwrap() error { return e.Err }

func (e *MalformedEventError) Is(target error) bool { return target == ErrMalformedEvent }
