package models

import "time"

// IdempotencyClaim is the stored form of a processing claim.
type IdempotencyClaim struct {
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the claim is functionally absent at now.
func (c IdempotencyClaim) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}
