// Package idempotency provides claim-checks that let at-least-once event
// sources be applied at most once per time window.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const partSeparator = ":"

// Fingerprint hashes the non-empty, trimmed parts in order. Equal sequences
// always give equal fingerprints; the result is 64 hex characters.
func Fingerprint(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			kept = append(kept, p)
		}
	}

	sum := sha256.Sum256([]byte(strings.Join(kept, partSeparator)))
	return hex.EncodeToString(sum[:])
}
