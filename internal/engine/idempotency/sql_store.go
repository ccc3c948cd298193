package idempotency

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zoobzio/clockz"

	"memberpay/internal/platform/database"
	"memberpay/internal/platform/models"
)

// SQLStore keeps claims in the idempotency_claims table. The fingerprint is
// the primary key, so the INSERT itself is the create-if-absent; a lost race
// surfaces as a primary key violation. Times are stored as unix millis.
type SQLStore struct {
	db    *sql.DB
	clock clockz.Clock
}

func NewSQLStore(db *sql.DB, clock clockz.Clock) *SQLStore {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &SQLStore{db: db, clock: clock}
}

func (s *SQLStore) Claim(ctx context.Context, fingerprint string, ttl time.Duration) (Claim, error) {
	now := s.clock.Now()
	expiresAt := now.Add(ttl)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_claims (fingerprint, created_at, expires_at)
		VALUES (?, ?, ?)
	`, fingerprint, now.UnixMilli(), expiresAt.UnixMilli())
	if err == nil {
		return claimed(), nil
	}
	if !database.IsUniqueViolation(err) {
		return Claim{}, fmt.Errorf("insert claim: %w", err)
	}

	// A row exists. Take it over only if it has expired; the WHERE clause
	// makes the takeover itself race-free.
	res, err := s.db.ExecContext(ctx, `
		UPDATE idempotency_claims
		SET created_at = ?, expires_at = ?
		WHERE fingerprint = ? AND expires_at <= ?
	`, now.UnixMilli(), expiresAt.UnixMilli(), fingerprint, now.UnixMilli())
	if err != nil {
		return Claim{}, fmt.Errorf("refresh claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Claim{}, fmt.Errorf("refresh claim: %w", err)
	}
	if n == 1 {
		return refreshed(), nil
	}

	return alreadyProcessed(ReasonAlreadyProcessed), nil
}

func (s *SQLStore) Purge(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM idempotency_claims
		WHERE fingerprint IN (
			SELECT fingerprint FROM idempotency_claims
			WHERE expires_at <= ?
			ORDER BY expires_at ASC
			LIMIT ?
		)
	`, s.clock.Now().UnixMilli(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("purge claims: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Get returns the stored claim or nil. Used by tests and diagnostics.
func (s *SQLStore) Get(ctx context.Context, fingerprint string) (*models.IdempotencyClaim, error) {
	var createdAt, expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, expires_at FROM idempotency_claims WHERE fingerprint = ?`, fingerprint,
	).Scan(&createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.IdempotencyClaim{
		Fingerprint: fingerprint,
		CreatedAt:   time.UnixMilli(createdAt),
		ExpiresAt:   time.UnixMilli(expiresAt),
	}, nil
}
