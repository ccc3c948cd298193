// Package audit keeps an append-only trail of every profile mutation the
// reconcilers make, so support can answer "why is this member marked paid".
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"memberpay/internal/platform/models"
)

const (
	SourceWebhook  = "webhook"
	SourceFallback = "fallback"
	SourceMember   = "member"
	SourceResync   = "resync"
)

type Recorder struct {
	db  *sql.DB
	now func() time.Time
}

func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db, now: time.Now}
}

// Record appends entry. Failures are logged and swallowed: the trail must
// never block or fail a reconciliation that already committed.
func (r *Recorder) Record(ctx context.Context, entry models.ReconciliationEntry) {
	if r == nil || r.db == nil {
		return
	}

	if entry.ID == "" {
		entry.ID = "rec_" + uuid.New().String()
	}
	if entry.CreatedAt == 0 {
		entry.CreatedAt = r.now().Unix()
	}
	metaJSON, err := json.Marshal(entry.Metadata)
	if err != nil || entry.Metadata == nil {
		metaJSON = []byte("{}")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO reconciliation_log (id, owner_id, source, provider, action, reference, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.OwnerID, entry.Source, entry.Provider, entry.Action, entry.Reference, string(metaJSON), entry.CreatedAt)
	if err != nil {
		log.Warn().Err(err).
			Str("owner_id", entry.OwnerID).
			Str("action", entry.Action).
			Msg("failed to record reconciliation entry")
	}
}

// ListByOwner returns the owner's entries, newest first.
func (r *Recorder) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*models.ReconciliationEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, source, provider, action, reference, metadata, created_at
		FROM reconciliation_log
		WHERE owner_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.ReconciliationEntry
	for rows.Next() {
		var e models.ReconciliationEntry
		var metaJSON string
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Source, &e.Provider, &e.Action, &e.Reference, &metaJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		if metaJSON != "" && metaJSON != "{}" {
			json.Unmarshal([]byte(metaJSON), &e.Metadata)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
