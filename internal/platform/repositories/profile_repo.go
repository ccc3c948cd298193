package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"memberpay/internal/engine/payments"
	"memberpay/internal/platform/database"
	"memberpay/internal/platform/models"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	// ErrOwnerExists is the duplicate-identity insert race on owner_id.
	ErrOwnerExists = fmt.Errorf("profile already exists for owner: %w", payments.ErrStorageConflict)
)

const profileColumns = `id, owner_id, email, full_name, signup_paid, signup_provider, signup_amount, signup_paid_at,
	subscription_active, plan_status, subscription_code, created_at, updated_at`

// ProfileRepository stores member profiles. Payment fields are only changed
// through the narrow Apply*/Mark*/Set* methods, each a single conditional
// UPDATE, so concurrent reconcilers touching different fields never clobber
// each other and repeating a mutation is a no-op.
type ProfileRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (*models.Profile, error) {
	var p models.Profile
	var paidAt sql.NullInt64
	var planStatus string

	err := row.Scan(&p.ID, &p.OwnerID, &p.Email, &p.FullName, &p.SignupPaid, &p.SignupProvider, &p.SignupAmount, &paidAt,
		&p.SubscriptionActive, &planStatus, &p.SubscriptionCode, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if paidAt.Valid {
		p.SignupPaidAt = new(int64)
		*p.SignupPaidAt = paidAt.Int64
	}
	p.PlanStatus = models.PlanStatus(planStatus)

	return &p, nil
}

// Create inserts a new default profile. It returns ErrOwnerExists when the
// owner already has one.
func (r *ProfileRepository) Create(ctx context.Context, p *models.Profile) error {
	if p.ID == "" {
		p.ID = "prf_" + uuid.New().String()
	}
	now := r.now().Unix()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.PlanStatus == "" {
		p.PlanStatus = models.PlanStatusNone
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (id, owner_id, email, full_name, signup_paid, signup_provider, signup_amount,
			subscription_active, plan_status, subscription_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.OwnerID, p.Email, p.FullName, p.SignupPaid, p.SignupProvider, p.SignupAmount,
		p.SubscriptionActive, string(p.PlanStatus), p.SubscriptionCode, p.CreatedAt, p.UpdatedAt)
	if database.IsUniqueViolation(err) {
		return ErrOwnerExists
	}
	return err
}

// Upsert creates the owner's profile or updates its contact fields. Payment
// and subscription fields of an existing profile are left untouched, except
// that signup_paid can only be raised.
func (r *ProfileRepository) Upsert(ctx context.Context, p *models.Profile) error {
	if p.ID == "" {
		p.ID = "prf_" + uuid.New().String()
	}
	now := r.now().Unix()
	if p.PlanStatus == "" {
		p.PlanStatus = models.PlanStatusNone
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (id, owner_id, email, full_name, signup_paid, signup_provider, signup_amount,
			subscription_active, plan_status, subscription_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			email = excluded.email,
			full_name = excluded.full_name,
			signup_paid = MAX(profiles.signup_paid, excluded.signup_paid),
			updated_at = excluded.updated_at
	`, p.ID, p.OwnerID, p.Email, p.FullName, p.SignupPaid, p.SignupProvider, p.SignupAmount,
		p.SubscriptionActive, string(p.PlanStatus), p.SubscriptionCode, now, now)
	return err
}

// FindByOwner returns nil, nil when the owner has no profile.
func (r *ProfileRepository) FindByOwner(ctx context.Context, ownerID string) (*models.Profile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE owner_id = ?`, ownerID)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// FindByEmail matches case-insensitively and returns the oldest profile for
// the address, or nil, nil.
func (r *ProfileRepository) FindByEmail(ctx context.Context, email string) (*models.Profile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+` FROM profiles
		WHERE lower(trim(email)) = ?
		ORDER BY created_at ASC
		LIMIT 1
	`, payments.NormalizeEmail(email))
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *ProfileRepository) FindUnpaid(ctx context.Context) ([]*models.Profile, error) {
	return r.query(ctx, `SELECT `+profileColumns+` FROM profiles WHERE signup_paid = 0 ORDER BY created_at ASC`)
}

func (r *ProfileRepository) List(ctx context.Context) ([]*models.Profile, error) {
	return r.query(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at ASC`)
}

func (r *ProfileRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.Profile, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// ApplyPaymentConfirmation marks the owner's signup fee as paid. It reports
// whether this call changed anything: confirming an already-paid profile
// keeps the first provider and amount and returns false.
func (r *ProfileRepository) ApplyPaymentConfirmation(ctx context.Context, ownerID, provider string, amount float64) (bool, error) {
	now := r.now().Unix()
	res, err := r.db.ExecContext(ctx, `
		UPDATE profiles
		SET signup_paid = 1, signup_provider = ?, signup_amount = ?, signup_paid_at = ?, updated_at = ?
		WHERE owner_id = ? AND signup_paid = 0
	`, provider, amount, now, now, ownerID)
	if err != nil {
		return false, err
	}
	return r.changedOrMissing(ctx, res, ownerID)
}

// MarkPlanAttention flags the subscription as needing attention.
func (r *ProfileRepository) MarkPlanAttention(ctx context.Context, ownerID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE profiles SET plan_status = ?, updated_at = ?
		WHERE owner_id = ? AND plan_status != ?
	`, string(models.PlanStatusAttention), r.now().Unix(), ownerID, string(models.PlanStatusAttention))
	if err != nil {
		return false, err
	}
	return r.changedOrMissing(ctx, res, ownerID)
}

func (r *ProfileRepository) SetSubscriptionCode(ctx context.Context, ownerID, code string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE profiles SET subscription_code = ?, updated_at = ?
		WHERE owner_id = ? AND subscription_code != ?
	`, code, r.now().Unix(), ownerID, code)
	if err != nil {
		return false, err
	}
	return r.changedOrMissing(ctx, res, ownerID)
}

// ApplySubscriptionState writes a provider snapshot. An active subscription
// sets the plan active; a known but inactive one only demotes an active plan
// to attention. Unknown state is ignored.
func (r *ProfileRepository) ApplySubscriptionState(ctx context.Context, ownerID string, state models.SubscriptionState) (bool, error) {
	if !state.Known {
		return false, nil
	}

	now := r.now().Unix()
	var res sql.Result
	var err error
	if state.Active {
		res, err = r.db.ExecContext(ctx, `
			UPDATE profiles
			SET subscription_active = 1, plan_status = ?,
				subscription_code = CASE WHEN ? != '' THEN ? ELSE subscription_code END,
				updated_at = ?
			WHERE owner_id = ?
				AND (subscription_active = 0 OR plan_status != ? OR (? != '' AND subscription_code != ?))
		`, string(models.PlanStatusActive), state.Code, state.Code, now, ownerID,
			string(models.PlanStatusActive), state.Code, state.Code)
	} else {
		res, err = r.db.ExecContext(ctx, `
			UPDATE profiles
			SET subscription_active = 0,
				plan_status = CASE WHEN plan_status = ? THEN ? ELSE plan_status END,
				updated_at = ?
			WHERE owner_id = ? AND (subscription_active = 1 OR plan_status = ?)
		`, string(models.PlanStatusActive), string(models.PlanStatusAttention), now, ownerID, string(models.PlanStatusActive))
	}
	if err != nil {
		return false, err
	}
	return r.changedOrMissing(ctx, res, ownerID)
}

// changedOrMissing turns a conditional update result into (changed, err),
// distinguishing "already in that state" from "no such owner".
func (r *ProfileRepository) changedOrMissing(ctx context.Context, res sql.Result, ownerID string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	var exists int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM profiles WHERE owner_id = ?`, ownerID).Scan(&exists); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, ErrProfileNotFound
	}
	return false, nil
}
