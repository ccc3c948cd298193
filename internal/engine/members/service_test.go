package members

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memberpay/internal/platform/audit"
	"memberpay/internal/platform/config"
	"memberpay/internal/platform/database"
	"memberpay/internal/platform/models"
	"memberpay/internal/platform/repositories"
)

func setupService(t *testing.T, cfg config.DatabaseConfig) (*Service, *repositories.ProfileRepository, *sql.DB) {
	t.Helper()
	db, err := database.Open(cfg)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })

	repo := repositories.NewProfileRepository(db)
	return NewService(repo, audit.NewRecorder(db)), repo, db
}

func TestRegister(t *testing.T) {
	svc, _, _ := setupService(t, config.DatabaseConfig{URL: ":memory:"})
	ctx := context.Background()

	p, created, err := svc.Register(ctx, RegisterInput{OwnerID: " owner-1 ", Email: "a@x.com", FullName: "Ayo"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "owner-1", p.OwnerID)
	assert.False(t, p.SignupPaid)
	assert.False(t, p.SubscriptionActive)
	assert.Equal(t, models.PlanStatusNone, p.PlanStatus)

	again, created, err := svc.Register(ctx, RegisterInput{OwnerID: "owner-1", Email: "other@x.com"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, p.ID, again.ID)
	assert.Equal(t, "a@x.com", again.Email)
}

func TestRegister_ConcurrentConvergesOnOneProfile(t *testing.T) {
	cfg := config.DatabaseConfig{URL: "file:" + filepath.Join(t.TempDir(), "m.db"), MaxConnections: 8}
	svc, _, db := setupService(t, cfg)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, _, err := svc.Register(context.Background(), RegisterInput{OwnerID: "owner-1", Email: fmt.Sprintf("m%d@x.com", i)})
			if assert.NoError(t, err) {
				ids[i] = p.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(1) FROM profiles WHERE owner_id = 'owner-1'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSaveContact_NeverTouchesPaymentFields(t *testing.T) {
	svc, repo, _ := setupService(t, config.DatabaseConfig{URL: ":memory:"})
	ctx := context.Background()

	_, _, err := svc.Register(ctx, RegisterInput{OwnerID: "owner-1", Email: "a@x.com"})
	require.NoError(t, err)
	_, err = repo.ApplyPaymentConfirmation(ctx, "owner-1", "Paystack (Webhook)", 5)
	require.NoError(t, err)

	p, err := svc.SaveContact(ctx, "owner-1", ContactInput{Email: "new@x.com", FullName: "New Name"})
	require.NoError(t, err)
	assert.Equal(t, "new@x.com", p.Email)
	assert.Equal(t, "New Name", p.FullName)
	assert.True(t, p.SignupPaid)
	assert.Equal(t, "Paystack (Webhook)", p.SignupProvider)

	_, err = svc.Get(ctx, "ghost")
	assert.ErrorIs(t, err, repositories.ErrProfileNotFound)
}
