package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"whoosh-backend/models"
	"whoosh-backend/storage"
)

var testEpoch = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

const testSecret = "test-secret"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := storage.OpenMemoryDatabase(uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newTestTokens(clock clockwork.Clock) *TokenIssuer {
	return NewTokenIssuer(testSecret, time.Hour, 7*24*time.Hour, clock)
}

func createUser(t *testing.T, db *gorm.DB, username string, guest bool, expiresAt *time.Time) models.User {
	t.Helper()
	u := models.User{
		ID:               uuid.NewString(),
		Username:         username,
		IsGuest:          guest,
		SessionExpiresAt: expiresAt,
		Elo:              models.DefaultElo,
	}
	if !guest {
		email := username + "@example.com"
		hash := "$2a$10$notarealhashnotarealhashnotarealhashnotarealhashnota"
		u.Email = &email
		u.PasswordHash = &hash
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func reloadUser(t *testing.T, db *gorm.DB, id string) models.User {
	t.Helper()
	var u models.User
	require.NoError(t, db.First(&u, "id = ?", id).Error)
	return u
}

func ptr[T any](v T) *T { return &v }
