package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"whoosh-backend/models"
	"whoosh-backend/queue"
	"whoosh-backend/services"
	"whoosh-backend/storage"
)

var epoch = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

type testEnv struct {
	*env
	db    *gorm.DB
	store *queue.MemoryStore
	clock *clockwork.FakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := storage.OpenMemoryDatabase(uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	clock := clockwork.NewFakeClockAt(epoch)
	store := queue.NewMemoryStore(clock)
	return &testEnv{
		env: &env{
			openDB:      func() (*gorm.DB, error) { return db, nil },
			openStore:   func() (queue.Store, func(), error) { return store, func() {}, nil },
			matchmaking: func() services.MatchmakingOptions { return services.MatchmakingOptions{GroupSize: 2} },
			clock:       clock,
		},
		db:    db,
		store: store,
		clock: clock,
	}
}

func run(t *testing.T, e *env, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(e)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func addGuest(t *testing.T, db *gorm.DB, expiresAt time.Time) string {
	t.Helper()
	u := models.User{
		ID:               uuid.NewString(),
		Username:         "Guest_" + uuid.NewString()[:8],
		IsGuest:          true,
		SessionExpiresAt: &expiresAt,
		Elo:              models.DefaultElo,
	}
	require.NoError(t, db.Create(&u).Error)
	return u.ID
}

func enqueue(t *testing.T, store queue.Store, queueName string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		ok, err := store.Push(context.Background(), models.QueueEntry{
			UserID:     fmt.Sprintf("user-%d", i),
			QueueName:  queueName,
			EnqueuedAt: epoch.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestMigrateCommand(t *testing.T) {
	e := newTestEnv(t)

	out, err := run(t, e.env, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "migrations applied")
	assert.True(t, e.db.Migrator().HasTable(&models.Match{}))
}

func TestReapGuestsCommand(t *testing.T) {
	e := newTestEnv(t)
	expired := addGuest(t, e.db, epoch.Add(-time.Minute))
	alive := addGuest(t, e.db, epoch.Add(time.Hour))

	out, err := run(t, e.env, "reap-guests")
	require.NoError(t, err)

	var res services.ReapResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, int64(1), res.DeletedCount)

	var count int64
	require.NoError(t, e.db.Model(&models.User{}).Where("id = ?", expired).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, e.db.Model(&models.User{}).Where("id = ?", alive).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestReapGuestsCommandWithNow(t *testing.T) {
	e := newTestEnv(t)
	addGuest(t, e.db, epoch.Add(time.Hour))

	out, err := run(t, e.env, "reap-guests", "--now", epoch.Add(2*time.Hour).Format(time.RFC3339))
	require.NoError(t, err)
	assert.Contains(t, out, `"deleted_count":1`)

	_, err = run(t, e.env, "reap-guests", "--now", "yesterday")
	assert.ErrorContains(t, err, "invalid --now")
}

func TestDrainCommand(t *testing.T) {
	t.Run("named queue", func(t *testing.T) {
		e := newTestEnv(t)
		enqueue(t, e.store, "ranked", 5)

		out, err := run(t, e.env, "drain", "Ranked")
		require.NoError(t, err)
		assert.Equal(t, "ranked: formed 2 games\n", out)

		n, err := e.store.Len(context.Background(), "ranked")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("every known queue", func(t *testing.T) {
		e := newTestEnv(t)
		enqueue(t, e.store, "ranked", 2)
		enqueue(t, e.store, "casual", 4)

		out, err := run(t, e.env, "drain")
		require.NoError(t, err)
		assert.Equal(t, "formed 3 games\n", out)
	})

	t.Run("invalid name", func(t *testing.T) {
		e := newTestEnv(t)
		_, err := run(t, e.env, "drain", "!!!")
		assert.Error(t, err)
	})
}

func TestQueueLenCommand(t *testing.T) {
	e := newTestEnv(t)
	enqueue(t, e.store, "ranked", 3)

	out, err := run(t, e.env, "queue-len", "ranked")
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)

	_, err = run(t, e.env, "queue-len")
	assert.Error(t, err)
}
