package services

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whoosh-backend/models"
	"whoosh-backend/queue"
)

func TestScheduler_RunsMaintenanceJobs(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testEpoch)
	db := newTestDB(t)
	store := queue.NewMemoryStore(clock)
	matchmaking := NewMatchmakingService(store, clock, MatchmakingOptions{GroupSize: 2})
	matchmaking.SetDrainTrigger(&deferredTrigger{})
	guests := NewGuestService(db, newTestTokens(clock), clock, time.Hour)

	joinN(t, matchmaking, "standard", 4)
	createUser(t, db, "Guest_0ld0ld00", true, ptr(testEpoch.Add(-time.Minute)))

	sched, err := NewScheduler(matchmaking, guests, SchedulerOptions{DrainInterval: time.Hour, ReapInterval: time.Hour})
	require.NoError(t, err)
	sched.Start()
	t.Cleanup(func() { _ = sched.Shutdown() })

	require.NoError(t, sched.RunNow(JobDrainSweep))
	require.NoError(t, sched.RunNow(JobReapGuests))

	assert.Eventually(t, func() bool {
		n, err := store.Len(context.Background(), "standard")
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		var n int64
		return db.Model(&models.User{}).Count(&n).Error == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.Error(t, sched.RunNow("unknown"))
}

func TestScheduler_SkipsUnconfiguredJobs(t *testing.T) {
	sched, err := NewScheduler(nil, nil, SchedulerOptions{DrainInterval: time.Minute})
	require.NoError(t, err)
	assert.Error(t, sched.RunNow(JobDrainSweep))
	assert.Error(t, sched.RunNow(JobReapGuests))
}
