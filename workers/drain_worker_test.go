package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whoosh-backend/models"
	"whoosh-backend/queue"
	"whoosh-backend/services"
)

type countingDrainer struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func (d *countingDrainer) DrainQueue(_ context.Context, name string) ([]models.FormedGame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.calls == nil {
		d.calls = make(map[string]int)
	}
	d.calls[name]++
	return nil, d.err
}

func (d *countingDrainer) count(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[name]
}

func TestDrainWorker_CoalescesTriggers(t *testing.T) {
	d := &countingDrainer{}
	w := NewDrainWorker(d)

	for i := 0; i < 100; i++ {
		w.Trigger("standard")
	}
	w.Trigger("ranked")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	assert.Eventually(t, func() bool {
		return d.count("standard") == 1 && d.count("ranked") == 1
	}, time.Second, 5*time.Millisecond)

	w.Trigger("standard")
	assert.Eventually(t, func() bool { return d.count("standard") == 2 }, time.Second, 5*time.Millisecond)
}

func TestDrainWorker_KeepsRunningAfterErrors(t *testing.T) {
	d := &countingDrainer{err: errors.New("store down")}
	w := NewDrainWorker(d)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	w.Trigger("standard")
	require.Eventually(t, func() bool { return d.count("standard") == 1 }, time.Second, 5*time.Millisecond)
	w.Trigger("standard")
	assert.Eventually(t, func() bool { return d.count("standard") == 2 }, time.Second, 5*time.Millisecond)
}

func TestDrainWorker_StopsOnCancel(t *testing.T) {
	w := NewDrainWorker(&countingDrainer{})
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestDrainWorker_FormsGamesForJoins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := services.NewMatchmakingService(queue.NewMemoryStore(nil), nil, services.MatchmakingOptions{})
	w := NewDrainWorker(engine)
	engine.SetDrainTrigger(w)
	w.Start(ctx)

	for i := 0; i < 8; i++ {
		_, err := engine.JoinQueue(ctx, services.JoinQueueRequest{UserID: fmt.Sprintf("p%d", i)})
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool {
		st, err := engine.PlayerStatus(ctx, "p7")
		return err == nil && st.Game != nil && len(st.Game.Players) == 8
	}, 2*time.Second, 10*time.Millisecond)
}
