// workers/drain_worker.go
package workers

import (
	"context"
	"log"
	"sort"
	"sync"

	"whoosh-backend/models"
)

// QueueDrainer forms games from one queue.
type QueueDrainer interface {
	DrainQueue(ctx context.Context, queueName string) ([]models.FormedGame, error)
}

// DrainWorker drains queues off the request path. Joins call Trigger;
// triggers for the same queue that arrive before the worker gets to it
// collapse into one drain.
type DrainWorker struct {
	drainer QueueDrainer

	mu      sync.Mutex
	pending map[string]struct{}
	wake    chan struct{}
	done    chan struct{}
}

func NewDrainWorker(drainer QueueDrainer) *DrainWorker {
	return &DrainWorker{
		drainer: drainer,
		pending: make(map[string]struct{}),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Trigger marks queueName for draining. It never blocks.
func (w *DrainWorker) Trigger(queueName string) {
	w.mu.Lock()
	w.pending[queueName] = struct{}{}
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *DrainWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting matchmaking drain worker…")
	go w.run(ctx)
}

// Done is closed once the worker has stopped.
func (w *DrainWorker) Done() <-chan struct{} { return w.done }

func (w *DrainWorker) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			log.Println("🛑 [DRAIN] worker stopped")
			return
		case <-w.wake:
			for _, name := range w.takePending() {
				if ctx.Err() != nil {
					return
				}
				games, err := w.drainer.DrainQueue(ctx, name)
				if err != nil {
					// The periodic sweep picks the queue up again.
					log.Printf("⚠️ [DRAIN] queue %s: %v", name, err)
				}
				if len(games) > 0 {
					log.Printf("✅ [DRAIN] queue %s: formed %d games", name, len(games))
				}
			}
		}
	}
}

func (w *DrainWorker) takePending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, 0, len(w.pending))
	for name := range w.pending {
		names = append(names, name)
	}
	w.pending = make(map[string]struct{})
	sort.Strings(names)
	return names
}
