package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"whoosh-backend/models"
)

// MemoryStore is an in-process Store guarded by a single mutex. It backs
// local development when no Redis is configured, and the engine's tests.
type MemoryStore struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	queues  map[string][]models.QueueEntry // index 0 is the oldest entry
	members map[string]map[string]struct{}
	games   map[string]memoryGame
	players map[string]memoryPlayer
}

type memoryGame struct {
	game      models.FormedGame
	expiresAt time.Time // zero means no expiry
}

type memoryPlayer struct {
	gameID    string
	expiresAt time.Time
}

// NewMemoryStore returns an empty store using clock for game expiry.
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		clock:   clock,
		queues:  make(map[string][]models.QueueEntry),
		members: make(map[string]map[string]struct{}),
		games:   make(map[string]memoryGame),
		players: make(map[string]memoryPlayer),
	}
}

func (s *MemoryStore) Push(_ context.Context, entry models.QueueEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[entry.QueueName]
	if !ok {
		m = make(map[string]struct{})
		s.members[entry.QueueName] = m
	}
	if _, queued := m[entry.UserID]; queued {
		return false, nil
	}
	m[entry.UserID] = struct{}{}
	s.queues[entry.QueueName] = append(s.queues[entry.QueueName], entry)
	return true, nil
}

func (s *MemoryStore) PopN(_ context.Context, queueName string, n int) ([]models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queues[queueName]
	if n > len(q) {
		n = len(q)
	}
	if n <= 0 {
		return nil, nil
	}
	out := make([]models.QueueEntry, n)
	copy(out, q[:n])
	s.queues[queueName] = q[n:]
	for _, e := range out {
		delete(s.members[queueName], e.UserID)
	}
	return out, nil
}

func (s *MemoryStore) Requeue(_ context.Context, queueName string, entries []models.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[queueName]
	if !ok {
		m = make(map[string]struct{})
		s.members[queueName] = m
	}
	front := make([]models.QueueEntry, 0, len(entries))
	for _, e := range entries {
		if _, queued := m[e.UserID]; queued {
			continue
		}
		m[e.UserID] = struct{}{}
		front = append(front, e)
	}
	s.queues[queueName] = append(front, s.queues[queueName]...)
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, queueName, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, queued := s.members[queueName][userID]; !queued {
		return false, nil
	}
	delete(s.members[queueName], userID)
	q := s.queues[queueName]
	for i, e := range q {
		if e.UserID == userID {
			s.queues[queueName] = append(q[:i:i], q[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *MemoryStore) Len(_ context.Context, queueName string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.queues[queueName])), nil
}

func (s *MemoryStore) Queues(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.members))
	for name := range s.members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) SaveGame(_ context.Context, game models.FormedGame, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := s.clock.Now().Add(ttl)
	game.Players = append([]string(nil), game.Players...)
	s.games[game.ID] = memoryGame{game: game, expiresAt: expiresAt}
	for _, p := range game.Players {
		s.players[p] = memoryPlayer{gameID: game.ID, expiresAt: expiresAt}
	}
	return nil
}

func (s *MemoryStore) GetGame(_ context.Context, gameID string) (models.FormedGame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.liveGame(gameID)
	if !ok {
		return models.FormedGame{}, ErrGameNotFound
	}
	return g.game, nil
}

func (s *MemoryStore) SetGameStatus(_ context.Context, gameID string, from []models.GameStatus, to models.GameStatus, ttl time.Duration) (models.FormedGame, error) {
	if !to.Valid() {
		return models.FormedGame{}, unknownStatus(to)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.liveGame(gameID)
	if !ok {
		return models.FormedGame{}, ErrGameNotFound
	}
	if !statusIn(g.game.Status, from) {
		return g.game, ErrStatusConflict
	}
	g.game.Status = to
	if ttl > 0 {
		g.expiresAt = s.clock.Now().Add(ttl)
		g.game.ExpiresAt = g.expiresAt
	} else {
		g.expiresAt = time.Time{}
		g.game.ExpiresAt = time.Time{}
	}
	s.games[gameID] = g
	return g.game, nil
}

func (s *MemoryStore) PlayerGame(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[userID]
	if !ok {
		return "", nil
	}
	if !p.expiresAt.IsZero() && !s.clock.Now().Before(p.expiresAt) {
		delete(s.players, userID)
		return "", nil
	}
	return p.gameID, nil
}

// liveGame returns the game unless it expired; expired games are dropped.
// Callers hold s.mu.
func (s *MemoryStore) liveGame(gameID string) (memoryGame, bool) {
	g, ok := s.games[gameID]
	if !ok {
		return memoryGame{}, false
	}
	if !g.expiresAt.IsZero() && !s.clock.Now().Before(g.expiresAt) {
		delete(s.games, gameID)
		return memoryGame{}, false
	}
	return g, true
}

func statusIn(s models.GameStatus, set []models.GameStatus) bool {
	for _, c := range set {
		if c == s {
			return true
		}
	}
	return false
}
