package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"

	"whoosh-backend/config"
	"whoosh-backend/models"
	"whoosh-backend/queue"
)

// Defaults for the matchmaking engine.
const (
	DefaultQueueName = "standard"
	DefaultGroupSize = 8
	DefaultGameTTL   = 600 * time.Second
)

// DrainTrigger schedules a drain of one queue. It must not block.
type DrainTrigger interface {
	Trigger(queueName string)
}

// MatchmakingOptions tunes the engine. Zero values pick the defaults.
type MatchmakingOptions struct {
	GroupSize       int
	GameTTL         time.Duration
	DuplicatePolicy string // config.DuplicatePolicyReject | config.DuplicatePolicyIgnore
}

// MatchmakingService keeps per-queue waiting lists and forms games of
// GroupSize players as soon as enough are queued.
type MatchmakingService struct {
	Store   queue.Store
	clock   clockwork.Clock
	opts    MatchmakingOptions
	trigger DrainTrigger
}

func NewMatchmakingService(store queue.Store, clock clockwork.Clock, opts MatchmakingOptions) *MatchmakingService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if opts.GroupSize <= 0 {
		opts.GroupSize = DefaultGroupSize
	}
	if opts.GameTTL <= 0 {
		opts.GameTTL = DefaultGameTTL
	}
	if opts.DuplicatePolicy == "" {
		opts.DuplicatePolicy = config.DuplicatePolicyReject
	}
	return &MatchmakingService{Store: store, clock: clock, opts: opts}
}

// SetDrainTrigger routes post-join drains through t. Without a trigger
// JoinQueue drains inline before returning.
func (s *MatchmakingService) SetDrainTrigger(t DrainTrigger) {
	s.trigger = t
}

// GroupSize is the number of players per formed game.
func (s *MatchmakingService) GroupSize() int { return s.opts.GroupSize }

type JoinQueueRequest struct {
	UserID    string `json:"user_id"`
	QueueName string `json:"queue"`
}

type JoinQueueResponse struct {
	QueueName     string `json:"queue"`
	UserID        string `json:"user_id"`
	AlreadyQueued bool   `json:"already_queued,omitempty"`
}

// NormalizeQueueName maps user input onto a queue key: empty means the
// standard queue, anything else is slugged ("Ranked EU" → "ranked-eu").
func NormalizeQueueName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultQueueName, nil
	}
	normalized := slug.Make(name)
	if normalized == "" {
		return "", validationError("invalid queue name %q", name)
	}
	return normalized, nil
}

// JoinQueue appends the user to the queue (FIFO) and schedules a drain.
func (s *MatchmakingService) JoinQueue(ctx context.Context, req JoinQueueRequest) (*JoinQueueResponse, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, validationError("user_id is required")
	}
	queueName, err := NormalizeQueueName(req.QueueName)
	if err != nil {
		return nil, err
	}

	added, err := s.Store.Push(ctx, models.QueueEntry{
		UserID:     req.UserID,
		QueueName:  queueName,
		EnqueuedAt: s.clock.Now().UTC(),
	})
	if err != nil {
		return nil, storeError(err, "join queue %s", queueName)
	}

	resp := &JoinQueueResponse{QueueName: queueName, UserID: req.UserID}
	if !added {
		if s.opts.DuplicatePolicy == config.DuplicatePolicyReject {
			return nil, conflictError("user %s is already in queue %s", req.UserID, queueName)
		}
		resp.AlreadyQueued = true
		return resp, nil
	}
	log.Printf("📥 [MATCHMAKING] user %s joined queue %s", req.UserID, queueName)

	if s.trigger != nil {
		s.trigger.Trigger(queueName)
	} else if _, err := s.DrainQueue(ctx, queueName); err != nil {
		// The join itself is durable; a failed drain is retried by the sweep.
		log.Printf("⚠️ [MATCHMAKING] drain after join on %s failed: %v", queueName, err)
	}
	return resp, nil
}

// LeaveQueue takes the user out of the queue. False when not queued.
func (s *MatchmakingService) LeaveQueue(ctx context.Context, userID, queueName string) (bool, error) {
	queueName, err := NormalizeQueueName(queueName)
	if err != nil {
		return false, err
	}
	removed, err := s.Store.Remove(ctx, queueName, userID)
	if err != nil {
		return false, storeError(err, "leave queue %s", queueName)
	}
	if removed {
		log.Printf("📤 [MATCHMAKING] user %s left queue %s", userID, queueName)
	}
	return removed, nil
}

// DrainQueue forms as many games as the queue currently allows and
// returns them. It never waits for more players. Popped entries that do
// not end up in a saved game are put back at the front of the queue.
func (s *MatchmakingService) DrainQueue(ctx context.Context, queueName string) ([]models.FormedGame, error) {
	var formed []models.FormedGame
	for {
		n, err := s.Store.Len(ctx, queueName)
		if err != nil {
			return formed, storeError(err, "read length of queue %s", queueName)
		}
		if n < int64(s.opts.GroupSize) {
			return formed, nil
		}

		entries, err := s.Store.PopN(ctx, queueName, s.opts.GroupSize)
		if err != nil {
			return formed, s.requeueAfter(ctx, queueName, entries, storeError(err, "pop from queue %s", queueName))
		}
		if len(entries) < s.opts.GroupSize {
			// A concurrent drain took the rest between Len and PopN.
			log.Printf("⚠️ [DRAIN] queue %s yielded %d/%d players, requeueing", queueName, len(entries), s.opts.GroupSize)
			return formed, s.requeueAfter(ctx, queueName, entries, nil)
		}

		game := s.newGame(queueName, entries)
		if err := s.Store.SaveGame(ctx, game, s.opts.GameTTL); err != nil {
			return formed, s.requeueAfter(ctx, queueName, entries, storeError(err, "save game for queue %s", queueName))
		}
		log.Printf("✅ [MATCHMAKING] formed game %s on %s with players %v", game.ID, queueName, game.Players)
		formed = append(formed, game)
	}
}

// DrainAll drains every known queue. Errors on one queue do not stop the rest.
func (s *MatchmakingService) DrainAll(ctx context.Context) (int, error) {
	names, err := s.Store.Queues(ctx)
	if err != nil {
		return 0, storeError(err, "list queues")
	}
	var (
		total int
		errs  []error
	)
	for _, name := range names {
		games, err := s.DrainQueue(ctx, name)
		total += len(games)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

func (s *MatchmakingService) newGame(queueName string, entries []models.QueueEntry) models.FormedGame {
	now := s.clock.Now().UTC()
	players := make([]string, len(entries))
	for i, e := range entries {
		players[i] = e.UserID
	}
	return models.FormedGame{
		ID:        uuid.NewString(),
		QueueName: queueName,
		Status:    models.GameStatusWaiting,
		Players:   players,
		CreatedAt: now,
		ExpiresAt: now.Add(s.opts.GameTTL),
	}
}

// requeueAfter returns entries to the queue front and folds a requeue
// failure into cause so nobody is lost silently.
func (s *MatchmakingService) requeueAfter(ctx context.Context, queueName string, entries []models.QueueEntry, cause error) error {
	if len(entries) == 0 {
		return cause
	}
	if err := s.Store.Requeue(ctx, queueName, entries); err != nil {
		ids := make([]string, len(entries))
		for i, e := range entries {
			ids[i] = e.UserID
		}
		log.Printf("❌ [DRAIN] could not requeue %v onto %s: %v", ids, queueName, err)
		return errors.Join(cause, storeError(err, "requeue %d players %v onto %s", len(entries), ids, queueName))
	}
	return cause
}

// GetGame returns a live formed game.
func (s *MatchmakingService) GetGame(ctx context.Context, gameID string) (*models.FormedGame, error) {
	game, err := s.Store.GetGame(ctx, gameID)
	if errors.Is(err, queue.ErrGameNotFound) {
		return nil, notFoundError("game %s not found or expired", gameID)
	}
	if err != nil {
		return nil, storeError(err, "load game %s", gameID)
	}
	return &game, nil
}

// ClaimGame marks a waiting game as started. The record then stays until
// the result is reported.
func (s *MatchmakingService) ClaimGame(ctx context.Context, gameID string) (*models.FormedGame, error) {
	return s.transition(ctx, gameID, []models.GameStatus{models.GameStatusWaiting}, models.GameStatusInProgress, 0)
}

// CompleteGame marks a game as completed and lets it expire after GameTTL.
func (s *MatchmakingService) CompleteGame(ctx context.Context, gameID string) (*models.FormedGame, error) {
	return s.transition(ctx, gameID,
		[]models.GameStatus{models.GameStatusWaiting, models.GameStatusInProgress},
		models.GameStatusCompleted, s.opts.GameTTL)
}

func (s *MatchmakingService) transition(ctx context.Context, gameID string, from []models.GameStatus, to models.GameStatus, ttl time.Duration) (*models.FormedGame, error) {
	game, err := s.Store.SetGameStatus(ctx, gameID, from, to, ttl)
	switch {
	case errors.Is(err, queue.ErrGameNotFound):
		return nil, notFoundError("game %s not found or expired", gameID)
	case errors.Is(err, queue.ErrStatusConflict):
		return nil, conflictError("game %s is %s, cannot move to %s", gameID, game.Status, to)
	case err != nil:
		return nil, storeError(err, "update game %s", gameID)
	}
	log.Printf("🎮 [MATCHMAKING] game %s → %s", gameID, to)
	return &game, nil
}

// PlayerStatus is what a polling client sees about itself.
type PlayerStatus struct {
	UserID string             `json:"user_id"`
	Game   *models.FormedGame `json:"game,omitempty"`
}

// PlayerStatus reports the live game the user was matched into, if any.
func (s *MatchmakingService) PlayerStatus(ctx context.Context, userID string) (*PlayerStatus, error) {
	gameID, err := s.Store.PlayerGame(ctx, userID)
	if err != nil {
		return nil, storeError(err, "look up game for %s", userID)
	}
	status := &PlayerStatus{UserID: userID}
	if gameID == "" {
		return status, nil
	}
	game, err := s.Store.GetGame(ctx, gameID)
	if errors.Is(err, queue.ErrGameNotFound) {
		return status, nil
	}
	if err != nil {
		return nil, storeError(err, "load game %s", gameID)
	}
	status.Game = &game
	return status, nil
}
