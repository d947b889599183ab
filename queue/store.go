// Package queue holds the shared, atomically mutable matchmaking state: the
// per-name waiting lists and the short-lived formed game records.
//
// Every Store implementation must make Push, PopN, Requeue and Remove atomic
// and linearizable across concurrent callers. Many drains may race on one
// queue; each entry must be handed to exactly one of them.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"whoosh-backend/models"
)

var (
	// ErrGameNotFound is returned for unknown or expired formed games.
	ErrGameNotFound = errors.New("formed game not found")
	// ErrStatusConflict is returned when a compare-and-set status change
	// finds the game in a status other than the expected ones.
	ErrStatusConflict = errors.New("formed game status conflict")
)

// Store is the queue store capability the matchmaking engine runs against.
type Store interface {
	// Push appends entry to the newest end of its queue. It returns false
	// without changing anything when the user is already in that queue.
	Push(ctx context.Context, entry models.QueueEntry) (bool, error)

	// PopN removes up to n entries from the oldest end, oldest first.
	PopN(ctx context.Context, queueName string, n int) ([]models.QueueEntry, error)

	// Requeue puts entries back at the oldest end keeping their order, so
	// the next PopN returns them first. Users that joined again in the
	// meantime are skipped.
	Requeue(ctx context.Context, queueName string, entries []models.QueueEntry) error

	// Remove takes userID out of the queue. False if it was not queued.
	Remove(ctx context.Context, queueName, userID string) (bool, error)

	Len(ctx context.Context, queueName string) (int64, error)

	// Queues lists every queue name that has ever received a Push.
	Queues(ctx context.Context) ([]string, error)

	// SaveGame stores a formed game that expires after ttl and indexes it
	// by player.
	SaveGame(ctx context.Context, game models.FormedGame, ttl time.Duration) error

	GetGame(ctx context.Context, gameID string) (models.FormedGame, error)

	// SetGameStatus moves a game to status `to` only if its current status
	// is one of `from`. ttl <= 0 keeps the record until deleted; ttl > 0
	// restarts its expiry.
	SetGameStatus(ctx context.Context, gameID string, from []models.GameStatus, to models.GameStatus, ttl time.Duration) (models.FormedGame, error)

	// PlayerGame returns the id of the last game formed with userID, or ""
	// when none is live.
	PlayerGame(ctx context.Context, userID string) (string, error)
}

func unknownStatus(s models.GameStatus) error {
	return fmt.Errorf("unknown game status %q", s)
}

const keyPrefix = "matchmaking:"

func queueKey(name string) string    { return keyPrefix + "queue:" + name }
func membersKey(name string) string  { return keyPrefix + "members:" + name }
func enqueuedKey(name string) string { return keyPrefix + "enqueued:" + name }
func playerKey(userID string) string { return keyPrefix + "player:" + userID }
func gameKey(gameID string) string   { return "game:" + gameID }

const (
	queuesKey    = keyPrefix + "queues"
	gamesChannel = keyPrefix + "games"
)
