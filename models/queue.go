package models

import "time"

// GameStatus is the lifecycle of a formed game:
// waiting → in_progress → completed, or waiting → (expired, removed).
type GameStatus string

const (
	GameStatusWaiting    GameStatus = "waiting"
	GameStatusInProgress GameStatus = "in_progress"
	GameStatusCompleted  GameStatus = "completed"
)

// Valid reports whether s is a known status.
func (s GameStatus) Valid() bool {
	switch s {
	case GameStatusWaiting, GameStatusInProgress, GameStatusCompleted:
		return true
	}
	return false
}

// QueueEntry is one player waiting in a named matchmaking queue.
type QueueEntry struct {
	UserID     string    `json:"user_id"`
	QueueName  string    `json:"queue"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// FormedGame is a group of players popped from a queue together.
// Players keeps queue order and never changes after formation.
type FormedGame struct {
	ID        string     `json:"id"`
	QueueName string     `json:"queue"`
	Status    GameStatus `json:"status"`
	Players   []string   `json:"players"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// HasPlayer reports whether userID is part of the game.
func (g *FormedGame) HasPlayer(userID string) bool {
	for _, p := range g.Players {
		if p == userID {
			return true
		}
	}
	return false
}
