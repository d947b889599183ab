package models

import "time"

// Match status values persisted in matches.status.
const (
	MatchStatusCompleted = "completed"
)

// Match is the durable record of a finished game. It exists only when at
// least one non-guest played; its ID is the formed game's ID.
type Match struct {
	ID        string     `gorm:"primaryKey;type:uuid" json:"id"`
	StartedAt time.Time  `gorm:"not null" json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Status    string     `gorm:"size:20;not null;default:completed" json:"status"`
	WinnerID  *string    `gorm:"type:uuid" json:"winner_id,omitempty"`

	Participants []MatchParticipant `gorm:"foreignKey:MatchID;constraint:OnDelete:CASCADE" json:"participants,omitempty"`
}

// MatchParticipant is one player's line in a match. (MatchID, UserID) is unique.
type MatchParticipant struct {
	ID        uint   `gorm:"primaryKey" json:"-"`
	MatchID   string `gorm:"type:uuid;not null;uniqueIndex:idx_match_participant" json:"match_id"`
	UserID    string `gorm:"type:uuid;not null;uniqueIndex:idx_match_participant;index" json:"user_id"`
	EloBefore int    `gorm:"not null" json:"elo_before"`
	EloAfter  int    `gorm:"not null" json:"elo_after"`
	XPGained  int    `gorm:"not null;default:0" json:"xp_gained"`
	IsWinner  bool   `gorm:"not null;default:false" json:"is_winner"`
}
