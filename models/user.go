package models

import (
	"time"
)

// DefaultElo is the rating every new account starts from.
const DefaultElo = 1000

// User is a player account. Guests have IsGuest=true, a SessionExpiresAt and
// no PasswordHash; converting a guest clears the first two and sets the last.
type User struct {
	ID               string     `gorm:"primaryKey;type:uuid" json:"id"`
	Username         string     `gorm:"uniqueIndex;not null;size:150" json:"username"`
	Email            *string    `gorm:"uniqueIndex;size:254" json:"email,omitempty"`
	PasswordHash     *string    `gorm:"size:100" json:"-"`
	DisplayName      *string    `gorm:"size:50" json:"display_name,omitempty"`
	IsGuest          bool       `gorm:"not null;default:false;index:idx_users_guest_expiry,priority:1" json:"is_guest"`
	SessionExpiresAt *time.Time `gorm:"index:idx_users_guest_expiry,priority:2" json:"session_expires_at,omitempty"`

	Elo        int `gorm:"not null;default:1000" json:"elo"`
	XP         int `gorm:"not null;default:0" json:"xp"`
	TotalGames int `gorm:"not null;default:0" json:"total_games"`
	Wins       int `gorm:"not null;default:0" json:"wins"`

	// Owned rows; the constraint lets the database cascade guest reaping.
	Participations []MatchParticipant `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`

	Timestamps
}

// Name is what other players see: the display name when set, else the username.
func (u *User) Name() string {
	if u.DisplayName != nil && *u.DisplayName != "" {
		return *u.DisplayName
	}
	return u.Username
}

// GuestExpired reports whether a guest's session is over at now. A guest
// without an expiry counts as expired. Permanent users never expire.
func (u *User) GuestExpired(now time.Time) bool {
	return u.IsGuest && (u.SessionExpiresAt == nil || !u.SessionExpiresAt.After(now))
}
