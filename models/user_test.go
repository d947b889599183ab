package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUser_Name(t *testing.T) {
	display := "Speedy"
	blank := ""

	assert.Equal(t, "Speedy", (&User{Username: "Guest_1a2b3c4d", DisplayName: &display}).Name())
	assert.Equal(t, "Guest_1a2b3c4d", (&User{Username: "Guest_1a2b3c4d", DisplayName: &blank}).Name())
	assert.Equal(t, "ada", (&User{Username: "ada"}).Name())
}

func TestUser_GuestExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := now.Add(d)
		return &ts
	}

	tests := []struct {
		name string
		user User
		want bool
	}{
		{"live guest", User{IsGuest: true, SessionExpiresAt: at(time.Hour)}, false},
		{"expired guest", User{IsGuest: true, SessionExpiresAt: at(-time.Second)}, true},
		{"ends exactly now", User{IsGuest: true, SessionExpiresAt: at(0)}, true},
		{"guest without expiry", User{IsGuest: true}, true},
		{"permanent user", User{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.GuestExpired(now))
		})
	}
}
