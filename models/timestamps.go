package models

import "time"

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// All returns every model the durable store migrates, in dependency order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Match{},
		&MatchParticipant{},
	}
}
