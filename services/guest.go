package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"whoosh-backend/models"
)

const (
	// DefaultGuestSessionTTL is how long a guest account lives.
	DefaultGuestSessionTTL = 24 * time.Hour

	guestUsernamePrefix = "Guest_"
	maxDisplayNameRunes = 50
	// Consecutive username collisions tolerated before giving up. At 16^8
	// possible suffixes, hitting this means the generator is broken.
	maxGuestUsernameAttempts = 64
)

// GuestService creates, converts and reaps guest accounts.
type GuestService struct {
	DB         *gorm.DB
	Tokens     *TokenIssuer
	clock      clockwork.Clock
	sessionTTL time.Duration

	// newSuffix yields the 8 hex chars after "Guest_".
	newSuffix func() string
}

func NewGuestService(db *gorm.DB, tokens *TokenIssuer, clock clockwork.Clock, sessionTTL time.Duration) *GuestService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if sessionTTL <= 0 {
		sessionTTL = DefaultGuestSessionTTL
	}
	return &GuestService{
		DB:         db,
		Tokens:     tokens,
		clock:      clock,
		sessionTTL: sessionTTL,
		newSuffix:  randomGuestSuffix,
	}
}

// randomGuestSuffix takes the first group of a v4 UUID: 8 lowercase hex
// chars drawn from crypto/rand.
func randomGuestSuffix() string {
	return uuid.NewString()[:8]
}

type CreateGuestRequest struct {
	DisplayName *string `json:"display_name"`
}

type GuestResponse struct {
	UserID           string    `json:"user_id"`
	Username         string    `json:"username"`
	DisplayName      *string   `json:"display_name"`
	SessionExpiresAt time.Time `json:"session_expires_at"`
	Tokens           Tokens    `json:"tokens"`
}

// normalizeDisplayName trims and NFC-normalises a display name. Blank
// input means "no display name".
func normalizeDisplayName(name *string) (*string, error) {
	if name == nil {
		return nil, nil
	}
	n := norm.NFC.String(strings.TrimSpace(*name))
	if n == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(n) > maxDisplayNameRunes {
		return nil, validationError("display_name must be at most %d characters", maxDisplayNameRunes)
	}
	return &n, nil
}

// CreateGuest inserts a passwordless guest that expires after the guest
// session TTL and signs tokens that live exactly as long.
func (s *GuestService) CreateGuest(ctx context.Context, req CreateGuestRequest) (*GuestResponse, error) {
	displayName, err := normalizeDisplayName(req.DisplayName)
	if err != nil {
		return nil, err
	}

	expiresAt := s.clock.Now().UTC().Add(s.sessionTTL)
	db := s.DB.WithContext(ctx)

	var user *models.User
	for attempt := 1; attempt <= maxGuestUsernameAttempts && user == nil; attempt++ {
		username := guestUsernamePrefix + s.newSuffix()

		var taken int64
		if err := db.Model(&models.User{}).Where("username = ?", username).Count(&taken).Error; err != nil {
			return nil, storeError(err, "check guest username")
		}
		if taken > 0 {
			log.Printf("🔁 [GUEST] username %s taken, regenerating (attempt %d)", username, attempt)
			continue
		}

		candidate := &models.User{
			ID:               uuid.NewString(),
			Username:         username,
			DisplayName:      displayName,
			IsGuest:          true,
			SessionExpiresAt: &expiresAt,
			Elo:              models.DefaultElo,
		}
		err := db.Create(candidate).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the race for this name between the check and the insert.
			log.Printf("🔁 [GUEST] username %s claimed concurrently, regenerating", username)
			continue
		}
		if err != nil {
			return nil, storeError(err, "create guest")
		}
		user = candidate
	}
	if user == nil {
		return nil, conflictError("no free guest username after %d attempts", maxGuestUsernameAttempts)
	}

	tokens, err := s.Tokens.IssueFor(user, s.sessionTTL)
	if err != nil {
		return nil, err
	}
	log.Printf("👤 [GUEST] created %s (%s), expires %s", user.Username, user.ID, expiresAt.Format(time.RFC3339))

	return &GuestResponse{
		UserID:           user.ID,
		Username:         user.Username,
		DisplayName:      user.DisplayName,
		SessionExpiresAt: expiresAt,
		Tokens:           tokens,
	}, nil
}

type ConvertGuestRequest struct {
	UserID   string `json:"-"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ConvertGuestResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Tokens   Tokens `json:"tokens"`
}

// ConvertGuest turns a guest into a permanent account, keeping its id,
// display name and stats. The flip happens in one conditional UPDATE so a
// concurrent reap can never delete a half-converted account.
func (s *GuestService) ConvertGuest(ctx context.Context, req ConvertGuestRequest) (*ConvertGuestResponse, error) {
	if req.UserID == "" {
		return nil, validationError("user id is required")
	}
	username, email, err := validateCredentials(req.Username, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	var user models.User
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkIdentityFree(tx, username, email, req.UserID); err != nil {
			return err
		}

		res := tx.Model(&models.User{}).
			Where("id = ? AND is_guest = ?", req.UserID, true).
			Updates(map[string]interface{}{
				"username":           username,
				"email":              email,
				"password_hash":      hash,
				"is_guest":           false,
				"session_expires_at": nil,
			})
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return conflictError("username or email already in use")
		}
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var exists int64
			if err := tx.Model(&models.User{}).Where("id = ?", req.UserID).Count(&exists).Error; err != nil {
				return err
			}
			if exists == 0 {
				return notFoundError("user %s not found", req.UserID)
			}
			return conflictError("user %s is not a guest", req.UserID)
		}
		return tx.First(&user, "id = ?", req.UserID).Error
	})
	if err != nil {
		return nil, storeError(err, "convert guest %s", req.UserID)
	}

	tokens, err := s.Tokens.IssueFor(&user, 0)
	if err != nil {
		return nil, err
	}
	log.Printf("🎉 [GUEST] converted %s to permanent account %s", user.ID, user.Username)

	return &ConvertGuestResponse{UserID: user.ID, Username: user.Username, Tokens: tokens}, nil
}

// ReapResult reports one reaping pass.
type ReapResult struct {
	DeletedCount int64     `json:"deleted_count"`
	Timestamp    time.Time `json:"timestamp"`
}

// ReapExpiredGuests deletes every guest whose session ended before now.
// Participant rows go with them through the foreign key cascade; a guest
// converted meanwhile keeps all of its rows. Re-running it is a no-op.
func (s *GuestService) ReapExpiredGuests(ctx context.Context, now time.Time) (*ReapResult, error) {
	now = now.UTC()

	res := s.DB.WithContext(ctx).
		Where("is_guest = ? AND session_expires_at < ?", true, now).
		Delete(&models.User{})
	if res.Error != nil {
		return nil, storeError(res.Error, "reap expired guests")
	}
	deleted := res.RowsAffected
	if deleted > 0 {
		log.Printf("🧹 [GUEST] reaped %d expired guests", deleted)
	}
	return &ReapResult{DeletedCount: deleted, Timestamp: now}, nil
}

// Reap runs ReapExpiredGuests at the service clock's now.
func (s *GuestService) Reap(ctx context.Context) (*ReapResult, error) {
	return s.ReapExpiredGuests(ctx, s.clock.Now())
}
