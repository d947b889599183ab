package services

import (
	"context"
	"errors"
	"log"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"whoosh-backend/models"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,150}$`)

const (
	minPasswordLen = 8
	maxPasswordLen = 72 // bcrypt ignores anything past 72 bytes
	maxEmailLen    = 254
)

// validateCredentials checks and normalises the permanent-account fields.
func validateCredentials(username, email, password string) (string, string, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if !usernamePattern.MatchString(username) {
		return "", "", validationError("username must be 3-150 letters, digits, '_', '.' or '-'")
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || len(email) > maxEmailLen {
		return "", "", validationError("a valid email is required")
	}
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return "", "", validationError("password must be %d-%d characters", minPasswordLen, maxPasswordLen)
	}
	return username, email, nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", validationError("password cannot be used: %v", err)
	}
	return string(hash), nil
}

// checkIdentityFree fails with a conflict when another user (not selfID)
// holds username or email.
func checkIdentityFree(tx *gorm.DB, username, email, selfID string) error {
	var clash models.User
	q := tx.Select("id", "username", "email").Where("(username = ? OR email = ?)", username, email)
	if selfID != "" {
		q = q.Where("id <> ?", selfID)
	}
	err := q.Take(&clash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if clash.Username == username {
		return conflictError("username %s is already taken", username)
	}
	return conflictError("email %s is already registered", email)
}

// AccountService handles permanent accounts: registration, login, profile
// and token refresh.
type AccountService struct {
	DB     *gorm.DB
	Tokens *TokenIssuer
	clock  clockwork.Clock
}

func NewAccountService(db *gorm.DB, tokens *TokenIssuer, clock clockwork.Clock) *AccountService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AccountService{DB: db, Tokens: tokens, clock: clock}
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	User   *models.User `json:"user"`
	Tokens Tokens       `json:"tokens"`
}

func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	username, email, err := validateCredentials(req.Username, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        &email,
		PasswordHash: &hash,
		Elo:          models.DefaultElo,
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkIdentityFree(tx, username, email, ""); err != nil {
			return err
		}
		err := tx.Create(user).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return conflictError("username or email already in use")
		}
		return err
	})
	if err != nil {
		return nil, storeError(err, "register %s", username)
	}

	tokens, err := s.Tokens.IssueFor(user, 0)
	if err != nil {
		return nil, err
	}
	log.Printf("🆕 [AUTH] registered %s (%s)", user.Username, user.ID)
	return &AuthResponse{User: user, Tokens: tokens}, nil
}

func (s *AccountService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return nil, validationError("username and password are required")
	}

	var user models.User
	err := s.DB.WithContext(ctx).Where("username = ?", strings.TrimSpace(req.Username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, unauthorizedError("invalid credentials")
	}
	if err != nil {
		return nil, storeError(err, "load user %s", req.Username)
	}
	if user.IsGuest || user.PasswordHash == nil {
		return nil, unauthorizedError("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, unauthorizedError("invalid credentials")
	}

	tokens, err := s.Tokens.IssueFor(&user, 0)
	if err != nil {
		return nil, err
	}
	log.Printf("🔑 [AUTH] %s logged in", user.Username)
	return &AuthResponse{User: &user, Tokens: tokens}, nil
}

// Refresh exchanges a refresh token for a new pair. Guests keep their
// session end: the new tokens expire when the guest account does.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	claims, err := s.Tokens.Parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	user, err := s.loadUser(ctx, claims.UserID)
	if IsNotFound(err) {
		return nil, unauthorizedError("account no longer exists")
	}
	if err != nil {
		return nil, err
	}

	var ttl time.Duration
	if user.IsGuest {
		now := s.clock.Now()
		if user.GuestExpired(now) {
			return nil, unauthorizedError("guest session expired")
		}
		ttl = user.SessionExpiresAt.Sub(now)
	}

	tokens, err := s.Tokens.IssueFor(user, ttl)
	if err != nil {
		return nil, err
	}
	return &tokens, nil
}

func (s *AccountService) loadUser(ctx context.Context, userID string) (*models.User, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, notFoundError("user %s not found", userID)
	}
	var user models.User
	err := s.DB.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError("user %s not found", userID)
	}
	if err != nil {
		return nil, storeError(err, "load user %s", userID)
	}
	return &user, nil
}

// Profile is a user plus the progression derived from their XP.
type Profile struct {
	*models.User
	Level          int    `json:"level"`
	XPIntoLevel    int    `json:"xp_into_level"`
	XPForNextLevel int    `json:"xp_for_next_level"`
	Rank           int    `json:"rank"`
	RankName       string `json:"rank_name"`
}

func (s *AccountService) Profile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return newProfile(user), nil
}

type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name"`
}

// UpdateProfile changes the display name. Blank clears it.
func (s *AccountService) UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest) (*Profile, error) {
	if req.DisplayName == nil {
		return nil, validationError("display_name is required")
	}
	displayName, err := normalizeDisplayName(req.DisplayName)
	if err != nil {
		return nil, err
	}

	res := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("display_name", displayName)
	if res.Error != nil {
		return nil, storeError(res.Error, "update profile %s", userID)
	}
	if res.RowsAffected == 0 {
		return nil, notFoundError("user %s not found", userID)
	}
	return s.Profile(ctx, userID)
}

// Progression curve: reaching level n+1 from n costs floor(100 * n^1.2) XP.
const baseXPPerLevel = 100

func xpForNextLevel(level int) int {
	if level < 1 {
		level = 1
	}
	return int(float64(baseXPPerLevel) * math.Pow(float64(level), 1.2))
}

// LevelForXP returns the level reached with xp in total, the XP already
// earned inside that level, and the XP that level needs in full.
func LevelForXP(xp int) (level, into, next int) {
	level, into = 1, xp
	if into < 0 {
		into = 0
	}
	for into >= xpForNextLevel(level) {
		into -= xpForNextLevel(level)
		level++
	}
	return level, into, xpForNextLevel(level)
}

// minimum level per rank, rank 1 first
var rankThresholds = []int{1, 10, 25, 50, 100, 200}

func RankForLevel(level int) int {
	rank := 1
	for i, min := range rankThresholds {
		if level >= min {
			rank = i + 1
		}
	}
	return rank
}

func RankName(rank int) string {
	switch rank {
	case 1:
		return "Rookie"
	case 2:
		return "Bronze"
	case 3:
		return "Silver"
	case 4:
		return "Gold"
	case 5:
		return "Platinum"
	case 6:
		return "Diamond"
	default:
		if rank > 6 {
			return "Legend"
		}
		return "Rookie"
	}
}

func newProfile(u *models.User) *Profile {
	level, into, next := LevelForXP(u.XP)
	rank := RankForLevel(level)
	return &Profile{
		User:           u,
		Level:          level,
		XPIntoLevel:    into,
		XPForNextLevel: next,
		Rank:           rank,
		RankName:       RankName(rank),
	}
}
