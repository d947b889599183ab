package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"whoosh-backend/models"
)

// Token types carried in the token_type claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims is the JWT payload shared with the game edge servers.
type Claims struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	IsGuest     bool   `json:"is_guest"`
	DisplayName string `json:"display_name,omitempty"`
	TokenType   string `json:"token_type"`
	jwt.RegisteredClaims
}

// Tokens is an access/refresh pair.
type Tokens struct {
	Access           string    `json:"access"`
	Refresh          string    `json:"refresh"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// TokenIssuer signs and verifies HS256 tokens.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      clockwork.Clock
}

func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration, clock clockwork.Clock) *TokenIssuer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		clock:      clock,
	}
}

// IssueFor signs a pair for user. A positive ttlOverride replaces both
// default lifetimes; guests get their session length this way.
func (t *TokenIssuer) IssueFor(user *models.User, ttlOverride time.Duration) (Tokens, error) {
	accessTTL, refreshTTL := t.accessTTL, t.refreshTTL
	if ttlOverride > 0 {
		accessTTL, refreshTTL = ttlOverride, ttlOverride
	}

	now := t.clock.Now()
	base := Claims{
		UserID:      user.ID,
		Username:    user.Username,
		IsGuest:     user.IsGuest,
		DisplayName: user.Name(),
	}

	access, accessExp, err := t.sign(base, TokenTypeAccess, now, accessTTL)
	if err != nil {
		return Tokens{}, err
	}
	refresh, refreshExp, err := t.sign(base, TokenTypeRefresh, now, refreshTTL)
	if err != nil {
		return Tokens{}, err
	}
	return Tokens{
		Access:           access,
		Refresh:          refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (t *TokenIssuer) sign(c Claims, tokenType string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	c.TokenType = tokenType
	c.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   c.UserID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, exp, nil
}

// Parse verifies signature, expiry and token type.
func (t *TokenIssuer) Parse(token, wantType string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, unauthorizedError("token expired")
		}
		return nil, unauthorizedError("invalid token")
	}
	if !parsed.Valid || claims.UserID == "" {
		return nil, unauthorizedError("invalid token")
	}
	if wantType != "" && claims.TokenType != wantType {
		return nil, unauthorizedError("expected %s token", wantType)
	}
	return claims, nil
}
