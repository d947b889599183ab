package services

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whoosh-backend/models"
)

func newTestAccounts(t *testing.T) (*AccountService, *GuestService, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testEpoch)
	db := newTestDB(t)
	tokens := newTestTokens(clock)
	return NewAccountService(db, tokens, clock), NewGuestService(db, tokens, clock, 0), clock
}

func TestRegisterAndLogin(t *testing.T) {
	accounts, _, _ := newTestAccounts(t)
	ctx := context.Background()

	reg, err := accounts.Register(ctx, RegisterRequest{Username: "ada", Email: "ada@example.com", Password: "analytical"})
	require.NoError(t, err)
	assert.Equal(t, "ada", reg.User.Username)
	assert.Equal(t, models.DefaultElo, reg.User.Elo)
	assert.False(t, reg.User.IsGuest)

	login, err := accounts.Login(ctx, LoginRequest{Username: "ada", Password: "analytical"})
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, login.User.ID)

	claims, err := accounts.Tokens.Parse(login.Tokens.Access, TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.UserID)

	_, err = accounts.Login(ctx, LoginRequest{Username: "ada", Password: "wrong-password"})
	assert.True(t, IsUnauthorized(err))

	_, err = accounts.Login(ctx, LoginRequest{Username: "nobody", Password: "analytical"})
	assert.True(t, IsUnauthorized(err))
}

func TestRegister_Conflicts(t *testing.T) {
	accounts, _, _ := newTestAccounts(t)
	ctx := context.Background()

	_, err := accounts.Register(ctx, RegisterRequest{Username: "ada", Email: "ada@example.com", Password: "analytical"})
	require.NoError(t, err)

	_, err = accounts.Register(ctx, RegisterRequest{Username: "ada", Email: "other@example.com", Password: "analytical"})
	assert.True(t, IsConflict(err))

	_, err = accounts.Register(ctx, RegisterRequest{Username: "other", Email: "ADA@example.com", Password: "analytical"})
	assert.True(t, IsConflict(err), "emails compare case-insensitively")
}

func TestLogin_GuestsCannotUsePasswords(t *testing.T) {
	accounts, guests, _ := newTestAccounts(t)
	g, err := guests.CreateGuest(context.Background(), CreateGuestRequest{})
	require.NoError(t, err)

	_, err = accounts.Login(context.Background(), LoginRequest{Username: g.Username, Password: "anything1"})
	assert.True(t, IsUnauthorized(err))
}

func TestRefresh(t *testing.T) {
	accounts, _, clock := newTestAccounts(t)
	ctx := context.Background()
	reg, err := accounts.Register(ctx, RegisterRequest{Username: "ada", Email: "ada@example.com", Password: "analytical"})
	require.NoError(t, err)

	_, err = accounts.Refresh(ctx, reg.Tokens.Access)
	assert.True(t, IsUnauthorized(err), "access tokens cannot refresh")

	clock.Advance(2 * time.Hour)
	tokens, err := accounts.Refresh(ctx, reg.Tokens.Refresh)
	require.NoError(t, err)
	assert.True(t, tokens.AccessExpiresAt.Equal(clock.Now().Add(time.Hour)))
}

func TestRefresh_GuestKeepsSessionEnd(t *testing.T) {
	accounts, guests, clock := newTestAccounts(t)
	ctx := context.Background()
	g, err := guests.CreateGuest(ctx, CreateGuestRequest{})
	require.NoError(t, err)

	clock.Advance(20 * time.Hour)
	tokens, err := accounts.Refresh(ctx, g.Tokens.Refresh)
	require.NoError(t, err)
	assert.True(t, tokens.AccessExpiresAt.Equal(g.SessionExpiresAt))

	// The new refresh token is still valid, but once the guest is reaped
	// it cannot be exchanged again.
	res, err := guests.ReapExpiredGuests(ctx, g.SessionExpiresAt.Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, int64(1), res.DeletedCount)
	_, err = accounts.Refresh(ctx, tokens.Refresh)
	assert.True(t, IsUnauthorized(err))
}

func TestProfile(t *testing.T) {
	accounts, _, _ := newTestAccounts(t)
	ctx := context.Background()
	reg, err := accounts.Register(ctx, RegisterRequest{Username: "ada", Email: "ada@example.com", Password: "analytical"})
	require.NoError(t, err)
	require.NoError(t, accounts.DB.Model(&models.User{}).Where("id = ?", reg.User.ID).Update("xp", 250).Error)

	p, err := accounts.Profile(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 250, p.XP)
	// 100 XP for level 2, then 229 more for level 3.
	assert.Equal(t, 2, p.Level)
	assert.Equal(t, 150, p.XPIntoLevel)
	assert.Equal(t, 229, p.XPForNextLevel)
	assert.Equal(t, "Rookie", p.RankName)

	p, err = accounts.UpdateProfile(ctx, reg.User.ID, UpdateProfileRequest{DisplayName: ptr(" Countess ")})
	require.NoError(t, err)
	require.NotNil(t, p.DisplayName)
	assert.Equal(t, "Countess", *p.DisplayName)

	p, err = accounts.UpdateProfile(ctx, reg.User.ID, UpdateProfileRequest{DisplayName: ptr("")})
	require.NoError(t, err)
	assert.Nil(t, p.DisplayName)

	_, err = accounts.Profile(ctx, "8c1f8b1e-2b8a-4f43-9d55-3c7b0b3e9f00")
	assert.True(t, IsNotFound(err))
}

func TestLevelAndRank(t *testing.T) {
	tests := []struct {
		xp       int
		level    int
		rank     int
		rankName string
	}{
		{0, 1, 1, "Rookie"},
		{99, 1, 1, "Rookie"},
		{100, 2, 1, "Rookie"},
		{329, 3, 1, "Rookie"},
	}
	for _, tt := range tests {
		level, _, _ := LevelForXP(tt.xp)
		assert.Equal(t, tt.level, level, "xp %d", tt.xp)
		assert.Equal(t, tt.rank, RankForLevel(level))
		assert.Equal(t, tt.rankName, RankName(RankForLevel(level)))
	}

	assert.Equal(t, 2, RankForLevel(10))
	assert.Equal(t, 6, RankForLevel(250))
	assert.Equal(t, "Diamond", RankName(6))
	assert.Equal(t, "Legend", RankName(7))
}
