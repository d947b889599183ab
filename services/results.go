package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"whoosh-backend/models"
)

// Outcome of a result submission.
const (
	OutcomePersisted    = "persisted"
	OutcomeNotPersisted = "not_persisted"
	OutcomeDuplicate    = "duplicate"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// Archiver stores a copy of every persisted match outside the database.
type Archiver interface {
	Upload(ctx context.Context, key string, payload []byte) error
}

type ParticipantResult struct {
	UserID    string `json:"user_id"`
	EloBefore int    `json:"elo_before"`
	EloAfter  int    `json:"elo_after"`
	XPGained  int    `json:"xp_gained"`
	IsWinner  bool   `json:"is_winner"`
}

type SubmitResultRequest struct {
	GameID       string              `json:"game_id"`
	WinnerID     *string             `json:"winner_id"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	Participants []ParticipantResult `json:"participants"`
}

type SubmitResultResponse struct {
	Persisted bool     `json:"persisted"`
	MatchID   string   `json:"match_id"`
	Outcome   string   `json:"outcome"`
	Skipped   []string `json:"skipped,omitempty"`
}

// ResultService records finished games reported by the game servers.
type ResultService struct {
	DB       *gorm.DB
	Games    *MatchmakingService // optional; formed games are marked completed
	Archiver Archiver            // optional
	clock    clockwork.Clock
}

func NewResultService(db *gorm.DB, games *MatchmakingService, archiver Archiver, clock clockwork.Clock) *ResultService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ResultService{DB: db, Games: games, Archiver: archiver, clock: clock}
}

var errMatchExists = errors.New("match already recorded")

func validateSubmission(req *SubmitResultRequest) error {
	if _, err := uuid.Parse(req.GameID); err != nil {
		return validationError("game_id must be a UUID")
	}
	if req.WinnerID != nil && *req.WinnerID != "" {
		if _, err := uuid.Parse(*req.WinnerID); err != nil {
			return validationError("winner_id must be a UUID")
		}
	}
	if len(req.Participants) == 0 {
		return validationError("at least one participant is required")
	}
	seen := make(map[string]bool, len(req.Participants))
	for i, p := range req.Participants {
		if p.UserID == "" {
			return validationError("participants[%d].user_id is required", i)
		}
		if seen[p.UserID] {
			return validationError("participant %s listed twice", p.UserID)
		}
		if p.XPGained < 0 {
			return validationError("participants[%d].xp_gained must not be negative", i)
		}
		seen[p.UserID] = true
	}
	return nil
}

// SubmitResult records one finished game. The match, every participant
// row and every non-guest stat update commit together or not at all.
// A game made only of guests is acknowledged but never stored, and a
// game that is already stored is acknowledged as a duplicate.
func (s *ResultService) SubmitResult(ctx context.Context, req SubmitResultRequest) (*SubmitResultResponse, error) {
	if err := validateSubmission(&req); err != nil {
		return nil, err
	}
	winnerID := req.WinnerID
	if winnerID != nil && *winnerID == "" {
		winnerID = nil
	}

	now := s.clock.Now().UTC()
	startedAt := s.startedAt(ctx, req, now)
	resp := &SubmitResultResponse{MatchID: req.GameID}

	var match models.Match
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Match{}).Where("id = ?", req.GameID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return errMatchExists
		}

		resolved, skipped, err := resolveParticipants(tx, req.Participants)
		if err != nil {
			return err
		}
		resp.Skipped = skipped

		anyPermanent := false
		for _, r := range resolved {
			if !r.user.IsGuest {
				anyPermanent = true
				break
			}
		}
		if !anyPermanent {
			resp.Outcome = OutcomeNotPersisted
			return nil
		}

		match = models.Match{
			ID:        req.GameID,
			StartedAt: startedAt,
			EndedAt:   &now,
			Status:    models.MatchStatusCompleted,
			WinnerID:  winnerID,
		}
		if err := tx.Create(&match).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errMatchExists
			}
			return err
		}

		rows := make([]models.MatchParticipant, len(resolved))
		for i, r := range resolved {
			rows[i] = models.MatchParticipant{
				MatchID:   match.ID,
				UserID:    r.result.UserID,
				EloBefore: r.result.EloBefore,
				EloAfter:  r.result.EloAfter,
				XPGained:  r.result.XPGained,
				IsWinner:  r.won(winnerID),
			}
		}
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}
		match.Participants = rows

		// Fixed lock order so two submissions sharing players cannot deadlock.
		sort.Slice(resolved, func(i, j int) bool { return resolved[i].user.ID < resolved[j].user.ID })
		for _, r := range resolved {
			if r.user.IsGuest {
				continue
			}
			if err := applyStats(tx, r, winnerID); err != nil {
				return err
			}
		}
		resp.Outcome = OutcomePersisted
		resp.Persisted = true
		return nil
	})

	if errors.Is(err, errMatchExists) {
		log.Printf("♻️ [RESULTS] game %s already recorded, acknowledging duplicate", req.GameID)
		return &SubmitResultResponse{Persisted: true, MatchID: req.GameID, Outcome: OutcomeDuplicate}, nil
	}
	if err != nil {
		return nil, storeError(err, "record result for game %s", req.GameID)
	}

	for _, id := range resp.Skipped {
		log.Printf("⚠️ [RESULTS] game %s: participant %s not found, skipped", req.GameID, id)
	}
	if resp.Persisted {
		log.Printf("🏁 [RESULTS] game %s persisted with %d participants", req.GameID, len(match.Participants))
	} else {
		log.Printf("👻 [RESULTS] game %s had no permanent players, not persisted", req.GameID)
	}

	s.afterCommit(ctx, req.GameID, &match, resp.Persisted)
	return resp, nil
}

type resolvedParticipant struct {
	result ParticipantResult
	user   models.User
}

func (r resolvedParticipant) won(winnerID *string) bool {
	return r.result.IsWinner || (winnerID != nil && *winnerID == r.user.ID)
}

// resolveParticipants loads the users behind a submission, keeping request
// order. Unknown or malformed ids are returned as skipped.
func resolveParticipants(tx *gorm.DB, results []ParticipantResult) ([]resolvedParticipant, []string, error) {
	var ids, skipped []string
	for _, p := range results {
		if _, err := uuid.Parse(p.UserID); err != nil {
			skipped = append(skipped, p.UserID)
			continue
		}
		ids = append(ids, p.UserID)
	}
	if len(ids) == 0 {
		return nil, skipped, nil
	}

	var users []models.User
	if err := tx.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, nil, err
	}
	byID := make(map[string]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	resolved := make([]resolvedParticipant, 0, len(users))
	for _, p := range results {
		u, ok := byID[p.UserID]
		if !ok {
			if _, err := uuid.Parse(p.UserID); err == nil {
				skipped = append(skipped, p.UserID)
			}
			continue
		}
		resolved = append(resolved, resolvedParticipant{result: p, user: u})
	}
	return resolved, skipped, nil
}

// applyStats moves a permanent player's counters relative to their current
// values, so concurrent submissions for the same user compose.
func applyStats(tx *gorm.DB, r resolvedParticipant, winnerID *string) error {
	wins := 0
	if r.won(winnerID) {
		wins = 1
	}
	res := tx.Model(&models.User{}).
		Where("id = ?", r.user.ID).
		Updates(map[string]interface{}{
			"elo":         gorm.Expr("elo + ?", r.result.EloAfter-r.result.EloBefore),
			"xp":          gorm.Expr("xp + ?", r.result.XPGained),
			"total_games": gorm.Expr("total_games + ?", 1),
			"wins":        gorm.Expr("wins + ?", wins),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("stats update for %s touched %d rows", r.user.ID, res.RowsAffected)
	}
	return nil
}

// startedAt prefers the reported start, then the formed game's creation time.
func (s *ResultService) startedAt(ctx context.Context, req SubmitResultRequest, now time.Time) time.Time {
	if req.StartedAt != nil && !req.StartedAt.IsZero() {
		return req.StartedAt.UTC()
	}
	if s.Games != nil {
		if g, err := s.Games.GetGame(ctx, req.GameID); err == nil && !g.CreatedAt.IsZero() {
			return g.CreatedAt.UTC()
		}
	}
	return now
}

// afterCommit runs the best-effort follow-ups. Failures are logged; the
// database already holds the result.
func (s *ResultService) afterCommit(ctx context.Context, gameID string, match *models.Match, persisted bool) {
	if s.Games != nil {
		if _, err := s.Games.CompleteGame(ctx, gameID); err != nil && !IsNotFound(err) {
			log.Printf("⚠️ [RESULTS] could not mark game %s completed: %v", gameID, err)
		}
	}
	if !persisted || s.Archiver == nil {
		return
	}
	payload, err := json.Marshal(match)
	if err != nil {
		log.Printf("❌ [ARCHIVE] encode match %s: %v", match.ID, err)
		return
	}
	if err := s.Archiver.Upload(ctx, ArchiveKey(match), payload); err != nil {
		log.Printf("❌ [ARCHIVE] upload match %s: %v", match.ID, err)
	}
}

// ArchiveKey is the object key a match is archived under.
func ArchiveKey(m *models.Match) string {
	return fmt.Sprintf("matches/%s/%s.json", m.StartedAt.UTC().Format("2006/01/02"), m.ID)
}

// MatchHistoryEntry is one match from a player's point of view.
type MatchHistoryEntry struct {
	MatchID   string     `json:"match_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
	WinnerID  *string    `json:"winner_id"`
	EloBefore int        `json:"elo_before"`
	EloAfter  int        `json:"elo_after"`
	XPGained  int        `json:"xp_gained"`
	IsWinner  bool       `json:"is_winner"`
}

// MatchHistory lists the user's most recent matches, newest first.
func (s *ResultService) MatchHistory(ctx context.Context, userID string, limit int) ([]MatchHistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if _, err := uuid.Parse(userID); err != nil {
		return nil, validationError("user id must be a UUID")
	}

	entries := make([]MatchHistoryEntry, 0)
	err := s.DB.WithContext(ctx).
		Table("match_participants AS mp").
		Select("m.id AS match_id, m.started_at, m.ended_at, m.winner_id, mp.elo_before, mp.elo_after, mp.xp_gained, mp.is_winner").
		Joins("JOIN matches m ON m.id = mp.match_id").
		Where("mp.user_id = ?", userID).
		Order("m.started_at DESC").
		Limit(limit).
		Scan(&entries).Error
	if err != nil {
		return nil, storeError(err, "load match history for %s", userID)
	}
	return entries, nil
}
