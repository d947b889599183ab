package queue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"whoosh-backend/models"
)

// RedisOptions configures NewRedisClient.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

// NewRedisClient builds a go-redis client with the timeouts and retry
// policy the matchmaking store expects. Managed Redis with transit
// encryption needs TLS even inside the VPC.
func NewRedisClient(opts RedisOptions) *redis.Client {
	o := &redis.Options{
		Addr:            opts.Addr,
		Password:        opts.Password,
		DB:              opts.DB,
		DialTimeout:     10 * time.Second,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		MaxRetries:      3,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 3 * time.Second,
	}
	if opts.TLS {
		o.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(o)
}

// KEYS: queue, members, enqueued, queues. ARGV: userID, enqueuedAt ms, queue name.
var pushScript = redis.NewScript(`
if redis.call('SADD', KEYS[2], ARGV[1]) == 0 then
  return 0
end
redis.call('LPUSH', KEYS[1], ARGV[1])
redis.call('HSET', KEYS[3], ARGV[1], ARGV[2])
redis.call('SADD', KEYS[4], ARGV[3])
return 1
`)

// KEYS: queue, members, enqueued. ARGV: n. Returns flat {id, ms, id, ms, ...}.
var popScript = redis.NewScript(`
local out = {}
for i = 1, tonumber(ARGV[1]) do
  local id = redis.call('RPOP', KEYS[1])
  if not id then
    break
  end
  local ms = redis.call('HGET', KEYS[3], id)
  redis.call('HDEL', KEYS[3], id)
  redis.call('SREM', KEYS[2], id)
  table.insert(out, id)
  table.insert(out, ms or '0')
end
return out
`)

// KEYS: queue, members, enqueued. ARGV: {id, ms, ...} oldest first.
// Pushed back newest-first so the oldest ends up at the pop end.
var requeueScript = redis.NewScript(`
local n = 0
for i = #ARGV - 1, 1, -2 do
  local id = ARGV[i]
  if redis.call('SADD', KEYS[2], id) == 1 then
    redis.call('RPUSH', KEYS[1], id)
    redis.call('HSET', KEYS[3], id, ARGV[i + 1])
    n = n + 1
  end
end
return n
`)

// KEYS: queue, members, enqueued. ARGV: userID.
var removeScript = redis.NewScript(`
if redis.call('SREM', KEYS[2], ARGV[1]) == 0 then
  return 0
end
redis.call('LREM', KEYS[1], 0, ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
return 1
`)

// KEYS: game. ARGV: to, ttl seconds, expires_at ms, from...
// Returns -1 missing, 0 conflict, 1 updated.
var setStatusScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
  return -1
end
local ok = false
for i = 4, #ARGV do
  if ARGV[i] == cur then
    ok = true
  end
end
if not ok then
  return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[1], 'expires_at', ARGV[3])
local ttl = tonumber(ARGV[2])
if ttl > 0 then
  redis.call('EXPIRE', KEYS[1], ttl)
else
  redis.call('PERSIST', KEYS[1])
end
return 1
`)

// RedisStore is the production Store. Queue mutations run as Lua scripts
// so each one is a single atomic step on the server.
type RedisStore struct {
	rdb   *redis.Client
	clock clockwork.Clock
}

// NewRedisStore wraps rdb. A nil clock means the real clock; it only sets
// the expires_at reported on games, key expiry itself is Redis's.
func NewRedisStore(rdb *redis.Client, clock clockwork.Clock) *RedisStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RedisStore{rdb: rdb, clock: clock}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Push(ctx context.Context, entry models.QueueEntry) (bool, error) {
	keys := []string{queueKey(entry.QueueName), membersKey(entry.QueueName), enqueuedKey(entry.QueueName), queuesKey}
	n, err := pushScript.Run(ctx, s.rdb, keys, entry.UserID, entry.EnqueuedAt.UnixMilli(), entry.QueueName).Int()
	if err != nil {
		return false, fmt.Errorf("queue: push %s onto %s: %w", entry.UserID, entry.QueueName, err)
	}
	return n == 1, nil
}

func (s *RedisStore) PopN(ctx context.Context, queueName string, n int) ([]models.QueueEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	keys := []string{queueKey(queueName), membersKey(queueName), enqueuedKey(queueName)}
	flat, err := popScript.Run(ctx, s.rdb, keys, n).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("queue: pop %d from %s: %w", n, queueName, err)
	}
	entries := make([]models.QueueEntry, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		ms, _ := strconv.ParseInt(flat[i+1], 10, 64)
		entries = append(entries, models.QueueEntry{
			UserID:     flat[i],
			QueueName:  queueName,
			EnqueuedAt: time.UnixMilli(ms).UTC(),
		})
	}
	return entries, nil
}

func (s *RedisStore) Requeue(ctx context.Context, queueName string, entries []models.QueueEntry) error {
	if len(entries) == 0 {
		return nil
	}
	keys := []string{queueKey(queueName), membersKey(queueName), enqueuedKey(queueName)}
	args := make([]interface{}, 0, 2*len(entries))
	for _, e := range entries {
		args = append(args, e.UserID, e.EnqueuedAt.UnixMilli())
	}
	if err := requeueScript.Run(ctx, s.rdb, keys, args...).Err(); err != nil {
		return fmt.Errorf("queue: requeue %d entries onto %s: %w", len(entries), queueName, err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, queueName, userID string) (bool, error) {
	keys := []string{queueKey(queueName), membersKey(queueName), enqueuedKey(queueName)}
	n, err := removeScript.Run(ctx, s.rdb, keys, userID).Int()
	if err != nil {
		return false, fmt.Errorf("queue: remove %s from %s: %w", userID, queueName, err)
	}
	return n == 1, nil
}

func (s *RedisStore) Len(ctx context.Context, queueName string) (int64, error) {
	n, err := s.rdb.LLen(ctx, queueKey(queueName)).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: length of %s: %w", queueName, err)
	}
	return n, nil
}

func (s *RedisStore) Queues(ctx context.Context) ([]string, error) {
	names, err := s.rdb.SMembers(ctx, queuesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: list queues: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// SaveGame writes the game hash, its expiry and the per-player index in one
// MULTI, then announces the game on the formed-games channel.
func (s *RedisStore) SaveGame(ctx context.Context, game models.FormedGame, ttl time.Duration) error {
	players, err := json.Marshal(game.Players)
	if err != nil {
		return fmt.Errorf("queue: encode players of game %s: %w", game.ID, err)
	}
	announcement, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("queue: encode game %s: %w", game.ID, err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		key := gameKey(game.ID)
		pipe.HSet(ctx, key, map[string]interface{}{
			"id":         game.ID,
			"queue":      game.QueueName,
			"status":     string(game.Status),
			"players":    string(players),
			"created_at": game.CreatedAt.UnixMilli(),
			"expires_at": game.ExpiresAt.UnixMilli(),
		})
		pipe.Expire(ctx, key, ttl)
		for _, p := range game.Players {
			pipe.Set(ctx, playerKey(p), game.ID, ttl)
		}
		pipe.Publish(ctx, gamesChannel, announcement)
		return nil
	})
	if err != nil {
		return fmt.Errorf("queue: save game %s: %w", game.ID, err)
	}
	return nil
}

func (s *RedisStore) GetGame(ctx context.Context, gameID string) (models.FormedGame, error) {
	fields, err := s.rdb.HGetAll(ctx, gameKey(gameID)).Result()
	if err != nil {
		return models.FormedGame{}, fmt.Errorf("queue: load game %s: %w", gameID, err)
	}
	if len(fields) == 0 {
		return models.FormedGame{}, ErrGameNotFound
	}
	return decodeGame(fields)
}

func (s *RedisStore) SetGameStatus(ctx context.Context, gameID string, from []models.GameStatus, to models.GameStatus, ttl time.Duration) (models.FormedGame, error) {
	if !to.Valid() {
		return models.FormedGame{}, fmt.Errorf("queue: set status of game %s: %w", gameID, unknownStatus(to))
	}
	var expiresAt int64
	seconds := int64(ttl / time.Second)
	if ttl > 0 {
		if seconds == 0 {
			seconds = 1
		}
		expiresAt = s.clock.Now().Add(ttl).UnixMilli()
	}
	args := []interface{}{string(to), seconds, expiresAt}
	for _, f := range from {
		args = append(args, string(f))
	}

	res, err := setStatusScript.Run(ctx, s.rdb, []string{gameKey(gameID)}, args...).Int()
	if err != nil {
		return models.FormedGame{}, fmt.Errorf("queue: set status of game %s: %w", gameID, err)
	}
	switch res {
	case -1:
		return models.FormedGame{}, ErrGameNotFound
	case 0:
		game, getErr := s.GetGame(ctx, gameID)
		if getErr != nil {
			return models.FormedGame{}, getErr
		}
		return game, ErrStatusConflict
	}
	return s.GetGame(ctx, gameID)
}

func (s *RedisStore) PlayerGame(ctx context.Context, userID string) (string, error) {
	id, err := s.rdb.Get(ctx, playerKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("queue: player game of %s: %w", userID, err)
	}
	return id, nil
}

// Subscribe returns a subscription to formed-game announcements. Each
// message payload is a JSON-encoded models.FormedGame.
func (s *RedisStore) Subscribe(ctx context.Context) *redis.PubSub {
	return s.rdb.Subscribe(ctx, gamesChannel)
}

func decodeGame(fields map[string]string) (models.FormedGame, error) {
	game := models.FormedGame{
		ID:        fields["id"],
		QueueName: fields["queue"],
		Status:    models.GameStatus(fields["status"]),
	}
	if !game.Status.Valid() {
		return models.FormedGame{}, fmt.Errorf("queue: decode game %s: %w", game.ID, unknownStatus(game.Status))
	}
	if err := json.Unmarshal([]byte(fields["players"]), &game.Players); err != nil {
		return models.FormedGame{}, fmt.Errorf("queue: decode players of game %s: %w", game.ID, err)
	}
	if ms, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		game.CreatedAt = time.UnixMilli(ms).UTC()
	}
	if ms, err := strconv.ParseInt(fields["expires_at"], 10, 64); err == nil && ms > 0 {
		game.ExpiresAt = time.UnixMilli(ms).UTC()
	} else if err != nil {
		log.Printf("⚠️ [QUEUE] game %s has unreadable expires_at %q", game.ID, fields["expires_at"])
	}
	return game, nil
}
