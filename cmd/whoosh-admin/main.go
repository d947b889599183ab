// Command whoosh-admin runs maintenance tasks against the backend's stores:
// migrations, guest reaping and queue drains. Cron deployments call it in
// place of (or alongside) the server's own scheduler.
package main

import (
	"fmt"
	"os"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"whoosh-backend/config"
	"whoosh-backend/queue"
	"whoosh-backend/services"
	"whoosh-backend/storage"
)

func main() {
	cmd := newRootCommand(envFromConfig())
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// envFromConfig opens the stores lazily, so --help works without any
// configuration.
func envFromConfig() *env {
	var cfg *config.Config
	load := func() (*config.Config, error) {
		if cfg != nil {
			return cfg, nil
		}
		c, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg = c
		return cfg, nil
	}

	return &env{
		openDB: func() (*gorm.DB, error) {
			c, err := load()
			if err != nil {
				return nil, err
			}
			return storage.OpenDatabase(storage.DatabaseOptions{Driver: c.DatabaseDriver, DSN: c.DatabaseURL, Silent: true})
		},
		openStore: func() (queue.Store, func(), error) {
			c, err := load()
			if err != nil {
				return nil, nil, err
			}
			if c.RedisAddr == "" {
				return nil, nil, fmt.Errorf("REDIS_ADDR is not set; queue commands need the shared redis store")
			}
			rdb := queue.NewRedisClient(queue.RedisOptions{
				Addr:     c.RedisAddr,
				Password: c.RedisPassword,
				DB:       c.RedisDB,
				TLS:      c.RedisTLS,
			})
			return queue.NewRedisStore(rdb, nil), func() { _ = rdb.Close() }, nil
		},
		matchmaking: func() services.MatchmakingOptions {
			c, err := load()
			if err != nil {
				return services.MatchmakingOptions{}
			}
			return services.MatchmakingOptions{GroupSize: c.GroupSize, GameTTL: c.GameTTL, DuplicatePolicy: c.DuplicatePolicy}
		},
		clock: clockwork.NewRealClock(),
	}
}
