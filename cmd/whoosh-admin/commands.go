package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"whoosh-backend/queue"
	"whoosh-backend/services"
	"whoosh-backend/storage"
)

// env is how commands reach the stores.
type env struct {
	clock       clockwork.Clock
	openDB      func() (*gorm.DB, error)
	openStore   func() (queue.Store, func(), error)
	matchmaking func() services.MatchmakingOptions
}

func newRootCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "whoosh-admin",
		Short:         "Maintenance tasks for the whoosh game backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newMigrateCommand(e))
	cmd.AddCommand(newReapGuestsCommand(e))
	cmd.AddCommand(newDrainCommand(e))
	cmd.AddCommand(newQueueLenCommand(e))
	return cmd
}

func newMigrateCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := e.openDB()
			if err != nil {
				return err
			}
			if err := storage.Migrate(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newReapGuestsCommand(e *env) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "reap-guests",
		Short: "Delete guest accounts whose session has expired",
		Long: `Delete every guest account whose session ended before --now
(default: the current time), together with its match participation rows.
Prints {"deleted_count": N, "timestamp": ...}. Safe to run repeatedly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := e.clock.Now()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --now %q: %w", at, err)
				}
				now = parsed
			}

			db, err := e.openDB()
			if err != nil {
				return err
			}
			guests := services.NewGuestService(db, nil, e.clock, 0)
			res, err := guests.ReapExpiredGuests(cmd.Context(), now)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
		},
	}
	cmd.Flags().StringVar(&at, "now", "", "reap relative to this RFC3339 time instead of the current time")
	return cmd
}

func newDrainCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "drain [queue...]",
		Short: "Form games from queued players",
		Long:  "Drain the named queues, or every known queue when none is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := e.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			engine := services.NewMatchmakingService(store, e.clock, e.matchmaking())
			if len(args) == 0 {
				formed, err := engine.DrainAll(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "formed %d games\n", formed)
				return err
			}

			for _, name := range args {
				queueName, err := services.NormalizeQueueName(name)
				if err != nil {
					return err
				}
				games, err := engine.DrainQueue(cmd.Context(), queueName)
				fmt.Fprintf(cmd.OutOrStdout(), "%s: formed %d games\n", queueName, len(games))
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newQueueLenCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "queue-len <queue>",
		Short: "Print how many players are waiting in a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queueName, err := services.NormalizeQueueName(args[0])
			if err != nil {
				return err
			}
			store, closeStore, err := e.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			n, err := store.Len(cmd.Context(), queueName)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}
