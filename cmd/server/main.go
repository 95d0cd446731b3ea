// Package main is the entry point for the postboard server.
//
// main stays minimal: read configuration, build the logger and external
// connections, then hand over to internal/server. Commands:
//
//	postboard serve    run the HTTP API (default)
//	postboard migrate  create or upgrade the database schema and exit
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sakif/postboard/internal/config"
	"github.com/sakif/postboard/internal/events"
	sqliteRepo "github.com/sakif/postboard/internal/repository/sqlite"
	"github.com/sakif/postboard/internal/server"
)

func main() {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "postboard",
		Short:         "Post drafting and publishing API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(envFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file read before the environment")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(envFile)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the database schema and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return migrate(envFile)
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

func serve(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)

	if err := ensureDBDir(cfg.DBPath); err != nil {
		return err
	}

	// Events are optional: without NATS_URL the post service gets a no-op
	// publisher.
	var publisher events.Publisher = events.Nop{}
	if cfg.NatsURL != "" {
		nats, err := events.Connect(cfg.NatsURL)
		if err != nil {
			return err
		}
		defer nats.Close()
		publisher = nats
		logger.Info("publishing post events", slog.String("nats", cfg.NatsURL))
	} else {
		logger.Warn("NATS_URL not set, post events are disabled")
	}

	srv, err := server.New(cfg, logger, publisher)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Start blocks until SIGINT/SIGTERM.
	return srv.Start()
}

func migrate(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	if err := ensureDBDir(cfg.DBPath); err != nil {
		return err
	}

	// Opening the database applies the schema.
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("database schema is up to date", slog.String("database", cfg.DBPath))
	return nil
}

// ensureDBDir creates the directory holding the database file, like
// `mkdir -p`.
func ensureDBDir(dbPath string) error {
	if dbPath == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating database directory %s: %w", dir, err)
	}
	return nil
}
