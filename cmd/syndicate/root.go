// ABOUTME: Root Cobra command and global flags
// ABOUTME: Loads configuration, initializes logging, and opens the store and feed registry

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harper/syndicate/internal/config"
	"github.com/harper/syndicate/internal/fetch"
	"github.com/harper/syndicate/internal/groups"
	"github.com/harper/syndicate/internal/lease"
	"github.com/harper/syndicate/internal/logger"
	"github.com/harper/syndicate/internal/registry"
	"github.com/harper/syndicate/internal/storage"
	"github.com/harper/syndicate/internal/syndicate"
)

var (
	configPath string
	dataDir    string
	feedsPath  string
	logLevel   string

	cfg   *config.Config
	store storage.Store
	reg   *registry.Registry
	log   zerolog.Logger

	timeNow = time.Now
)

var rootCmd = &cobra.Command{
	Use:   "syndicate",
	Short: "Mirror partner RSS/Atom feeds into local records",
	Long: `
███████╗██╗   ██╗███╗   ██╗██████╗ ██╗ ██████╗ █████╗ ████████╗███████╗
██╔════╝╚██╗ ██╔╝████╗  ██║██╔══██╗██║██╔════╝██╔══██╗╚══██╔══╝██╔════╝
███████╗ ╚████╔╝ ██╔██╗ ██║██║  ██║██║██║     ███████║   ██║   █████╗
╚════██║  ╚██╔╝  ██║╚██╗██║██║  ██║██║██║     ██╔══██║   ██║   ██╔══╝
███████║   ██║   ██║ ╚████║██████╔╝██║╚██████╗██║  ██║   ██║   ███████╗
╚══════╝   ╚═╝   ╚═╝  ╚═══╝╚═════╝ ╚═╝ ╚═════╝╚═╝  ╚═╝   ╚═╝   ╚══════╝

Poll registered partner feeds and keep a local mirror in step with them:
new items are created, edited items updated, vanished items expired, and
returning items republished. Expired items are swept after the retention window.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		if feedsPath != "" {
			cfg.FeedsFile = feedsPath
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}

		logger.Init(logger.Config{Level: cfg.LogLevel, Output: cfg.LogOutput, Pretty: cfg.LogPretty})
		log = logger.Get()

		store, err = cfg.OpenStorage(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}

		reg, err = registry.Load(cfg.GetFeedsFile())
		if err != nil {
			return fmt.Errorf("failed to load feed registry: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if store != nil {
			if err := store.Close(); err != nil {
				return fmt.Errorf("failed to close storage: %w", err)
			}
			store = nil
		}
		return nil
	},
}

func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ~/.config/syndicate/config.hcl)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default: ~/.local/share/syndicate)")
	rootCmd.PersistentFlags().StringVar(&feedsPath, "feeds", "", "feed registry file, .yaml or .opml (default: <data-dir>/feeds.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error, disabled")
}

// newFetcher builds the HTTP fetcher from config.
func newFetcher() *fetch.Fetcher {
	return fetch.New(fetch.Options{
		Timeout:   cfg.HTTPTimeout,
		Retries:   cfg.HTTPRetries,
		UserAgent: config.DefaultUserAgent,
		MaxBytes:  config.MaxFeedBytes,
		Logger:    logger.Component("fetch"),
	})
}

// newLocker returns the shared Redis lease when configured, or nil for the
// in-process default. The returned close func is always safe to call.
func newLocker(ctx context.Context) (lease.Locker, func(), error) {
	if cfg.RedisURL == "" {
		return nil, func() {}, nil
	}
	locker, err := lease.NewRedisLocker(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return locker, func() { _ = locker.Close() }, nil
}

// newService wires the polling service from config.
func newService(ctx context.Context) (*syndicate.Service, func(), error) {
	retention, err := cfg.GetRetention()
	if err != nil {
		return nil, nil, err
	}
	locker, closeLocker, err := newLocker(ctx)
	if err != nil {
		return nil, nil, err
	}

	groupLog := logger.Component("groups")
	svc := syndicate.New(store, reg, newFetcher(), locker, logger.Component("syndicate"), syndicate.Options{
		FullContent:    cfg.FullContent,
		LeaseTTL:       cfg.LeaseTTL,
		MaxConcurrency: cfg.MaxConcurrency,
		Retention:      retention,
		GroupEvents: func(e groups.GroupEvent) {
			groupLog.Info().Str("event", string(e.Kind)).Str("group", e.Group.GroupKey).Str("feed_url", e.Group.FeedURL).Msg("source group changed")
		},
	})
	return svc, closeLocker, nil
}

// shortID truncates an ID for display.
func shortID(id string) string {
	if len(id) > config.DisplayIDLength {
		return id[:config.DisplayIDLength]
	}
	return id
}

// formatTime renders t for list output, or "-" when unset.
func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(config.DateFormatShort)
}
