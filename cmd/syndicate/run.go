// ABOUTME: Run command starting the polling daemon and status server
// ABOUTME: Schedules polls and sweeps, reloads the registry periodically, and stops on SIGINT/SIGTERM

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harper/syndicate/internal/logger"
	"github.com/harper/syndicate/internal/registry"
	"github.com/harper/syndicate/internal/scheduler"
	"github.com/harper/syndicate/internal/server"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the polling daemon",
	Long: `Run syndicate as a long-lived daemon.

Every registered feed is polled on the poll interval and expired items are
swept on the sweep interval. The registry file is re-read on the reload
interval: new feeds get a trigger, removed feeds stop at their next poll.
A JSON status API is served on listen_addr unless --no-http is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reload, _ := cmd.Flags().GetDuration("reload")
		noHTTP, _ := cmd.Flags().GetBool("no-http")
		addr, _ := cmd.Flags().GetString("listen")
		if addr == "" {
			addr = cfg.ListenAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		svc, closeLocker, err := newService(ctx)
		if err != nil {
			return err
		}
		defer closeLocker()

		sched := scheduler.New(svc, logger.Component("scheduler"), scheduler.Options{
			PollInterval:  cfg.PollInterval,
			SweepInterval: cfg.SweepInterval,
			RunOnStart:    true,
		})
		sched.Sync(reg.URLs())

		errCh := make(chan error, 2)
		go func() { errCh <- sched.Run(ctx) }()
		if !noHTTP {
			srv := server.New(store, reg, svc, logger.Component("server"))
			go func() { errCh <- srv.ListenAndServe(ctx, addr) }()
		}
		if reload > 0 {
			go reloadRegistry(ctx, reg, cfg.GetFeedsFile(), reload, sched, logger.Component("registry"))
		}

		log.Info().
			Int("feeds", reg.Len()).
			Dur("poll_interval", cfg.PollInterval).
			Dur("sweep_interval", cfg.SweepInterval).
			Msg("syndicate running")

		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return nil
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("daemon stopped: %w", err)
			}
			return nil
		}
	},
}

// reloadRegistry re-reads the registry file every interval, swaps it in and
// adds triggers for new feeds. A bad file keeps the previous registry.
func reloadRegistry(ctx context.Context, r *registry.Registry, path string, interval time.Duration, sched *scheduler.Scheduler, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			feeds, err := registry.ReadFile(path)
			if err == nil {
				err = r.Replace(feeds)
			}
			if err != nil {
				log.Error().Err(err).Str("path", path).Msg("registry reload failed")
				continue
			}
			sched.Sync(r.URLs())
			log.Debug().Int("feeds", r.Len()).Msg("registry reloaded")
		}
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Duration("reload", time.Minute, "registry reload interval (0 disables)")
	runCmd.Flags().Bool("no-http", false, "do not serve the status API")
	runCmd.Flags().String("listen", "", "status API address (default from config listen_addr)")
}
