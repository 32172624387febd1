package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/afroash/hydro-monitor/internal/client"
	"github.com/afroash/hydro-monitor/internal/config"
	"github.com/afroash/hydro-monitor/internal/models"
	"github.com/afroash/hydro-monitor/internal/scheduler"
)

var (
	follow bool

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Refresh the dashboard on the configured interval",
		Long: "Runs a cycle immediately and then every sync interval: simulation tick, " +
			"pending flush and a fetch of every subscribed collection. " +
			"With --follow, backend events trigger an extra refresh.",
		RunE: withApp(runDashboard),
	}

	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Run a single cycle and print it",
		RunE:  withApp(runOnce),
	}
)

func init() {
	runCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Refresh on backend events as well (overrides sync.follow)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(simulateCmd)
}

func runDashboard(cmd *cobra.Command, args []string, a *app) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(scheduler.FromSyncConfig(a.cfg.Sync), a.api, a.orderer, a.renderer, a.logger)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, config.DefaultDebounce, a.logger, func(cfg *config.Config) {
				sched.Apply(cfg.Sync)
				a.logger.Info().Dur("interval", cfg.Sync.Interval).Msg("Sync settings reloaded")
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn().Err(err).Msg("Config watch stopped")
			}
		}()
	}

	if follow || a.cfg.Sync.Follow {
		stream := client.NewStream(client.StreamConfig{
			URL:                  a.cfg.Backend.EventStreamURL(),
			ReconnectInterval:    a.cfg.Backend.ReconnectInterval,
			MaxReconnectInterval: a.cfg.Backend.MaxReconnectInterval,
		}, func(ev models.Event) {
			switch ev.Type {
			case models.EventTick, models.EventReadings, models.EventCleared:
				if err := sched.Refresh(); err != nil && !errors.Is(err, scheduler.ErrCycleInFlight) {
					a.logger.Debug().Err(err).Msg("Refresh skipped")
				}
			}
		}, a.logger)
		defer stream.Close()
		go stream.Run(ctx)
	}

	<-ctx.Done()
	a.logger.Info().Interface("stats", sched.Stats()).Msg("Dashboard stopping")
	return nil
}

func runOnce(cmd *cobra.Command, args []string, a *app) error {
	sched := scheduler.New(scheduler.FromSyncConfig(a.cfg.Sync), a.api, a.orderer, a.renderer, a.logger)
	defer sched.Stop()

	snap, err := sched.RunCycle(cmd.Context())
	if err != nil {
		return err
	}
	if !snap.OK() {
		return fmt.Errorf("cycle %s finished with errors", snap.CycleID)
	}
	return nil
}
