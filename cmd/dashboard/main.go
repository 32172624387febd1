// Command dashboard follows a hydroponics backend from the terminal: it runs
// the refresh cycle, manages sensors and actuators and exports readings.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/afroash/hydro-monitor/internal/client"
	"github.com/afroash/hydro-monitor/internal/config"
	"github.com/afroash/hydro-monitor/internal/logging"
	"github.com/afroash/hydro-monitor/internal/ordering"
	"github.com/afroash/hydro-monitor/internal/view"
)

const version = "v0.3.0"

var (
	configPath string
	limit      int

	rootCmd = &cobra.Command{
		Use:           "dashboard",
		Short:         "Hydroponics dashboard",
		Long:          "Terminal dashboard for a hydroponics backend: live refresh, device management and readings export.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the dashboard version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (defaults + environment when empty)")
	rootCmd.PersistentFlags().IntVarP(&limit, "limit", "n", 0, "Rows shown per table (0 shows all)")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app bundles everything a command needs once the config is loaded.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	closer   io.Closer
	api      *client.API
	orderer  *ordering.Orderer
	renderer *view.TableRenderer
}

func newApp(out io.Writer) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("config", cfg.String()).Msg("Configuration loaded")

	policy, err := ordering.ParsePolicy(cfg.Ordering.Identity)
	if err != nil {
		closer.Close()
		return nil, err
	}

	transport := client.NewTransport(client.TransportConfig{
		BaseURL:   cfg.Backend.URL,
		DeviceKey: cfg.Backend.DeviceAPIKey,
		Timeout:   cfg.Backend.Timeout,
	}, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		closer:   closer,
		api:      client.NewAPI(transport),
		orderer:  ordering.New(policy),
		renderer: view.NewTableRenderer(out, time.Local, limit),
	}, nil
}

func (a *app) Close() error {
	return a.closer.Close()
}

// withApp adapts a command body that needs an app.
func withApp(run func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd, args, a)
	}
}
