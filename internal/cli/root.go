package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"flightcal/internal/aerodatabox"
	"flightcal/internal/config"
	"flightcal/internal/ics"
	appLog "flightcal/internal/log"
	"flightcal/internal/lookup"
	"flightcal/internal/metrics"
)

// DefaultConfigPath is used when --config is not given.
const DefaultConfigPath = "./flightcal.yaml"

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// app is the wired application built from the loaded configuration.
type app struct {
	cfg     *config.Config
	loc     *time.Location
	metrics *metrics.Metrics
	gen     *ics.Generator
	lookup  *lookup.Service
}

// RootCmd returns the flightcal root command with all sub-commands.
func RootCmd(version string) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:     "flightcal",
		Short:   "Turn a flight number and date into calendar entries",
		Version: version,
		Long: `flightcal looks a flight up on AeroDataBox and produces a web-calendar
quick-add link and a downloadable .ics file for it.

The default API key is read from the config file, the AERODATABOX_API_KEY
environment variable or a .env file in the working directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", DefaultConfigPath, "Path to config file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides config")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format (json, console); overrides config")

	rootCmd.AddCommand(ServeCmd(opts))
	rootCmd.AddCommand(LookupCmd(opts))
	rootCmd.AddCommand(WatchCmd(opts))

	return rootCmd
}

// bootstrap loads configuration and wires the lookup service, the
// calendar generator and the metrics registry.
func bootstrap(opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", opts.configPath, err)
	}
	cfg.ApplyEnv()
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	cfg.Normalize()

	if err := appLog.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", cfg.Timezone)
	}

	m := metrics.NewMetrics("flightcal")
	client := aerodatabox.NewClient(aerodatabox.Options{
		BaseURL: cfg.API.BaseURL,
		Host:    cfg.API.Host,
		Timeout: cfg.APITimeout(),
	})
	gen := ics.NewGenerator(ics.Options{
		QuickAddURL: cfg.Calendar.QuickAddURL,
		UIDDomain:   cfg.Calendar.UIDDomain,
		ProductID:   cfg.Calendar.ProductID,
		Location:    loc,
	})

	a := &app{
		cfg:     cfg,
		loc:     loc,
		metrics: m,
		gen:     gen,
		lookup:  lookup.NewService(client, cfg.API.Key, m),
	}

	appLog.Debug("effective config",
		"config_path", opts.configPath,
		"listen", cfg.Listen,
		"timezone", loc.String(),
		"api_base_url", cfg.API.BaseURL,
		"default_key", a.lookup.HasDefaultKey(),
		"watch_refresh", cfg.Watch.Refresh,
	)
	return a, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
