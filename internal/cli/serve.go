package cli

import (
	"github.com/spf13/cobra"

	appLog "flightcal/internal/log"
	"flightcal/internal/web"
)

// ServeCmd returns the serve command
func ServeCmd(opts *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the flight lookup API:
  GET /health
  GET /api/flights?number=BA1326&date=2024-06-01
  GET /api/flights/ics?number=BA1326&date=2024-06-01
  GET /metrics

Callers may pass their own AeroDataBox key in the X-Api-Key header.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(opts)
			if err != nil {
				return err
			}
			defer appLog.Sync()

			// --listen overrides config file listen if provided.
			if listen != "" {
				a.cfg.Listen = listen
			}
			if !a.lookup.HasDefaultKey() {
				appLog.Warn("no default API key configured; callers must send X-Api-Key")
			}

			ctx, cancel := signalContext()
			defer cancel()

			s := web.NewServer(a.cfg, a.lookup, a.gen, a.metrics)
			if err := web.StartServer(ctx, a.cfg, s); err != nil {
				appLog.Error("HTTP server failed", err, "listen", a.cfg.Listen)
				return err
			}
			appLog.Info("flightcal exiting")
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")

	return cmd
}
