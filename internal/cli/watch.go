package cli

import (
	"github.com/spf13/cobra"

	appLog "flightcal/internal/log"
	"flightcal/internal/lookup"
	"flightcal/internal/watch"
)

// WatchCmd returns the watch command
func WatchCmd(opts *rootOptions) *cobra.Command {
	var (
		apiKey   string
		outDir   string
		schedule string
		once     bool
	)

	cmd := &cobra.Command{
		Use:   "watch NUMBER DATE",
		Short: "Keep a flight's .ics export up to date",
		Long: `Refresh a flight on a cron schedule and rewrite its .ics file whenever the
event changes (times, gates, status). Calendar clients subscribed to the file
pick the update up on their next poll.

The schedule defaults to watch.refresh from the config file.

The file is named after NUMBER exactly as given, so "watch BA1326" writes
flight_BA1326.ics while "lookup --ics" names the file after the provider's
flight number (e.g. flight_BA_1326.ics).`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(opts)
			if err != nil {
				return err
			}
			defer appLog.Sync()

			if outDir == "" {
				outDir = a.cfg.Watch.OutputDir
			}
			if schedule == "" {
				schedule = a.cfg.Watch.Refresh
			}

			w, err := watch.New(watch.Options{
				Lookup:    a.lookup,
				Generator: a.gen,
				Metrics:   a.metrics,
				Schedule:  schedule,
				OutputDir: outDir,
			}, lookup.Query{
				FlightNumber: args[0],
				Date:         args[1],
				APIKey:       apiKey,
			})
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			if once {
				res, err := w.RefreshOnce(ctx)
				if err != nil {
					return err
				}
				appLog.Info("refresh complete", "path", res.Path, "changed", res.Changed)
				return nil
			}
			return w.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "AeroDataBox API key (defaults to the configured key)")
	cmd.Flags().StringVar(&outDir, "out", "", "Directory for the .ics file (defaults to watch.output_dir)")
	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron schedule (defaults to watch.refresh)")
	cmd.Flags().BoolVar(&once, "once", false, "Refresh once and exit")

	return cmd
}
