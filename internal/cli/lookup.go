package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"flightcal/internal/config"
	appLog "flightcal/internal/log"
	"flightcal/internal/lookup"
	"flightcal/internal/web"
)

// LookupCmd returns the lookup command
func LookupCmd(opts *rootOptions) *cobra.Command {
	var (
		apiKey string
		icsDir string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "lookup NUMBER DATE",
		Short: "Look a flight up and print its calendar entry",
		Long: `Look up a flight by number and date (YYYY-MM-DD) and print a flight card,
the web-calendar quick-add link and the event description.

Examples:
  flightcal lookup BA1326 2024-06-01
  flightcal lookup BA1326 2024-06-01 --ics ./calendars
  flightcal lookup BA1326 2024-06-01 --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(opts)
			if err != nil {
				return err
			}
			defer appLog.Sync()

			f, err := a.lookup.Lookup(cmd.Context(), lookup.Query{
				FlightNumber: args[0],
				Date:         args[1],
				APIKey:       apiKey,
			})
			if err != nil {
				if errors.Is(err, lookup.ErrMissingInput) {
					return fmt.Errorf("%w (set --api-key or AERODATABOX_API_KEY)", err)
				}
				return err
			}

			view := web.NewFlightView(f, a.gen, a.loc)
			out := cmd.OutOrStdout()

			if icsDir != "" {
				content, err := a.gen.CalendarFile(f)
				if err != nil {
					a.metrics.Artifacts.WithLabelValues("ics", "error").Inc()
					return fmt.Errorf("failed to generate calendar file: %w", err)
				}
				path := filepath.Join(icsDir, view.ICSFileName)
				if err := config.WriteFileAtomic(path, []byte(content), ".flightcal-*.ics.tmp"); err != nil {
					return fmt.Errorf("failed to write %s: %w", path, err)
				}
				a.metrics.Artifacts.WithLabelValues("ics", "ok").Inc()
				appLog.Info("calendar file written", "path", path)
				if !asJSON {
					defer fmt.Fprintf(out, "\nCalendar file: %s\n", color.New(color.FgGreen).Sprint(path))
				}
			}

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			}
			printCard(out, view)
			return nil
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "AeroDataBox API key (defaults to the configured key)")
	cmd.Flags().StringVar(&icsDir, "ics", "", "Write the .ics file into this directory")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the flight as JSON")

	return cmd
}

// printCard renders a flight the way the web card shows it.
func printCard(w io.Writer, v web.FlightView) {
	f := v.Flight
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)

	fmt.Fprintf(w, "%s %s\n", bold.Sprint(f.Airline), bold.Sprint(f.FlightNumber))
	if f.AircraftModel != "" {
		fmt.Fprintf(w, "  %s\n", dim.Sprint(f.AircraftModel))
	}
	fmt.Fprintf(w, "  Status: %s\n", statusColor(f.Status))
	if v.Codeshare != "" {
		fmt.Fprintf(w, "  Codeshare: %s\n", color.New(color.FgCyan).Sprint(v.Codeshare))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  %s %s  →  %s %s\n",
		bold.Sprint(f.Origin), v.DepartureClock,
		bold.Sprint(f.Destination), v.ArrivalClock,
	)
	if f.OriginMunicipality != "" || f.DestinationMunicipality != "" {
		fmt.Fprintf(w, "  %s\n", dim.Sprintf("%s → %s", orNA(f.OriginMunicipality), orNA(f.DestinationMunicipality)))
	}
	if v.Duration != "" {
		fmt.Fprintf(w, "  Duration: %s\n", v.Duration)
	}
	fmt.Fprintf(w, "  Departure: terminal %s, gate %s\n", orNA(f.DepartureTerminal), orNA(f.DepartureGate))
	fmt.Fprintf(w, "  Arrival:   terminal %s, gate %s, baggage %s\n", orNA(f.ArrivalTerminal), orNA(f.ArrivalGate), orNA(f.BaggageBelt))
	fmt.Fprintf(w, "  %s\n", dim.Sprintf("times shown in %s", v.DisplayTimeZone))

	fmt.Fprintln(w)
	fmt.Fprintln(w, bold.Sprint("Add to calendar:"))
	fmt.Fprintf(w, "  %s\n", color.New(color.FgBlue, color.Underline).Sprint(v.QuickAddLink))

	fmt.Fprintln(w)
	fmt.Fprintln(w, bold.Sprint("Description:"))
	for _, line := range v.Description {
		fmt.Fprintf(w, "  %s\n", line)
	}
}

func statusColor(status string) string {
	switch status {
	case "":
		return color.New(color.FgHiBlack).Sprint("N/A")
	case "Canceled", "Cancelled", "CanceledUncertain", "Diverted":
		return color.New(color.FgRed).Sprint(status)
	case "Delayed":
		return color.New(color.FgYellow).Sprint(status)
	default:
		return color.New(color.FgGreen).Sprint(status)
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
