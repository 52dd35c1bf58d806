package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/shaunagostinho/locationhelper/internal/location"
)

var (
	timeout  time.Duration
	asJSON   bool
	resolve  bool
	priority string
	accuracy float64
)

var errNoLocation = errors.New("no location")

var fixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Acquire one high-accuracy fix",
	Long: `Runs the settings audit and a single one-shot request. With --priority the
request uses that power class instead of high accuracy.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p := location.PriorityHighAccuracy
		if priority != "" {
			var err error
			if p, err = location.ParsePriority(priority); err != nil {
				return err
			}
		}
		return runAcquisition(cmd.Context(), cmd.OutOrStdout(), "Waiting for fix", func(ctx context.Context, a *app) (location.Result, error) {
			return a.helper.CurrentLocation(ctx, p)
		})
	},
}

var viableCmd = &cobra.Command{
	Use:   "viable",
	Short: "Wait for a fix within the accuracy threshold",
	Long: `Subscribes to location updates and returns the first fix whose accuracy
radius is within --accuracy meters. Without --timeout it waits until
interrupted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runAcquisition(cmd.Context(), cmd.OutOrStdout(), "Waiting for viable fix", func(ctx context.Context, a *app) (location.Result, error) {
			threshold := accuracy
			if !cmd.Flags().Changed("accuracy") {
				threshold = a.cfg.DefaultAccuracy()
			}
			return a.helper.ViableLocation(ctx, threshold)
		})
	},
}

var permissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "List the permissions an acquisition needs and whether they are granted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		for _, p := range location.RequiredPermissions() {
			fmt.Fprintf(out, "%-24s %v\n", p, a.perms.CheckGranted(p))
		}
		fmt.Fprintf(out, "%-24s %v\n", "enabled", a.helper.IsPermissionEnabled())
		return nil
	},
}

type acquireFunc func(ctx context.Context, a *app) (location.Result, error)

func runAcquisition(ctx context.Context, out io.Writer, desc string, acquire acquireFunc) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.GPS.Type != "disabled" {
		if err := a.receiver.Connect(); err != nil {
			a.log.Warn("receiver connect failed", "receiver", a.receiver.Name(), "error", err)
		}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	acquireOnce := func() (location.Result, error) {
		stop := spin(desc)
		defer stop()
		return acquire(ctx, a)
	}

	res, err := acquireOnce()
	if err != nil {
		return err
	}
	if r, ok := res.(location.Resolvable); ok && resolve {
		a.log.Info("applying settings change", "change", r.Resolution.Description())
		if err := r.Resolution.StartResolution(ctx); err != nil {
			return fmt.Errorf("resolution: %w", err)
		}
		if res, err = acquireOnce(); err != nil {
			return err
		}
	}
	return printResult(out, res)
}

func printResult(out io.Writer, res location.Result) error {
	if asJSON {
		body := map[string]any{"kind": location.KindOf(res).String()}
		switch r := res.(type) {
		case location.Success:
			body["fix"] = r.Fix
		case location.Failed:
			if r.Err != nil {
				body["error"] = r.Err.Error()
			}
		case location.NoPermission, location.ProviderDisabled, location.NotResolvable:
		case location.Resolvable:
			body["description"] = r.Resolution.Description()
		default:
			return fmt.Errorf("unknown location result %T", res)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(body); err != nil {
			return err
		}
	} else {
		line, err := location.Describe(res)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, line)
	}

	if _, ok := res.(location.Success); !ok {
		return fmt.Errorf("%w: %s", errNoLocation, location.KindOf(res))
	}
	return nil
}

// spin shows an indeterminate spinner on a terminal stderr until stop is
// called.
func spin(desc string) (stop func()) {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return func() {}
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				bar.Finish()
				return
			case <-ticker.C:
				bar.Add(1)
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

func init() {
	for _, c := range []*cobra.Command{fixCmd, viableCmd} {
		c.Flags().DurationVar(&timeout, "timeout", 0, "Give up after this long (0 waits indefinitely)")
		c.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
		c.Flags().BoolVar(&resolve, "resolve", false, "Apply a resolvable settings change and retry once")
	}
	fixCmd.Flags().StringVar(&priority, "priority", "", "Request priority: high_accuracy, balanced, low_power, no_power")
	viableCmd.Flags().Float64Var(&accuracy, "accuracy", location.DefaultAccuracy, "Accuracy threshold in meters; location.default_accuracy when unset")

	rootCmd.AddCommand(fixCmd, viableCmd, permissionsCmd)
}
