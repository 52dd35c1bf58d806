package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var Version = "dev"

var (
	configPath string
	demo       bool
)

var rootCmd = &cobra.Command{
	Use:   "locationhelper",
	Short: "Single-shot device location from a GNSS receiver",
	Long: `
locationhelper checks location permissions and device settings, then returns
one location fix (or the reason there is none) from an NMEA receiver or a
simulated one. Run "serve" to expose the same over HTTP and WebSocket.
`,
	SilenceUsage: true,
}

func init() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/locationhelper/config.yaml", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&demo, "demo", false, "Use the simulated receiver")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
