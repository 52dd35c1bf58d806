package main

import (
	"github.com/spf13/cobra"

	"github.com/shaunagostinho/locationhelper/internal/server"
	"github.com/shaunagostinho/locationhelper/web"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve location requests over HTTP and WebSocket",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if listenAddr != "" {
			a.cfg.Server.ListenAddr = listenAddr
		}
		a.log.Info("locationhelper starting", "version", Version, "receiver", a.receiver.Name())

		// The server answers immediately; acquisitions report ProviderDisabled
		// or wait for fixes while the receiver is still connecting.
		if a.cfg.GPS.Type != "disabled" {
			go connectWithRetry(ctx, a.log, "gps", a.receiver, 10)
		}

		srv := server.New(a.cfg, a.helper, a.store, web.FS, a.log)
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Override listen address (e.g. :8080)")
	rootCmd.AddCommand(serveCmd)
}
