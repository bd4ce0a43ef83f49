package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/anomaly-cli/internal/lof"
	"github.com/sells-group/anomaly-cli/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP detection server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		srv := server.New(server.Options{
			Defaults: lof.Params{
				NeighborhoodSize: cfg.Detector.NeighborhoodSize,
				Contamination:    cfg.Detector.Contamination,
				Index:            lof.IndexKind(cfg.Detector.Index),
				Workers:          cfg.Detector.Workers,
			},
			RateLimit: cfg.Server.RateLimit,
			RateBurst: cfg.Server.RateBurst,
			MaxPoints: cfg.Server.MaxPoints,

			MaxNeighborhoodSize: cfg.Server.MaxNeighborhoodSize,
		})
		return srv.ListenAndServe(ctx, cfg.Server.Port)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
