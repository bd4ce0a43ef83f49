package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/anomaly-cli/internal/config"
)

var (
	cfg *config.Config

	rootLogLevel string
)

var rootCmd = &cobra.Command{
	Use:     "anomaly-cli",
	Short:   "Time-series anomaly detection with local outlier factor",
	Long:    "Loads a univariate time series from a file, URL or database, scores every point with the local outlier factor and reports the most anomalous ones.",
	Version: version,
	Example: `  anomaly-cli detect --source speed_t4013.csv
  anomaly-cli detect --source data.zip#realTraffic/speed_t4013.csv -k 35 -c 0.01 --plot anomalies.png
  anomaly-cli detect --source "postgres://user@db/metrics" --query "SELECT ts AS timestamp, v AS value FROM readings" -o result.json
  anomaly-cli serve --port 9090`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if rootLogLevel != "" {
			cfg.Log.Level = rootLogLevel
		}
		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "log level: debug, info, warn, error (default from config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
