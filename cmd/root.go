package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crowdcount/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "crowdcount",
	Short: "Crowd occupancy dashboards from detector readings",
	Long:  "Aggregates per-camera crowd counts into smoothed per-area occupancy series, merges density blobs into per-area heat maps, and serves both over HTTP.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
