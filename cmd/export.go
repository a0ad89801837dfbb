package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crowdcount/internal/export"
)

var (
	exportFlags queryFlags
	exportOut   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a day's occupancy series to an XLSX or CSV file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := export.FormatFromPath(exportOut); err != nil {
			return err
		}
		req, err := exportFlags.request()
		if err != nil {
			return err
		}
		env, err := initEnv(cmd.Context(), cfg, "query")
		if err != nil {
			return err
		}
		defer env.Close()

		series, err := env.Service.Series(cmd.Context(), req)
		if err != nil {
			return eris.Wrap(err, "export series")
		}
		if err := export.WriteFile(exportOut, series.AreaSeries); err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("project", req.ProjectID),
			zap.String("out", exportOut),
			zap.Int("rows", series.Len()),
		)
		return nil
	},
}

func init() {
	exportFlags.bind(exportCmd)
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file, .xlsx or .csv (required)")
	_ = exportCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(exportCmd)
}
