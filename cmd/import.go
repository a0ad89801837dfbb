package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crowdcount/internal/ingest"
)

var (
	importProject   string
	importFile      string
	importCharset   string
	importBatchSize int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import detector readings from a JSON or JSON-lines file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, cfg, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		im := &ingest.Importer{
			Observations: env.Store,
			Blobs:        env.BlobWriter,
			BatchSize:    importBatchSize,
			Concurrency:  cfg.Density.Concurrency,
			Charset:      importCharset,
		}
		res, err := im.ImportFile(ctx, importProject, importFile)
		if err != nil {
			return eris.Wrap(err, "import readings")
		}

		zap.L().Info("import complete",
			zap.String("file", importFile),
			zap.Int("read", res.Read),
			zap.Int("inserted", res.Inserted),
			zap.Int("blobs", res.BlobsWritten),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importProject, "project", "", "project id (required)")
	importCmd.Flags().StringVar(&importFile, "file", "", "path to a JSON or JSON-lines file (required)")
	importCmd.Flags().StringVar(&importCharset, "charset", "", "input charset when not UTF-8, e.g. iso-8859-1")
	importCmd.Flags().IntVar(&importBatchSize, "batch-size", 500, "readings per insert batch")
	_ = importCmd.MarkFlagRequired("project")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
