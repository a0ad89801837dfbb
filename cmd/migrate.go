package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crowdcount/internal/store"
)

var migrateProjects string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema and optionally seed projects from YAML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}
		zap.L().Info("schema up to date", zap.String("driver", cfg.Store.Driver))

		if migrateProjects == "" {
			return nil
		}
		n, err := seedProjects(cmd, st, migrateProjects)
		if err != nil {
			return err
		}
		zap.L().Info("projects seeded", zap.String("path", migrateProjects), zap.Int("projects", n))
		return nil
	},
}

// seedProjects upserts every project in the YAML file into w.
func seedProjects(cmd *cobra.Command, w store.ProjectWriter, path string) (int, error) {
	yp, err := store.LoadYAMLProjects(path)
	if err != nil {
		return 0, err
	}
	projects := yp.Projects()
	for i := range projects {
		if err := w.PutProject(cmd.Context(), &projects[i]); err != nil {
			return i, eris.Wrapf(err, "seed project %s", projects[i].ID)
		}
	}
	return len(projects), nil
}

func init() {
	migrateCmd.Flags().StringVar(&migrateProjects, "projects", "", "YAML projects file to upsert after migrating")
	rootCmd.AddCommand(migrateCmd)
}
