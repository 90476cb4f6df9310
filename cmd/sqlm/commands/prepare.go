package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Konsultn-Engineering/sqlm/dialect"
	"github.com/Konsultn-Engineering/sqlm/introspect"
)

func newPrepareCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prepare",
		Short: "Record the schema answers for offline builds",
		Long: `Prepare describes every query against the live database and saves the
answers to the snapshot file, so that "generate --offline" works without a
database connection.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			live, release, err := a.connect(ctx, a.cfg.Database, a.logger)
			if err != nil {
				return err
			}
			defer release()

			rec := introspect.NewRecorder(live, introspect.NewSnapshot(dialect.NewPostgresDialect().Name()))
			if _, err := a.compile(ctx, rec); err != nil {
				return err
			}

			path := a.cfg.Resolve(a.cfg.Snapshot)
			if err := rec.Snapshot().Save(a.fs, path); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s saved %d statements to %s\n",
				color.GreenString("✓"), rec.Snapshot().Len(), path)
			return nil
		},
	}
}
