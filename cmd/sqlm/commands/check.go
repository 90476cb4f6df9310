package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newCheckCommand(a *app) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the query definitions without writing code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			oracle, release, err := a.oracle(ctx, offline)
			if err != nil {
				return err
			}
			defer release()

			units, err := a.compile(ctx, oracle)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %d queries in %d files are valid\n",
				color.GreenString("✓"), countQueries(units), len(units))
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "describe queries from the snapshot instead of the database")
	return cmd
}
