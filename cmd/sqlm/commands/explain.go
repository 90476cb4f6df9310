package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Konsultn-Engineering/sqlm/dialect"
	"github.com/Konsultn-Engineering/sqlm/plan"
	"github.com/Konsultn-Engineering/sqlm/shape"
)

func newExplainCommand(a *app) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "explain <query>",
		Short: "Show the compiled form of one query",
		Long: `Explain prints the native SQL text, the verified parameters and the
result shape of a query, followed by a preview with known values inlined.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			oracle, release, err := a.oracle(ctx, offline)
			if err != nil {
				return err
			}
			defer release()

			units, err := a.compile(ctx, oracle)
			for _, u := range units {
				for _, p := range u.plans {
					if p != nil && p.Name == args[0] {
						explain(a.out, p, dialect.NewPostgresDialect())
						return nil
					}
				}
			}
			if err != nil {
				return err
			}
			return fmt.Errorf("no query named %q", args[0])
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "describe queries from the snapshot instead of the database")
	return cmd
}

func explain(w io.Writer, p *plan.Plan, d dialect.Dialect) {
	head := color.New(color.Bold)
	head.Fprintf(w, "query %s", p.Name)
	if loc := p.Location; loc.File != "" {
		fmt.Fprintf(w, " (%s)", loc.String())
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  returns: %s\n", p.Target)
	if !p.Checked {
		fmt.Fprintln(w, "  unchecked: declared types are trusted")
	}
	fmt.Fprintf(w, "  sql: %s\n", p.Text)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if len(p.Params) > 0 {
		head.Fprintln(w, "params")
		for _, prm := range p.Params {
			db := "-"
			if prm.DBType.Name != "" {
				db = prm.DBType.String()
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n",
				d.Placeholder(prm.Index), prm.Ref(), prm.Declared, db, prm.Conversion)
		}
		tw.Flush()
	}

	if sh := p.Shape; sh != nil {
		head.Fprintf(w, "shape %s\n", sh.Kind)
		if sh.Kind == shape.Record {
			for _, b := range sh.Bindings {
				col := "-"
				if b.Column >= 0 {
					col = sh.Columns[b.Column].Name
				}
				null := ""
				if b.Nullable {
					null = "nullable"
				}
				fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n", b.Field.Name, col, b.Field.Type, b.Conversion, null)
			}
			tw.Flush()
			for _, i := range sh.Unclaimed() {
				fmt.Fprintf(w, "  column %s is not read\n", sh.Columns[i].Name)
			}
		}
	}

	head.Fprintln(w, "preview")
	fmt.Fprintf(w, "  %s\n", preview(p, d))
}

// preview inlines parameter values, or their Go expressions when only the
// expression is known.
func preview(p *plan.Plan, d dialect.Dialect) string {
	pairs := make([]string, 0, 2*len(p.Params))
	for i := len(p.Params) - 1; i >= 0; i-- {
		prm := p.Params[i]
		val := prm.Expr
		if prm.Value != nil || val == "" {
			val = d.RenderValue(prm.Value)
		}
		pairs = append(pairs, d.Placeholder(prm.Index), val)
	}
	return strings.NewReplacer(pairs...).Replace(p.Text)
}
