package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Konsultn-Engineering/sqlm/cmd/sqlm/watch"
	"github.com/Konsultn-Engineering/sqlm/codegen"
	"github.com/Konsultn-Engineering/sqlm/diag"
)

type generateOptions struct {
	offline bool
	watch   bool
	output  string
	pkg     string
}

func newGenerateCommand(a *app) *cobra.Command {
	var opts generateOptions

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate Go code for the query definitions",
		Long: `Generate compiles every query definition file against the schema and
writes one <name>.sqlm.go file per definition file into the output directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.watch {
				return a.watchGenerate(cmd.Context(), opts)
			}
			return a.generate(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.offline, "offline", false, "describe queries from the snapshot instead of the database")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "regenerate when definition files change")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output directory (overrides config)")
	cmd.Flags().StringVar(&opts.pkg, "package", "", "package name for files that do not set one")
	return cmd
}

func (a *app) generate(ctx context.Context, opts generateOptions) error {
	oracle, release, err := a.oracle(ctx, opts.offline)
	if err != nil {
		return err
	}
	defer release()

	units, err := a.compile(ctx, oracle)
	if err != nil {
		return err
	}

	outDir := a.cfg.Resolve(a.cfg.Output)
	if opts.output != "" {
		outDir = opts.output
	}
	pkg := a.cfg.Package
	if opts.pkg != "" {
		pkg = opts.pkg
	}
	if err := a.fs.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	for _, u := range units {
		src, err := codegen.Generate(u.res, u.plans, codegen.Options{Package: pkg})
		if err != nil {
			return fmt.Errorf("generate %s: %w", u.res.File.Path, err)
		}
		path := filepath.Join(outDir, codegen.OutputName(u.res.File.Path))
		if err := afero.WriteFile(a.fs, path, src, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		a.logger.Info("generated", "file", path, "queries", len(u.plans))
	}

	fmt.Fprintf(a.out, "%s generated %d queries in %d files\n",
		color.GreenString("✓"), countQueries(units), len(units))
	return nil
}

func (a *app) watchGenerate(ctx context.Context, opts generateOptions) error {
	w, err := watch.New(a.patterns(), func() error {
		err := a.generate(ctx, opts)
		if err != nil {
			diag.Render(a.errOut, err)
		}
		return err
	}, a.logger)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "watching for changes, press Ctrl+C to stop")
	return w.Run(ctx)
}
