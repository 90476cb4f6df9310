// Package commands implements the sqlm command line.
package commands

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Konsultn-Engineering/sqlm/config"
	"github.com/Konsultn-Engineering/sqlm/connector"
	"github.com/Konsultn-Engineering/sqlm/introspect"
)

// Version information (set at build time).
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// connectFunc opens a live schema oracle. The returned func releases it.
type connectFunc func(ctx context.Context, cfg connector.Config, logger *slog.Logger) (introspect.Oracle, func(), error)

type app struct {
	fs      afero.Fs
	out     io.Writer
	errOut  io.Writer
	connect connectFunc

	configPath string
	verbose    bool

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand builds the sqlm command tree.
func NewRootCommand(fs afero.Fs, out, errOut io.Writer) *cobra.Command {
	return newRootCommand(&app{fs: fs, out: out, errOut: errOut, connect: connectLive})
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sqlm",
		Short: "Compile SQL templates into type-checked Go",
		Long: `sqlm checks SQL templates against a live database schema and
generates Go functions that bind their arguments and decode their rows.`,
		Version:       Version + " (commit: " + GitCommit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}
	cmd.SetOut(a.out)
	cmd.SetErr(a.errOut)

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to sqlm.yaml")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level")

	cmd.AddCommand(
		newGenerateCommand(a),
		newCheckCommand(a),
		newPrepareCommand(a),
		newExplainCommand(a),
	)
	return cmd
}

func (a *app) load() error {
	cfg, err := config.Load(a.fs, a.configPath)
	if err != nil {
		return err
	}
	logger, err := cfg.Logger(a.errOut, a.verbose)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	if cfg.Path != "" {
		logger.Debug("loaded config", "path", cfg.Path)
	}
	return nil
}
