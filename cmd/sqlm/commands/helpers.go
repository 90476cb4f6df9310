package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Konsultn-Engineering/sqlm/compiler"
	"github.com/Konsultn-Engineering/sqlm/connector"
	"github.com/Konsultn-Engineering/sqlm/introspect"
	"github.com/Konsultn-Engineering/sqlm/plan"
	"github.com/Konsultn-Engineering/sqlm/querydef"
)

// unit is one definition file and its compiled plans.
type unit struct {
	res   *querydef.Resolved
	plans []*plan.Plan
}

func connectLive(ctx context.Context, cfg connector.Config, logger *slog.Logger) (introspect.Oracle, func(), error) {
	if err := connector.LoadDotenv(); err != nil {
		return nil, nil, err
	}
	conn, err := connector.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	oracle, err := introspect.NewPostgres(conn.Pool(), introspect.WithLogger(logger))
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return oracle, func() {
		logger.Debug("closing schema database", "pool", conn.Stats())
		conn.Close()
	}, nil
}

// oracle returns the snapshot oracle in offline mode and a live one
// otherwise.
func (a *app) oracle(ctx context.Context, offline bool) (introspect.Oracle, func(), error) {
	if offline || a.cfg.Offline {
		path := a.cfg.Resolve(a.cfg.Snapshot)
		snap, err := introspect.LoadSnapshot(a.fs, path)
		if err != nil {
			return nil, nil, err
		}
		a.logger.Debug("using snapshot", "path", path, "statements", snap.Len(), "revision", snap.Revision)
		return introspect.NewOffline(snap), func() {}, nil
	}
	return a.connect(ctx, a.cfg.Database, a.logger)
}

func (a *app) patterns() []string {
	out := make([]string, len(a.cfg.Queries))
	for i, p := range a.cfg.Queries {
		out[i] = a.cfg.Resolve(p)
	}
	return out
}

// compile loads, resolves and compiles every definition file. Files that
// fail are left out of the result; their errors are joined.
func (a *app) compile(ctx context.Context, oracle introspect.Oracle) ([]unit, error) {
	files, err := querydef.LoadAll(a.fs, a.patterns())
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no query definition files match %s", strings.Join(a.cfg.Queries, ", "))
	}

	c := compiler.New(
		compiler.WithOracle(oracle),
		compiler.WithLogger(a.logger),
		compiler.WithConcurrency(a.cfg.Concurrency),
	)

	var errs []error
	units := make([]unit, 0, len(files))
	for _, f := range files {
		res, err := querydef.Resolve(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		invs := make([]compiler.Invocation, len(res.Queries))
		for i, q := range res.Queries {
			invs[i] = q.Invocation
		}
		plans, err := c.CompileAll(ctx, invs)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		a.logger.Debug("compiled file", "file", f.Path, "queries", len(plans))
		units = append(units, unit{res: res, plans: plans})
	}
	return units, errors.Join(errs...)
}

func countQueries(units []unit) int {
	n := 0
	for _, u := range units {
		n += len(u.plans)
	}
	return n
}
