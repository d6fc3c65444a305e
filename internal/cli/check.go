package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fixtures/internal/datafile"
	"github.com/mesh-intelligence/fixtures/pkg/fixture"
	"github.com/mesh-intelligence/fixtures/pkg/sqlloader"
)

// errResidualRows reports rows left behind by an unload.
var errResidualRows = errors.New("rows remain after unload")

func (a *app) newCheckCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Load and unload a dataset file and verify nothing is left",
		Long:  "Load every dataset of a YAML file, unload it again and compare the row count\nof every target table with the count before loading.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCheck(cmd, file)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "dataset file (YAML)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (a *app) runCheck(cmd *cobra.Command, file string) (err error) {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	f, err := datafile.ReadFile(file)
	if err != nil {
		return err
	}
	if err := a.ensureDatabaseDir(); err != nil {
		return err
	}

	db, err := sql.Open(a.config.Driver, a.config.DSN)
	if err != nil {
		return fmt.Errorf("open %s: %w", a.config.Driver, err)
	}
	defer db.Close()

	targets := f.TargetNames()
	before, err := countRows(ctx, db, targets)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	loader := sqlloader.New(sqlloader.NewEnv(f.Targets()...),
		sqlloader.WithEngine(db),
		sqlloader.WithDriver(a.config.Driver),
		sqlloader.WithLogger(a.log),
		sqlloader.WithMetrics(sqlloader.NewMetrics(reg)),
	)
	defer func() {
		err = errors.Join(err, loader.Dispose(ctx))
	}()

	fx := fixture.New(loader, fixture.WithLogger(a.log))
	err = fixture.Use(ctx, fx, f.Definitions, func(ctx context.Context, data *fixture.Data) error {
		tree, err := data.Tree()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "loaded %d rows in %d datasets\n", tree.RowCount(), tree.Len())
		return nil
	})
	if err != nil {
		return err
	}

	after, err := countRows(ctx, db, targets)
	if err != nil {
		return err
	}
	saved, cleared, err := counterTotals(reg)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "saved %d rows, cleared %d rows\n", saved, cleared)

	var residual []string
	for _, t := range targets {
		if after[t] != before[t] {
			residual = append(residual, fmt.Sprintf("%s has %d rows, had %d", t, after[t], before[t]))
		}
	}
	if len(residual) > 0 {
		return fmt.Errorf("%w: %s", errResidualRows, strings.Join(residual, "; "))
	}
	fmt.Fprintln(out, "ok")
	return nil
}

// countRows counts the rows of every table.
func countRows(ctx context.Context, db *sql.DB, tables []string) (map[string]int, error) {
	counts := make(map[string]int, len(tables))
	for _, t := range tables {
		var n int
		q := `SELECT COUNT(*) FROM "` + strings.ReplaceAll(t, `"`, `""`) + `"`
		if err := db.QueryRowContext(ctx, q).Scan(&n); err != nil {
			return nil, fmt.Errorf("count rows of %s: %w", t, err)
		}
		counts[t] = n
	}
	return counts, nil
}

// counterTotals sums the saved and cleared row counters gathered from reg.
func counterTotals(reg prometheus.Gatherer) (saved, cleared int, err error) {
	families, err := reg.Gather()
	if err != nil {
		return 0, 0, fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		var sum float64
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
		switch mf.GetName() {
		case "fixtures_rows_saved_total":
			saved = int(sum)
		case "fixtures_rows_cleared_total":
			cleared = int(sum)
		}
	}
	return saved, cleared, nil
}
