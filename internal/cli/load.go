package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fixtures/internal/datafile"
	"github.com/mesh-intelligence/fixtures/pkg/dataset"
	"github.com/mesh-intelligence/fixtures/pkg/sqlloader"
	"github.com/mesh-intelligence/fixtures/pkg/types"
)

func (a *app) newLoadCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load a dataset file and keep the rows",
		Long:  "Load every dataset of a YAML file in one transaction and commit it. The rows stay in the database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runLoad(cmd, file)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "dataset file (YAML)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (a *app) runLoad(cmd *cobra.Command, file string) (err error) {
	ctx := cmd.Context()
	f, err := datafile.ReadFile(file)
	if err != nil {
		return err
	}
	tree, err := dataset.Build(f.Definitions...)
	if err != nil {
		return err
	}
	if err := a.ensureDatabaseDir(); err != nil {
		return err
	}

	loader, err := sqlloader.Open(ctx, a.config, sqlloader.NewEnv(f.Targets()...), sqlloader.WithLogger(a.log))
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, loader.Dispose(ctx))
	}()

	if err := loader.Load(ctx, tree); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, ds := range tree.Datasets() {
		fmt.Fprintf(out, "%s: %d rows\n", ds.Name(), ds.Len())
	}
	a.log.Info().Int("rows", tree.RowCount()).Str("file", file).Msg("loaded")
	return nil
}

// ensureDatabaseDir creates the parent directory of a SQLite database file.
func (a *app) ensureDatabaseDir() error {
	if a.config.Driver != types.DriverSQLite {
		return nil
	}
	dsn := a.config.DSN
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	return nil
}
