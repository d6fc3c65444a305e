// Package cli implements the fixtures command-line interface: load dataset
// files into a database, check that they unload cleanly, and manage the CLI
// configuration.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fixtures/internal/paths"
	"github.com/mesh-intelligence/fixtures/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dsn       string
	driver    string
	logLevel  string
}

// app is the state shared by the commands of one root command.
type app struct {
	flags     rootFlags
	configDir string
	config    types.Config
	log       zerolog.Logger
}

// NewRootCmd creates the top-level "fixtures" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{log: zerolog.Nop()}
	root := &cobra.Command{
		Use:   "fixtures",
		Short: "Load and unload declarative test datasets",
		Long:  "fixtures loads YAML dataset files into a database inside one transaction\nand verifies that they can be removed again without leaving rows behind.",
		// Do not print usage on errors returned by subcommands.
		SilenceUsage:      true,
		PersistentPreRunE: a.prepare,
	}

	root.PersistentFlags().StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: .fixtures)")
	root.PersistentFlags().StringVar(&a.flags.dsn, "dsn", "", "data source name (default: fixtures.db in the data directory)")
	root.PersistentFlags().StringVar(&a.flags.driver, "driver", "", "database driver: sqlite or pgx (default: sqlite)")
	root.PersistentFlags().StringVar(&a.flags.logLevel, "log-level", "", "log level (default: info)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(a.newInitCmd())
	root.AddCommand(a.newLoadCmd())
	root.AddCommand(a.newCheckCmd())

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(exitUserError)
	}
	os.Exit(exitSuccess)
}

// prepare resolves the configuration directory, reads config.yaml and builds
// the logger and the database config. Flags win over config.yaml.
func (a *app) prepare(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	a.configDir = configDir

	v, err := loadConfig(configDir)
	if err != nil {
		return err
	}

	level := firstNonEmpty(a.flags.logLevel, v.GetString(cfgKeyLogLevel))
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}
	a.log = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).
		Level(lvl).
		With().Timestamp().Str("command", cmd.Name()).Logger()

	dsn, err := paths.ResolveDSN(a.flags.dsn, v.GetString(cfgKeyDSN))
	if err != nil {
		return fmt.Errorf("resolve dsn: %w", err)
	}
	a.config = types.Config{
		Driver: firstNonEmpty(a.flags.driver, v.GetString(cfgKeyDriver)),
		DSN:    dsn,
	}
	if err := a.config.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	a.log.Debug().Str("config_dir", configDir).Str("driver", a.config.Driver).Msg("configured")
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
