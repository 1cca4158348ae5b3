package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/roach88/recordstore/internal/config"
	"github.com/roach88/recordstore/internal/logging"
	"github.com/roach88/recordstore/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string // overrides database.dsn
	Driver     string // overrides database.driver
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the recordstore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "recordstore",
		Short: "recordstore - multi-tenant universal record store",
		Long: `A multi-tenant record store for entities, typed dynamic fields,
relationships and balanced transactions, all classified by smart codes.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ./"+config.ProjectConfigFile+" if present)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "database DSN (sqlite path or mysql DSN)")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "database driver (sqlite|mysql)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewExecCommand(opts))
	cmd.AddCommand(NewSmartCodeCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// loadConfig loads layered configuration and applies the --db and --driver flags on top.
func (o *RootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	boot := logging.NewWithOutput(config.LogConfig{Level: "warn", Format: "text"}, cmd.ErrOrStderr())
	if o.Verbose {
		boot.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.NewLoader(boot).Load(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Database != "" {
		cfg.Database.DSN = o.Database
	}
	if o.Driver != "" {
		cfg.Database.Driver = o.Driver
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return cfg, nil
}

// logger builds the command logger. Logs always go to stderr so stdout stays parseable.
func (o *RootOptions) logger(cmd *cobra.Command, cfg *config.Config) *logrus.Logger {
	logger := logging.NewWithOutput(cfg.Log, cmd.ErrOrStderr())
	if o.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

// openStore loads configuration and opens the configured store.
func (o *RootOptions) openStore(cmd *cobra.Command) (*store.Store, *logrus.Logger, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := o.logger(cmd, cfg)

	st, err := store.OpenWithOptions(cfg.Database.DSN, store.OptionsFromConfig(cfg, logger))
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	logger.WithFields(logrus.Fields{
		"driver": st.Driver(),
		"module": "cli",
	}).Debug("Store opened")
	return st, logger, nil
}

// formatter returns the output formatter for a command.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
