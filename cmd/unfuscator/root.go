package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"unfuscator/internal/config"
	"unfuscator/internal/logging"
	"unfuscator/internal/mapping"
)

var (
	// AppVersion is set at build time.
	AppVersion = "dev"
	// AppBuildTime is set at build time.
	AppBuildTime string
)

// app carries the state shared by every subcommand.
type app struct {
	v       *viper.Viper
	cfgFile string
	verbose bool

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "unfuscator",
		Short: "Resolve obfuscated .NET stack traces with Dotfuscator maps",
		Long: heredoc.Doc(`
			unfuscator loads Dotfuscator renaming maps into a store and rewrites
			obfuscated stack traces with the original method signatures.

			Every flag below can also be set in the config file or through an
			UNFUSCATOR_ environment variable (UNFUSCATOR_STORE_TYPE, ...).`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.config/unfuscator/config.yaml)")
	pf.BoolVarP(&a.verbose, "verbose", "V", false, "verbose output")
	pf.String("store", "", "store type: sqlite, postgres, badger or memory")
	pf.String("db", "", "SQLite database file or Badger directory")
	pf.String("dsn", "", "PostgreSQL connection string")
	a.v.BindPFlag(config.KeyStoreType, pf.Lookup("store"))
	a.v.BindPFlag(config.KeyStorePath, pf.Lookup("db"))
	a.v.BindPFlag(config.KeyStoreDSN, pf.Lookup("dsn"))

	root.AddCommand(
		newLoadCmd(a),
		newTraceCmd(a),
		newVersionsCmd(a),
		newStatsCmd(a),
		newWatchCmd(a),
		newServeCmd(a),
		newMCPCmd(a),
		newMigrateCmd(a),
		newVersionCmd(),
	)
	root.CompletionOptions.HiddenDefaultCmd = true
	return root
}

// init reads the configuration and sets up logging.
func (a *app) init(cmd *cobra.Command) error {
	used, err := config.Init(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	if a.cfg, err = config.Load(a.v); err != nil {
		return err
	}

	a.cfg.Log.Component = "unfuscator"
	a.cfg.Log.Output = cmd.ErrOrStderr()
	if a.verbose {
		a.cfg.Log.Level = logging.LevelDebug
	}
	a.logger = logging.New(a.cfg.Log)
	slog.SetDefault(a.logger)

	if used != "" {
		a.logger.Debug("using config file", "path", used)
	}
	return nil
}

func (a *app) openStore(ctx context.Context) (mapping.Store, error) {
	a.logger.Debug("opening store", "store", a.cfg.Store.String())
	store, err := config.OpenStore(ctx, a.cfg.Store, a.logger)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func closeStore(store mapping.Store, logger *slog.Logger) {
	if err := store.Close(); err != nil {
		logger.Warn("closing store", "error", err)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the unfuscator version",
		Args:  cobra.NoArgs,
		// no config needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			if AppBuildTime != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "unfuscator %s (built %s)\n", AppVersion, AppBuildTime)
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unfuscator %s\n", AppVersion)
		},
	}
}
