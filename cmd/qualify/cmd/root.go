// Package cmd implements the qualify command line.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/solatis/qualify/internal/core/config"
	"github.com/solatis/qualify/internal/logging"
)

// Version is reported by `qualify version`.
const Version = "0.1.0"

// app carries global flags and the state loaded from them.
type app struct {
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "qualify",
		Short: "Qualifier-driven conditional resource resolution",
		Long: `qualify resolves resources whose candidate values are guarded by
conditions over context qualifiers such as language, territory and platform.

It builds normalized bundles from declaration files, stores them, and serves
resolution over gRPC.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
	}

	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&a.dbURL, "db-url", "", "bundle store URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "json", "log format (json, text)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newResolveCmd(a),
		newBundleCmd(a),
		newEditCmd(a),
		newServeCmd(a),
		newMigrateCmd(a),
		newStoreCmd(a),
		newAPIKeyCmd(a),
	)
	return rootCmd
}

// Execute runs the command line.
func Execute() error {
	return NewRootCmd().Execute()
}

// load reads configuration; the --db-url flag takes precedence over
// QUALIFY_STORE_URL and the config file.
func (a *app) load(cmd *cobra.Command, args []string) error {
	a.logger = logging.NewWithWriter(a.logLevel, a.logFormat, cmd.ErrOrStderr())

	v := viper.New()
	if err := v.BindPFlag("store.url", cmd.Root().PersistentFlags().Lookup("db-url")); err != nil {
		return err
	}
	cfg, err := config.LoadWith(v, a.configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg
	return nil
}

// storeURL returns the configured bundle store URL or an error.
func (a *app) storeURL() (string, error) {
	if a.cfg.Store.URL == "" {
		return "", fmt.Errorf("--db-url or %s_STORE_URL required", config.EnvPrefix)
	}
	return a.cfg.Store.URL, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "qualify %s\n", Version)
		},
	}
}

// writeJSON writes v as indented JSON followed by a newline.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
