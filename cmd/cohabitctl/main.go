package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dukerupert/cohabit/internal/config"
	"github.com/dukerupert/cohabit/internal/database"
	"github.com/dukerupert/cohabit/internal/logging"
)

var Version = "dev"

// app holds what every subcommand needs after flags are parsed.
type app struct {
	configPath string
	getenv     func(string) string
	cfg        config.Config
	logger     *slog.Logger
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath, a.getenv)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	return nil
}

func (a *app) openDB() (*sql.DB, error) {
	db, err := database.Open(a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", a.cfg.DBPath, err)
	}
	return db, nil
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "cohabitctl",
		Short:   "Operator tools for the cohabitation agreement service",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", a.getenv("COHABIT_CONFIG"), "Path to YAML config file")

	rootCmd.AddCommand(templateCmd(a))
	rootCmd.AddCommand(renderCmd(a))
	rootCmd.AddCommand(archiveCmd(a))
	rootCmd.AddCommand(adminCmd(a))
	return rootCmd
}

func main() {
	rootCmd := newRootCmd(&app{getenv: os.Getenv})
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
