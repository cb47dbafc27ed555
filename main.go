package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/config"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/logging"
)

// app carries what every command needs once flags are parsed.
type app struct {
	configPath string
	logLevel   string
	listName   string

	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	a := &app{}
	if err := a.rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           config.AppName,
		Short:         "Sync dated Markdown notes with Google Tasks",
		Long:          "todo-integrator keeps the checkbox tasks of dated notes and a Google Tasks list in step.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.load()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.config/todo-integrator/config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.listName, "list", "", "Google Tasks list name (overrides config)")

	root.AddCommand(
		a.syncCmd(),
		a.authCmd(),
		a.statusCmd(),
		a.pruneCmd(),
		a.clearCmd(),
		a.daemonCmd(),
		a.configCmd(),
	)
	return root
}

// load resolves configuration (flag > env > file > default) and the logger.
func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.listName != "" {
		cfg.TaskList = a.listName
	}

	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}
