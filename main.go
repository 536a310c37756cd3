package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"lending-library/internal/config"
	"lending-library/internal/logging"
	"lending-library/library"
)

// app is the state shared by every command of one invocation.
type app struct {
	cfgPath  string
	dbPath   string
	logLevel string

	cfg    config.FileConfig
	logger *slog.Logger
	mgr    *library.Manager
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := execute(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// execute runs one command line against a fresh command tree.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	defer a.close()
	return root.ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "lending-library",
		Short:        "Manage the people, books and loans of a lending library",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgPath, "config", config.ConfigPath, "path to the YAML configuration file")
	flags.StringVar(&a.dbPath, "db", "", "SQLite database file (overrides the configuration)")
	flags.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides the configuration)")

	root.AddCommand(
		newPersonCmd(a),
		newBookCmd(a),
		newLoanCmd(a),
		newExportCmd(a),
	)
	return root
}

func (a *app) open(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.DatabasePath = a.dbPath
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg
	a.logger = logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr()).With(
		"run_id", uuid.NewString(),
		"command", cmd.CommandPath(),
	)

	mgr, err := library.Open(cmd.Context(), cfg.DatabasePath,
		library.WithLogger(a.logger),
		library.WithLoanDays(cfg.LoanDays),
	)
	if err != nil {
		a.logger.Error("open library failed", "db", cfg.DatabasePath, "error", err)
		return fmt.Errorf("error opening database: %w", err)
	}
	a.mgr = mgr
	a.logger.Debug("library opened", "db", cfg.DatabasePath)
	return nil
}

func (a *app) close() {
	if a.mgr == nil {
		return
	}
	if err := a.mgr.Close(); err != nil {
		a.logger.Warn("close library failed", "error", err)
	}
	a.mgr = nil
}
