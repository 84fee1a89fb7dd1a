// Package cli implements the ledgerctl operator commands.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/riceledger/riceledger/internal/app"
	"github.com/riceledger/riceledger/internal/inventory"
	"github.com/riceledger/riceledger/internal/ledger"
	"github.com/riceledger/riceledger/internal/reports"
)

// ReportSource builds the report bundle.
type ReportSource interface {
	Bundle(ctx context.Context) (reports.Bundle, error)
}

// Options lets callers replace the collaborators the commands open lazily.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	// Reports overrides the store-backed report source.
	Reports ReportSource
	// Config overrides app.LoadConfig.
	Config *app.Config
}

type env struct {
	opts   Options
	cfg    *app.Config
	logger *slog.Logger
}

// NewRootCmd assembles the command tree.
func NewRootCmd(opts Options) *cobra.Command {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	e := &env{opts: opts}

	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operate the rice ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.Config
			if cfg == nil {
				loaded, err := app.LoadConfig()
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if level, _ := cmd.Flags().GetString("log-level"); level != "" {
				cfg.LogLevel = level
			}
			e.cfg = cfg
			e.logger = slog.New(slog.NewTextHandler(opts.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
			return nil
		},
	}
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)
	root.PersistentFlags().String("log-level", "", "override LOG_LEVEL")

	root.AddCommand(newMigrateCmd(e), newReportCmd(e), newJobsCmd(e), newSeedCmd(e))
	return root
}

// Execute runs ledgerctl against the process environment.
func Execute() error {
	cmd := NewRootCmd(Options{})
	if err := cmd.Execute(); err != nil {
		cmd.PrintErrln("error:", err)
		return err
	}
	return nil
}

type services struct {
	inventory *inventory.Service
	ledger    *ledger.Service
}

// openServices opens the configured store and builds the domain services over it.
func (e *env) openServices(ctx context.Context) (services, func(), error) {
	storage, err := app.OpenStorage(ctx, e.cfg, e.logger)
	if err != nil {
		return services{}, nil, err
	}
	return services{
		inventory: inventory.NewService(inventory.Deps{Repo: storage.Inventory, Audit: storage.Audit, Logger: e.logger}, inventory.ServiceConfig{DefaultOwner: e.cfg.LooseDefaultOwner}),
		ledger:    ledger.NewService(ledger.Deps{Repo: storage.Ledger, Audit: storage.Audit, Logger: e.logger}, ledger.ServiceConfig{}),
	}, storage.Close, nil
}

// reportSource returns a report service over the configured store.
func (e *env) reportSource(ctx context.Context) (ReportSource, func(), error) {
	if e.opts.Reports != nil {
		return e.opts.Reports, func() {}, nil
	}
	svc, closeFn, err := e.openServices(ctx)
	if err != nil {
		return nil, nil, err
	}
	return reports.NewService(svc.ledger, svc.inventory, e.logger), closeFn, nil
}

func logLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
