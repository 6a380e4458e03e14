// Package cli implements forgectl, the operator command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/config"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/provider"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/repository/postgres"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// CreditLedger is the subset of the ledger used by operators
type CreditLedger interface {
	Grant(ctx context.Context, workspaceID int32, amount int64) (int64, error)
	Balance(ctx context.Context, workspaceID int32) (int64, error)
}

// Sweeper runs one reconciliation pass and reports how many jobs it failed
type Sweeper interface {
	Sweep(ctx context.Context) int
}

// app holds the dependencies commands run against
type app struct {
	migrate func(ctx context.Context) (int64, error)
	ledger  CreditLedger
	sweeper Sweeper
	close   func()
}

// wireFunc builds the app lazily so that --help works without a database
type wireFunc func(ctx context.Context) (*app, error)

// Execute runs forgectl
func Execute() error {
	return newRootCmd(wireApp).Execute()
}

func newRootCmd(wire wireFunc) *cobra.Command {
	var verbose bool
	var a *app

	rootCmd := &cobra.Command{
		Use:           "forgectl",
		Short:         "Operate a MediaForge deployment",
		Long:          "forgectl applies schema migrations, grants workspace credits and runs the stale job sweep against the configured database.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).Level(level)

			var err error
			a, err = wire(cmd.Context())
			return err
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if a != nil && a.close != nil {
				a.close()
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	get := func() *app { return a }
	rootCmd.AddCommand(
		newMigrateCmd(get),
		newCreditsCmd(get),
		newSweepCmd(get),
	)
	return rootCmd
}

func wireApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadForCLI()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Sweeping needs provider deadlines but never dispatches, so no storage
	// or HTTP client is wired
	registry, err := provider.BuildRegistry(cfg, nil, nil)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("configure providers: %w", err)
	}

	directory := service.NewDirectoryService(
		postgres.NewUserRepository(pool),
		postgres.NewWorkspaceRepository(pool),
		postgres.NewMembershipRepository(pool),
		service.WorkspaceDefaults{InitialCredits: cfg.Workspaces.InitialCredits, MaxUsers: cfg.Workspaces.MaxUsers},
	)
	generation := service.NewGenerationService(directory, postgres.NewJobRepository(pool), postgres.NewTxRunner(pool), registry, nil, service.GenerationConfig{
		DispatchTimeout: cfg.Jobs.DispatchTimeout,
	})
	sweeper := service.NewReconciliationWorker(generation, log.Logger, service.ReconciliationWorkerConfig{
		Interval:  cfg.Jobs.SweepInterval,
		BatchSize: cfg.Jobs.SweepBatchSize,
	})

	return &app{
		migrate: func(ctx context.Context) (int64, error) { return postgres.Migrate(ctx, pool) },
		ledger:  service.NewLedgerService(postgres.NewLedgerRepository(pool)),
		sweeper: sweeper,
		close:   pool.Close,
	}, nil
}

// Main is the forgectl entrypoint
func Main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
