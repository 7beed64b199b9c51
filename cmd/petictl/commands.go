package main

import (
	"context"
	"fmt"

	"github.com/luantaraschi/petichat-definitive/config"
	"github.com/luantaraschi/petichat-definitive/queue"

	"github.com/spf13/cobra"
)

var (
	cfg *config.Config

	downSteps    int
	userEmail    string
	userPassword string
	userName     string
	userFirm     string
	userOAB      string
	datasetURL   string
	failedKind   string
	failedLimit  int

	rootCmd = &cobra.Command{
		Use:           "petictl",
		Short:         "Operate a PetiChat installation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.Load()
			return cfg.Validate()
		},
	}

	// --- Database ---
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE:  runMigrateUp,
	}
	migrateDownCmd = &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrateDown,
	}
	migrateVersionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE:  runMigrateVersion,
	}

	// --- Accounts ---
	createUserCmd = &cobra.Command{
		Use:   "create-user",
		Short: "Create a firm with its owner account",
		Args:  cobra.NoArgs,
		RunE:  runCreateUser,
	}

	// --- Background jobs ---
	ingestCmd = &cobra.Command{
		Use:   "ingest [source]",
		Short: "Queue a jurisprudence ingestion for a configured source",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngest,
	}
	embeddingsCmd = &cobra.Command{
		Use:   "embeddings",
		Short: "Manage jurisprudence embeddings",
	}
	embeddingsBackfillCmd = &cobra.Command{
		Use:   "backfill",
		Short: "Queue embedding of every chunk still missing a vector",
		Args:  cobra.NoArgs,
		RunE:  runEmbeddingsBackfill,
	}
	jobsCmd = &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and recover background jobs",
	}
	jobsStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Print job counts per kind and status",
		Args:  cobra.NoArgs,
		RunE:  runJobsStats,
	}
	jobsFailedCmd = &cobra.Command{
		Use:   "failed",
		Short: "List archived failed jobs",
		Args:  cobra.NoArgs,
		RunE:  runJobsFailed,
	}
	jobsRetryCmd = &cobra.Command{
		Use:   "retry [job id]",
		Short: "Move a failed job back to the waiting list",
		Args:  cobra.ExactArgs(1),
		RunE:  runJobsRetry,
	}

	// --- Maintenance ---
	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Archive abandoned drafts now",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}
)

func init() {
	migrateDownCmd.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)

	createUserCmd.Flags().StringVar(&userEmail, "email", "", "login e-mail")
	createUserCmd.Flags().StringVar(&userPassword, "password", "", "initial password (min 8 chars)")
	createUserCmd.Flags().StringVar(&userName, "name", "", "display name")
	createUserCmd.Flags().StringVar(&userFirm, "firm", "", "law firm name")
	createUserCmd.Flags().StringVar(&userOAB, "oab", "", "OAB registration number")
	for _, f := range []string{"email", "password", "name", "firm"} {
		_ = createUserCmd.MarkFlagRequired(f)
	}

	ingestCmd.Flags().StringVar(&datasetURL, "url", "", "dataset URL overriding the configured one")

	embeddingsCmd.AddCommand(embeddingsBackfillCmd)

	jobsFailedCmd.Flags().StringVar(&failedKind, "kind", "", "only jobs of this kind")
	jobsFailedCmd.Flags().IntVar(&failedLimit, "limit", 20, "maximum jobs to list")
	jobsCmd.AddCommand(jobsStatsCmd, jobsFailedCmd, jobsRetryCmd)

	rootCmd.AddCommand(migrateCmd, createUserCmd, ingestCmd, embeddingsCmd, jobsCmd, sweepCmd)
}

// withQueue opens a Redis-backed queue for the duration of fn
func withQueue(ctx context.Context, fn func(q *queue.RedisQueue) error) error {
	rdb, err := queue.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer rdb.Close()
	return fn(queue.NewRedisQueue(rdb))
}
