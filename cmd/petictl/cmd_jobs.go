package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/luantaraschi/petichat-definitive/jobs"
	"github.com/luantaraschi/petichat-definitive/models"
	"github.com/luantaraschi/petichat-definitive/queue"
	"github.com/luantaraschi/petichat-definitive/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func runIngest(cmd *cobra.Command, args []string) error {
	source := args[0]
	if datasetURL == "" {
		sources, err := jobs.LoadSources(cfg.IngestSourcesFile)
		if err != nil {
			return err
		}
		if _, ok := sources.Lookup(source); !ok {
			return fmt.Errorf("unknown ingest source %q (see %s)", source, cfg.IngestSourcesFile)
		}
	}
	ctx := cmd.Context()
	return withQueue(ctx, func(q *queue.RedisQueue) error {
		job, err := q.Enqueue(ctx, queue.KindIngestJurisprudence, jobs.IngestPayload{
			Source:     source,
			DatasetURL: datasetURL,
		}, "")
		if err != nil {
			return err
		}
		cmd.Printf("queued ingestion job %s for %s\n", job.ID, source)
		return nil
	})
}

func runEmbeddingsBackfill(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withQueue(ctx, func(q *queue.RedisQueue) error {
		job, err := q.Enqueue(ctx, queue.KindGenerateEmbeddings, jobs.EmbeddingsPayload{}, "")
		if err != nil {
			return err
		}
		cmd.Printf("queued embedding backfill job %s\n", job.ID)
		return nil
	})
}

func runJobsStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withQueue(ctx, func(q *queue.RedisQueue) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tWAITING\tDELAYED\tACTIVE\tCOMPLETED\tFAILED")
		for _, kind := range []queue.Kind{queue.KindGenerateDocument, queue.KindIngestJurisprudence, queue.KindGenerateEmbeddings} {
			counts, err := q.Counts(ctx, kind)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n", kind,
				counts[models.JobStatusWaiting], counts[models.JobStatusDelayed], counts[models.JobStatusActive],
				counts[models.JobStatusCompleted], counts[models.JobStatusFailed])
		}
		return w.Flush()
	})
}

func runJobsFailed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withPool(ctx, func(db *pgxpool.Pool) error {
		records, err := repository.NewJobRecordRepository(db).ListFailed(ctx, failedKind, failedLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tATTEMPTS\tFINISHED\tERROR")
		for _, r := range records {
			lastErr := ""
			if r.LastError != nil {
				lastErr = *r.LastError
			}
			fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\n", r.ID, r.Kind, r.Attempts, r.MaxAttempts,
				r.FinishedAt.Format("2006-01-02 15:04"), lastErr)
		}
		return w.Flush()
	})
}

func runJobsRetry(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withQueue(ctx, func(q *queue.RedisQueue) error {
		job, err := q.Retry(ctx, args[0])
		if err != nil {
			return err
		}
		cmd.Printf("job %s is %s again\n", job.ID, job.Status)
		return nil
	})
}
