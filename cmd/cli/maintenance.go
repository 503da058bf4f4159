package main

import (
	"fmt"

	"github.com/kosarica/chunk-service/internal/aggregator"
	"github.com/kosarica/chunk-service/internal/callbacks"
	"github.com/kosarica/chunk-service/internal/database"
	"github.com/spf13/cobra"
)

var purgeDays int

// migrateCmd represents the migrate command
var migrateCmd = dbCommand(&cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := database.Migrate(ctx, pool); err != nil {
			return err
		}
		version, err := database.MigrationVersion(ctx, pool)
		if err != nil {
			return err
		}
		fmt.Printf("Database at migration version %d\n", version)
		return nil
	},
})

// purgeCmd represents the purge command
var purgeCmd = dbCommand(&cobra.Command{
	Use:   "purge",
	Short: "Delete completed chunks older than the retention period",
	RunE: func(cmd *cobra.Command, args []string) error {
		days := purgeDays
		if !cmd.Flags().Changed("days") {
			days = cfg.Retention.Days
		}
		if days <= 0 {
			return fmt.Errorf("retention days must be positive")
		}

		ctx := cmd.Context()
		agg := aggregator.New(pool, logger)
		resultCache, err := newResultCache(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("Result cache unavailable, cached results left to expire")
		} else if resultCache != nil {
			defer resultCache.Close()
			agg.WithInvalidator(resultCache)
		}

		n, err := agg.PurgeOldResults(ctx, days)
		if err != nil {
			return err
		}
		fmt.Printf("Purged %d completed chunk(s) older than %d day(s)\n", n, days)
		return nil
	},
})

// deleteJobCmd represents the delete-job command
var deleteJobCmd = dbCommand(&cobra.Command{
	Use:   "delete-job <job-id>",
	Short: "Delete a job and all of its chunks",
	Long: `Delete a job and all of its chunks, together with its cached final result
and its archived webhook delivery records.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeleteJob,
})

func runDeleteJob(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jobID := args[0]

	if err := newQueue().DeleteJob(ctx, jobID); err != nil {
		return err
	}
	fmt.Printf("Deleted job %s\n", jobID)

	resultCache, err := newResultCache(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Result cache unavailable, cached result left to expire")
	} else if resultCache != nil {
		defer resultCache.Close()
		if err := resultCache.Delete(ctx, jobID); err != nil {
			logger.Warn().Err(err).Msg("Failed to drop cached result")
		}
	}

	store, err := newArchiveStorage(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return nil
	}
	n, err := callbacks.NewArchive(store).Remove(ctx, jobID)
	if err != nil {
		return err
	}
	if n > 0 {
		fmt.Printf("Removed %d archived delivery record(s)\n", n)
	}
	return nil
}

// recoverCmd represents the recover command
var recoverCmd = dbCommand(&cobra.Command{
	Use:   "recover",
	Short: "Fail chunks left in progress by a stopped service",
	Long: `Mark every in-progress chunk as failed with reason "Interrupted" and update
its job. The server does this at startup; run it only while no server is processing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := newQueue().FailInterrupted(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Failed %d interrupted chunk(s)\n", n)
		return nil
	},
})

func init() {
	rootCmd.AddCommand(migrateCmd, purgeCmd, deleteJobCmd, recoverCmd)

	purgeCmd.Flags().IntVar(&purgeDays, "days", 0, "Retention in days (default: retention.days from config)")
}
