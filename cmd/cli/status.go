package main

import (
	"fmt"
	"sort"

	"github.com/kosarica/chunk-service/internal/aggregator"
	"github.com/kosarica/chunk-service/internal/database"
	"github.com/spf13/cobra"
)

var statusLimit int

// statusCmd represents the status command
var statusCmd = dbCommand(&cobra.Command{
	Use:   "status",
	Short: "Show queue counts and recent chunks",
	RunE:  runStatus,
})

// resultCmd represents the result command
var resultCmd = dbCommand(&cobra.Command{
	Use:     "result <job-id>",
	Aliases: []string{"job"},
	Short:   "Show a job and its final result so far",
	Args:    cobra.ExactArgs(1),
	RunE:    runJob,
})

// chunkCmd represents the chunk command
var chunkCmd = dbCommand(&cobra.Command{
	Use:   "chunk <chunk-id>",
	Short: "Show a chunk's status and result",
	Args:  cobra.ExactArgs(1),
	RunE:  runChunk,
})

func init() {
	rootCmd.AddCommand(statusCmd, resultCmd, chunkCmd)

	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "Number of recent chunks to list")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := validateOutput(); err != nil {
		return err
	}
	ctx := cmd.Context()

	snap, err := newQueue().Snapshot(ctx, statusLimit)
	if err != nil {
		return err
	}
	m, err := aggregator.New(pool, logger).Metrics(ctx)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(map[string]any{"queue": snap, "metrics": m})
	}

	statuses := make([]string, 0, len(snap.Counts))
	for s := range snap.Counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)

	fmt.Printf("Chunks: %d total, %d pending, capacity %d\n", snap.Total, snap.Pending, snap.Capacity)
	for _, s := range statuses {
		fmt.Printf("  %-12s %d\n", s, snap.Counts[database.ChunkStatus(s)])
	}
	fmt.Printf("Average response time: %.2fs, success rate: %.1f%%\n\n", m.AverageResponseTimeSeconds, m.SuccessRatePercent)

	w := newTable()
	fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tATTEMPTS\tJOB\tTEXT")
	for _, c := range snap.Recent {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n", c.ID, c.Status, c.Priority, c.Attempts, deref(c.JobID), truncate(c.Text, 40))
	}
	return w.Flush()
}

func runJob(cmd *cobra.Command, args []string) error {
	if err := validateOutput(); err != nil {
		return err
	}
	ctx := cmd.Context()

	job, err := newQueue().GetJob(ctx, args[0])
	if err != nil {
		return err
	}
	result, ok, err := aggregator.New(pool, logger).FinalResult(ctx, job.ID)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		out := map[string]any{"job": job}
		if ok {
			out["final_result"] = result
		}
		return printJSON(out)
	}

	fmt.Printf("Job:      %s\n", job.ID)
	fmt.Printf("Status:   %s\n", job.Status)
	fmt.Printf("Callback: %s\n", job.CallbackURL)
	fmt.Printf("Created:  %s\n", job.CreatedAt.Format("2006-01-02 15:04:05"))
	if ok {
		fmt.Printf("\n%s\n", result)
	} else {
		fmt.Println("\nNo completed chunks yet")
	}
	return nil
}

func runChunk(cmd *cobra.Command, args []string) error {
	status, err := aggregator.New(pool, logger).ChunkStatus(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(status)
}
