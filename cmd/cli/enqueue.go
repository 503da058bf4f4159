package main

import (
	"fmt"
	"strings"

	"github.com/kosarica/chunk-service/internal/parsers"
	"github.com/kosarica/chunk-service/internal/taskqueue"
	"github.com/spf13/cobra"
)

var (
	enqueueFile      string
	enqueueCallback  string
	enqueuePriority  int
	enqueueSheet     string
	enqueueDelimiter string
)

// enqueueCmd represents the enqueue command
var enqueueCmd = dbCommand(&cobra.Command{
	Use:   "enqueue [text]",
	Short: "Enqueue a chunk or a file of chunks",
	Long: `Enqueue a single chunk given as an argument, or every row of a CSV/XLSX file.
A file is enqueued as one job and requires --callback-url; the job's final
result is posted there once all chunks completed.`,
	Example: `  chunk-service enqueue "Summarise this paragraph" --priority 3
  chunk-service enqueue --file ./chunks.csv --callback-url https://hooks.example.com/done`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEnqueue,
})

func init() {
	rootCmd.AddCommand(enqueueCmd)

	enqueueCmd.Flags().StringVarP(&enqueueFile, "file", "f", "", "CSV or XLSX file to enqueue as one job")
	enqueueCmd.Flags().StringVar(&enqueueCallback, "callback-url", "", "Webhook receiving the job result (required with --file)")
	enqueueCmd.Flags().IntVar(&enqueuePriority, "priority", parsers.DefaultPriority, "Priority of a single chunk")
	addFileFlags(enqueueCmd, &enqueueSheet, &enqueueDelimiter)
}

func newQueue() *taskqueue.Queue {
	return taskqueue.New(pool, taskqueue.Config{
		MaxSize:        cfg.Queue.MaxSize,
		ChunkSizeLimit: cfg.Queue.ChunkSizeLimit,
	}, logger)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	queue := newQueue()

	if enqueueFile == "" {
		if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
			return fmt.Errorf("provide the chunk text or --file")
		}
		id, err := queue.Enqueue(ctx, taskqueue.EnqueueInput{Text: args[0], Priority: enqueuePriority})
		if err != nil {
			return err
		}
		fmt.Printf("Queued chunk %s\n", id)
		return nil
	}

	if len(args) > 0 {
		return fmt.Errorf("text argument and --file are mutually exclusive")
	}
	if enqueueCallback == "" {
		return fmt.Errorf("--callback-url is required with --file")
	}

	items, err := parsers.ParseFile(enqueueFile, fileOptions(enqueueSheet, enqueueDelimiter))
	if err != nil {
		return err
	}

	jobID, err := queue.EnqueueBatch(ctx, items, enqueueCallback)
	if err != nil {
		return err
	}
	logger.Info().Str("job_id", jobID).Int("chunks", len(items)).Str("file", enqueueFile).Msg("File enqueued")
	fmt.Printf("Queued job %s with %d chunks\n", jobID, len(items))
	return nil
}
