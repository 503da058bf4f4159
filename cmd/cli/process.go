package main

import (
	"context"
	"fmt"

	"github.com/kosarica/chunk-service/internal/aggregator"
	"github.com/kosarica/chunk-service/internal/callbacks"
	"github.com/kosarica/chunk-service/internal/generation"
	apphttp "github.com/kosarica/chunk-service/internal/http"
	"github.com/kosarica/chunk-service/internal/http/ratelimit"
	"github.com/kosarica/chunk-service/internal/settings"
	"github.com/kosarica/chunk-service/internal/sweepers"
	"github.com/kosarica/chunk-service/internal/workers"
	"github.com/spf13/cobra"
)

var (
	processAll       bool
	processCallbacks bool
)

// processCmd represents the process command
var processCmd = dbCommand(&cobra.Command{
	Use:   "process",
	Short: "Process queued chunks now",
	Long: `Claim and process the next queued chunk, or every queued chunk with --all.
Requests honour the configured rate limits. With --callbacks, webhooks of
jobs completed by this run are dispatched before exiting.`,
	RunE: runProcess,
})

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().BoolVar(&processAll, "all", false, "Process until the queue is empty")
	processCmd.Flags().BoolVar(&processCallbacks, "callbacks", false, "Dispatch webhooks of completed jobs afterwards")
}

func newSettingsProvider() *settings.Provider {
	return settings.NewProvider(settings.NewPostgresStore(pool), settings.APIConfig{
		APIKey:     cfg.API.APIKey,
		BaseURL:    cfg.API.BaseURL,
		Model:      cfg.API.Model,
		TokenLimit: cfg.API.TokenLimit,
	}, logger)
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	queue := newQueue()
	agg := aggregator.New(pool, logger)
	client := apphttp.NewClient("chunk-service-cli/1.0")

	dispatcher := workers.NewDispatcher(workers.Deps{
		Queue:   queue,
		Results: agg,
		Limiter: ratelimit.NewLimiter(ratelimit.Config{
			MaxRPM:   cfg.RateLimit.MaxRPM,
			MaxRPH:   cfg.RateLimit.MaxRPH,
			Cooldown: cfg.RateLimit.Cooldown,
		}, logger),
		Settings:  newSettingsProvider(),
		Generator: generation.NewClient(client, cfg.Request.Timeout),
	}, workers.Config{
		MaxRetries:    cfg.Request.MaxRetries,
		BackoffFactor: cfg.Request.BackoffFactor,
		BackoffUnit:   cfg.Request.BackoffUnit,
		ChunkTimeout:  cfg.Dispatch.ChunkTimeout,
	}, logger)
	// Ctrl-C fails the chunk in flight instead of leaving it claimed
	stopOnCancel := context.AfterFunc(ctx, dispatcher.Stop)
	defer stopOnCancel()

	processed := 0
	for {
		outcome, err := dispatcher.ProcessNext(ctx)
		if err != nil {
			return err
		}
		if outcome == nil {
			break
		}
		processed++
		fmt.Printf("%s\t%s\t%d attempt(s)\t%s\n", outcome.ChunkID, outcome.Status, outcome.Attempts, outcome.Reason)
		if !processAll {
			break
		}
	}
	if processed == 0 {
		fmt.Println("Queue is empty")
	}

	if !processCallbacks {
		return nil
	}

	archive, err := newArchiveStorage(ctx)
	if err != nil {
		return err
	}

	sweeper := sweepers.NewCallbackSweeper(queue, callbacks.NewDispatcher(queue, agg, client, callbacks.Config{
		AllowedDomains: cfg.Callback.AllowedDomains,
		AuthToken:      cfg.Callback.AuthToken,
		RetryLimit:     cfg.Callback.RetryLimit,
		RetryDelay:     cfg.Callback.RetryDelay,
		Timeout:        cfg.Callback.Timeout,
	}, logger), archive, logger, cfg.Sweeper.Interval, cfg.Sweeper.MaxConcurrentCallbacks)

	n, err := sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Dispatched %d callback(s)\n", n)
	return nil
}
