package main

import (
	"context"
	"fmt"

	"github.com/kosarica/chunk-service/internal/cache"
	"github.com/kosarica/chunk-service/internal/callbacks"
	"github.com/kosarica/chunk-service/internal/storage"
	"github.com/spf13/cobra"
)

// deliveriesCmd represents the deliveries command
var deliveriesCmd = &cobra.Command{
	Use:   "deliveries <job-id>",
	Short: "Show the archived webhook deliveries of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeliveries,
}

func init() {
	rootCmd.AddCommand(deliveriesCmd)
}

func runDeliveries(cmd *cobra.Command, args []string) error {
	if err := validateOutput(); err != nil {
		return err
	}
	if cfg == nil {
		return fmt.Errorf("config required for %s command but not loaded", cmd.Name())
	}
	ctx := cmd.Context()

	store, err := newArchiveStorage(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("delivery archive is disabled (storage.type is none)")
	}

	deliveries, err := callbacks.NewArchive(store).Deliveries(ctx, args[0])
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(deliveries)
	}
	if len(deliveries) == 0 {
		fmt.Println("No deliveries recorded")
		return nil
	}

	w := newTable()
	fmt.Fprintln(w, "DISPATCHED\tDELIVERED\tSTATUS\tATTEMPTS\tURL\tERROR")
	for _, d := range deliveries {
		fmt.Fprintf(w, "%s\t%t\t%d\t%d\t%s\t%s\n",
			d.DispatchedAt.Format("2006-01-02 15:04:05"), d.Delivered, d.StatusCode, d.Attempts, d.CallbackURL, truncate(d.Error, 40))
	}
	return w.Flush()
}

// newArchiveStorage opens the configured delivery archive; nil when disabled
func newArchiveStorage(ctx context.Context) (storage.Storage, error) {
	store, err := storage.New(ctx, storage.Config{
		Type:     storage.StorageType(cfg.Storage.Type),
		BasePath: cfg.Storage.BasePath,
		S3: storage.S3Config{
			Endpoint:  cfg.Storage.S3.Endpoint,
			Bucket:    cfg.Storage.S3.Bucket,
			AccessKey: cfg.Storage.S3.AccessKey,
			SecretKey: cfg.Storage.S3.SecretKey,
			UseSSL:    cfg.Storage.S3.UseSSL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	return store, nil
}

// newResultCache connects to the configured result cache; nil when none is set
func newResultCache(ctx context.Context) (*cache.ResultCache, error) {
	if cfg.Cache.RedisURL == "" {
		return nil, nil
	}
	return cache.NewResultCache(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL, logger)
}
