package callbacks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kosarica/chunk-service/internal/storage"
)

// Archive reads and removes the delivery records the callback sweeper stores
type Archive struct {
	store storage.Storage
}

// NewArchive creates an archive over store
func NewArchive(store storage.Storage) *Archive {
	return &Archive{store: store}
}

func (a *Archive) keys(ctx context.Context, jobID string) ([]string, error) {
	all, err := a.store.List(ctx, storage.DeliveryPrefix)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	keys := make([]string, 0, 1)
	for _, key := range all {
		if storage.IsDeliveryKeyFor(key, jobID) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Deliveries returns the archived delivery records of a job, oldest first
func (a *Archive) Deliveries(ctx context.Context, jobID string) ([]Delivery, error) {
	keys, err := a.keys(ctx, jobID)
	if err != nil {
		return nil, err
	}

	deliveries := make([]Delivery, 0, len(keys))
	for _, key := range keys {
		content, err := a.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read delivery %s: %w", key, err)
		}
		var d Delivery
		if err := json.Unmarshal(content, &d); err != nil {
			return nil, fmt.Errorf("decode delivery %s: %w", key, err)
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, nil
}

// Remove deletes the archived delivery records of a job and returns how many
// were removed
func (a *Archive) Remove(ctx context.Context, jobID string) (int, error) {
	keys, err := a.keys(ctx, jobID)
	if err != nil {
		return 0, err
	}
	for i, key := range keys {
		if err := a.store.Delete(ctx, key); err != nil {
			return i, fmt.Errorf("delete delivery %s: %w", key, err)
		}
	}
	return len(keys), nil
}
