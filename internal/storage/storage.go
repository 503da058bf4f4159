package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Config selects and configures a backend
type Config struct {
	Type     StorageType
	BasePath string
	S3       S3Config
}

// New returns the configured backend, or nil for type none
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Type {
	case StorageTypeNone, "":
		return nil, nil
	case StorageTypeLocal:
		local, err := NewLocalStorage(cfg.BasePath)
		if err != nil {
			return nil, err
		}
		return local, nil
	case StorageTypeS3:
		s3, err := NewS3Storage(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return s3, nil
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}

// DeliveryPrefix is the key prefix of every callback delivery record
const DeliveryPrefix = "deliveries/"

// BuildDeliveryKey builds the key of a callback delivery record
func BuildDeliveryKey(jobID string, at time.Time) string {
	return fmt.Sprintf("%s%s/%s.json", DeliveryPrefix, at.UTC().Format("2006-01-02"), jobID)
}

// IsDeliveryKeyFor reports whether key is a delivery record of jobID
func IsDeliveryKeyFor(key, jobID string) bool {
	return strings.HasPrefix(key, DeliveryPrefix) && strings.HasSuffix(key, "/"+jobID+".json")
}
