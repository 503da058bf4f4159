package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Purger deletes completed chunk results older than a number of days
type Purger interface {
	PurgeOldResults(ctx context.Context, retentionDays int) (int64, error)
}

// PurgeRecorder receives retention metrics
type PurgeRecorder interface {
	RecordPurged(n int64)
}

// RetentionConfig holds retention settings
type RetentionConfig struct {
	Days     int
	Interval time.Duration
}

// DefaultRetentionConfig returns the default retention settings
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		Days:     30,
		Interval: 24 * time.Hour,
	}
}

// RetentionJob periodically purges old completed results
type RetentionJob struct {
	purger  Purger
	cfg     RetentionConfig
	logger  zerolog.Logger
	metrics PurgeRecorder
}

// NewRetentionJob creates a retention job; zero config fields take the defaults
func NewRetentionJob(purger Purger, cfg RetentionConfig, logger zerolog.Logger) *RetentionJob {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRetentionConfig().Interval
	}
	return &RetentionJob{
		purger: purger,
		cfg:    cfg,
		logger: logger.With().Str("component", "retention").Logger(),
	}
}

// WithMetrics sets the metrics recorder
func (j *RetentionJob) WithMetrics(r PurgeRecorder) *RetentionJob {
	j.metrics = r
	return j
}

// Run purges once
func (j *RetentionJob) Run(ctx context.Context) (int64, error) {
	n, err := j.purger.PurgeOldResults(ctx, j.cfg.Days)
	if err != nil {
		return 0, err
	}
	if j.metrics != nil {
		j.metrics.RecordPurged(n)
	}
	return n, nil
}

// Start purges on every interval until ctx is done. Days <= 0 disables it.
func (j *RetentionJob) Start(ctx context.Context) {
	if j.cfg.Days <= 0 {
		j.logger.Info().Msg("Retention disabled")
		return
	}

	j.logger.Info().
		Int("retention_days", j.cfg.Days).
		Dur("interval", j.cfg.Interval).
		Msg("Starting retention job")

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("Retention job stopping")
			return
		case <-ticker.C:
			if _, err := j.Run(ctx); err != nil && ctx.Err() == nil {
				j.logger.Error().Err(err).Msg("Retention purge failed")
			}
		}
	}
}
