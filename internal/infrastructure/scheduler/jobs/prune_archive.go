package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRUNE ARCHIVE JOB
// ══════════════════════════════════════════════════════════════════════════════

// ArchivePruner deletes read notifications older than a cutoff.
// Satisfied by the PostgreSQL notification repository.
type ArchivePruner interface {
	PruneRead(ctx context.Context, before time.Time) (int64, error)
}

// PruneArchiveConfig contains configuration for the prune job.
type PruneArchiveConfig struct {
	// Retention is how long read notifications are kept.
	// Unread notifications are never pruned.
	Retention time.Duration

	// Timeout bounds a single prune pass.
	Timeout time.Duration
}

// DefaultPruneArchiveConfig returns sensible defaults.
func DefaultPruneArchiveConfig() PruneArchiveConfig {
	return PruneArchiveConfig{
		Retention: 30 * 24 * time.Hour,
		Timeout:   time.Minute,
	}
}

// PruneArchiveJob removes stale read notifications from the archive so the
// table does not grow without bound. The in-memory store is untouched.
type PruneArchiveJob struct {
	pruner ArchivePruner
	config PruneArchiveConfig
	logger *slog.Logger
}

// NewPruneArchiveJob creates a new archive retention job.
func NewPruneArchiveJob(pruner ArchivePruner, config PruneArchiveConfig, logger *slog.Logger) *PruneArchiveJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Retention <= 0 {
		config.Retention = DefaultPruneArchiveConfig().Retention
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultPruneArchiveConfig().Timeout
	}

	return &PruneArchiveJob{
		pruner: pruner,
		config: config,
		logger: logger.With(slog.String("job", "prune_archive")),
	}
}

// Name returns the unique name of the job.
func (j *PruneArchiveJob) Name() string {
	return "prune_archive"
}

// Description returns a human-readable description of the job.
func (j *PruneArchiveJob) Description() string {
	return "Deletes read notifications older than the retention window"
}

// Run performs one prune pass.
func (j *PruneArchiveJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	cutoff := time.Now().Add(-j.config.Retention)

	removed, err := j.pruner.PruneRead(ctx, cutoff)
	if err != nil {
		return shared.WrapError("notification", "Archive", shared.ErrArchiveUnavailable, "prune pass failed", err)
	}

	if removed > 0 {
		j.logger.Info("archive pruned",
			slog.Int64("removed", removed),
			slog.Time("cutoff", cutoff),
		)
	}

	return nil
}
