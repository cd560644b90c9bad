// Package jobs contains scheduled maintenance jobs for the presence hub.
// They run in the background and never touch the hot broadcast path.
package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC MIRROR JOB
// ══════════════════════════════════════════════════════════════════════════════

// PresenceSource provides the authoritative online snapshot holder. The hub's
// in-process registry is the source of truth; the Redis mirror is a replica
// that can drift after a Redis restart or dropped write.
type PresenceSource interface {
	// SyncMirror pushes the full current snapshot to the mirror.
	SyncMirror()

	// OnlineCount returns the number of distinct online users.
	OnlineCount() int
}

// SyncMirrorJob periodically forces a full snapshot push to the presence
// mirror, healing any drift between the registry and Redis.
type SyncMirrorJob struct {
	source PresenceSource
	logger *slog.Logger

	lastOnline atomic.Int64
}

// NewSyncMirrorJob creates a new mirror re-sync job.
func NewSyncMirrorJob(source PresenceSource, logger *slog.Logger) *SyncMirrorJob {
	if logger == nil {
		logger = slog.Default()
	}

	return &SyncMirrorJob{
		source: source,
		logger: logger.With(slog.String("job", "sync_mirror")),
	}
}

// Name returns the unique name of the job.
func (j *SyncMirrorJob) Name() string {
	return "sync_mirror"
}

// Description returns a human-readable description of the job.
func (j *SyncMirrorJob) Description() string {
	return "Re-syncs the full online snapshot to the Redis presence mirror"
}

// Run pushes the current snapshot to the mirror.
func (j *SyncMirrorJob) Run(_ context.Context) error {
	started := time.Now()

	j.source.SyncMirror()

	online := int64(j.source.OnlineCount())
	prev := j.lastOnline.Swap(online)

	j.logger.Debug("mirror re-synced",
		slog.Int64("online", online),
		slog.Int64("previous", prev),
		slog.Duration("duration", time.Since(started)),
	)

	return nil
}
