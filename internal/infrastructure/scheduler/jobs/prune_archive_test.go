package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/shared"
)

type fakePruner struct {
	removed int64
	err     error
	cutoff  time.Time
}

func (p *fakePruner) PruneRead(_ context.Context, before time.Time) (int64, error) {
	p.cutoff = before
	return p.removed, p.err
}

func TestPruneArchiveJob_UsesRetentionCutoff(t *testing.T) {
	pruner := &fakePruner{removed: 3}
	job := NewPruneArchiveJob(pruner, PruneArchiveConfig{Retention: 24 * time.Hour},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, job.Run(context.Background()))

	expected := time.Now().Add(-24 * time.Hour)
	assert.WithinDuration(t, expected, pruner.cutoff, time.Minute)
}

func TestPruneArchiveJob_FailureSurfacesArchiveUnavailable(t *testing.T) {
	pruner := &fakePruner{err: errors.New("connection refused")}
	job := NewPruneArchiveJob(pruner, PruneArchiveConfig{},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrArchiveUnavailable)
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
}
