// Package redis implements the Redis-backed presence mirror.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/presence"
	"github.com/skillswap-hub/skillswap-presence-hub/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRESENCE MIRROR ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrMirrorClosed is returned when operations are attempted on a closed mirror.
	ErrMirrorClosed = errors.New("presence_mirror: mirror is closed")

	// ErrUserIDEmpty is returned when a user ID is empty.
	ErrUserIDEmpty = errors.New("presence_mirror: user ID cannot be empty")
)

// ══════════════════════════════════════════════════════════════════════════════
// PRESENCE EVENT (for Pub/Sub)
// ══════════════════════════════════════════════════════════════════════════════

// PresenceEventType defines the type of presence change published to Redis.
type PresenceEventType string

const (
	// EventUserJoined is published when a user appears in the registry.
	EventUserJoined PresenceEventType = "user_joined"

	// EventUserLeft is published when a user's last connection is gone.
	EventUserLeft PresenceEventType = "user_left"
)

// PresenceEvent is the Pub/Sub payload for a presence change.
type PresenceEvent struct {
	// Type is the type of event.
	Type PresenceEventType `json:"type"`

	// User is the affected user's identity.
	User presence.Identity `json:"user"`

	// OnlineCount is the registry size after the change.
	OnlineCount int `json:"online_count"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESENCE MIRROR
// ══════════════════════════════════════════════════════════════════════════════

// PresenceMirror projects connection registry membership into Redis.
//
// Architecture:
//   - Each online user has a key "presence:user:{id}" with a TTL
//   - The set "presence:online" holds the IDs of all online users
//   - The channel "presence:updates" broadcasts joins and leaves
//
// All writes go through a bounded queue drained by a single goroutine, so the
// hub's broadcast path never blocks on Redis. When the queue is full or the
// circuit breaker is open, updates are dropped; the next full sync repairs the
// projection.
type PresenceMirror struct {
	client  *Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger

	ops     chan mirrorOp
	closeCh chan struct{}
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

type mirrorOpKind int

const (
	opJoin mirrorOpKind = iota
	opLeave
	opSync
)

type mirrorOp struct {
	kind        mirrorOpKind
	user        presence.Identity
	onlineCount int
	snapshot    []presence.Identity
}

// PresenceMirrorConfig contains configuration for PresenceMirror.
type PresenceMirrorConfig struct {
	// Client is the Redis client to use.
	Client *Client

	// QueueSize bounds the pending write queue (default: 256).
	QueueSize int

	// Logger for structured logging.
	Logger *slog.Logger
}

// NewPresenceMirror creates a mirror and starts its drain goroutine.
func NewPresenceMirror(cfg PresenceMirrorConfig) (*PresenceMirror, error) {
	if cfg.Client == nil {
		return nil, errors.New("presence_mirror: redis client is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	m := &PresenceMirror{
		client:  cfg.Client,
		logger:  cfg.Logger,
		ops:     make(chan mirrorOp, cfg.QueueSize),
		closeCh: make(chan struct{}),
	}

	m.breaker = circuitbreaker.New("presence-mirror",
		circuitbreaker.WithFailureThreshold(5),
		circuitbreaker.WithTimeout(15*time.Second),
		circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			cfg.Logger.Warn("mirror circuit state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		}),
	)

	m.wg.Add(1)
	go m.drainLoop()

	return m, nil
}

// RecordJoin enqueues a join projection. Never blocks.
func (m *PresenceMirror) RecordJoin(user presence.Identity, onlineCount int) {
	m.enqueue(mirrorOp{kind: opJoin, user: user, onlineCount: onlineCount})
}

// RecordLeave enqueues a leave projection. Never blocks.
func (m *PresenceMirror) RecordLeave(user presence.Identity, onlineCount int) {
	m.enqueue(mirrorOp{kind: opLeave, user: user, onlineCount: onlineCount})
}

// SyncSnapshot enqueues a full resync of the online set.
// Called periodically to repair drift from dropped updates.
func (m *PresenceMirror) SyncSnapshot(snapshot []presence.Identity) {
	m.enqueue(mirrorOp{kind: opSync, snapshot: snapshot})
}

func (m *PresenceMirror) enqueue(op mirrorOp) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	select {
	case m.ops <- op:
	default:
		// Queue full. The projection is best-effort; the next sync repairs it.
		m.logger.Debug("mirror queue full, dropping update")
	}
}

// drainLoop applies queued operations to Redis one at a time.
func (m *PresenceMirror) drainLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.closeCh:
			// Drain what is left before exiting.
			for {
				select {
				case op := <-m.ops:
					m.apply(op)
				default:
					return
				}
			}
		case op := <-m.ops:
			m.apply(op)
		}
	}
}

func (m *PresenceMirror) apply(op mirrorOp) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := m.breaker.Execute(ctx, func(ctx context.Context) error {
		switch op.kind {
		case opJoin:
			return m.applyJoin(ctx, op)
		case opLeave:
			return m.applyLeave(ctx, op)
		case opSync:
			return m.applySync(ctx, op)
		default:
			return nil
		}
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			m.logger.Debug("mirror circuit open, skipping update")
			return
		}
		m.logger.Error("mirror update failed", "error", err)
	}
}

func (m *PresenceMirror) applyJoin(ctx context.Context, op mirrorOp) error {
	if op.user.ID == "" {
		return ErrUserIDEmpty
	}

	pipe := m.client.Raw().Pipeline()
	data, err := marshalIdentity(op.user)
	if err != nil {
		return err
	}
	pipe.Set(ctx, PresenceKey(op.user.ID), data, TTLPresenceKey)
	pipe.SAdd(ctx, KeyPresenceOnline, op.user.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	return m.client.Publish(ctx, ChannelPresenceUpdates, PresenceEvent{
		Type:        EventUserJoined,
		User:        op.user,
		OnlineCount: op.onlineCount,
		Timestamp:   time.Now().UTC(),
	})
}

func (m *PresenceMirror) applyLeave(ctx context.Context, op mirrorOp) error {
	if op.user.ID == "" {
		return ErrUserIDEmpty
	}

	pipe := m.client.Raw().Pipeline()
	pipe.Del(ctx, PresenceKey(op.user.ID))
	pipe.SRem(ctx, KeyPresenceOnline, op.user.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	return m.client.Publish(ctx, ChannelPresenceUpdates, PresenceEvent{
		Type:        EventUserLeft,
		User:        op.user,
		OnlineCount: op.onlineCount,
		Timestamp:   time.Now().UTC(),
	})
}

// applySync replaces the online set with the given snapshot and refreshes
// per-user keys. Runs in a single pipeline.
func (m *PresenceMirror) applySync(ctx context.Context, op mirrorOp) error {
	pipe := m.client.Raw().Pipeline()

	pipe.Del(ctx, KeyPresenceOnline)
	for _, user := range op.snapshot {
		data, err := marshalIdentity(user)
		if err != nil {
			return err
		}
		pipe.Set(ctx, PresenceKey(user.ID), data, TTLPresenceKey)
		pipe.SAdd(ctx, KeyPresenceOnline, user.ID)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// READ SIDE
// ══════════════════════════════════════════════════════════════════════════════

// OnlineIDs returns the IDs of users in the mirrored online set.
func (m *PresenceMirror) OnlineIDs(ctx context.Context) ([]string, error) {
	return m.client.SMembers(ctx, KeyPresenceOnline)
}

// OnlineCount returns the size of the mirrored online set.
func (m *PresenceMirror) OnlineCount(ctx context.Context) (int64, error) {
	return m.client.SCard(ctx, KeyPresenceOnline)
}

// OnlineIdentities returns the full identities of mirrored online users.
// Users whose per-user key expired are skipped.
func (m *PresenceMirror) OnlineIdentities(ctx context.Context) ([]presence.Identity, error) {
	ids, err := m.client.SMembers(ctx, KeyPresenceOnline)
	if err != nil {
		return nil, err
	}

	users := make([]presence.Identity, 0, len(ids))
	for _, id := range ids {
		var user presence.Identity
		err := m.client.Get(ctx, PresenceKey(id), &user)
		if err != nil {
			if errors.Is(err, ErrCacheMiss) {
				continue
			}
			return nil, err
		}
		users = append(users, user)
	}

	return users, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Close stops the drain goroutine after flushing queued operations.
func (m *PresenceMirror) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.closeCh)
	m.wg.Wait()

	m.logger.Info("presence mirror closed")
	return nil
}

func marshalIdentity(user presence.Identity) ([]byte, error) {
	data, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return data, nil
}
