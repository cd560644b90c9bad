package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/presence"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/shared"
)

// Mirror receives best-effort projections of registry membership.
// Satisfied by the Redis presence mirror; nil disables mirroring.
type Mirror interface {
	RecordJoin(user presence.Identity, onlineCount int)
	RecordLeave(user presence.Identity, onlineCount int)
	SyncSnapshot(snapshot []presence.Identity)
}

// HubConfig contains tuning knobs for the hub and its sessions.
type HubConfig struct {
	// SendQueueSize bounds each session's outbound queue.
	SendQueueSize int

	// WriteTimeout is the per-frame write deadline.
	WriteTimeout time.Duration

	// PingInterval is how often keep-alive pings are sent.
	// Must be shorter than PongWait.
	PingInterval time.Duration

	// PongWait is how long to wait for a pong before dropping the connection.
	PongWait time.Duration

	// MaxMessageSize bounds inbound frames.
	MaxMessageSize int64

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultHubConfig returns sensible defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SendQueueSize:  32,
		WriteTimeout:   10 * time.Second,
		PingInterval:   54 * time.Second,
		PongWait:       60 * time.Second,
		MaxMessageSize: 4096,
	}
}

// Hub owns the connection registry and the session set. Every membership
// change recomputes the deduplicated online set once and fans it out to all
// open connections, announced or not.
type Hub struct {
	cfg      HubConfig
	registry *presence.Registry
	bus      shared.EventBus
	mirror   Mirror
	logger   *slog.Logger

	// stateMu serializes every membership change together with its fan-out:
	// registry mutation, snapshot and enqueue happen as one atomic step, so
	// each destination receives snapshots in the order the registry changed.
	stateMu sync.Mutex

	mu       sync.RWMutex
	sessions map[*Session]struct{}
	closed   bool
}

// NewHub creates a hub. The event bus and mirror are optional; pass nil to
// disable the corresponding side effects.
func NewHub(cfg HubConfig, bus shared.EventBus, mirror Mirror) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = 32
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 54 * time.Second
	}
	if cfg.PongWait <= cfg.PingInterval {
		cfg.PongWait = cfg.PingInterval + 6*time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}

	return &Hub{
		cfg:      cfg,
		registry: presence.NewRegistry(),
		bus:      bus,
		mirror:   mirror,
		logger:   cfg.Logger,
		sessions: make(map[*Session]struct{}),
	}
}

// Snapshot returns the current deduplicated online set.
func (h *Hub) Snapshot() []presence.Identity {
	return h.registry.Snapshot()
}

// OnlineCount returns the number of distinct online users.
func (h *Hub) OnlineCount() int {
	return len(h.registry.Snapshot())
}

// SessionCount returns the number of open connections, announced or not.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// attach adds a session to the set and runs its pumps. Blocks until the
// session's read loop exits, so callers run it from the upgrade goroutine.
func (h *Hub) attach(s *Session) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.close()
		return
	}
	h.sessions[s] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("session attached", "conn_id", string(s.id))
	s.run()
}

// announce registers the session's identity and broadcasts the new snapshot.
// Re-announcing on the same connection overwrites the identity.
func (h *Hub) announce(s *Session, identity presence.Identity) {
	h.stateMu.Lock()

	wasOnline := false
	for _, u := range h.registry.Snapshot() {
		if u.ID == identity.ID {
			wasOnline = true
			break
		}
	}

	if err := h.registry.Register(s.id, identity); err != nil {
		h.stateMu.Unlock()
		s.logger.Debug("register rejected", "error", err)
		return
	}

	snapshot := h.registry.Snapshot()

	h.logger.Info("user announced",
		"user_id", identity.ID,
		"conn_id", string(s.id),
		"online", len(snapshot),
	)

	if h.mirror != nil && !wasOnline {
		h.mirror.RecordJoin(identity, len(snapshot))
	}

	failed := h.membershipChanged(snapshot)
	h.stateMu.Unlock()

	for _, dead := range failed {
		h.detach(dead)
	}
}

// detach removes a session, unregisters its identity if announced, and
// broadcasts the shrunken snapshot. Idempotent: the read loop, the write
// pump and broadcast failures may all race into it.
func (h *Hub) detach(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; !ok {
		h.mu.Unlock()
		s.close()
		return
	}
	delete(h.sessions, s)
	h.mu.Unlock()
	s.close()

	h.stateMu.Lock()

	identity, hadIdentity := h.registry.Identity(s.id)
	h.registry.Unregister(s.id)

	if !hadIdentity {
		h.stateMu.Unlock()
		// Never announced: no registry change, nothing to broadcast.
		h.logger.Debug("session detached before announce", "conn_id", string(s.id))
		return
	}

	snapshot := h.registry.Snapshot()

	h.logger.Info("user disconnected",
		"user_id", identity.ID,
		"conn_id", string(s.id),
		"online", len(snapshot),
	)

	if h.mirror != nil {
		stillOnline := false
		for _, u := range snapshot {
			if u.ID == identity.ID {
				stillOnline = true
				break
			}
		}
		if !stillOnline {
			h.mirror.RecordLeave(identity, len(snapshot))
		}
	}

	failed := h.membershipChanged(snapshot)
	h.stateMu.Unlock()

	for _, dead := range failed {
		h.detach(dead)
	}
}

// membershipChanged fans the snapshot out to every open connection and
// publishes it to the event bus. The snapshot is taken once by the caller;
// every destination sees the same consistent view. Runs under stateMu, so
// sessions whose queue rejected the frame are returned for the caller to
// detach after releasing it.
func (h *Hub) membershipChanged(snapshot []presence.Identity) []*Session {
	frame, err := encodePresenceUpdate(snapshot)
	if err != nil {
		h.logger.Error("failed to encode snapshot", "error", err)
		return nil
	}

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	var failed []*Session
	for _, s := range targets {
		if err := s.enqueue(frame); err != nil {
			// Send failure is isolated: this session goes down, the rest
			// still get the snapshot.
			s.logger.Debug("broadcast enqueue failed", "error", err)
			failed = append(failed, s)
		}
	}

	if h.bus != nil {
		if err := h.bus.Publish(presence.NewSnapshotEvent("hub", snapshot)); err != nil {
			h.logger.Debug("snapshot publish failed", "error", err)
		}
	}

	return failed
}

// SyncMirror pushes a full snapshot to the mirror, repairing drift from
// dropped updates. Called periodically by the server binary.
func (h *Hub) SyncMirror() {
	if h.mirror == nil {
		return
	}
	h.mirror.SyncSnapshot(h.registry.Snapshot())
}

// Shutdown closes every session and stops accepting new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	targets := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		targets = append(targets, s)
	}
	h.sessions = make(map[*Session]struct{})
	h.mu.Unlock()

	h.stateMu.Lock()
	for _, s := range targets {
		h.registry.Unregister(s.id)
	}
	h.stateMu.Unlock()

	for _, s := range targets {
		s.close()
	}

	h.logger.Info("hub shut down", "sessions_closed", len(targets))
}
