// Package client implements the presence client: one logical connection for
// the local user. It dials the hub, announces the user's identity, and turns
// the stream of membership snapshots into join notifications via the
// reconciliation algorithm in the presence domain.
//
// Reconnect is deliberately not automatic: the surrounding application owns
// the session lifecycle and decides when a fresh connection is opened.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skillswap-hub/skillswap-presence-hub/internal/application/command"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/notification"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/presence"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/shared"
	"github.com/skillswap-hub/skillswap-presence-hub/pkg/retry"
)

// Wire frame types. The client speaks the same protocol as the hub but owns
// its own envelope structs: the two halves are deployed separately and must
// not reach into each other's packages.
const (
	frameUserJoined     = "USER_JOINED"
	framePresenceUpdate = "PRESENCE_UPDATE"
)

type announceFrame struct {
	Type string            `json:"type"`
	User presence.Identity `json:"user"`
}

type snapshotFrame struct {
	Type  string              `json:"type"`
	Users []presence.Identity `json:"users"`
}

// Notifier receives join notifications detected by reconciliation.
// Nil disables notifications; see CommandNotifier for the standard wiring.
type Notifier interface {
	PushJoin(ctx context.Context, owner string, peer presence.Identity) error
}

// CommandNotifier adapts the push-notification command handler to Notifier.
type CommandNotifier struct {
	Handler *command.PushNotificationHandler
}

// PushJoin implements Notifier.
func (n *CommandNotifier) PushJoin(ctx context.Context, owner string, peer presence.Identity) error {
	name := peer.Name
	if name == "" {
		name = peer.ID
	}

	_, err := n.Handler.Handle(ctx, command.PushNotificationCommand{
		OwnerID: owner,
		Type:    string(notification.TypePeerJoined),
		Title:   fmt.Sprintf("%s is online", name),
		Message: fmt.Sprintf("%s just joined — say hi or ask for help", name),
		Link:    "/profile/" + peer.ID,
	})
	return err
}

// Config contains client configuration.
type Config struct {
	// URL is the hub's WebSocket endpoint, e.g. "ws://localhost:8080/ws".
	URL string

	// Self is the local user's identity, announced on connect.
	Self presence.Identity

	// Notifier receives join notifications. Optional.
	Notifier Notifier

	// Bus receives a presence.snapshot event for every snapshot applied,
	// plus a final empty snapshot on teardown. Optional.
	Bus shared.EventBus

	// WriteWait bounds outbound writes (default 10s).
	WriteWait time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// Client maintains one logical presence connection for the local user.
// Snapshots are processed by a single reader goroutine, so the reconciliation
// state is serialized by construction.
type Client struct {
	self     presence.Identity
	url      string
	notifier Notifier
	bus      shared.EventBus
	logger   *slog.Logger

	dialRetrier *retry.Retrier
	writeWait   time.Duration

	mu         sync.Mutex
	conn       *websocket.Conn
	cancel     context.CancelFunc
	done       chan struct{}
	reconciler *presence.Reconciler
	connected  bool
}

// New creates a client. Dial must be called before snapshots flow.
func New(cfg Config) (*Client, error) {
	if err := cfg.Self.Validate(); err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		return nil, shared.NewDomainError("presence", "New", shared.ErrInvalidInput, "hub URL cannot be empty")
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		self:        cfg.Self,
		url:         cfg.URL,
		notifier:    cfg.Notifier,
		bus:         cfg.Bus,
		logger:      cfg.Logger.With("user_id", cfg.Self.ID),
		dialRetrier: retry.DialRetrier(),
		writeWait:   cfg.WriteWait,
		reconciler:  presence.NewReconciler(cfg.Self.ID),
	}, nil
}

// Dial opens the connection, announces the local identity, and starts the
// reader. Dialing is retried with backoff; a connection that cannot be
// established surfaces as a transport error and leaves the client usable
// for a later attempt.
func (c *Client) Dial(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return shared.ErrAlreadyConnected
	}

	var conn *websocket.Conn
	err := c.dialRetrier.Do(ctx, func(ctx context.Context) error {
		var err error
		conn, _, err = websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		return err
	})
	if err != nil {
		return shared.WrapError("presence", "Dial", shared.ErrConnectionFailed, "failed to reach hub", err)
	}

	announce, err := json.Marshal(announceFrame{Type: frameUserJoined, User: c.self})
	if err != nil {
		_ = conn.Close()
		return shared.WrapError("presence", "Dial", shared.ErrProtocol, "failed to encode announce", err)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, announce); err != nil {
		_ = conn.Close()
		return shared.WrapError("presence", "Dial", shared.ErrTransport, "failed to announce", err)
	}

	readerCtx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.cancel = cancel
	c.done = make(chan struct{})
	c.connected = true

	go c.readLoop(readerCtx, conn, c.done)

	c.logger.Info("presence connection established", "url", c.url)
	return nil
}

// Announce re-sends the local identity on the live connection. The hub
// treats a repeat announce from the same connection as an overwrite, which
// is how a display name or avatar change propagates without reconnecting.
// The user id is immutable for the lifetime of the client.
func (c *Client) Announce(identity presence.Identity) error {
	if err := identity.Validate(); err != nil {
		return err
	}
	if identity.ID != c.self.ID {
		return shared.NewDomainError("presence", "Announce", shared.ErrInvalidInput,
			"announce cannot change the user id")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return shared.ErrNotConnected
	}

	frame, err := json.Marshal(announceFrame{Type: frameUserJoined, User: identity})
	if err != nil {
		return shared.WrapError("presence", "Announce", shared.ErrProtocol, "failed to encode announce", err)
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return shared.WrapError("presence", "Announce", shared.ErrTransport, "failed to announce", err)
	}

	// The id is untouched: the reader goroutine consults c.self.ID freely.
	c.self.Name = identity.Name
	c.self.Avatar = identity.Avatar
	return nil
}

// readLoop is the single reader: snapshots are applied one at a time, in
// arrival order.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				// Transport dropped underneath us, not a local Close.
				c.logger.Warn("presence connection dropped", "error", err)
				c.teardown(true)
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		var frame snapshotFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			// Malformed frames are ignored with no reply.
			c.logger.Debug("dropping malformed frame", "error", err)
			continue
		}
		if frame.Type != framePresenceUpdate {
			c.logger.Debug("dropping unexpected frame", "type", frame.Type)
			continue
		}

		c.applySnapshot(ctx, frame.Users)
	}
}

// applySnapshot runs reconciliation and fans out its results: one join
// notification per genuinely new peer, then the snapshot itself to observers.
func (c *Client) applySnapshot(ctx context.Context, users []presence.Identity) {
	newPeers := c.reconciler.Apply(users)

	for _, peer := range newPeers {
		if c.notifier == nil {
			break
		}
		if err := c.notifier.PushJoin(ctx, c.self.ID, peer); err != nil {
			c.logger.Error("join notification failed", "peer_id", peer.ID, "error", err)
		}
	}

	c.publishSnapshot(users)
}

func (c *Client) publishSnapshot(users []presence.Identity) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(presence.NewSnapshotEvent(c.self.ID, users)); err != nil {
		c.logger.Debug("snapshot publish failed", "error", err)
	}
}

// Connected reports whether the client currently holds a live connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close tears the connection down synchronously: the reader is stopped, the
// socket released, and reconciliation state reset so a future Dial re-enters
// the first-snapshot rule. Observers see a final empty snapshot (fail-safe
// empty set). Safe to call when not connected.
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	cancel := c.cancel
	done := c.done
	c.conn = nil
	c.cancel = nil
	c.done = nil
	c.connected = false
	c.mu.Unlock()

	cancel()

	_ = conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	// No orphaned reconciliation may fire after teardown.
	<-done

	c.reconciler.Reset()
	c.publishSnapshot(nil)

	c.logger.Info("presence connection closed")
	return nil
}

// teardown handles an unexpected transport failure from inside the reader.
func (c *Client) teardown(publishEmpty bool) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.cancel = nil
	c.done = nil
	c.connected = false
	c.mu.Unlock()

	cancel()
	_ = conn.Close()

	c.reconciler.Reset()
	if publishEmpty {
		c.publishSnapshot(nil)
	}
}
