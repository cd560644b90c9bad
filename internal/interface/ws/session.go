package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/presence"
	"github.com/skillswap-hub/skillswap-presence-hub/internal/domain/shared"
)

// sessionState tracks the per-connection protocol state machine:
// CONNECTED (unannounced) → ANNOUNCED → CLOSED. There is no way back
// from CLOSED.
type sessionState int32

const (
	stateConnected sessionState = iota
	stateAnnounced
	stateClosed
)

// Session is one live WebSocket connection. The read loop and write pump are
// the only goroutines touching the underlying conn; everyone else talks to
// the session through the bounded send queue.
type Session struct {
	id     presence.ConnectionID
	conn   *websocket.Conn
	hub    *Hub
	logger *slog.Logger

	send chan []byte
	done chan struct{}

	mu    sync.Mutex
	state sessionState

	closeOnce sync.Once
}

func newSession(id presence.ConnectionID, conn *websocket.Conn, hub *Hub, logger *slog.Logger) *Session {
	return &Session{
		id:     id,
		conn:   conn,
		hub:    hub,
		logger: logger.With("conn_id", string(id)),
		send:   make(chan []byte, hub.cfg.SendQueueSize),
		done:   make(chan struct{}),
		state:  stateConnected,
	}
}

// ID returns the connection identifier.
func (s *Session) ID() presence.ConnectionID {
	return s.id
}

// enqueue places a frame on the outbound queue without blocking.
// A full queue or closed session is a transport error; the caller treats it
// as this session's disconnect.
func (s *Session) enqueue(frame []byte) error {
	select {
	case <-s.done:
		return shared.ErrSessionClosed
	default:
	}

	select {
	case s.send <- frame:
		return nil
	default:
		return shared.ErrSendQueueFull
	}
}

// run starts the pumps and blocks until the read loop exits.
func (s *Session) run() {
	go s.writePump()
	s.readLoop()
}

// readLoop consumes inbound frames until the transport fails or closes.
// Malformed frames are dropped silently; a well-formed announce moves the
// session to ANNOUNCED and registers the identity with the hub.
func (s *Session) readLoop() {
	defer s.hub.detach(s)

	s.conn.SetReadLimit(s.hub.cfg.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.hub.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.hub.cfg.PongWait))
	})

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("unexpected close", "error", err)
			}
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		identity, err := decodeInbound(data)
		if err != nil {
			// Protocol errors are silent per-connection: no reply, no broadcast.
			s.logger.Debug("dropping inbound frame", "error", err)
			continue
		}

		s.markAnnounced()
		s.hub.announce(s, identity)
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.logger.Debug("write failed", "error", err)
				s.hub.detach(s)
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.hub.detach(s)
				return
			}

		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.WriteTimeout))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *Session) markAnnounced() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateConnected {
		s.state = stateAnnounced
	}
}

// close transitions the session to CLOSED exactly once and unblocks the pumps.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = stateClosed
		s.mu.Unlock()

		close(s.done)
	})
}
