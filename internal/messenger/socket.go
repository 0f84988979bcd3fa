package messenger

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/gorilla/websocket"
)

// ErrClosed is returned by Send/Recv once the Socket has been closed.
var ErrClosed = errors.New("messenger: socket closed")

// ErrNoPeer is returned by Send when no sheep is currently connected, and by
// Recv when the peer it was waiting on disconnects before replying.
var ErrNoPeer = errors.New("messenger: no peer connected")

// Socket is the dispatcher side of a single sheep's router endpoint: it
// binds host:port (spec.md's per-sheep communication endpoint) and accepts
// exactly one active dealer connection at a time, identified by
// PeerIdentity. A fresh connection starts a new incarnation; any reply
// still in flight from a prior incarnation is dropped.
type Socket struct {
	addr string

	server   *http.Server
	upgrader websocket.Upgrader

	mu          sync.Mutex
	conn        *websocket.Conn
	incarnation uint64
	msgSeq      uint64
	// connGone is closed when the current conn disconnects, so a Recv
	// blocked waiting on a reply from it wakes up instead of hanging until
	// ctx expires. Replaced with a fresh channel on every new connection.
	connGone chan struct{}

	incoming chan Envelope
	closed   chan struct{}
	closeOne sync.Once
}

// NewSocket creates a Socket bound to addr ("host:port"). Call Listen to
// start accepting the sheep's connection.
func NewSocket(addr string) *Socket {
	return &Socket{
		addr:     addr,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		incoming: make(chan Envelope, 16),
		closed:   make(chan struct{}),
		connGone: make(chan struct{}),
	}
}

// Listen starts the HTTP server accepting the sheep's websocket connection.
// It returns once the listener is bound; serving continues in the background
// until Close is called.
func (s *Socket) Listen() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("messenger: listen %s: %w", s.addr, err)
	}

	s.server = &http.Server{Handler: mux}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Log.WithError(err).WithField("addr", s.addr).Error("messenger socket serve exited")
		}
	}()
	return nil
}

func (s *Socket) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Shepherd-Identity") != PeerIdentity && r.URL.Query().Get("identity") != PeerIdentity {
		http.Error(w, "unknown peer identity", http.StatusForbidden)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Log.WithError(err).WithField("addr", s.addr).Warn("messenger upgrade failed")
		return
	}

	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = conn
	s.incarnation++
	incarnation := s.incarnation
	s.connGone = make(chan struct{})
	s.mu.Unlock()

	logging.Log.WithField("addr", s.addr).WithField("incarnation", incarnation).Info("sheep connected")
	go s.readLoop(conn, incarnation)
}

func (s *Socket) readLoop(conn *websocket.Conn, incarnation uint64) {
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			s.mu.Lock()
			sameConn := s.conn == conn
			if sameConn {
				s.conn = nil
				close(s.connGone)
			}
			s.mu.Unlock()
			if sameConn {
				logging.Log.WithError(err).WithField("addr", s.addr).Info("sheep connection closed")
			}
			return
		}

		if err := env.Validate(); err != nil {
			logging.Log.WithError(err).WithField("addr", s.addr).Warn("dropping malformed message")
			continue
		}

		s.mu.Lock()
		current := s.incarnation
		s.mu.Unlock()
		if env.Incarnation != 0 && env.Incarnation != current {
			logging.Log.WithField("addr", s.addr).WithField("incarnation", env.Incarnation).
				Debug("dropping stale reply from previous incarnation")
			continue
		}

		select {
		case s.incoming <- env:
		case <-s.closed:
			return
		}
	}
}

// Send transmits env to the currently connected sheep. The protocol-level
// send is non-blocking (the underlying socket buffers); the call itself may
// still block briefly on the write, but never on a reply.
func (s *Socket) Send(ctx context.Context, env Envelope) error {
	s.mu.Lock()
	conn := s.conn
	incarnation := s.incarnation
	s.mu.Unlock()

	if conn == nil {
		return ErrNoPeer
	}

	env.Incarnation = incarnation
	env.MessageID = atomic.AddUint64(&s.msgSeq, 1)

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("messenger: send: %w", err)
	}
	return nil
}

// Recv blocks until the next message arrives, the currently connected peer
// disconnects, ctx is cancelled, or the socket is closed.
func (s *Socket) Recv(ctx context.Context) (Envelope, error) {
	s.mu.Lock()
	gone := s.connGone
	s.mu.Unlock()

	select {
	case env, ok := <-s.incoming:
		if !ok {
			return Envelope{}, ErrClosed
		}
		return env, nil
	case <-gone:
		return Envelope{}, ErrNoPeer
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	case <-s.closed:
		return Envelope{}, ErrClosed
	}
}

// Connected reports whether a sheep is currently connected (handshake complete).
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Incarnation returns the current connection generation (0 before any peer
// has ever connected).
func (s *Socket) Incarnation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incarnation
}

// Close shuts down the listener and any active connection.
func (s *Socket) Close() error {
	var err error
	s.closeOne.Do(func() {
		close(s.closed)
		s.mu.Lock()
		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.mu.Unlock()
		if s.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = s.server.Shutdown(shutdownCtx)
		}
	})
	return err
}
