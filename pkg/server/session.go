package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/conduitmcp/conduit/pkg/protocol"
)

// Sender is the transport-facing half of a session: a way to push encoded
// messages to the connected client. HTTP+SSE transports implement it with an
// event stream, the stdio transport with stdout.
type Sender interface {
	Send(msg protocol.Message) error
	Close() error
}

// Session is one client connection. All requests of a session are processed
// strictly one at a time in arrival order: work lands on a channel drained
// by a single goroutine, so a long-running tool call blocks the session's
// later requests but never another session's.
type Session struct {
	id     string
	srv    *Server
	sender Sender
	logger *slog.Logger

	// ctx spans the session's whole life. Dispatched handlers run under it,
	// not under the POST that delivered the request: the HTTP request ends at
	// the 202 while processing continues.
	ctx    context.Context
	cancel context.CancelFunc

	work   chan func()
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once

	mu          sync.RWMutex
	initialized bool
	clientInfo  protocol.Implementation
	clientCaps  protocol.ClientCapabilities
}

// sessionQueueDepth bounds how many incoming payloads may wait behind the
// request currently being processed.
const sessionQueueDepth = 64

func newSession(id string, srv *Server, sender Sender) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:     id,
		srv:    srv,
		sender: sender,
		logger: srv.logger.With(slog.String("session_id", id)),
		ctx:    ctx,
		cancel: cancel,
		work:   make(chan func(), sessionQueueDepth),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Session) run() {
	for {
		select {
		case fn := <-s.work:
			fn()
		case <-s.done:
			// Drain what was already queued, then stop.
			for {
				select {
				case fn := <-s.work:
					fn()
				default:
					return
				}
			}
		}
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Context returns the session-lifetime context. It is cancelled when the
// session closes, which is when the transport disconnects.
func (s *Session) Context() context.Context { return s.ctx }

// enqueue schedules fn on the session's serial work queue.
func (s *Session) enqueue(fn func()) error {
	if s.closed.Load() {
		return mcperrSessionClosed(s.id)
	}
	select {
	case s.work <- fn:
		return nil
	case <-s.done:
		return mcperrSessionClosed(s.id)
	}
}

// Send pushes a message to the client.
func (s *Session) Send(msg protocol.Message) error {
	if s.closed.Load() {
		return mcperrSessionClosed(s.id)
	}
	return s.sender.Send(msg)
}

// SendNotification pushes a server-initiated notification to the client.
func (s *Session) SendNotification(method string, params interface{}) error {
	n, err := protocol.NewNotification(method, params)
	if err != nil {
		return err
	}
	return s.Send(n)
}

// Close tears the session down. Messages addressed to it afterwards fail
// fast with a session-not-found error.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		s.cancel()
		close(s.done)
		err = s.sender.Close()
		s.logger.Info("session closed")
	})
	return err
}

func (s *Session) markInitialized(info protocol.Implementation, caps protocol.ClientCapabilities) {
	s.mu.Lock()
	s.initialized = true
	s.clientInfo = info
	s.clientCaps = caps
	s.mu.Unlock()
}

// Initialized reports whether the initialize handshake has completed.
func (s *Session) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// ClientInfo returns the client implementation announced during initialize.
func (s *Session) ClientInfo() protocol.Implementation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientInfo
}
