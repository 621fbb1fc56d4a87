package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	mcperrors "github.com/conduitmcp/conduit/pkg/errors"
	"github.com/conduitmcp/conduit/pkg/observability"
	"github.com/conduitmcp/conduit/pkg/protocol"
)

// Server is the dispatch core. It owns the registry, tracks live sessions,
// and turns decoded wire payloads into handler invocations. Transports feed
// it bytes via HandleData and receive replies through each session's Sender.
type Server struct {
	name         string
	version      string
	instructions string

	registry    *Registry
	completions CompletionProvider

	logger  *slog.Logger
	metrics observability.Metrics
	tracer  trace.Tracer

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Option configures a Server.
type Option func(*Server)

// WithName sets the implementation name reported during initialize.
func WithName(name string) Option {
	return func(s *Server) { s.name = name }
}

// WithVersion sets the implementation version reported during initialize.
func WithVersion(version string) Option {
	return func(s *Server) { s.version = version }
}

// WithInstructions sets the usage instructions reported during initialize.
func WithInstructions(instructions string) Option {
	return func(s *Server) { s.instructions = instructions }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithTracer sets the tracer for per-request spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Server) { s.tracer = t }
}

// WithCompletionProvider overrides the default enum-label completion source.
func WithCompletionProvider(p CompletionProvider) Option {
	return func(s *Server) { s.completions = p }
}

// New creates a server over the given registry.
func New(registry *Registry, opts ...Option) *Server {
	s := &Server{
		name:     "conduit",
		version:  "0.1.0",
		registry: registry,
		logger:   slog.Default(),
		metrics:  observability.NoopMetrics{},
		tracer:   noop.NewTracerProvider().Tracer("conduit"),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}

	registry.setChangeHook(s.broadcastListChanged)
	return s
}

// Registry returns the server's registry.
func (s *Server) Registry() *Registry { return s.registry }

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger { return s.logger }

// Connect creates a session bound to the given sender and starts its serial
// work loop. The returned session id addresses subsequent messages.
func (s *Server) Connect(sender Sender) *Session {
	id := uuid.NewString()
	sess := newSession(id, s, sender)

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	s.metrics.SessionOpened()
	s.logger.Info("session connected", slog.String("session_id", id))
	return sess
}

// Disconnect tears down a session and forgets it.
func (s *Server) Disconnect(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		_ = sess.Close()
		s.metrics.SessionClosed()
	}
}

// Session looks up a live session by id.
func (s *Server) Session(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Shutdown closes every live session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		_ = sess.Close()
		s.metrics.SessionClosed()
	}
	return ctx.Err()
}

// HandleData feeds one raw payload, a single message or a batch, into the
// named session's serial queue. A payload that fails to decode is answered
// with a ParseError pushed back over the session's sender; a payload for an
// unknown or torn-down session fails fast.
//
// ctx covers only decode and enqueue. Processing runs asynchronously under
// the session's own context, which lives until the session closes: the
// delivering HTTP request ends at its 202 acknowledgement, and that must not
// cancel handlers still running.
func (s *Server) HandleData(ctx context.Context, sessionID string, data []byte) error {
	sess, ok := s.Session(sessionID)
	if !ok {
		return mcperrors.SessionNotFoundError(sessionID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msgs, batch, err := protocol.DecodeMessages(data)
	if err != nil {
		resp := protocol.NewErrorResponse(protocol.RequestID{}, protocol.ParseError, "Parse error: "+err.Error(), nil)
		if sendErr := sess.Send(resp); sendErr != nil {
			return sendErr
		}
		return nil
	}

	return sess.enqueue(func() {
		s.process(sess.ctx, sess, msgs, batch)
	})
}

// process runs one decoded payload to completion on the session goroutine.
// Batch replies preserve request order; notifications contribute no reply.
func (s *Server) process(ctx context.Context, sess *Session, msgs []protocol.Message, batch bool) {
	responses := make([]*protocol.Response, 0, len(msgs))
	for _, msg := range msgs {
		switch m := msg.(type) {
		case *protocol.Request:
			if resp := s.dispatch(ctx, sess, m); resp != nil {
				responses = append(responses, resp)
			}
		case *protocol.Notification:
			s.handleNotification(ctx, sess, m)
		case *protocol.Response:
			// Server side: client responses are not expected; log and drop.
			sess.logger.Warn("unexpected response message", slog.String("id", m.ID.String()))
		}
	}

	if len(responses) == 0 {
		return
	}
	if batch {
		if err := sess.Send(protocol.ResponseBatch(responses)); err != nil {
			sess.logger.Error("send batch reply", slog.Any("error", err))
		}
		return
	}
	if err := sess.Send(responses[0]); err != nil {
		sess.logger.Error("send reply", slog.Any("error", err))
	}
}

// broadcastListChanged fans a list_changed notification for the given
// surface out to every live session.
func (s *Server) broadcastListChanged(surface string) {
	var method string
	switch surface {
	case "tools":
		method = protocol.NotificationToolsListChanged
	case "resources":
		method = protocol.NotificationResourcesListChanged
	case "prompts":
		method = protocol.NotificationPromptsListChanged
	default:
		return
	}

	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	for _, sess := range sessions {
		if !sess.Initialized() {
			continue
		}
		if err := sess.SendNotification(method, nil); err != nil {
			s.logger.Warn("list_changed broadcast failed",
				slog.String("session_id", sess.ID()), slog.Any("error", err))
		}
	}
}

func mcperrSessionClosed(id string) error {
	return mcperrors.SessionNotFoundError(id)
}
