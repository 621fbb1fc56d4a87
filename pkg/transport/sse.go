// Package transport carries JSON-RPC payloads between clients and the
// dispatch core. The HTTP transport pairs a GET event stream with a POST
// message endpoint per session; the stdio transport speaks newline-delimited
// JSON over standard input and output.
package transport

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tmaxmax/go-sse"

	mcperrors "github.com/conduitmcp/conduit/pkg/errors"
	"github.com/conduitmcp/conduit/pkg/protocol"
	"github.com/conduitmcp/conduit/pkg/server"
)

// defaultMaxBodySize bounds a single POST payload.
const defaultMaxBodySize = 4 << 20

// SSETransport serves the HTTP+SSE wire protocol. A client opens the event
// stream with GET {prefix}/sse; the first event, typed "endpoint", carries
// the session's message URL. Requests go to POST {prefix}/messages/{id} and
// are acknowledged with 202 and an empty body; replies arrive on the stream
// as "message" events.
type SSETransport struct {
	srv    *server.Server
	logger *slog.Logger

	prefix     string
	baseURL    string
	origins    []string
	keepAlive  time.Duration
	maxBody    int64
	authorizer func(*http.Request) error
}

// SSEOption configures the SSE transport.
type SSEOption func(*SSETransport)

// WithPathPrefix mounts the endpoints under a prefix, e.g. "/mcp".
func WithPathPrefix(prefix string) SSEOption {
	return func(t *SSETransport) { t.prefix = strings.TrimRight(prefix, "/") }
}

// WithBaseURL fixes the scheme and host of the advertised message endpoint,
// e.g. "https://mcp.example.com". Without it the endpoint URL is derived from
// each stream request's Host header.
func WithBaseURL(base string) SSEOption {
	return func(t *SSETransport) { t.baseURL = strings.TrimRight(base, "/") }
}

// WithAllowedOrigins restricts cross-origin access to the listed origins.
// An empty list admits every origin.
func WithAllowedOrigins(origins []string) SSEOption {
	return func(t *SSETransport) { t.origins = origins }
}

// WithKeepAlive sets the interval of the stream's ping events.
func WithKeepAlive(interval time.Duration) SSEOption {
	return func(t *SSETransport) { t.keepAlive = interval }
}

// WithMaxBodySize caps the accepted POST body size in bytes.
func WithMaxBodySize(n int64) SSEOption {
	return func(t *SSETransport) { t.maxBody = n }
}

// WithAuthorizer gates both endpoints behind a request check. Any returned
// error is answered with a bare 401 before the request body is touched.
func WithAuthorizer(fn func(*http.Request) error) SSEOption {
	return func(t *SSETransport) { t.authorizer = fn }
}

// WithTransportLogger sets the transport's logger.
func WithTransportLogger(logger *slog.Logger) SSEOption {
	return func(t *SSETransport) { t.logger = logger }
}

// NewSSE creates the HTTP+SSE transport over the given server.
func NewSSE(srv *server.Server, opts ...SSEOption) *SSETransport {
	t := &SSETransport{
		srv:       srv,
		logger:    srv.Logger(),
		keepAlive: 30 * time.Second,
		maxBody:   defaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Handler returns the mux serving both endpoints.
func (t *SSETransport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+t.prefix+"/sse", t.handleSSE)
	mux.HandleFunc("POST "+t.prefix+"/messages/{sessionID}", t.handleMessage)
	return mux
}

func (t *SSETransport) handleSSE(w http.ResponseWriter, r *http.Request) {
	if !t.originAllowed(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}
	if t.authorizer != nil {
		if err := t.authorizer(r); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	stream, err := sse.Upgrade(w, r)
	if err != nil {
		t.logger.Error("sse upgrade failed", slog.Any("error", err))
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sender := newSSESender(stream)
	sess := t.srv.Connect(sender)
	defer t.srv.Disconnect(sess.ID())

	// The first event tells the client where to POST: an absolute URL, so
	// clients need no knowledge of how the stream URL relates to it.
	endpoint := sse.Message{Type: sse.Type("endpoint")}
	endpoint.AppendData(t.endpointURL(r) + "/messages/" + sess.ID())
	if err := sender.sendEvent(&endpoint); err != nil {
		t.logger.Error("send endpoint event failed",
			slog.String("session_id", sess.ID()), slog.Any("error", err))
		return
	}

	ticker := time.NewTicker(t.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sender.closed:
			return
		case <-ticker.C:
			// Keep-alives go out as SSE comment frames, invisible to event
			// listeners but enough to hold the connection open.
			var keepAlive sse.Message
			keepAlive.AppendComment("keep-alive " + time.Now().UTC().Format(time.RFC3339))
			if err := sender.sendEvent(&keepAlive); err != nil {
				return
			}
		}
	}
}

func (t *SSETransport) handleMessage(w http.ResponseWriter, r *http.Request) {
	if !t.originAllowed(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}
	if t.authorizer != nil {
		if err := t.authorizer(r); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	sessionID := r.PathValue("sessionID")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}
	if _, ok := t.srv.Session(sessionID); !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	// The full body is aggregated before any decoding; a decode failure
	// afterwards is reported over the stream, not on this response.
	body, err := io.ReadAll(io.LimitReader(r.Body, t.maxBody+1))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if int64(len(body)) > t.maxBody {
		http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
		return
	}

	if err := t.srv.HandleData(r.Context(), sessionID, body); err != nil {
		if mcperrors.IsCode(err, protocol.SessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		t.logger.Error("handle message failed",
			slog.String("session_id", sessionID), slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// endpointURL resolves the absolute base of the message endpoint, preferring
// the configured base URL over the request's own scheme and host.
func (t *SSETransport) endpointURL(r *http.Request) string {
	if t.baseURL != "" {
		return t.baseURL + t.prefix
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + t.prefix
}

func (t *SSETransport) originAllowed(r *http.Request) bool {
	if len(t.origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range t.origins {
		if strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// sseSender pushes encoded messages onto one client's event stream. Sends
// are serialized; the SSE session is not safe for concurrent writers.
type sseSender struct {
	mu     sync.Mutex
	stream *sse.Session
	closed chan struct{}
	once   sync.Once
}

func newSSESender(stream *sse.Session) *sseSender {
	return &sseSender{stream: stream, closed: make(chan struct{})}
}

func (s *sseSender) Send(msg protocol.Message) error {
	data, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}
	ev := sse.Message{Type: sse.Type("message")}
	ev.AppendData(string(data))
	return s.sendEvent(&ev)
}

func (s *sseSender) sendEvent(ev *sse.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closed:
		return mcperrors.SessionNotFoundError("stream closed")
	default:
	}
	if err := s.stream.Send(ev); err != nil {
		return err
	}
	return s.stream.Flush()
}

func (s *sseSender) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
