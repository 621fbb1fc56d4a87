package transport

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/conduitmcp/conduit/pkg/protocol"
	"github.com/conduitmcp/conduit/pkg/server"
)

// maxLineSize bounds one newline-delimited payload on stdio.
const maxLineSize = 4 << 20

// StdioTransport serves a single session over newline-delimited JSON, one
// message or batch per line. It is the transport of choice for servers
// spawned as child processes.
type StdioTransport struct {
	srv    *server.Server
	in     io.Reader
	out    io.Writer
	logger *slog.Logger
}

// StdioOption configures the stdio transport.
type StdioOption func(*StdioTransport)

// WithStdioStreams overrides stdin/stdout, used by tests.
func WithStdioStreams(in io.Reader, out io.Writer) StdioOption {
	return func(t *StdioTransport) {
		t.in = in
		t.out = out
	}
}

// WithStdioLogger sets the transport's logger.
func WithStdioLogger(logger *slog.Logger) StdioOption {
	return func(t *StdioTransport) { t.logger = logger }
}

// NewStdio creates the stdio transport over the given server.
func NewStdio(srv *server.Server, opts ...StdioOption) *StdioTransport {
	t := &StdioTransport{
		srv:    srv,
		in:     os.Stdin,
		out:    os.Stdout,
		logger: srv.Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run connects one session and pumps messages until the input closes or the
// context is cancelled.
func (t *StdioTransport) Run(ctx context.Context) error {
	sender := &stdioSender{w: bufio.NewWriter(t.out)}
	sess := t.srv.Connect(sender)
	defer t.srv.Disconnect(sess.ID())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scanner := bufio.NewScanner(t.in)
		scanner.Buffer(make([]byte, 64<<10), maxLineSize)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			data := make([]byte, len(line))
			copy(data, line)
			if err := t.srv.HandleData(ctx, sess.ID(), data); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		return scanner.Err()
	})
	return g.Wait()
}

// stdioSender writes one JSON message per line to stdout.
type stdioSender struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func (s *stdioSender) Send(msg protocol.Message) error {
	data, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(data); err != nil {
		return err
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *stdioSender) Close() error { return nil }
