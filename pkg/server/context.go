package server

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/conduitmcp/conduit/pkg/protocol"
)

// RequestContext is handed to tool, resource and prompt handlers. It carries
// the request's context, the owning session, and the progress channel back
// to the client.
type RequestContext struct {
	context.Context

	session   *Session
	requestID protocol.RequestID
	token     protocol.ProgressToken
	logger    *slog.Logger

	// completed flips once the response for this request has been produced.
	// Progress reported after that point is dropped.
	completed atomic.Bool
}

func newRequestContext(ctx context.Context, sess *Session, id protocol.RequestID, meta *protocol.RequestMeta) *RequestContext {
	rc := &RequestContext{
		Context:   ctx,
		session:   sess,
		requestID: id,
		logger:    sess.logger.With(slog.String("request_id", id.String())),
	}
	if meta != nil {
		rc.token = meta.ProgressToken
	}
	return rc
}

// Session returns the session processing this request.
func (rc *RequestContext) Session() *Session { return rc.session }

// RequestID returns the id of the request being processed.
func (rc *RequestContext) RequestID() protocol.RequestID { return rc.requestID }

// Logger returns a logger scoped to this request.
func (rc *RequestContext) Logger() *slog.Logger { return rc.logger }

// ReportProgress pushes a notifications/progress message for this request.
// It is a no-op when the request carried no progress token, and drops
// silently once the response has been sent.
func (rc *RequestContext) ReportProgress(progress float64, total *float64, message string) error {
	if !rc.token.IsValid() || rc.completed.Load() {
		return nil
	}
	return rc.session.SendNotification(protocol.NotificationProgress, protocol.ProgressParams{
		ProgressToken: rc.token,
		Progress:      progress,
		Total:         total,
		Message:       message,
	})
}

func (rc *RequestContext) finish() {
	rc.completed.Store(true)
}
