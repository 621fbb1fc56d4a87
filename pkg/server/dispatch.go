package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	mcperrors "github.com/conduitmcp/conduit/pkg/errors"
	"github.com/conduitmcp/conduit/pkg/protocol"
	"github.com/conduitmcp/conduit/pkg/schema"
)

// dispatch routes one request to its handler and shapes the reply. Business
// failures inside tools/call become isError tool results; everything else
// that goes wrong becomes a JSON-RPC error object. The request id is echoed
// on every reply, including failures.
func (s *Server) dispatch(ctx context.Context, sess *Session, req *protocol.Request) (resp *protocol.Response) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "mcp."+req.Method,
		trace.WithAttributes(
			attribute.String("mcp.method", req.Method),
			attribute.String("mcp.session_id", sess.ID()),
			attribute.String("mcp.request_id", req.ID.String()),
		))

	defer func() {
		if r := recover(); r != nil {
			sess.logger.Error("panic in dispatch",
				slog.String("method", req.Method),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			resp = protocol.NewErrorResponse(req.ID, protocol.InternalError, "Internal error", nil)
		}
		if resp != nil && resp.Error != nil {
			span.SetStatus(codes.Error, resp.Error.Message)
		}
		span.End()
		s.metrics.RecordRequest(req.Method, time.Since(start), resp != nil && resp.Error != nil)
	}()

	result, err := s.handle(ctx, sess, req)
	if err != nil {
		return errorResponse(req.ID, err)
	}

	resp, err = protocol.NewResponse(req.ID, result)
	if err != nil {
		sess.logger.Error("marshal result", slog.String("method", req.Method), slog.Any("error", err))
		return protocol.NewErrorResponse(req.ID, protocol.InternalError, "Internal error", nil)
	}
	return resp
}

func (s *Server) handle(ctx context.Context, sess *Session, req *protocol.Request) (interface{}, error) {
	switch req.Method {
	case protocol.MethodInitialize:
		return s.handleInitialize(sess, req)
	case protocol.MethodPing:
		return struct{}{}, nil
	case protocol.MethodListTools:
		return s.handleListTools()
	case protocol.MethodCallTool:
		return s.handleCallTool(ctx, sess, req)
	case protocol.MethodListResources:
		return s.handleListResources()
	case protocol.MethodReadResource:
		return s.handleReadResource(ctx, sess, req)
	case protocol.MethodListResourceTemplates:
		return protocol.ListResourceTemplatesResult{
			ResourceTemplates: s.registry.wireResourceTemplates(),
		}, nil
	case protocol.MethodListPrompts:
		return protocol.ListPromptsResult{Prompts: s.registry.wirePrompts()}, nil
	case protocol.MethodGetPrompt:
		return s.handleGetPrompt(ctx, sess, req)
	case protocol.MethodComplete:
		return s.handleComplete(ctx, req)
	default:
		return nil, mcperrors.MethodNotFoundError(req.Method)
	}
}

func (s *Server) handleInitialize(sess *Session, req *protocol.Request) (interface{}, error) {
	var params protocol.InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, mcperrors.InvalidParamsError(req.Method, err)
		}
	}

	sess.markInitialized(params.ClientInfo, params.Capabilities)
	sess.logger.Info("session initialized",
		slog.String("client", params.ClientInfo.Name),
		slog.String("client_version", params.ClientInfo.Version))

	caps := protocol.ServerCapabilities{
		Tools:       &protocol.ListChangedCapability{ListChanged: true},
		Resources:   &protocol.ListChangedCapability{ListChanged: true},
		Prompts:     &protocol.ListChangedCapability{ListChanged: true},
		Completions: map[string]interface{}{},
	}

	return protocol.InitializeResult{
		ProtocolVersion: protocol.ProtocolVersion,
		Capabilities:    caps,
		ServerInfo:      protocol.Implementation{Name: s.name, Version: s.version},
		Instructions:    s.instructions,
	}, nil
}

func (s *Server) handleListTools() (interface{}, error) {
	tools, err := s.registry.wireTools()
	if err != nil {
		return nil, mcperrors.Internal(err)
	}
	return protocol.ListToolsResult{Tools: tools}, nil
}

func (s *Server) handleCallTool(ctx context.Context, sess *Session, req *protocol.Request) (interface{}, error) {
	var params protocol.CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, mcperrors.InvalidParamsError(req.Method, err)
	}

	start := time.Now()
	tool, ok := s.registry.Tool(params.Name)
	if !ok {
		s.metrics.RecordToolCall(params.Name, time.Since(start), true)
		return toolFailure(mcperrors.UnknownTool(params.Name)), nil
	}

	args, err := schema.CoerceArguments(tool.Name, tool.InputSchema(), params.Arguments)
	if err != nil {
		s.metrics.RecordToolCall(tool.Name, time.Since(start), true)
		return toolFailure(err), nil
	}

	rc := newRequestContext(ctx, sess, req.ID, params.Meta)
	out, err := invokeTool(rc, tool, args)
	rc.finish()

	s.metrics.RecordToolCall(tool.Name, time.Since(start), err != nil)
	if err != nil {
		// Protocol-category failures escape as JSON-RPC errors; anything the
		// tool itself reports stays a business failure inside the result.
		if fe, isFramework := mcperrors.As(err); isFramework && fe.Category() == mcperrors.CategoryProtocol {
			return nil, err
		}
		return toolFailure(err), nil
	}

	return protocol.CallToolResult{
		Content: []protocol.Content{protocol.TextContent(schema.RenderText(out))},
		IsError: false,
	}, nil
}

// invokeTool runs the handler with panic isolation: a panicking tool fails
// that one call, not the session.
func invokeTool(rc *RequestContext, tool *Tool, args map[string]interface{}) (out interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			rc.logger.Error("panic in tool handler",
				slog.String("tool", tool.Name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("tool %q panicked: %v", tool.Name, r)
		}
	}()
	return tool.Handler(rc, args)
}

func toolFailure(err error) protocol.CallToolResult {
	return protocol.CallToolResult{
		Content: []protocol.Content{protocol.TextContent(err.Error())},
		IsError: true,
	}
}

func (s *Server) handleListResources() (interface{}, error) {
	var out []protocol.Resource
	for _, res := range s.registry.Resources() {
		for _, tmpl := range res.Templates {
			// Templates with no variables are concrete, listable URIs.
			if len(tmpl.Names()) > 0 {
				continue
			}
			out = append(out, protocol.Resource{
				URI:         tmpl.Raw(),
				Name:        res.Name,
				Description: res.Description,
				MimeType:    res.MimeType,
			})
		}
	}
	return protocol.ListResourcesResult{Resources: out}, nil
}

func (s *Server) handleReadResource(ctx context.Context, sess *Session, req *protocol.Request) (interface{}, error) {
	var params protocol.ReadResourceParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, mcperrors.InvalidParamsError(req.Method, err)
	}

	res, rawVars, ok := s.registry.MatchResource(params.URI)
	if !ok {
		return nil, mcperrors.ResourceNotFoundError(params.URI)
	}

	vars := make(map[string]interface{}, len(rawVars))
	for name, raw := range rawVars {
		sch := res.Variables[name]
		if sch == nil {
			sch = schema.String()
		}
		typed, err := schema.CoerceURIVariable(res.Name, name, sch, raw)
		if err != nil {
			return nil, err
		}
		vars[name] = typed
	}

	rc := newRequestContext(ctx, sess, req.ID, params.Meta)
	out, err := res.Handler(rc, params.URI, vars)
	rc.finish()
	if err != nil {
		if _, isFramework := mcperrors.As(err); isFramework {
			return nil, err
		}
		return nil, mcperrors.Internal(err)
	}

	return protocol.ReadResourceResult{Contents: resourceContents(res, params.URI, out)}, nil
}

func resourceContents(res *Resource, uri string, out interface{}) []protocol.ResourceContents {
	mime := func(fallback string) string {
		if res.MimeType != "" {
			return res.MimeType
		}
		return fallback
	}

	switch v := out.(type) {
	case []protocol.ResourceContents:
		return v
	case protocol.ResourceContents:
		return []protocol.ResourceContents{v}
	case []byte:
		return []protocol.ResourceContents{{
			URI:      uri,
			MimeType: mime("application/octet-stream"),
			Blob:     schema.RenderText(v),
		}}
	case string:
		return []protocol.ResourceContents{{
			URI:      uri,
			MimeType: mime("text/plain"),
			Text:     v,
		}}
	default:
		return []protocol.ResourceContents{{
			URI:      uri,
			MimeType: mime("application/json"),
			Text:     schema.RenderText(v),
		}}
	}
}

func (s *Server) handleGetPrompt(ctx context.Context, sess *Session, req *protocol.Request) (interface{}, error) {
	var params protocol.GetPromptParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, mcperrors.InvalidParamsError(req.Method, err)
	}

	prompt, ok := s.registry.Prompt(params.Name)
	if !ok {
		return nil, mcperrors.UnknownPrompt(params.Name)
	}
	for _, arg := range prompt.Arguments {
		if !arg.Required {
			continue
		}
		if _, present := params.Arguments[arg.Name]; !present {
			return nil, mcperrors.MissingRequiredArgument(prompt.Name, arg.Name)
		}
	}

	rc := newRequestContext(ctx, sess, req.ID, params.Meta)
	messages, err := prompt.Handler(rc, params.Arguments)
	rc.finish()
	if err != nil {
		if _, isFramework := mcperrors.As(err); isFramework {
			return nil, err
		}
		return nil, mcperrors.Internal(err)
	}

	return protocol.GetPromptResult{
		Description: prompt.Description,
		Messages:    messages,
	}, nil
}

func (s *Server) handleNotification(ctx context.Context, sess *Session, n *protocol.Notification) {
	switch n.Method {
	case protocol.NotificationInitialized:
		sess.logger.Debug("client confirmed initialization")
	case protocol.NotificationCancelled:
		var params protocol.CancelledParams
		if err := json.Unmarshal(n.Params, &params); err != nil {
			sess.logger.Warn("malformed cancelled notification", slog.Any("error", err))
			return
		}
		// Requests run serially; by the time this arrives the target is
		// either finished or still queued, so cancellation is best-effort.
		sess.logger.Info("cancellation requested",
			slog.String("request_id", params.RequestID.String()),
			slog.String("reason", params.Reason))
	default:
		sess.logger.Debug("ignoring notification", slog.String("method", n.Method))
	}
}

// errorResponse maps a handler error to a JSON-RPC error object, echoing the
// request id.
func errorResponse(id protocol.RequestID, err error) *protocol.Response {
	if fe, ok := mcperrors.As(err); ok {
		return protocol.NewErrorResponse(id, fe.Code(), fe.Message(), fe.Data())
	}
	return protocol.NewErrorResponse(id, protocol.InternalError, err.Error(), nil)
}
