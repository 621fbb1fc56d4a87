package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduitmcp/conduit/pkg/protocol"
	"github.com/conduitmcp/conduit/pkg/schema"
)

// captureSender collects everything the session pushes.
type captureSender struct {
	mu     sync.Mutex
	msgs   []protocol.Message
	closed bool
}

func (c *captureSender) Send(msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *captureSender) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *captureSender) wait(t *testing.T, n int) []protocol.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		if len(c.msgs) >= n {
			out := make([]protocol.Message, len(c.msgs))
			copy(out, c.msgs)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages", n)
	return nil
}

func newTestServer(t *testing.T) (*Server, *Session, *captureSender) {
	t.Helper()
	reg := NewRegistry()

	require.NoError(t, reg.RegisterTool(&Tool{
		Name:        "add",
		Description: "Adds two integers.",
		Parameters: []Parameter{
			{Name: "a", Schema: schema.Int()},
			{Name: "b", Schema: schema.Int()},
		},
		Handler: func(ctx *RequestContext, args map[string]interface{}) (interface{}, error) {
			return args["a"].(int64) + args["b"].(int64), nil
		},
	}))

	require.NoError(t, reg.RegisterTool(&Tool{
		Name: "paint",
		Parameters: []Parameter{
			{Name: "color", Schema: schema.Enum("red", "green", "blue")},
		},
		Handler: func(ctx *RequestContext, args map[string]interface{}) (interface{}, error) {
			return args["color"], nil
		},
	}))

	require.NoError(t, reg.RegisterTool(&Tool{
		Name: "boom",
		Handler: func(ctx *RequestContext, args map[string]interface{}) (interface{}, error) {
			panic("kaboom")
		},
	}))

	require.NoError(t, reg.RegisterResource(&Resource{
		Name:     "history",
		MimeType: "text/plain",
		Variables: map[string]*schema.Schema{
			"id": schema.Int(),
		},
		Handler: func(ctx *RequestContext, uri string, vars map[string]interface{}) (interface{}, error) {
			return fmt.Sprintf("entry %d", vars["id"].(int64)), nil
		},
	}, "calc://history/{id}"))

	require.NoError(t, reg.RegisterPrompt(&Prompt{
		Name:        "greeting",
		Description: "Greets someone by name.",
		Arguments: []protocol.PromptArgument{
			{Name: "name", Required: true},
		},
		Handler: func(ctx *RequestContext, args map[string]string) ([]protocol.PromptMessage, error) {
			return []protocol.PromptMessage{
				{Role: "user", Content: protocol.TextContent("Hello, " + args["name"] + "!")},
			}, nil
		},
	}))

	srv := New(reg, WithName("conduit-test"), WithVersion("0.0.1"))
	sender := &captureSender{}
	sess := srv.Connect(sender)
	t.Cleanup(func() { srv.Disconnect(sess.ID()) })
	return srv, sess, sender
}

func send(t *testing.T, srv *Server, sess *Session, payload string) {
	t.Helper()
	require.NoError(t, srv.HandleData(context.Background(), sess.ID(), []byte(payload)))
}

func toolResult(t *testing.T, msg protocol.Message) (protocol.RequestID, protocol.CallToolResult) {
	t.Helper()
	resp, ok := msg.(*protocol.Response)
	require.True(t, ok)
	require.Nil(t, resp.Error)
	var result protocol.CallToolResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	return resp.ID, result
}

func TestCallToolAdd(t *testing.T) {
	srv, sess, sender := newTestServer(t)

	send(t, srv, sess, `{"jsonrpc":"2.0","id":1,"method":"tools/call",
		"params":{"name":"add","arguments":{"a":2,"b":3}}}`)

	msgs := sender.wait(t, 1)
	id, result := toolResult(t, msgs[0])
	assert.Equal(t, protocol.NewIntID(1), id)
	assert.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "5", result.Content[0].Text)
}

func TestCallUnknownTool(t *testing.T) {
	srv, sess, sender := newTestServer(t)

	send(t, srv, sess, `{"jsonrpc":"2.0","id":7,"method":"tools/call",
		"params":{"name":"subtract","arguments":{}}}`)

	msgs := sender.wait(t, 1)
	id, result := toolResult(t, msgs[0])
	assert.Equal(t, protocol.NewIntID(7), id)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "Unknown tool")
}

func TestCallToolCoercionFailure(t *testing.T) {
	srv, sess, sender := newTestServer(t)

	send(t, srv, sess, `{"jsonrpc":"2.0","id":2,"method":"tools/call",
		"params":{"name":"add","arguments":{"a":"not_a_number","b":3}}}`)

	msgs := sender.wait(t, 1)
	id, result := toolResult(t, msgs[0])
	assert.Equal(t, protocol.NewIntID(2), id)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "expected Int")
}

func TestCallToolPanicIsolated(t *testing.T) {
	srv, sess, sender := newTestServer(t)

	send(t, srv, sess, `{"jsonrpc":"2.0","id":3,"method":"tools/call",
		"params":{"name":"boom","arguments":{}}}`)

	msgs := sender.wait(t, 1)
	_, result := toolResult(t, msgs[0])
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "panicked")

	// The session survives the panic.
	send(t, srv, sess, `{"jsonrpc":"2.0","id":4,"method":"ping"}`)
	msgs = sender.wait(t, 2)
	resp := msgs[1].(*protocol.Response)
	assert.Equal(t, protocol.NewIntID(4), resp.ID)
	assert.Nil(t, resp.Error)
}

func TestBatchRepliesInOrder(t *testing.T) {
	srv, sess, sender := newTestServer(t)

	send(t, srv, sess, `[
		{"jsonrpc":"2.0","id":1,"method":"ping"},
		{"jsonrpc":"2.0","method":"notifications/initialized"},
		{"jsonrpc":"2.0","id":2,"method":"tools/list"}
	]`)

	msgs := sender.wait(t, 1)
	batch, ok := msgs[0].(protocol.ResponseBatch)
	require.True(t, ok)
	require.Len(t, batch, 2)
	assert.Equal(t, protocol.NewIntID(1), batch[0].ID)
	assert.Equal(t, protocol.NewIntID(2), batch[1].ID)
}

func TestNotificationOnlyBatchProducesNoReply(t *testing.T) {
	srv, sess, sender := newTestServer(t)

	send(t, srv, sess, `[{"jsonrpc":"2.0","method":"notifications/initialized"}]`)
	send(t, srv, sess, `{"jsonrpc":"2.0","id":9,"method":"ping"}`)

	// Only the ping reply arrives.
	msgs := sender.wait(t, 1)
	resp, ok := msgs[0].(*protocol.Response)
	require.True(t, ok)
	assert.Equal(t, protocol.NewIntID(9), resp.ID)
}

func TestParseErrorPushedToSession(t *testing.T) {
	srv, sess, sender := newTestServer(t)

	send(t, srv, sess, `{this is not json`)

	msgs := sender.wait(t, 1)
	resp, ok := msgs[0].(*protocol.Response)
	require.True(t, ok)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.ParseError, resp.Error.Code)
	assert.False(t, resp.ID.IsValid())
}

func TestMethodNotFound(t *testing.T) {
	srv, sess, sender := newTestServer(t)

	send(t, srv, sess, `{"jsonrpc":"2.0","id":5,"method":"no/such/method"}`)

	msgs := sender.wait(t, 1)
	resp := msgs[0].(*protocol.Response)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.MethodNotFound, resp.Error.Code)
	assert.Equal(t, protocol.NewIntID(5), resp.ID)
}

func TestInitialize(t *testing.T) {
	srv, sess, sender := newTestServer(t)

	send(t, srv, sess, `{"jsonrpc":"2.0","id":1,"method":"initialize",
		"params":{"protocolVersion":"2024-11-05","capabilities":{},
		"clientInfo":{"name":"test-client","version":"1.0"}}}`)

	msgs := sender.wait(t, 1)
	resp := msgs[0].(*protocol.Response)
	require.Nil(t, resp.Error)

	var result protocol.InitializeResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, protocol.ProtocolVersion, result.ProtocolVersion)
	assert.Equal(t, "conduit-test", result.ServerInfo.Name)
	assert.True(t, sess.Initialized())
	assert.Equal(t, "test-client", sess.ClientInfo().Name)
}

func TestReadResource(t *testing.T) {
	srv, sess, sender := newTestServer(t)

	send(t, srv, sess, `{"jsonrpc":"2.0","id":1,"method":"resources/read",
		"params":{"uri":"calc://history/42"}}`)

	msgs := sender.wait(t, 1)
	resp := msgs[0].(*protocol.Response)
	require.Nil(t, resp.Error)

	var result protocol.ReadResourceResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Contents, 1)
	assert.Equal(t, "calc://history/42", result.Contents[0].URI)
	assert.Equal(t, "entry 42", result.Contents[0].Text)
	assert.Equal(t, "text/plain", result.Contents[0].MimeType)
}

func TestReadResourceNotFound(t *testing.T) {
	srv, sess, sender := newTestServer(t)

	send(t, srv, sess, `{"jsonrpc":"2.0","id":1,"method":"resources/read",
		"params":{"uri":"calc://nowhere/1"}}`)

	msgs := sender.wait(t, 1)
	resp := msgs[0].(*protocol.Response)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.ResourceNotFound, resp.Error.Code)
}

func TestListResourceTemplates(t *testing.T) {
	srv, sess, sender := newTestServer(t)

	send(t, srv, sess, `{"jsonrpc":"2.0","id":1,"method":"resources/templates/list"}`)

	msgs := sender.wait(t, 1)
	resp := msgs[0].(*protocol.Response)
	require.Nil(t, resp.Error)

	var result protocol.ListResourceTemplatesResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.ResourceTemplates, 1)
	assert.Equal(t, "calc://history/{id}", result.ResourceTemplates[0].URITemplate)
}

func TestGetPrompt(t *testing.T) {
	srv, sess, sender := newTestServer(t)

	send(t, srv, sess, `{"jsonrpc":"2.0","id":1,"method":"prompts/get",
		"params":{"name":"greeting","arguments":{"name":"Ada"}}}`)

	msgs := sender.wait(t, 1)
	resp := msgs[0].(*protocol.Response)
	require.Nil(t, resp.Error)

	var result protocol.GetPromptResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Messages, 1)
	assert.Equal(t, "Hello, Ada!", result.Messages[0].Content.Text)
}

func TestGetPromptMissingRequiredArgument(t *testing.T) {
	srv, sess, sender := newTestServer(t)

	send(t, srv, sess, `{"jsonrpc":"2.0","id":1,"method":"prompts/get",
		"params":{"name":"greeting","arguments":{}}}`)

	msgs := sender.wait(t, 1)
	resp := msgs[0].(*protocol.Response)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.InvalidParams, resp.Error.Code)
}

func TestCompleteEnumLabels(t *testing.T) {
	srv, sess, sender := newTestServer(t)

	send(t, srv, sess, `{"jsonrpc":"2.0","id":1,"method":"completion/complete",
		"params":{"ref":{"type":"ref/tool","name":"paint"},
		"argument":{"name":"color","value":"r"}}}`)

	msgs := sender.wait(t, 1)
	resp := msgs[0].(*protocol.Response)
	require.Nil(t, resp.Error)

	var result protocol.CompleteResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, []string{"red", "green", "blue"}, result.Completion.Values)
}

func TestProgressNotificationBeforeResponse(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterTool(&Tool{
		Name: "work",
		Handler: func(ctx *RequestContext, args map[string]interface{}) (interface{}, error) {
			require.NoError(t, ctx.ReportProgress(0.5, nil, "halfway"))
			return "done", nil
		},
	}))
	srv := New(reg)
	sender := &captureSender{}
	sess := srv.Connect(sender)
	defer srv.Disconnect(sess.ID())

	send(t, srv, sess, `{"jsonrpc":"2.0","id":1,"method":"tools/call",
		"params":{"name":"work","arguments":{},"_meta":{"progressToken":"tok-1"}}}`)

	msgs := sender.wait(t, 2)
	n, ok := msgs[0].(*protocol.Notification)
	require.True(t, ok)
	assert.Equal(t, protocol.NotificationProgress, n.Method)

	var params protocol.ProgressParams
	require.NoError(t, json.Unmarshal(n.Params, &params))
	assert.Equal(t, "tok-1", params.ProgressToken.String())
	assert.Equal(t, 0.5, params.Progress)

	_, result := toolResult(t, msgs[1])
	assert.Equal(t, "done", result.Content[0].Text)
}

func TestUnknownSessionFailsFast(t *testing.T) {
	srv, _, _ := newTestServer(t)

	err := srv.HandleData(context.Background(), "no-such-session", []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	require.Error(t, err)
}

func TestClosedSessionFailsFast(t *testing.T) {
	srv, sess, _ := newTestServer(t)
	srv.Disconnect(sess.ID())

	err := srv.HandleData(context.Background(), sess.ID(), []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	require.Error(t, err)
}
