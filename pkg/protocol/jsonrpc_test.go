package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		json string
		want RequestID
	}{
		{"small int", `1`, NewIntID(1)},
		{"negative int", `-7`, NewIntID(-7)},
		{"53-bit safe int", `9007199254740991`, NewIntID(9007199254740991)},
		{"string", `"req-42"`, NewStringID("req-42")},
		{"null", `null`, RequestID{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id RequestID
			require.NoError(t, json.Unmarshal([]byte(tt.json), &id))
			assert.True(t, id.Equal(tt.want))

			out, err := json.Marshal(id)
			require.NoError(t, err)
			assert.JSONEq(t, tt.json, string(out))
		})
	}
}

func TestRequestIDRejectsUnknownShapes(t *testing.T) {
	for _, raw := range []string{`1.5`, `true`, `[1]`, `{"id":1}`} {
		var id RequestID
		assert.Error(t, json.Unmarshal([]byte(raw), &id), "shape %s", raw)
	}
}

func TestDecodeMessageVariants(t *testing.T) {
	t.Run("request", func(t *testing.T) {
		msg, err := DecodeMessage([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
		require.NoError(t, err)
		req, ok := msg.(*Request)
		require.True(t, ok)
		assert.Equal(t, "ping", req.Method)
		assert.True(t, req.ID.Equal(NewIntID(1)))
	})

	t.Run("notification", func(t *testing.T) {
		msg, err := DecodeMessage([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
		require.NoError(t, err)
		notif, ok := msg.(*Notification)
		require.True(t, ok)
		assert.Equal(t, NotificationInitialized, notif.Method)
	})

	t.Run("null id is a notification", func(t *testing.T) {
		msg, err := DecodeMessage([]byte(`{"jsonrpc":"2.0","id":null,"method":"x"}`))
		require.NoError(t, err)
		_, ok := msg.(*Notification)
		assert.True(t, ok)
	})

	t.Run("response", func(t *testing.T) {
		msg, err := DecodeMessage([]byte(`{"jsonrpc":"2.0","id":"a","result":{"ok":true}}`))
		require.NoError(t, err)
		resp, ok := msg.(*Response)
		require.True(t, ok)
		assert.Nil(t, resp.Error)
		assert.JSONEq(t, `{"ok":true}`, string(resp.Result))
	})

	t.Run("error response", func(t *testing.T) {
		msg, err := DecodeMessage([]byte(`{"jsonrpc":"2.0","id":2,"error":{"code":-32601,"message":"Method not found"}}`))
		require.NoError(t, err)
		resp, ok := msg.(*Response)
		require.True(t, ok)
		require.NotNil(t, resp.Error)
		assert.Equal(t, MethodNotFound, resp.Error.Code)
	})
}

func TestDecodeMessageMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"missing jsonrpc", `{"id":1,"method":"ping"}`},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`},
		{"float id", `{"jsonrpc":"2.0","id":1.5,"method":"ping"}`},
		{"object id", `{"jsonrpc":"2.0","id":{},"method":"ping"}`},
		{"no method no result", `{"jsonrpc":"2.0","id":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestDecodeMessagesBatch(t *testing.T) {
	data := []byte(`[
		{"jsonrpc":"2.0","id":1,"method":"ping"},
		{"jsonrpc":"2.0","method":"notifications/initialized"},
		{"jsonrpc":"2.0","id":"two","method":"tools/list"}
	]`)

	msgs, batch, err := DecodeMessages(data)
	require.NoError(t, err)
	assert.True(t, batch)
	require.Len(t, msgs, 3)
	assert.IsType(t, &Request{}, msgs[0])
	assert.IsType(t, &Notification{}, msgs[1])
	assert.IsType(t, &Request{}, msgs[2])
}

func TestDecodeMessagesSingle(t *testing.T) {
	msgs, batch, err := DecodeMessages([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	require.NoError(t, err)
	assert.False(t, batch)
	assert.Len(t, msgs, 1)
}

func TestDecodeMessagesEmptyBatch(t *testing.T) {
	_, _, err := DecodeMessages([]byte(`[]`))
	assert.Error(t, err)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	req, err := NewRequest(NewIntID(7), MethodCallTool, map[string]interface{}{"name": "add"})
	require.NoError(t, err)
	resp, err := NewResponse(NewStringID("r"), map[string]interface{}{"ok": true})
	require.NoError(t, err)
	errResp := NewErrorResponse(NewIntID(9), MethodNotFound, "Method not found", nil)
	notif, err := NewNotification(NotificationProgress, ProgressParams{Progress: 0.5})
	require.NoError(t, err)

	for _, msg := range []Message{req, resp, errResp, notif} {
		encoded, err := EncodeMessage(msg)
		require.NoError(t, err)
		decoded, err := DecodeMessage(encoded)
		require.NoError(t, err)
		reencoded, err := EncodeMessage(decoded)
		require.NoError(t, err)
		assert.JSONEq(t, string(encoded), string(reencoded))
	}
}

func TestEncodeBatchIsArray(t *testing.T) {
	resp, err := NewResponse(NewIntID(1), map[string]interface{}{})
	require.NoError(t, err)

	out, err := EncodeBatch([]Message{resp})
	require.NoError(t, err)
	assert.Equal(t, byte('['), out[0])

	msgs, batch, err := DecodeMessages(out)
	require.NoError(t, err)
	assert.True(t, batch)
	assert.Len(t, msgs, 1)
}

func TestProgressTokenShapes(t *testing.T) {
	var tok ProgressToken
	require.NoError(t, json.Unmarshal([]byte(`"abc"`), &tok))
	assert.Equal(t, "abc", tok.String())

	require.NoError(t, json.Unmarshal([]byte(`42`), &tok))
	assert.Equal(t, "42", tok.String())
	out, err := json.Marshal(tok)
	require.NoError(t, err)
	assert.Equal(t, `42`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`[1]`), &tok))
}
