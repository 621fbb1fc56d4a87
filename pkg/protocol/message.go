package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Message is one JSON-RPC envelope: *Request, *Response or *Notification.
type Message interface {
	isMessage()
}

func (*Request) isMessage()      {}
func (*Response) isMessage()     {}
func (*Notification) isMessage() {}

// ResponseBatch is the reply to a batch payload: an ordered array of
// responses that travels as one message.
type ResponseBatch []*Response

func (ResponseBatch) isMessage() {}

// envelope is the decoding probe for a single JSON-RPC object.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
}

// DecodeMessage decodes a single JSON object into a Message. A malformed
// envelope (bad JSON, wrong jsonrpc version, unknown id shape) fails; an
// unrecognized method does not — that is a dispatch concern.
func DecodeMessage(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	return messageFromEnvelope(&env)
}

// DecodeMessages decodes either a single JSON object or a JSON array of
// objects, transparently. batch reports which shape the wire carried, so a
// batch of one is distinguishable from a bare message.
func DecodeMessages(data []byte) (msgs []Message, batch bool, err error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, false, fmt.Errorf("empty message body")
	}
	if trimmed[0] != '[' {
		msg, err := DecodeMessage(data)
		if err != nil {
			return nil, false, err
		}
		return []Message{msg}, false, nil
	}

	var envs []json.RawMessage
	if err := json.Unmarshal(data, &envs); err != nil {
		return nil, true, fmt.Errorf("malformed batch: %w", err)
	}
	if len(envs) == 0 {
		return nil, true, fmt.Errorf("empty batch")
	}
	msgs = make([]Message, 0, len(envs))
	for i, raw := range envs {
		msg, err := DecodeMessage(raw)
		if err != nil {
			return nil, true, fmt.Errorf("batch item %d: %w", i, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, true, nil
}

func messageFromEnvelope(env *envelope) (Message, error) {
	if env.JSONRPC != JSONRPCVersion {
		return nil, fmt.Errorf("unsupported jsonrpc version %q", env.JSONRPC)
	}

	var id RequestID
	if len(env.ID) > 0 {
		if err := id.UnmarshalJSON(env.ID); err != nil {
			return nil, err
		}
	}

	switch {
	case env.Method != "" && id.IsValid():
		return &Request{
			JSONRPC: JSONRPCVersion,
			ID:      id,
			Method:  env.Method,
			Params:  env.Params,
		}, nil
	case env.Method != "":
		return &Notification{
			JSONRPC: JSONRPCVersion,
			Method:  env.Method,
			Params:  env.Params,
		}, nil
	case env.Result != nil || env.Error != nil:
		return &Response{
			JSONRPC: JSONRPCVersion,
			ID:      id,
			Result:  env.Result,
			Error:   env.Error,
		}, nil
	default:
		return nil, fmt.Errorf("envelope is neither request, response nor notification")
	}
}

// EncodeMessage is the exact inverse of DecodeMessage.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// EncodeBatch encodes messages as a JSON array, even when it holds a single
// element.
func EncodeBatch(msgs []Message) ([]byte, error) {
	return json.Marshal(msgs)
}
