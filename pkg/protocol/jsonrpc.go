package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

const (
	// JSONRPCVersion is the supported JSON-RPC version
	JSONRPCVersion = "2.0"
)

// ErrorCode represents standard JSON-RPC 2.0 error codes
type ErrorCode int

// Standard error codes as per JSON-RPC 2.0 specification
const (
	ParseError     ErrorCode = -32700
	InvalidRequest ErrorCode = -32600
	MethodNotFound ErrorCode = -32601
	InvalidParams  ErrorCode = -32602
	InternalError  ErrorCode = -32603
)

// MCP-specific error codes
const (
	// ResourceNotFound indicates no declared resource template matched the
	// requested URI.
	ResourceNotFound ErrorCode = -32002
	// SessionNotFound indicates a request addressed a torn-down session.
	SessionNotFound ErrorCode = -32001
)

// RequestID is a JSON-RPC request identifier: an integer or a string.
// Integer ids round-trip exactly; the zero RequestID marshals as null and
// reports IsValid() == false, which is the shape notifications and
// id-less error responses carry.
type RequestID struct {
	num   int64
	str   string
	isStr bool
	valid bool
}

// NewIntID returns an integer request id.
func NewIntID(n int64) RequestID {
	return RequestID{num: n, valid: true}
}

// NewStringID returns a string request id.
func NewStringID(s string) RequestID {
	return RequestID{str: s, isStr: true, valid: true}
}

// IsValid reports whether the id is present (non-null).
func (id RequestID) IsValid() bool { return id.valid }

// IsString reports whether the id is the string variant.
func (id RequestID) IsString() bool { return id.isStr }

// Int64 returns the integer value; ok is false for string or null ids.
func (id RequestID) Int64() (int64, bool) {
	if !id.valid || id.isStr {
		return 0, false
	}
	return id.num, true
}

// Str returns the string value; ok is false for integer or null ids.
func (id RequestID) Str() (string, bool) {
	if !id.valid || !id.isStr {
		return "", false
	}
	return id.str, true
}

// Equal reports whether two ids are the same variant and value.
func (id RequestID) Equal(other RequestID) bool { return id == other }

// String renders the id for logs and pending-request keys.
func (id RequestID) String() string {
	switch {
	case !id.valid:
		return "<null>"
	case id.isStr:
		return id.str
	default:
		return strconv.FormatInt(id.num, 10)
	}
}

// MarshalJSON implements json.Marshaler.
func (id RequestID) MarshalJSON() ([]byte, error) {
	switch {
	case !id.valid:
		return []byte("null"), nil
	case id.isStr:
		return json.Marshal(id.str)
	default:
		return strconv.AppendInt(nil, id.num, 10), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler. Only integer and string shapes
// are accepted; anything else is a malformed envelope.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = RequestID{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid string id: %w", err)
		}
		*id = NewStringID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q: must be an integer or a string", data)
	}
	*id = NewIntID(n)
	return nil
}

// Request represents a JSON-RPC 2.0 request. Every request carries a
// non-null id.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// NewRequest creates a new JSON-RPC 2.0 request.
func NewRequest(id RequestID, method string, params interface{}) (*Request, error) {
	paramsJSON, err := marshalOptional(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return &Request{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  method,
		Params:  paramsJSON,
	}, nil
}

// Response represents a JSON-RPC 2.0 response, either the result or the
// error variant.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewResponse creates a new JSON-RPC 2.0 success response.
func NewResponse(id RequestID, result interface{}) (*Response, error) {
	resultJSON, err := marshalOptional(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  resultJSON,
	}, nil
}

// NewErrorResponse creates a new JSON-RPC 2.0 error response.
func NewErrorResponse(id RequestID, code ErrorCode, message string, data interface{}) *Response {
	var dataJSON interface{}
	if data != nil {
		if bs, err := json.Marshal(data); err == nil {
			dataJSON = json.RawMessage(bs)
		}
	}
	return &Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    dataJSON,
		},
	}
}

// Notification represents a JSON-RPC 2.0 notification. Notifications carry
// no id and never receive a response.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// NewNotification creates a new JSON-RPC 2.0 notification.
func NewNotification(method string, params interface{}) (*Notification, error) {
	paramsJSON, err := marshalOptional(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return &Notification{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  paramsJSON,
	}, nil
}

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

func marshalOptional(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
