package errors

import (
	"github.com/conduitmcp/conduit/pkg/protocol"
)

// ArgumentErrorData is the structured payload carried by coercion failures.
type ArgumentErrorData struct {
	Tool      string      `json:"tool"`
	Parameter string      `json:"parameter"`
	Expected  string      `json:"expected,omitempty"`
	Actual    interface{} `json:"actual,omitempty"`
}

// InvalidArgumentType reports a wire value that cannot be coerced into the
// parameter's declared type. It is a business error: the envelope was
// well-formed, so it surfaces as an isError tool result, never as a
// protocol-level error.
func InvalidArgumentType(tool, parameter, expected string, actual interface{}) *Error {
	return Newf(protocol.InvalidParams, CategoryBusiness,
		"invalid argument %q for tool %q: expected %s, got %v", parameter, tool, expected, actual).
		WithData(ArgumentErrorData{Tool: tool, Parameter: parameter, Expected: expected, Actual: actual})
}

// MissingRequiredArgument reports an absent required parameter with no
// declared default.
func MissingRequiredArgument(tool, parameter string) *Error {
	return Newf(protocol.InvalidParams, CategoryBusiness,
		"missing required argument %q for tool %q", parameter, tool).
		WithData(ArgumentErrorData{Tool: tool, Parameter: parameter})
}

// UnknownTool reports a tools/call naming a tool that is not registered.
// Like coercion failures this is a business error, not a protocol error.
func UnknownTool(name string) *Error {
	return Newf(protocol.InvalidParams, CategoryBusiness, "Unknown tool: %q", name)
}

// UnknownPrompt reports a prompts/get naming an unregistered prompt.
func UnknownPrompt(name string) *Error {
	return Newf(protocol.InvalidParams, CategoryBusiness, "Unknown prompt: %q", name)
}

// MethodNotFoundError reports an unrecognized method; this one IS a
// protocol error (-32601).
func MethodNotFoundError(method string) *Error {
	return Newf(protocol.MethodNotFound, CategoryProtocol, "Method not found: %q", method)
}

// ResourceNotFoundError reports a resources/read URI that matched no
// declared template.
func ResourceNotFoundError(uri string) *Error {
	return Newf(protocol.ResourceNotFound, CategoryProtocol, "Resource not found: %q", uri)
}

// ParseErrorf reports a body that failed to decode after full aggregation.
func ParseErrorf(format string, args ...interface{}) *Error {
	return Newf(protocol.ParseError, CategoryProtocol, format, args...)
}

// InvalidParamsError reports request params that do not fit the method's
// declared shape.
func InvalidParamsError(method string, cause error) *Error {
	return Wrap(cause, protocol.InvalidParams, CategoryProtocol, "invalid params for "+method)
}

// SessionNotFoundError reports a message addressed to a torn-down session.
func SessionNotFoundError(id string) *Error {
	return Newf(protocol.SessionNotFound, CategoryProtocol, "session not found: %q", id)
}

// Internal wraps an unexpected failure as a JSON-RPC internal error.
func Internal(cause error) *Error {
	return Wrap(cause, protocol.InternalError, CategoryInternal, "internal error")
}
