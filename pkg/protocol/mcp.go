package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ProtocolVersion is the MCP protocol revision this implementation speaks.
const ProtocolVersion = "2024-11-05"

// Core MCP method names. The method surface is fixed; anything outside this
// table is answered with MethodNotFound.
const (
	MethodInitialize            = "initialize"
	MethodPing                  = "ping"
	MethodListTools             = "tools/list"
	MethodCallTool              = "tools/call"
	MethodListResources         = "resources/list"
	MethodReadResource          = "resources/read"
	MethodListResourceTemplates = "resources/templates/list"
	MethodListPrompts           = "prompts/list"
	MethodGetPrompt             = "prompts/get"
	MethodComplete              = "completion/complete"
)

// Notification method names.
const (
	NotificationInitialized          = "notifications/initialized"
	NotificationCancelled            = "notifications/cancelled"
	NotificationProgress             = "notifications/progress"
	NotificationRootsListChanged     = "notifications/roots/list_changed"
	NotificationToolsListChanged     = "notifications/tools/list_changed"
	NotificationResourcesListChanged = "notifications/resources/list_changed"
	NotificationPromptsListChanged   = "notifications/prompts/list_changed"
)

// Implementation identifies a client or server implementation.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// RootsCapability signals client-side roots support.
type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ClientCapabilities are declared by the client during initialize.
type ClientCapabilities struct {
	Roots        *RootsCapability       `json:"roots,omitempty"`
	Sampling     map[string]interface{} `json:"sampling,omitempty"`
	Experimental map[string]interface{} `json:"experimental,omitempty"`
}

// ListChangedCapability marks a listable surface that emits list_changed
// notifications.
type ListChangedCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ServerCapabilities are reported by the server during initialize.
type ServerCapabilities struct {
	Tools       *ListChangedCapability `json:"tools,omitempty"`
	Resources   *ListChangedCapability `json:"resources,omitempty"`
	Prompts     *ListChangedCapability `json:"prompts,omitempty"`
	Completions map[string]interface{} `json:"completions,omitempty"`
}

// InitializeParams is the payload of the initialize request.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult is the response to initialize.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// ProgressToken is the reserved _meta.progressToken value: a string or a
// number. Its presence on a request enables progress notifications.
type ProgressToken struct {
	str   string
	num   json.Number
	isStr bool
	valid bool
}

// NewStringProgressToken builds a string token.
func NewStringProgressToken(s string) ProgressToken {
	return ProgressToken{str: s, isStr: true, valid: true}
}

// NewIntProgressToken builds a numeric token.
func NewIntProgressToken(n int64) ProgressToken {
	return ProgressToken{num: json.Number(strconv.FormatInt(n, 10)), valid: true}
}

// IsValid reports whether a token is present.
func (t ProgressToken) IsValid() bool { return t.valid }

func (t ProgressToken) String() string {
	if t.isStr {
		return t.str
	}
	return t.num.String()
}

// MarshalJSON implements json.Marshaler.
func (t ProgressToken) MarshalJSON() ([]byte, error) {
	switch {
	case !t.valid:
		return []byte("null"), nil
	case t.isStr:
		return json.Marshal(t.str)
	default:
		return []byte(t.num), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *ProgressToken) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ProgressToken{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = NewStringProgressToken(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("progress token must be a string or a number: %w", err)
	}
	*t = ProgressToken{num: n, valid: true}
	return nil
}

// RequestMeta is the reserved _meta field on request params.
type RequestMeta struct {
	ProgressToken ProgressToken `json:"progressToken,omitempty"`
}

// Tool describes one callable operation.
type Tool struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	InputSchema  json.RawMessage `json:"inputSchema"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
}

// ListToolsResult is the response to tools/list.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams is the payload of tools/call.
type CallToolParams struct {
	Name      string           `json:"name"`
	Arguments map[string]Value `json:"arguments,omitempty"`
	Meta      *RequestMeta     `json:"_meta,omitempty"`
}

// Content is one item of tool or prompt output. Only the text variant is
// produced by the dispatch core.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextContent wraps a string rendering as text content.
func TextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

// CallToolResult is the response to tools/call. Business-logic failures set
// IsError; they are never JSON-RPC protocol errors.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError"`
}

// Resource describes one concrete listed resource.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceTemplate describes a parameterized resource addressed by an
// RFC 6570 URI template.
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListResourcesResult is the response to resources/list.
type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
}

// ListResourceTemplatesResult is the response to resources/templates/list.
type ListResourceTemplatesResult struct {
	ResourceTemplates []ResourceTemplate `json:"resourceTemplates"`
}

// ReadResourceParams is the payload of resources/read.
type ReadResourceParams struct {
	URI  string       `json:"uri"`
	Meta *RequestMeta `json:"_meta,omitempty"`
}

// ResourceContents is one item of resources/read output: text or blob.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// ReadResourceResult is the response to resources/read.
type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
}

// PromptArgument describes one prompt parameter.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Prompt describes one named message template.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// ListPromptsResult is the response to prompts/list.
type ListPromptsResult struct {
	Prompts []Prompt `json:"prompts"`
}

// GetPromptParams is the payload of prompts/get.
type GetPromptParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
	Meta      *RequestMeta      `json:"_meta,omitempty"`
}

// PromptMessage is one conversational message produced by a prompt.
type PromptMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// GetPromptResult is the response to prompts/get.
type GetPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// Completion reference types.
const (
	CompletionRefPrompt = "ref/prompt"
	CompletionRefTool   = "ref/tool"
)

// CompletionRef points at the tool or prompt whose parameter is being
// completed.
type CompletionRef struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// CompletionArgument names the parameter and the prefix typed so far.
type CompletionArgument struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CompleteParams is the payload of completion/complete.
type CompleteParams struct {
	Ref      CompletionRef      `json:"ref"`
	Argument CompletionArgument `json:"argument"`
}

// CompletionValues carries ranked completion candidates.
type CompletionValues struct {
	Values  []string `json:"values"`
	Total   *int     `json:"total,omitempty"`
	HasMore bool     `json:"hasMore,omitempty"`
}

// CompleteResult is the response to completion/complete.
type CompleteResult struct {
	Completion CompletionValues `json:"completion"`
}

// ProgressParams is the payload of notifications/progress.
type ProgressParams struct {
	ProgressToken ProgressToken `json:"progressToken"`
	Progress      float64       `json:"progress"`
	Total         *float64      `json:"total,omitempty"`
	Message       string        `json:"message,omitempty"`
}

// CancelledParams is the payload of notifications/cancelled.
type CancelledParams struct {
	RequestID RequestID `json:"requestId"`
	Reason    string    `json:"reason,omitempty"`
}
