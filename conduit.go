package conduit

import (
	"github.com/conduitmcp/conduit/pkg/server"
	"github.com/conduitmcp/conduit/pkg/transport"
)

// Version is the framework release version.
const Version = "0.1.0"

// Convenience re-exports of the core constructors.
var (
	// NewRegistry creates an empty tool/resource/prompt registry.
	NewRegistry = server.NewRegistry

	// NewServer creates a dispatch core over a registry.
	NewServer = server.New

	// NewSSETransport serves a server over HTTP+SSE.
	NewSSETransport = transport.NewSSE

	// NewStdioTransport serves a server over standard streams.
	NewStdioTransport = transport.NewStdio
)
