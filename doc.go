// Package conduit is the root of an MCP (Model Context Protocol) server
// framework. It re-exports the constructors an application needs to stand up
// a server; the implementation lives in the sub-packages.
//
// # Overview
//
//   - pkg/protocol: JSON-RPC 2.0 envelope and the MCP method surface
//   - pkg/schema: declarative parameter schemas and argument coercion
//   - pkg/uritemplate: RFC 6570 templates matched against concrete URIs
//   - pkg/server: registry, sessions and request dispatch
//   - pkg/transport: HTTP+SSE and stdio server transports
//   - pkg/auth: RS256 JWT verification and the HTTP bearer gate
//   - pkg/errors: structured errors carrying JSON-RPC codes
//   - pkg/observability: Prometheus metrics and OpenTelemetry tracing
//   - pkg/config: TOML and environment configuration
//   - pkg/openapi: OpenAPI 3.1 projection of the registered surface
//
// # Serving tools
//
// Register tools against a registry, wrap it in a server, and expose the
// server over a transport:
//
//	registry := conduit.NewRegistry()
//	registry.RegisterTool(&server.Tool{
//	    Name: "add",
//	    Parameters: []server.Parameter{
//	        {Name: "a", Schema: schema.Int()},
//	        {Name: "b", Schema: schema.Int()},
//	    },
//	    Handler: func(ctx *server.RequestContext, args map[string]interface{}) (interface{}, error) {
//	        return args["a"].(int64) + args["b"].(int64), nil
//	    },
//	})
//
//	srv := conduit.NewServer(registry, server.WithName("calc"))
//	http.ListenAndServe(":8080", conduit.NewSSETransport(srv).Handler())
//
// A runnable variant of this lives in examples/calculator.
package conduit
