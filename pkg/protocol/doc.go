// Package protocol implements the JSON-RPC 2.0 wire model used by the Model
// Context Protocol: request/response/notification envelopes, batches,
// integer-or-string request ids with exact numeric round-tripping, the
// dynamic Value container for untyped payloads, and the MCP method and
// parameter type surface.
//
// Decoding accepts a single JSON object or a JSON array (batch)
// transparently. A malformed envelope is a wire-model failure; a well-formed
// envelope with an unrecognized method is not — resolving methods belongs to
// the dispatch layer.
package protocol
