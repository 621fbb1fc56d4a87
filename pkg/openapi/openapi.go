// Package openapi projects a registry's tool and resource surface into an
// OpenAPI 3.1 document. The document describes the logical operations, not
// the JSON-RPC envelope: each tool appears as a POST operation whose request
// body is the tool's input schema.
package openapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/conduitmcp/conduit/pkg/server"
)

// Document is the root OpenAPI object.
type Document struct {
	OpenAPI string           `json:"openapi"`
	Info    Info             `json:"info"`
	Paths   map[string]*Path `json:"paths"`
}

// Info identifies the API.
type Info struct {
	Title       string `json:"title"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

// Path holds the operations available on one route.
type Path struct {
	Get  *Operation `json:"get,omitempty"`
	Post *Operation `json:"post,omitempty"`
}

// Operation is one callable endpoint.
type Operation struct {
	OperationID string               `json:"operationId"`
	Summary     string               `json:"summary,omitempty"`
	Parameters  []ParameterSpec      `json:"parameters,omitempty"`
	RequestBody *RequestBody         `json:"requestBody,omitempty"`
	Responses   map[string]*Response `json:"responses"`
}

// ParameterSpec describes one path parameter.
type ParameterSpec struct {
	Name     string          `json:"name"`
	In       string          `json:"in"`
	Required bool            `json:"required"`
	Schema   json.RawMessage `json:"schema,omitempty"`
}

// RequestBody describes the expected payload.
type RequestBody struct {
	Required bool                  `json:"required"`
	Content  map[string]*MediaType `json:"content"`
}

// Response describes one status outcome.
type Response struct {
	Description string                `json:"description"`
	Content     map[string]*MediaType `json:"content,omitempty"`
}

// MediaType carries the schema for one content type.
type MediaType struct {
	Schema json.RawMessage `json:"schema,omitempty"`
}

var textResultSchema = json.RawMessage(`{"type":"object","properties":{"content":{"type":"array","items":{"type":"object","properties":{"type":{"type":"string"},"text":{"type":"string"}}}},"isError":{"type":"boolean"}}}`)

var stringSchema = json.RawMessage(`{"type":"string"}`)

// Generate builds the document for the given registry.
func Generate(title, version string, reg *server.Registry) (*Document, error) {
	doc := &Document{
		OpenAPI: "3.1.0",
		Info: Info{
			Title:       title,
			Version:     version,
			Description: "Tool and resource surface of an MCP server.",
		},
		Paths: make(map[string]*Path),
	}

	for _, tool := range reg.Tools() {
		input, err := json.Marshal(tool.InputSchema())
		if err != nil {
			return nil, err
		}
		op := &Operation{
			OperationID: "callTool_" + tool.Name,
			Summary:     tool.Description,
			RequestBody: &RequestBody{
				Required: true,
				Content:  map[string]*MediaType{"application/json": {Schema: input}},
			},
			Responses: map[string]*Response{
				"200": {
					Description: "Tool result. Business failures set isError instead of a transport status.",
					Content:     map[string]*MediaType{"application/json": {Schema: textResultSchema}},
				},
			},
		}
		doc.Paths["/tools/"+tool.Name] = &Path{Post: op}
	}

	for _, res := range reg.Resources() {
		for i, tmpl := range res.Templates {
			op := &Operation{
				OperationID: "readResource_" + res.Name,
				Summary:     res.Description,
				Responses: map[string]*Response{
					"200": {Description: "Resource contents."},
				},
			}
			// The template variables become path parameters, which also keeps
			// one path key per template instead of the last one winning.
			path := "/resources/" + res.Name
			for _, name := range tmpl.Names() {
				path += "/{" + name + "}"
				spec := ParameterSpec{Name: name, In: "path", Required: true, Schema: stringSchema}
				if s, ok := res.Variables[name]; ok {
					raw, err := json.Marshal(s)
					if err != nil {
						return nil, err
					}
					spec.Schema = raw
				}
				op.Parameters = append(op.Parameters, spec)
			}
			if _, taken := doc.Paths[path]; taken {
				path = fmt.Sprintf("%s/%d", path, i)
				op.OperationID = fmt.Sprintf("%s_%d", op.OperationID, i)
			}
			doc.Paths[path] = &Path{Get: op}
		}
	}

	return doc, nil
}

// Handler serves the generated document as JSON. The document is built per
// request so late registrations show up.
func Handler(title, version string, reg *server.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc, err := Generate(title, version, reg)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	})
}
