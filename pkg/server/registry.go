package server

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/conduitmcp/conduit/pkg/protocol"
	"github.com/conduitmcp/conduit/pkg/schema"
	"github.com/conduitmcp/conduit/pkg/uritemplate"
)

// ToolHandler is the application callback behind one tool. Arguments arrive
// already coerced to their declared types; the returned value is rendered as
// the tool result's text content.
type ToolHandler func(ctx *RequestContext, args map[string]interface{}) (interface{}, error)

// ResourceHandler produces the contents behind a matched resource URI. vars
// holds the URI template variables, coerced per the resource's variable
// schemas. A string return becomes text contents, a []byte return becomes
// blob contents.
type ResourceHandler func(ctx *RequestContext, uri string, vars map[string]interface{}) (interface{}, error)

// PromptHandler renders a prompt into its conversational messages.
type PromptHandler func(ctx *RequestContext, args map[string]string) ([]protocol.PromptMessage, error)

// Parameter is one declared tool parameter.
type Parameter struct {
	Name        string
	Description string
	Schema      *schema.Schema
}

// Tool is one registered callable operation.
type Tool struct {
	Name        string
	Description string
	Parameters  []Parameter
	Output      *schema.Schema
	Handler     ToolHandler

	input *schema.Schema
}

// InputSchema returns the object schema derived from the declared
// parameters. The required set follows the usual derivation: no default and
// not optional means required.
func (t *Tool) InputSchema() *schema.Schema {
	if t.input == nil {
		props := make(map[string]*schema.Schema, len(t.Parameters))
		for _, p := range t.Parameters {
			s := p.Schema
			if p.Description != "" && s.Description == "" {
				s = s.WithDescription(p.Description)
			}
			props[p.Name] = s
		}
		t.input = schema.ObjectOf(props)
	}
	return t.input
}

// Parameter looks up a declared parameter by name.
func (t *Tool) Parameter(name string) (*Parameter, bool) {
	for i := range t.Parameters {
		if t.Parameters[i].Name == name {
			return &t.Parameters[i], true
		}
	}
	return nil, false
}

func (t *Tool) wire() (protocol.Tool, error) {
	input, err := json.Marshal(t.InputSchema())
	if err != nil {
		return protocol.Tool{}, fmt.Errorf("tool %q: input schema: %w", t.Name, err)
	}
	out := protocol.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: input,
	}
	if t.Output != nil {
		output, err := json.Marshal(t.Output)
		if err != nil {
			return protocol.Tool{}, fmt.Errorf("tool %q: output schema: %w", t.Name, err)
		}
		out.OutputSchema = output
	}
	return out, nil
}

// Resource is one registered URI-addressable data source. Templates are
// tried in declaration order during matching.
type Resource struct {
	Name        string
	Description string
	MimeType    string
	Templates   []*uritemplate.Template

	// Variables maps template variable names to their schemas. Variables
	// without an entry coerce as plain strings.
	Variables map[string]*schema.Schema

	Handler ResourceHandler
}

// Prompt is one registered message template.
type Prompt struct {
	Name        string
	Description string
	Arguments   []protocol.PromptArgument

	// Completions maps argument names to their static candidate values, used
	// by completion/complete when no provider overrides them.
	Completions map[string][]string

	Handler PromptHandler
}

// Registry holds the tool, resource and prompt metadata a server exposes.
// Declaration order is preserved: listings report it and resource matching
// tries templates in it, first match wins.
type Registry struct {
	mu        sync.RWMutex
	tools     []*Tool
	toolIdx   map[string]*Tool
	resources []*Resource
	prompts   []*Prompt
	promptIdx map[string]*Prompt

	onChange func(surface string)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		toolIdx:   make(map[string]*Tool),
		promptIdx: make(map[string]*Prompt),
	}
}

// RegisterTool adds a tool. Names must be unique.
func (r *Registry) RegisterTool(t *Tool) error {
	if t.Name == "" {
		return fmt.Errorf("registry: tool with empty name")
	}
	if t.Handler == nil {
		return fmt.Errorf("registry: tool %q has no handler", t.Name)
	}
	if _, err := t.wire(); err != nil {
		return err
	}

	r.mu.Lock()
	if _, dup := r.toolIdx[t.Name]; dup {
		r.mu.Unlock()
		return fmt.Errorf("registry: duplicate tool %q", t.Name)
	}
	r.tools = append(r.tools, t)
	r.toolIdx[t.Name] = t
	r.mu.Unlock()

	r.changed("tools")
	return nil
}

// RegisterResource adds a resource. Template strings are accepted raw and
// compiled here.
func (r *Registry) RegisterResource(res *Resource, templates ...string) error {
	if res.Name == "" {
		return fmt.Errorf("registry: resource with empty name")
	}
	if res.Handler == nil {
		return fmt.Errorf("registry: resource %q has no handler", res.Name)
	}
	for _, raw := range templates {
		tmpl, err := uritemplate.Parse(raw)
		if err != nil {
			return fmt.Errorf("registry: resource %q: %w", res.Name, err)
		}
		res.Templates = append(res.Templates, tmpl)
	}
	if len(res.Templates) == 0 {
		return fmt.Errorf("registry: resource %q has no URI templates", res.Name)
	}

	r.mu.Lock()
	r.resources = append(r.resources, res)
	r.mu.Unlock()

	r.changed("resources")
	return nil
}

// RegisterPrompt adds a prompt. Names must be unique.
func (r *Registry) RegisterPrompt(p *Prompt) error {
	if p.Name == "" {
		return fmt.Errorf("registry: prompt with empty name")
	}
	if p.Handler == nil {
		return fmt.Errorf("registry: prompt %q has no handler", p.Name)
	}

	r.mu.Lock()
	if _, dup := r.promptIdx[p.Name]; dup {
		r.mu.Unlock()
		return fmt.Errorf("registry: duplicate prompt %q", p.Name)
	}
	r.prompts = append(r.prompts, p)
	r.promptIdx[p.Name] = p
	r.mu.Unlock()

	r.changed("prompts")
	return nil
}

// Tool looks up a tool by name.
func (r *Registry) Tool(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.toolIdx[name]
	return t, ok
}

// Tools returns all tools in declaration order.
func (r *Registry) Tools() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Prompt looks up a prompt by name.
func (r *Registry) Prompt(name string) (*Prompt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.promptIdx[name]
	return p, ok
}

// Prompts returns all prompts in declaration order.
func (r *Registry) Prompts() []*Prompt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Prompt, len(r.prompts))
	copy(out, r.prompts)
	return out
}

// Resources returns all resources in declaration order.
func (r *Registry) Resources() []*Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Resource, len(r.resources))
	copy(out, r.resources)
	return out
}

// MatchResource finds the first resource whose templates match the URI, in
// declaration order, and binds its template variables.
func (r *Registry) MatchResource(uri string) (*Resource, map[string]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, res := range r.resources {
		for _, tmpl := range res.Templates {
			if vars, ok := tmpl.Match(uri); ok {
				return res, vars, true
			}
		}
	}
	return nil, nil, false
}

// wireTools renders the tool listing.
func (r *Registry) wireTools() ([]protocol.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		wt, err := t.wire()
		if err != nil {
			return nil, err
		}
		out = append(out, wt)
	}
	return out, nil
}

// wireResourceTemplates renders the template listing.
func (r *Registry) wireResourceTemplates() []protocol.ResourceTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []protocol.ResourceTemplate
	for _, res := range r.resources {
		for _, tmpl := range res.Templates {
			out = append(out, protocol.ResourceTemplate{
				URITemplate: tmpl.Raw(),
				Name:        res.Name,
				Description: res.Description,
				MimeType:    res.MimeType,
			})
		}
	}
	return out
}

// wirePrompts renders the prompt listing.
func (r *Registry) wirePrompts() []protocol.Prompt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Prompt, 0, len(r.prompts))
	for _, p := range r.prompts {
		out = append(out, protocol.Prompt{
			Name:        p.Name,
			Description: p.Description,
			Arguments:   p.Arguments,
		})
	}
	return out
}

func (r *Registry) changed(surface string) {
	r.mu.RLock()
	hook := r.onChange
	r.mu.RUnlock()
	if hook != nil {
		hook(surface)
	}
}

func (r *Registry) setChangeHook(hook func(surface string)) {
	r.mu.Lock()
	r.onChange = hook
	r.mu.Unlock()
}
