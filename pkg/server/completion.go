package server

import (
	"context"
	"encoding/json"
	"sort"

	mcperrors "github.com/conduitmcp/conduit/pkg/errors"
	"github.com/conduitmcp/conduit/pkg/protocol"
	"github.com/conduitmcp/conduit/pkg/schema"
)

// CompletionProvider supplies candidate values for a tool or prompt
// argument. Returning handled == false falls back to the default source,
// the argument's enum labels or the prompt's static candidates.
type CompletionProvider interface {
	Complete(ctx context.Context, ref protocol.CompletionRef, arg protocol.CompletionArgument) (values []string, handled bool, err error)
}

// CompletionProviderFunc adapts a function to CompletionProvider.
type CompletionProviderFunc func(ctx context.Context, ref protocol.CompletionRef, arg protocol.CompletionArgument) ([]string, bool, error)

func (f CompletionProviderFunc) Complete(ctx context.Context, ref protocol.CompletionRef, arg protocol.CompletionArgument) ([]string, bool, error) {
	return f(ctx, ref, arg)
}

// maxCompletionValues caps how many candidates one reply carries.
const maxCompletionValues = 100

func (s *Server) handleComplete(ctx context.Context, req *protocol.Request) (interface{}, error) {
	var params protocol.CompleteParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, mcperrors.InvalidParamsError(req.Method, err)
	}

	candidates, err := s.completionCandidates(ctx, params)
	if err != nil {
		return nil, err
	}

	ranked := rankCompletions(params.Argument.Value, candidates)
	total := len(ranked)
	hasMore := total > maxCompletionValues
	if hasMore {
		ranked = ranked[:maxCompletionValues]
	}

	return protocol.CompleteResult{
		Completion: protocol.CompletionValues{
			Values:  ranked,
			Total:   &total,
			HasMore: hasMore,
		},
	}, nil
}

func (s *Server) completionCandidates(ctx context.Context, params protocol.CompleteParams) ([]string, error) {
	if s.completions != nil {
		values, handled, err := s.completions.Complete(ctx, params.Ref, params.Argument)
		if err != nil {
			return nil, mcperrors.Internal(err)
		}
		if handled {
			return values, nil
		}
	}

	switch params.Ref.Type {
	case protocol.CompletionRefTool:
		tool, ok := s.registry.Tool(params.Ref.Name)
		if !ok {
			return nil, mcperrors.UnknownTool(params.Ref.Name)
		}
		param, ok := tool.Parameter(params.Argument.Name)
		if !ok {
			return nil, mcperrors.InvalidParamsError(protocol.MethodComplete, nil)
		}
		return enumLabels(param.Schema), nil

	case protocol.CompletionRefPrompt:
		prompt, ok := s.registry.Prompt(params.Ref.Name)
		if !ok {
			return nil, mcperrors.UnknownPrompt(params.Ref.Name)
		}
		return prompt.Completions[params.Argument.Name], nil

	default:
		return nil, mcperrors.InvalidParamsError(protocol.MethodComplete, nil)
	}
}

func enumLabels(s *schema.Schema) []string {
	if s == nil {
		return nil
	}
	if s.Kind == schema.KindEnum {
		return s.Values
	}
	if s.Kind == schema.KindArray {
		return enumLabels(s.Items)
	}
	return nil
}

// rankCompletions orders candidates by affinity with the typed prefix:
// longest shared prefix first, then shorter candidates before longer ones,
// then declaration order. Candidates sharing no prefix still appear, after
// all that do.
func rankCompletions(prefix string, candidates []string) []string {
	type scored struct {
		value string
		lcp   int
		idx   int
	}
	items := make([]scored, len(candidates))
	for i, c := range candidates {
		items[i] = scored{value: c, lcp: commonPrefixLen(prefix, c), idx: i}
	}

	sort.SliceStable(items, func(a, b int) bool {
		if items[a].lcp != items[b].lcp {
			return items[a].lcp > items[b].lcp
		}
		if items[a].lcp > 0 && len(items[a].value) != len(items[b].value) {
			return len(items[a].value) < len(items[b].value)
		}
		return items[a].idx < items[b].idx
	})

	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.value
	}
	return out
}

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
