// Package uritemplate implements the subset of RFC 6570 URI Templates used
// to address resources: expansion and, more importantly, reverse matching.
// Matching binds template variables from a concrete URI; static literal
// segments and the URI scheme must agree exactly, variable regions are
// greedy but bounded by the next literal delimiter.
package uritemplate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type opKind byte

const (
	opSimple   opKind = 0
	opReserved opKind = '+'
	opFragment opKind = '#'
	opLabel    opKind = '.'
	opPath     opKind = '/'
	opMatrix   opKind = ';'
	opQuery    opKind = '?'
	opContinue opKind = '&'
)

type varSpec struct {
	name string
	// prefix is the {var:N} modifier. Matching treats it as match-through,
	// binding the full region rather than truncating; expansion truncates.
	prefix  int
	explode bool
}

type expression struct {
	op    opKind
	specs []varSpec
}

type token struct {
	literal string
	expr    *expression
}

// pathVar describes one regexp capture group of the compiled matcher.
type pathVar struct {
	varSpec
	op opKind
}

// Template is a parsed and compiled URI template.
type Template struct {
	raw    string
	scheme string
	tokens []token

	re       *regexp.Regexp
	pathVars []pathVar

	// Query variables are matched against the parsed query map rather than
	// positionally, so their order in the concrete URI does not matter and
	// missing optional ones are tolerated.
	queryVars       []varSpec
	hasLiteralQuery bool

	fragSpecs   []varSpec
	fragExplode bool
	fragLiteral string
	hasFragment bool

	names []string
}

// Parse parses and compiles a URI template.
func Parse(raw string) (*Template, error) {
	tokens, err := tokenize(raw)
	if err != nil {
		return nil, err
	}

	t := &Template{raw: raw, tokens: tokens}
	if len(tokens) > 0 && tokens[0].expr == nil {
		t.scheme = schemeOf(tokens[0].literal)
	}

	// Pre-scan so reserved-expansion captures know whether a query section
	// follows and must stay unconsumed.
	hasQuery := false
	for _, tok := range tokens {
		if tok.expr != nil && (tok.expr.op == opQuery || tok.expr.op == opContinue) {
			hasQuery = true
		}
		if tok.expr == nil && strings.Contains(tok.literal, "?") {
			hasQuery = true
			t.hasLiteralQuery = true
		}
	}

	var b strings.Builder
	b.WriteString(`\A`)
	inFragment := false

	for _, tok := range tokens {
		if tok.expr == nil {
			lit := tok.literal
			if i := strings.IndexByte(lit, '#'); i >= 0 {
				b.WriteString(regexp.QuoteMeta(lit[:i]))
				t.fragLiteral = lit[i+1:]
				t.hasFragment = true
				inFragment = true
				continue
			}
			if inFragment {
				return nil, fmt.Errorf("uritemplate: %q: literal after fragment expression", raw)
			}
			b.WriteString(regexp.QuoteMeta(lit))
			continue
		}

		e := tok.expr
		switch e.op {
		case opQuery, opContinue:
			t.queryVars = append(t.queryVars, e.specs...)

		case opFragment:
			if t.hasFragment {
				return nil, fmt.Errorf("uritemplate: %q: multiple fragment sections", raw)
			}
			t.hasFragment = true
			t.fragSpecs = e.specs
			t.fragExplode = e.specs[0].explode
			inFragment = true

		case opSimple:
			for i, sp := range e.specs {
				if i > 0 {
					b.WriteByte(',')
				}
				if sp.explode || len(e.specs) == 1 {
					b.WriteString(`([^/?#]*)`)
				} else {
					b.WriteString(`([^/?#,]*)`)
				}
				t.pathVars = append(t.pathVars, pathVar{sp, e.op})
			}

		case opReserved:
			for i, sp := range e.specs {
				if i > 0 {
					b.WriteByte(',')
				}
				last := i == len(e.specs)-1
				switch {
				case !last:
					b.WriteString(`([^,?#]*)`)
				case hasQuery:
					b.WriteString(`([^?#]*)`)
				default:
					b.WriteString(`([^#]*)`)
				}
				t.pathVars = append(t.pathVars, pathVar{sp, e.op})
			}

		case opLabel:
			for _, sp := range e.specs {
				b.WriteString(`\.`)
				if sp.explode {
					b.WriteString(`([^/?#]*)`)
				} else {
					b.WriteString(`([^./?#]*)`)
				}
				t.pathVars = append(t.pathVars, pathVar{sp, e.op})
			}

		case opPath:
			for _, sp := range e.specs {
				b.WriteByte('/')
				if sp.explode {
					b.WriteString(`([^?#]*)`)
				} else {
					b.WriteString(`([^/?#]*)`)
				}
				t.pathVars = append(t.pathVars, pathVar{sp, e.op})
			}

		case opMatrix:
			for _, sp := range e.specs {
				name := regexp.QuoteMeta(sp.name)
				if sp.explode {
					b.WriteString(`((?:;` + name + `=[^;/?#]*)+)`)
				} else {
					b.WriteString(`;` + name + `=([^;/?#]*)`)
				}
				t.pathVars = append(t.pathVars, pathVar{sp, e.op})
			}
		}
	}

	if len(t.queryVars) > 0 && t.hasLiteralQuery {
		// Literal query anchors stay in the pattern; operator-bound query
		// parameters may follow in any order.
		b.WriteString(`(?:&[^#]*)?`)
	}
	b.WriteString(`\z`)

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("uritemplate: %q: %w", raw, err)
	}
	t.re = re

	for _, pv := range t.pathVars {
		t.names = append(t.names, pv.name)
	}
	for _, sp := range t.queryVars {
		t.names = append(t.names, sp.name)
	}
	for _, sp := range t.fragSpecs {
		t.names = append(t.names, sp.name)
	}
	return t, nil
}

// MustParse is Parse that panics on error, for declarations in package
// variables and registration literals.
func MustParse(raw string) *Template {
	t, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// Raw returns the original template string.
func (t *Template) Raw() string { return t.raw }

// Names returns the declared variable names in template order.
func (t *Template) Names() []string { return t.names }

func (t *Template) String() string { return t.raw }

func tokenize(raw string) ([]token, error) {
	var tokens []token
	rest := raw
	for len(rest) > 0 {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			tokens = append(tokens, token{literal: rest})
			break
		}
		if open > 0 {
			tokens = append(tokens, token{literal: rest[:open]})
		}
		closeIdx := strings.IndexByte(rest[open:], '}')
		if closeIdx < 0 {
			return nil, fmt.Errorf("uritemplate: %q: unterminated expression", raw)
		}
		body := rest[open+1 : open+closeIdx]
		expr, err := parseExpression(raw, body)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token{expr: expr})
		rest = rest[open+closeIdx+1:]
	}
	return tokens, nil
}

func parseExpression(raw, body string) (*expression, error) {
	if body == "" {
		return nil, fmt.Errorf("uritemplate: %q: empty expression", raw)
	}
	e := &expression{}
	switch body[0] {
	case '+', '#', '.', '/', ';', '?', '&':
		e.op = opKind(body[0])
		body = body[1:]
	}
	if body == "" {
		return nil, fmt.Errorf("uritemplate: %q: expression with no variables", raw)
	}
	for _, part := range strings.Split(body, ",") {
		sp, err := parseVarSpec(raw, part)
		if err != nil {
			return nil, err
		}
		e.specs = append(e.specs, sp)
	}
	return e, nil
}

func parseVarSpec(raw, part string) (varSpec, error) {
	sp := varSpec{}
	if strings.HasSuffix(part, "*") {
		sp.explode = true
		part = part[:len(part)-1]
	}
	if i := strings.IndexByte(part, ':'); i >= 0 {
		n, err := strconv.Atoi(part[i+1:])
		if err != nil || n < 1 || n > 9999 {
			return sp, fmt.Errorf("uritemplate: %q: bad prefix length in %q", raw, part)
		}
		sp.prefix = n
		part = part[:i]
	}
	if part == "" {
		return sp, fmt.Errorf("uritemplate: %q: empty variable name", raw)
	}
	for _, r := range part {
		ok := r == '_' || r == '.' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return sp, fmt.Errorf("uritemplate: %q: invalid variable name %q", raw, part)
		}
	}
	sp.name = part
	return sp, nil
}

// schemeOf extracts the URI scheme from s, or "" when s has none.
func schemeOf(s string) string {
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		case r == ':' && i > 0:
			return strings.ToLower(s[:i])
		default:
			return ""
		}
	}
	return ""
}
