package uritemplate

import (
	"fmt"
	"net/url"
	"strings"
)

// Match binds template variables from a concrete URI. It returns the
// variable name to percent-decoded string value mapping and whether the URI
// matched at all. Variables under an explode modifier collect their
// delimiter-joined run back into a single comma-joined value. Missing
// optional query variables are simply absent from the result.
func (t *Template) Match(uri string) (map[string]string, bool) {
	if s := schemeOf(uri); t.scheme != "" && s != "" && s != t.scheme {
		return nil, false
	}

	head, frag, hasFrag := strings.Cut(uri, "#")

	target := head
	rawQuery := ""
	if i := strings.IndexByte(head, '?'); i >= 0 {
		rawQuery = head[i+1:]
		if !t.hasLiteralQuery {
			if len(t.queryVars) == 0 {
				return nil, false
			}
			target = head[:i]
		}
	}

	groups := t.re.FindStringSubmatch(target)
	if groups == nil {
		return nil, false
	}

	vars := make(map[string]string, len(t.names))
	for i, pv := range t.pathVars {
		val, ok := decodePathVar(pv, groups[i+1])
		if !ok {
			return nil, false
		}
		vars[pv.name] = val
	}

	if len(t.queryVars) > 0 {
		q, err := url.ParseQuery(rawQuery)
		if err != nil {
			return nil, false
		}
		for _, sp := range t.queryVars {
			vals, ok := q[sp.name]
			if !ok || len(vals) == 0 {
				continue
			}
			if sp.explode {
				vars[sp.name] = strings.Join(vals, ",")
			} else {
				vars[sp.name] = vals[0]
			}
		}
	}

	if t.hasFragment {
		if t.fragLiteral != "" {
			if !hasFrag || frag != t.fragLiteral {
				return nil, false
			}
		}
		if len(t.fragSpecs) > 0 && hasFrag {
			if !bindFragment(t.fragSpecs, frag, vars) {
				return nil, false
			}
		}
	}

	return vars, true
}

// Matches is the boolean projection of Match.
func (t *Template) Matches(uri string) bool {
	_, ok := t.Match(uri)
	return ok
}

func decodePathVar(pv pathVar, raw string) (string, bool) {
	switch {
	case pv.op == opLabel && pv.explode:
		return decodeRun(raw, ".")
	case pv.op == opPath && pv.explode:
		return decodeRun(raw, "/")
	case pv.op == opMatrix && pv.explode:
		// The capture is the full ;name=v;name=v run.
		parts := strings.Split(strings.TrimPrefix(raw, ";"), ";")
		for i, p := range parts {
			parts[i] = strings.TrimPrefix(p, pv.name+"=")
		}
		return decodeRun(strings.Join(parts, ","), ",")
	case pv.explode:
		return decodeRun(raw, ",")
	default:
		v, err := url.PathUnescape(raw)
		if err != nil {
			return "", false
		}
		return v, true
	}
}

// decodeRun splits a delimiter-joined run, percent-decodes each item, and
// re-joins with commas. Decoding happens per item so an encoded delimiter
// inside a value is never mistaken for a separator.
func decodeRun(raw, delim string) (string, bool) {
	parts := strings.Split(raw, delim)
	for i, p := range parts {
		v, err := url.PathUnescape(p)
		if err != nil {
			return "", false
		}
		parts[i] = v
	}
	return strings.Join(parts, ","), true
}

func bindFragment(specs []varSpec, frag string, vars map[string]string) bool {
	if len(specs) == 1 {
		val, ok := decodeRun(frag, ",")
		if !ok {
			return false
		}
		vars[specs[0].name] = val
		return true
	}
	parts := strings.SplitN(frag, ",", len(specs))
	for i, sp := range specs {
		if i >= len(parts) {
			break
		}
		v, err := url.PathUnescape(parts[i])
		if err != nil {
			return false
		}
		vars[sp.name] = v
	}
	return true
}

// Expand renders the template with the given variable values. Undefined
// variables are omitted along with their operator prefixes, per RFC 6570.
func (t *Template) Expand(vars map[string]string) string {
	var b strings.Builder
	firstQuery := true
	for _, tok := range t.tokens {
		if tok.expr == nil {
			b.WriteString(tok.literal)
			if strings.Contains(tok.literal, "?") {
				firstQuery = false
			}
			continue
		}
		e := tok.expr
		switch e.op {
		case opSimple, opReserved:
			first := true
			for _, sp := range e.specs {
				v, ok := vars[sp.name]
				if !ok {
					continue
				}
				if !first {
					b.WriteByte(',')
				}
				first = false
				b.WriteString(pctEncode(truncate(v, sp.prefix), e.op == opReserved))
			}
		case opFragment:
			first := true
			for _, sp := range e.specs {
				v, ok := vars[sp.name]
				if !ok {
					continue
				}
				if first {
					b.WriteByte('#')
				} else {
					b.WriteByte(',')
				}
				first = false
				b.WriteString(pctEncode(truncate(v, sp.prefix), true))
			}
		case opLabel, opPath:
			for _, sp := range e.specs {
				v, ok := vars[sp.name]
				if !ok {
					continue
				}
				b.WriteByte(byte(e.op))
				b.WriteString(pctEncode(truncate(v, sp.prefix), false))
			}
		case opMatrix:
			for _, sp := range e.specs {
				v, ok := vars[sp.name]
				if !ok {
					continue
				}
				b.WriteByte(';')
				b.WriteString(sp.name)
				b.WriteByte('=')
				b.WriteString(pctEncode(truncate(v, sp.prefix), false))
			}
		case opQuery, opContinue:
			for _, sp := range e.specs {
				v, ok := vars[sp.name]
				if !ok {
					continue
				}
				if firstQuery && e.op == opQuery {
					b.WriteByte('?')
					firstQuery = false
				} else {
					b.WriteByte('&')
				}
				b.WriteString(sp.name)
				b.WriteByte('=')
				b.WriteString(pctEncode(truncate(v, sp.prefix), false))
			}
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

const unreserved = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"
const reserved = ":/?#[]@!$&'()*+,;="

func pctEncode(s string, allowReserved bool) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if strings.IndexByte(unreserved, c) >= 0 ||
			(allowReserved && (strings.IndexByte(reserved, c) >= 0 || c == '%')) {
			b.WriteByte(c)
			continue
		}
		b.WriteString(fmt.Sprintf("%%%02X", c))
	}
	return b.String()
}
