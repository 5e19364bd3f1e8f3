package tmpl

import (
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"

	"github.com/valyala/fasttemplate"
)

// HTML marks a variable value as trusted markup that is emitted verbatim.
// Every other string value is HTML escaped on output.
type HTML string

// Vars is one row of template variables.
type Vars map[string]any

// Truthy reports whether name is set to a non-empty, non-false value.
func (v Vars) Truthy(name string) bool {
	return truthy(v[name])
}

func truthy(val any) bool {
	switch x := val.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case HTML:
		return x != ""
	case int:
		return x != 0
	case int64:
		return x != 0
	default:
		return true
	}
}

// format renders a value the way templates expect: false and nil render
// as nothing, true as "1".
func format(val any) string {
	switch x := val.(type) {
	case nil:
		return ""
	case bool:
		if x {
			return "1"
		}
		return ""
	case HTML:
		return string(x)
	case string:
		return html.EscapeString(x)
	default:
		return html.EscapeString(fmt.Sprint(x))
	}
}

// ParseVariables renders tagdata once for each row and concatenates the
// results. Conditionals are resolved first, then {name} variables are
// substituted. Unknown variables are left in place so literal braces (CSS,
// inline scripts) survive.
func ParseVariables(tagdata string, rows []Vars) string {
	tree := parseConditionals(tagdata)

	var b strings.Builder
	for _, row := range rows {
		resolved := tree.eval(row)
		b.WriteString(substitute(resolved, row))
	}
	return b.String()
}

// NoResults returns the body of the {if no_results} block in tagdata, or ""
// when there is none.
func NoResults(tagdata string) string {
	for _, n := range parseConditionals(tagdata) {
		if n.cond != nil && n.cond.name == "no_results" && !n.cond.negate {
			return nodes(n.cond.then).eval(Vars{"no_results": true})
		}
	}
	return ""
}

// substitute replaces {name} variables. fasttemplate pairs a "{" with the
// next "}", so a stray brace in the text arrives as part of the tag; the
// variable name starts after the last "{" it contains.
func substitute(s string, row Vars) string {
	return fasttemplate.ExecuteFuncString(s, "{", "}", func(w io.Writer, tag string) (int, error) {
		var lead string
		if i := strings.LastIndexByte(tag, '{'); i >= 0 {
			lead, tag = "{"+tag[:i], tag[i+1:]
		}
		val, ok := row[tag]
		if !ok {
			return io.WriteString(w, lead+"{"+tag+"}")
		}
		return io.WriteString(w, lead+format(val))
	})
}

type conditional struct {
	name   string
	negate bool
	then   nodes
	orElse nodes
}

type node struct {
	text string
	cond *conditional
}

type nodes []node

func (ns nodes) eval(row Vars) string {
	var b strings.Builder
	for _, n := range ns {
		if n.cond == nil {
			b.WriteString(n.text)
			continue
		}
		ok := truthy(row[n.cond.name])
		if n.cond.negate {
			ok = !ok
		}
		if ok {
			b.WriteString(n.cond.then.eval(row))
		} else {
			b.WriteString(n.cond.orElse.eval(row))
		}
	}
	return b.String()
}

var condPattern = regexp.MustCompile(`\{if\s+(not\s+|!\s*)?([\w:.-]+)\s*\}|\{if:else\}|\{/if\}`)

// parseConditionals builds the conditional tree. An unmatched {/if} or
// {if:else} is kept as text; an unclosed {if} runs to the end of the input.
func parseConditionals(s string) nodes {
	type frame struct {
		cond   *conditional
		inElse bool
		out    nodes
	}
	stack := []*frame{{}}
	emit := func(n node) {
		top := stack[len(stack)-1]
		if top.cond == nil {
			top.out = append(top.out, n)
		} else if top.inElse {
			top.cond.orElse = append(top.cond.orElse, n)
		} else {
			top.cond.then = append(top.cond.then, n)
		}
	}
	pop := func() {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		emit(node{cond: top.cond})
	}

	pos := 0
	for _, m := range condPattern.FindAllStringSubmatchIndex(s, -1) {
		if m[0] > pos {
			emit(node{text: s[pos:m[0]]})
		}
		token := s[m[0]:m[1]]
		switch {
		case token == "{/if}":
			if len(stack) > 1 {
				pop()
			} else {
				emit(node{text: token})
			}
		case token == "{if:else}":
			if len(stack) > 1 {
				stack[len(stack)-1].inElse = true
			} else {
				emit(node{text: token})
			}
		default:
			stack = append(stack, &frame{cond: &conditional{
				name:   s[m[4]:m[5]],
				negate: m[2] >= 0,
			}})
		}
		pos = m[1]
	}
	if pos < len(s) {
		emit(node{text: s[pos:]})
	}
	for len(stack) > 1 {
		pop()
	}
	return stack[0].out
}
