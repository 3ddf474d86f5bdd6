package cii

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// Locator is a compiled namespace-aware path such as
// //ram:SellerTradeParty/ram:SpecifiedTaxRegistration/ram:ID[@schemeID='VA'].
// Supported: absolute (/) and descendant (//) steps, prefixed names,
// and a single attribute equality predicate per step.
type Locator struct {
	expr  string
	steps []step
}

type step struct {
	descendant bool
	prefix     string
	local      string
	attrKey    string
	attrValue  string
}

// Compile parses a locator expression
func Compile(expr string) (Locator, error) {
	rest := strings.TrimSpace(expr)
	if !strings.HasPrefix(rest, "/") {
		return Locator{}, fmt.Errorf("locator %q: must start with / or //", expr)
	}

	var steps []step
	for rest != "" {
		var s step
		switch {
		case strings.HasPrefix(rest, "//"):
			s.descendant = true
			rest = rest[2:]
		case strings.HasPrefix(rest, "/"):
			rest = rest[1:]
		default:
			return Locator{}, fmt.Errorf("locator %q: expected /", expr)
		}

		end := strings.IndexByte(rest, '/')
		if b := strings.IndexByte(rest, '['); b >= 0 && (end < 0 || b < end) {
			closing := strings.IndexByte(rest[b:], ']')
			if closing < 0 {
				return Locator{}, fmt.Errorf("locator %q: unterminated predicate", expr)
			}
			end = b + closing + 1
			if end < len(rest) && rest[end] != '/' {
				return Locator{}, fmt.Errorf("locator %q: unexpected text after predicate", expr)
			}
		}
		if end < 0 {
			end = len(rest)
		}
		token := rest[:end]
		rest = rest[end:]

		name := token
		if b := strings.IndexByte(token, '['); b >= 0 {
			name = token[:b]
			key, value, err := parsePredicate(token[b+1 : len(token)-1])
			if err != nil {
				return Locator{}, fmt.Errorf("locator %q: %w", expr, err)
			}
			s.attrKey, s.attrValue = key, value
		}

		prefix, local, ok := strings.Cut(name, ":")
		if !ok || prefix == "" || local == "" {
			return Locator{}, fmt.Errorf("locator %q: step %q must be prefix:name", expr, name)
		}
		s.prefix, s.local = prefix, local
		steps = append(steps, s)
	}
	if len(steps) == 0 {
		return Locator{}, fmt.Errorf("locator %q: no steps", expr)
	}
	return Locator{expr: expr, steps: steps}, nil
}

func parsePredicate(p string) (string, string, error) {
	if !strings.HasPrefix(p, "@") {
		return "", "", fmt.Errorf("unsupported predicate [%s]", p)
	}
	key, value, ok := strings.Cut(p[1:], "=")
	if !ok || len(value) < 2 {
		return "", "", fmt.Errorf("unsupported predicate [%s]", p)
	}
	q := value[0]
	if (q != '\'' && q != '"') || value[len(value)-1] != q {
		return "", "", fmt.Errorf("predicate value must be quoted: [%s]", p)
	}
	return strings.TrimSpace(key), value[1 : len(value)-1], nil
}

// MustCompile is Compile for static locator tables
func MustCompile(expr string) Locator {
	l, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return l
}

func (l Locator) String() string {
	return l.expr
}

// FindAll returns every element matched by the locator in document order
func (l Locator) FindAll(root *etree.Element, ns Namespaces) []*etree.Element {
	if root == nil {
		return nil
	}

	// nil stands for the document node above root
	context := []*etree.Element{nil}
	for _, s := range l.steps {
		uri, ok := ns[s.prefix]
		if !ok {
			return nil
		}

		seen := make(map[*etree.Element]bool)
		var next []*etree.Element
		for _, ctx := range context {
			for _, cand := range candidates(root, ctx, s.descendant) {
				if seen[cand] || !s.matches(cand, uri, ns) {
					continue
				}
				seen[cand] = true
				next = append(next, cand)
			}
		}
		if len(next) == 0 {
			return nil
		}
		context = next
	}
	return context
}

// Find returns the first element matched by the locator
func (l Locator) Find(root *etree.Element, ns Namespaces) *etree.Element {
	if all := l.FindAll(root, ns); len(all) > 0 {
		return all[0]
	}
	return nil
}

// Text returns the trimmed text of the first matched element that has any
func (l Locator) Text(root *etree.Element, ns Namespaces) (string, bool) {
	for _, e := range l.FindAll(root, ns) {
		if t := strings.TrimSpace(e.Text()); t != "" {
			return t, true
		}
	}
	return "", false
}

func (s step) matches(e *etree.Element, uri string, ns Namespaces) bool {
	if e.Tag != s.local || namespaceOf(e, ns) != uri {
		return false
	}
	if s.attrKey != "" {
		a := e.SelectAttr(s.attrKey)
		return a != nil && a.Value == s.attrValue
	}
	return true
}

func candidates(root, ctx *etree.Element, descendant bool) []*etree.Element {
	if ctx == nil {
		if !descendant {
			return []*etree.Element{root}
		}
		out := []*etree.Element{root}
		return appendDescendants(out, root)
	}
	if !descendant {
		return ctx.ChildElements()
	}
	return appendDescendants(nil, ctx)
}

func appendDescendants(out []*etree.Element, e *etree.Element) []*etree.Element {
	for _, c := range e.ChildElements() {
		out = append(out, c)
		out = appendDescendants(out, c)
	}
	return out
}
