package query

import "strings"

// Node is one expression of the RAPI query grammar.
type Node interface {
	Render() string
}

// Comparison is a single field test. Value is emitted verbatim, so string
// literals must already carry their quotes.
type Comparison struct {
	Field    string
	Operator string
	Value    string
}

// Render writes symbolic operators tight ("f>=1") and word operators with
// surrounding spaces ("f LIKE 'x'").
func (c Comparison) Render() string {
	return c.Field + normalizeOperator(c.Operator) + c.Value
}

func normalizeOperator(op string) string {
	op = strings.TrimSpace(op)
	if op == "" {
		return "="
	}
	if strings.ContainsAny(op, "=<>") {
		return op
	}
	return " " + strings.ToUpper(op) + " "
}

// And renders its children joined by AND inside parentheses.
type And []Node

func (a And) Render() string {
	if len(a) == 1 {
		return a[0].Render()
	}
	return "(" + join(a, " AND ") + ")"
}

// Or renders its children joined by OR. It adds no parentheses of its own;
// wrap it in a Group or let Join do it.
type Or []Node

func (o Or) Render() string {
	return join(o, " OR ")
}

// Group parenthesizes a node.
type Group struct {
	Node Node
}

func (g Group) Render() string {
	return "(" + g.Node.Render() + ")"
}

func join(nodes []Node, sep string) string {
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			continue
		}
		parts = append(parts, n.Render())
	}
	return strings.Join(parts, sep)
}

// Join assembles top-level clauses with AND. When there is more than one
// clause, any bare multi-term Or is parenthesized first.
func Join(clauses ...Node) string {
	out := make([]Node, 0, len(clauses))
	for _, c := range clauses {
		if c == nil {
			continue
		}
		out = append(out, c)
	}
	if len(out) > 1 {
		for i, c := range out {
			if o, ok := c.(Or); ok && len(o) > 1 {
				out[i] = Group{Node: o}
			}
		}
	}
	return join(out, " AND ")
}
