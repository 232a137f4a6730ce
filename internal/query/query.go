// Package query evaluates JSONPath expressions over resolved node trees.
//
// A node is queried in its map form (see graph.Node.ToMap):
//
//	$.attrs.Speed
//	$.children.Wheel[*].attrs
//	$..children.Engine[0]
package query

import (
	"fmt"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/agentic-research/snowpak/internal/graph"
)

// Walker runs compiled selectors over nodes.
type Walker struct{}

func NewWalker() *Walker {
	return &Walker{}
}

// Match is one value selected from a node tree.
type Match struct {
	value any
}

// Values returns the match as a map; scalars are wrapped under "value".
func (m Match) Values() map[string]any {
	switch v := m.value.(type) {
	case map[string]any:
		return v // preserve nesting
	default:
		return map[string]any{"value": v}
	}
}

// Value returns the raw selected value.
func (m Match) Value() any { return m.value }

// JSON renders the match with sorted keys.
func (m Match) JSON(indent int) string {
	return oj.JSON(m.value, &oj.Options{Sort: true, Indent: indent})
}

// Query evaluates selector against n.
func (w *Walker) Query(n *graph.Node, selector string) ([]Match, error) {
	x, err := jp.ParseString(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", selector, err)
	}
	return w.Run(n, x), nil
}

// Run evaluates a parsed expression against n.
func (w *Walker) Run(n *graph.Node, x jp.Expr) []Match {
	if n == nil {
		return nil
	}
	results := x.Get(n.ToMap())
	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{value: r}
	}
	return matches
}

// Items evaluates selector against the content of every item and returns
// the matches per item ID. Items without a match are left out.
func (w *Walker) Items(items []*graph.Item, selector string) (map[string][]Match, error) {
	x, err := jp.ParseString(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", selector, err)
	}
	out := make(map[string][]Match)
	for _, it := range items {
		if m := w.Run(it.Content, x); len(m) > 0 {
			out[it.ID()] = m
		}
	}
	return out, nil
}
