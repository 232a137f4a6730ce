//go:build property
// +build property

package merge

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/agentic-research/snowpak/internal/graph"
	"github.com/agentic-research/snowpak/internal/markup"
)

func element(name string, attrs map[string]string, children ...*markup.Element) *markup.Element {
	e := &markup.Element{Name: name, Children: children}
	for k, v := range attrs {
		e.Attrs = append(e.Attrs, markup.Attr{Name: k, Value: v})
	}
	return e
}

// wideTree builds a small element tree whose shape depends on the inputs.
func wideTree(widths []int, values []string) *markup.Element {
	root := element("Root", map[string]string{"v": fmt.Sprint(len(values))})
	for i, w := range widths {
		tag := fmt.Sprintf("C%d", i%3)
		child := element(tag, map[string]string{"i": fmt.Sprint(i)})
		for j := 0; j < w%4; j++ {
			val := ""
			if len(values) > 0 {
				val = values[(i+j)%len(values)]
			}
			child.Children = append(child.Children, element("Leaf", map[string]string{"val": val}))
		}
		root.Children = append(root.Children, child)
	}
	return root
}

func TestMergeProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Property: explicit beats template beats inherited for every attribute
	properties.Property("attribute precedence", prop.ForAll(
		func(inRaw, inTmpl, inParent bool, rawV, tmplV, parentV string) bool {
			attrs := func(present bool, v string) map[string]string {
				if !present {
					return map[string]string{}
				}
				return map[string]string{"k": v}
			}
			m := &Merger{Source: "prop.xml"}
			tmpl, err := m.Resolve(nil, element("N", attrs(inTmpl, tmplV)), nil, nil)
			if err != nil {
				return false
			}
			parent, err := m.Resolve(nil, element("N", attrs(inParent, parentV)), nil, nil)
			if err != nil {
				return false
			}
			raw := element("N", attrs(inRaw, rawV))
			raw.Attrs = append(raw.Attrs, markup.Attr{Name: AttrTemplate, Value: "T"})

			n, err := m.Resolve(nil, raw, mapTemplates{"N": {"T": tmpl}}, parent)
			if err != nil {
				return false
			}

			got, ok := n.Attr("k")
			switch {
			case inRaw:
				return ok && got == rawV
			case inTmpl:
				return ok && got == tmplV
			case inParent:
				return ok && got == parentV
			default:
				return !ok
			}
		},
		gen.Bool(), gen.Bool(), gen.Bool(),
		gen.AlphaString(), gen.AlphaString(), gen.AlphaString(),
	))

	// Property: a clone is structurally equal and fully re-parented
	properties.Property("clone equality", prop.ForAll(
		func(widths []int, values []string) bool {
			m := &Merger{Source: "prop.xml"}
			n, err := m.Resolve(nil, wideTree(widths, values), nil, nil)
			if err != nil {
				return false
			}
			holder := graph.NewNode(nil, "Holder")
			c := n.Clone(holder)
			if !graph.Equal(n, c) || c.Parent != holder {
				return false
			}
			ok := true
			c.Children.Each(func(_ string, child *graph.Node) {
				if child.Parent != c {
					ok = false
				}
			})
			return ok
		},
		gen.SliceOf(gen.IntRange(0, 8)),
		gen.SliceOf(gen.AlphaString()),
	))

	// Property: resolving the same input twice yields equal trees
	properties.Property("idempotence", prop.ForAll(
		func(widths []int, values []string) bool {
			m := &Merger{Source: "prop.xml"}
			tmpl, err := m.Resolve(nil, wideTree(widths, values), nil, nil)
			if err != nil {
				return false
			}
			raw := wideTree(widths[:len(widths)/2], values)
			raw.Attrs = append(raw.Attrs, markup.Attr{Name: AttrTemplate, Value: "T"})
			templates := mapTemplates{"Root": {"T": tmpl}}

			a, err := m.Resolve(nil, raw, templates, nil)
			if err != nil {
				return false
			}
			b, err := m.Resolve(nil, raw, templates, nil)
			if err != nil {
				return false
			}
			return graph.Equal(a, b)
		},
		gen.SliceOf(gen.IntRange(0, 8)),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
