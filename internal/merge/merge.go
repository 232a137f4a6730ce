// Package merge builds resolved node trees from raw markup, an optional
// template and an optional inherited (parent item) counterpart.
//
// Precedence for attributes is inherited < template < explicit. Children are
// merged per tag name by position, against the aligned children of every
// counterpart, template ones above inherited ones. _noinherit drops only the
// inherited counterparts; _inheritRemove drops the position from all of them.
package merge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agentic-research/snowpak/internal/diag"
	"github.com/agentic-research/snowpak/internal/graph"
	"github.com/agentic-research/snowpak/internal/markup"
)

// Control attributes.
const (
	AttrTemplate      = "_template"
	AttrNoInherit     = "_noinherit"
	AttrInheritRemove = "_inheritRemove"
)

var (
	// ErrInheritRemove is returned for a node carrying _inheritRemove="true".
	// It is a signal to the caller to omit the position, not a failure.
	ErrInheritRemove = errors.New("inherit-remove marker")
	ErrNameMismatch  = errors.New("inherited node has a different name")
)

// Templates looks up a template for an element name. A missing template is
// (nil, nil); an error aborts the resolution of the whole file.
type Templates interface {
	Template(element, name string) (*graph.Node, error)
}

// Merger resolves the nodes of one source file.
type Merger struct {
	// Source is the archive path of the file, used in diagnostics.
	Source string
	Report *diag.Report
}

// Resolve builds the resolved node for raw under parent. inherited is the
// aligned node of the parent item, or nil.
func (m *Merger) Resolve(parent *graph.Node, raw *markup.Element, templates Templates, inherited *graph.Node) (*graph.Node, error) {
	return m.ResolveAs(parent, raw.Name, raw, templates, inherited)
}

// ResolveAs is Resolve with the resolved node named name instead of raw.Name.
// Template definitions use it: a template is written under its own tag but
// stands for an element of its list's name.
func (m *Merger) ResolveAs(parent *graph.Node, name string, raw *markup.Element, templates Templates, inherited *graph.Node) (*graph.Node, error) {
	var layers []layer
	if inherited != nil {
		layers = append(layers, layer{node: inherited, inherited: true})
	}
	return m.resolve(parent, name, raw, templates, layers)
}

// layer is one counterpart of a node being resolved.
type layer struct {
	node *graph.Node
	// inherited marks counterparts that come from the parent item.
	inherited bool
}

// resolve builds raw against its counterparts, highest precedence first.
func (m *Merger) resolve(parent *graph.Node, name string, raw *markup.Element, templates Templates, counterparts []layer) (*graph.Node, error) {
	for _, l := range counterparts {
		if l.node.Name != name {
			return nil, fmt.Errorf("%w: <%s> inherits from <%s> in %s", ErrNameMismatch, name, l.node.Name, m.Source)
		}
	}

	var tmpl *graph.Node
	if ref, ok := raw.Attr(AttrTemplate); ok {
		if templates == nil {
			m.Report.Warn(m.Source, "<%s> uses template %q but no templates are defined", name, ref)
		} else {
			t, err := templates.Template(name, ref)
			if err != nil {
				return nil, err
			}
			if t == nil {
				m.Report.Warn(m.Source, "can't find template %q for <%s>", ref, name)
			}
			tmpl = t
		}
	}
	noInherit := isTrue(raw, AttrNoInherit)
	layers := make([]layer, 0, len(counterparts)+1)
	if tmpl != nil {
		layers = append(layers, layer{node: tmpl})
	}
	for _, l := range counterparts {
		if l.inherited && noInherit {
			continue
		}
		layers = append(layers, l)
	}
	if isTrue(raw, AttrInheritRemove) {
		return nil, ErrInheritRemove
	}
	if raw.Text != "" {
		m.Report.Warn(m.Source, "character data in <%s> ignored: %q", name, raw.Text)
	}

	n := graph.NewNode(parent, name)
	for i := len(layers) - 1; i >= 0; i-- {
		copyAttrs(n, layers[i].node)
	}
	for _, a := range raw.Attrs {
		if strings.HasPrefix(a.Name, "_") && a.Name != AttrTemplate {
			m.Report.CountAttribute(a.Name, a.Value)
		}
		if a.Name != AttrTemplate && a.Name != AttrNoInherit {
			n.Attrs[a.Name] = a.Value
		}
	}

	children := graph.NewMultimap[*markup.Element]()
	for _, c := range raw.Children {
		children.Add(c.Name, c)
	}
	for _, key := range keyOrder(children, layers) {
		if !children.Has(key) {
			inheritChildren(n, key, layers)
			continue
		}
		for i, src := range children.Get(key) {
			aligned := alignedAt(layers, key, i)
			child, err := m.resolve(n, src.Name, src, templates, aligned)
			if errors.Is(err, ErrInheritRemove) {
				if len(aligned) == 0 {
					m.Report.Warn(m.Source, "%s on <%s> without an inherited or template counterpart", AttrInheritRemove, key)
				}
				continue
			}
			if err != nil {
				return nil, err
			}
			n.Children.Add(key, child)
		}
	}
	return n, nil
}

// keyOrder lists the child tags of a node: tags only the counterparts have
// come first, lowest layer first, then the raw tags.
func keyOrder(raw *graph.Multimap[*markup.Element], layers []layer) []string {
	var keys []string
	for i := len(layers) - 1; i >= 0; i-- {
		for _, key := range layers[i].node.Children.Keys() {
			if !raw.Has(key) && !definedAbove(layers[:i], key) {
				keys = append(keys, key)
			}
		}
	}
	return append(keys, raw.Keys()...)
}

func definedAbove(layers []layer, key string) bool {
	for _, l := range layers {
		if l.node.Children.Has(key) {
			return true
		}
	}
	return false
}

// alignedAt returns the i-th child of tag key of every layer that has one.
func alignedAt(layers []layer, key string, i int) []layer {
	var out []layer
	for _, l := range layers {
		if cs := l.node.Children.Get(key); i < len(cs) {
			out = append(out, layer{node: cs[i], inherited: l.inherited})
		}
	}
	return out
}

// inheritChildren copies the children of tag key that no raw child overrides.
// The highest layer holding the tag decides how many there are; lower layers
// fill in by position and their extra positions are dropped.
func inheritChildren(n *graph.Node, key string, layers []layer) {
	for i, l := range layers {
		top := l.node.Children.Get(key)
		if len(top) == 0 {
			continue
		}
		for j := range top {
			n.Children.Add(key, combine(n, alignedAt(layers[i:], key, j)))
		}
		return
	}
}

// combine merges already resolved nodes, highest precedence first.
func combine(parent *graph.Node, layers []layer) *graph.Node {
	if len(layers) == 1 {
		return layers[0].node.Clone(parent)
	}
	n := graph.NewNode(parent, layers[0].node.Name)
	for i := len(layers) - 1; i >= 0; i-- {
		copyAttrs(n, layers[i].node)
	}
	for _, key := range keyOrder(nil, layers) {
		inheritChildren(n, key, layers)
	}
	return n
}

func copyAttrs(dst, src *graph.Node) {
	for k, v := range src.Attrs {
		dst.Attrs[k] = v
	}
}

func isTrue(e *markup.Element, attr string) bool {
	v, ok := e.Attr(attr)
	return ok && strings.EqualFold(v, "true")
}
