package graph

import (
	"errors"
	"fmt"
	"maps"
	"strings"
)

var (
	ErrNotFound    = errors.New("node not found")
	ErrInvalidPath = errors.New("invalid node path")
	ErrAmbiguous   = errors.New("path matches more than one node")
)

// Node is a fully resolved element: every template and parent contribution has
// already been applied. Nodes are only mutated while the merge engine builds
// them and are treated as immutable afterwards.
type Node struct {
	Name     string
	Attrs    map[string]string
	Children *ChildMap

	// Parent is the node this one was constructed under. It is a back-reference
	// used for path reconstruction only, never an ownership edge.
	Parent *Node
}

// NewNode returns an empty node named name under parent.
func NewNode(parent *Node, name string) *Node {
	return &Node{
		Name:     name,
		Attrs:    make(map[string]string),
		Children: NewChildMap(),
		Parent:   parent,
	}
}

// Attr returns the value of attribute key.
func (n *Node) Attr(key string) (string, bool) {
	v, ok := n.Attrs[key]
	return v, ok
}

// Clone deep-copies n and its subtree, re-parented under parent.
func (n *Node) Clone(parent *Node) *Node {
	c := &Node{
		Name:     n.Name,
		Attrs:    maps.Clone(n.Attrs),
		Children: NewChildMap(),
		Parent:   parent,
	}
	if c.Attrs == nil {
		c.Attrs = make(map[string]string)
	}
	n.Children.Each(func(key string, child *Node) {
		c.Children.Add(key, child.Clone(c))
	})
	return c
}

// Path returns the element names from the root of the construction chain down
// to n, inclusive.
func (n *Node) Path() []string {
	if n.Parent == nil {
		return []string{n.Name}
	}
	return append(n.Parent.Path(), n.Name)
}

// GetNodes returns every node reachable from n along path. The first segment
// names n itself; at least one further segment is required. Segments may also
// be given in dotted form, so GetNodes("Truck.Wheels.Wheel") and
// GetNodes("Truck", "Wheels", "Wheel") are equivalent.
func (n *Node) GetNodes(path ...string) ([]*Node, error) {
	segments := splitPath(path)
	if len(segments) < 2 {
		return nil, fmt.Errorf("%w: need at least two segments, got %q", ErrInvalidPath, segments)
	}
	if segments[0] != n.Name {
		return nil, fmt.Errorf("%w: path starts with %q but node is <%s>", ErrInvalidPath, segments[0], n.Name)
	}
	var out []*Node
	n.collect(segments, 1, &out)
	return out, nil
}

// GetNode is GetNodes for paths expected to match at most once. It returns
// ErrNotFound when nothing matches and ErrAmbiguous when several nodes do.
func (n *Node) GetNode(path ...string) (*Node, error) {
	nodes, err := n.GetNodes(path...)
	if err != nil {
		return nil, err
	}
	switch len(nodes) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, strings.Join(splitPath(path), "."))
	case 1:
		return nodes[0], nil
	default:
		return nil, fmt.Errorf("%w: %s (%d matches)", ErrAmbiguous, strings.Join(splitPath(path), "."), len(nodes))
	}
}

func (n *Node) collect(path []string, index int, out *[]*Node) {
	for _, child := range n.Children.Get(path[index]) {
		if index+1 >= len(path) {
			*out = append(*out, child)
		} else {
			child.collect(path, index+1, out)
		}
	}
}

func splitPath(path []string) []string {
	var segments []string
	for _, p := range path {
		for _, s := range strings.Split(p, ".") {
			if s != "" {
				segments = append(segments, s)
			}
		}
	}
	return segments
}

// Equal reports whether a and b are structurally equal: same name, same
// attributes and pairwise equal children in the same order. Parent
// back-references are ignored.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Name != b.Name || !maps.Equal(a.Attrs, b.Attrs) {
		return false
	}
	ak, bk := a.Children.Keys(), b.Children.Keys()
	if len(ak) != len(bk) {
		return false
	}
	for i, key := range ak {
		if bk[i] != key {
			return false
		}
		ac, bc := a.Children.Get(key), b.Children.Get(key)
		if len(ac) != len(bc) {
			return false
		}
		for j := range ac {
			if !Equal(ac[j], bc[j]) {
				return false
			}
		}
	}
	return true
}

// ToMap converts n into plain maps and slices, the shape JSON encoders and
// JSONPath evaluators expect:
//
//	{"name": "Truck", "attrs": {...}, "children": {"Wheel": [{...}, ...]}}
func (n *Node) ToMap() map[string]any {
	attrs := make(map[string]any, len(n.Attrs))
	for k, v := range n.Attrs {
		attrs[k] = v
	}
	m := map[string]any{
		"name":  n.Name,
		"attrs": attrs,
	}
	if n.Children.Len() > 0 {
		children := make(map[string]any, n.Children.Len())
		for _, key := range n.Children.Keys() {
			list := make([]any, 0, len(n.Children.Get(key)))
			for _, child := range n.Children.Get(key) {
				list = append(list, child.ToMap())
			}
			children[key] = list
		}
		m["children"] = children
	}
	return m
}

// String renders n as a compact single-line element, for diagnostics.
func (n *Node) String() string {
	var b strings.Builder
	b.WriteString("<")
	b.WriteString(n.Name)
	for _, k := range sortedKeys(n.Attrs) {
		fmt.Fprintf(&b, " %s=%q", k, n.Attrs[k])
	}
	if n.Children.Count() > 0 {
		fmt.Fprintf(&b, "> [%d children]", n.Children.Count())
		return b.String()
	}
	b.WriteString("/>")
	return b.String()
}
