// Package template reads <_templates> elements into template sets.
//
// A Set maps (element name, template name) to a resolved node. A set may
// include one global set, which is consulted when a lookup misses locally.
// Templates are built lazily on first use, so a template can itself use other
// templates of the same file; a template needed while it is being built is a
// cycle and fails the file.
package template

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/agentic-research/snowpak/internal/diag"
	"github.com/agentic-research/snowpak/internal/graph"
	"github.com/agentic-research/snowpak/internal/known"
	"github.com/agentic-research/snowpak/internal/markup"
	"github.com/agentic-research/snowpak/internal/merge"
)

const (
	ContainerElement = "_templates"
	AttrInclude      = "Include"

	parentElement = "_parent"
)

var (
	ErrParse          = errors.New("template parse error")
	ErrTemplateCycle  = errors.New("template cycle")
	ErrUnknownInclude = errors.New("unknown template include")
)

// Set is the template set of one file. It is immutable once returned by a
// Builder.
type Set struct {
	source  string
	include *Set
	lists   map[string]map[string]*graph.Node
}

// NewSet returns an empty set for source that falls back to include.
func NewSet(source string, include *Set) *Set {
	return &Set{
		source:  source,
		include: include,
		lists:   make(map[string]map[string]*graph.Node),
	}
}

// Template returns the template name for element name element, looking in
// the local lists first and then in the included set. A nil *Set has no
// templates.
func (s *Set) Template(element, name string) (*graph.Node, error) {
	if s == nil {
		return nil, nil
	}
	if t, ok := s.lists[element][name]; ok {
		return t, nil
	}
	return s.include.Template(element, name)
}

// Source returns the archive path of the file the set was read from.
func (s *Set) Source() string { return s.source }

// Include returns the included global set, or nil.
func (s *Set) Include() *Set { return s.include }

// Lists returns the local element names that have templates, sorted.
func (s *Set) Lists() []string {
	out := make([]string, 0, len(s.lists))
	for k := range s.lists {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Names returns the local template names of list, sorted.
func (s *Set) Names(list string) []string {
	out := make([]string, 0, len(s.lists[list]))
	for k := range s.lists[list] {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of local templates.
func (s *Set) Len() int {
	n := 0
	for _, l := range s.lists {
		n += len(l)
	}
	return n
}

func (s *Set) addList(name string) map[string]*graph.Node {
	l := make(map[string]*graph.Node)
	s.lists[name] = l
	return l
}

// Registry holds the global template sets keyed by template file base name.
type Registry struct {
	mu   sync.RWMutex
	sets map[string]*Set
}

func NewRegistry() *Registry {
	return &Registry{sets: make(map[string]*Set)}
}

func (r *Registry) Add(name string, s *Set) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets[name] = s
}

// Get returns the global set name. A nil *Registry holds no sets.
func (r *Registry) Get(name string) (*Set, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sets[name]
	return s, ok
}

// Names returns the registered set names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sets))
	for k := range r.sets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sets)
}

// Builder turns <_templates> elements into Sets.
type Builder struct {
	// Global is consulted for Include attributes of item files.
	Global *Registry
	Known  *known.Table
	Report *diag.Report
}

// ParseGlobalFile builds the set of a global template file from its
// top-level elements, which must be exactly one <_templates> element.
func (b *Builder) ParseGlobalFile(source string, roots []*markup.Element) (*Set, error) {
	var container *markup.Element
	for _, el := range roots {
		if el.Name != ContainerElement {
			return nil, fmt.Errorf("%w: unexpected element <%s> in template file %s", ErrParse, el.Name, source)
		}
		if container != nil {
			return nil, fmt.Errorf("%w: more than one <%s> in template file %s", ErrParse, ContainerElement, source)
		}
		container = el
	}
	if container == nil {
		return nil, fmt.Errorf("%w: no <%s> in template file %s", ErrParse, ContainerElement, source)
	}
	set, _, err := b.parse(source, container, true)
	return set, err
}

// Parse builds the local set of an item file. It also returns a <_parent>
// element found inside the container, which a known issue allows.
func (b *Builder) Parse(source string, container *markup.Element) (*Set, *markup.Element, error) {
	return b.parse(source, container, false)
}

// ForClass returns the set used by item files without a <_templates>
// element: no local templates, including the global set named after the
// item's class when there is one.
func (b *Builder) ForClass(source, className string) *Set {
	include, _ := b.Global.Get(className)
	return NewSet(source, include)
}

func (b *Builder) parse(source string, container *markup.Element, global bool) (*Set, *markup.Element, error) {
	if container.Name != ContainerElement {
		return nil, nil, fmt.Errorf("%w: expected <%s>, got <%s> in %s", ErrParse, ContainerElement, container.Name, source)
	}

	// 1. Include
	var includeName string
	for _, a := range container.Attrs {
		if a.Name != AttrInclude {
			return nil, nil, fmt.Errorf("%w: unexpected attribute %q on <%s> in %s", ErrParse, a.Name, ContainerElement, source)
		}
		includeName = a.Value
	}
	var include *Set
	if includeName != "" {
		if global {
			return nil, nil, fmt.Errorf("%w: %s=%q in global template file %s", ErrParse, AttrInclude, includeName, source)
		}
		var ok bool
		if include, ok = b.Global.Get(includeName); !ok {
			return nil, nil, fmt.Errorf("%w: %q in %s", ErrUnknownInclude, includeName, source)
		}
	}

	// 2. Template lists
	set := NewSet(source, include)
	l := &lazyLoader{
		set:      set,
		pending:  make(map[string]map[string]*markup.Element),
		building: make(map[templateKey]bool),
		failed:   make(map[templateKey]error),
		merger:   &merge.Merger{Source: source, Report: b.Report},
	}
	var relocated *markup.Element
	for _, el := range container.Children {
		if el.Name == parentElement {
			if global || !b.Known.MisplacedParent(source) {
				return nil, nil, fmt.Errorf("%w: <%s> inside <%s> in %s", ErrParse, parentElement, ContainerElement, source)
			}
			if relocated != nil {
				return nil, nil, fmt.Errorf("%w: more than one <%s> inside <%s> in %s", ErrParse, parentElement, ContainerElement, source)
			}
			relocated = el
			continue
		}

		if list, name, ok := b.Known.MisplacedTemplate(source, el.Name); ok {
			if err := l.addList(list); err != nil {
				return nil, nil, err
			}
			l.add(list, name, el)
			continue
		}

		_, duplicate := l.pending[el.Name]
		if b.Known.IgnoreTemplateList(source, el.Name, duplicate) {
			continue
		}
		if err := l.addList(el.Name); err != nil {
			return nil, nil, err
		}
		if el.HasAttrs() {
			return nil, nil, fmt.Errorf("%w: unexpected attributes on template list <%s> in %s", ErrParse, el.Name, source)
		}
		for _, candidate := range el.Children {
			if _, exists := l.pending[el.Name][candidate.Name]; exists {
				b.Report.Warn(source, "more than one template %q for <%s>, later one ignored", candidate.Name, el.Name)
				continue
			}
			l.add(el.Name, candidate.Name, candidate)
		}
	}

	// 3. Build every template
	if err := l.buildAll(); err != nil {
		return nil, nil, err
	}
	return set, relocated, nil
}

type templateKey struct {
	element string
	name    string
}

// lazyLoader builds the templates of one file on demand. It is the template
// source while the file is being read: lookups hit finished templates, then
// pending ones of the same file, then the included set.
type lazyLoader struct {
	set      *Set
	pending  map[string]map[string]*markup.Element
	order    []templateKey
	building map[templateKey]bool
	failed   map[templateKey]error
	merger   *merge.Merger
}

func (l *lazyLoader) addList(name string) error {
	if _, exists := l.pending[name]; exists {
		return fmt.Errorf("%w: more than one template list <%s> in %s", ErrParse, name, l.set.source)
	}
	l.pending[name] = make(map[string]*markup.Element)
	l.set.addList(name)
	return nil
}

func (l *lazyLoader) add(list, name string, el *markup.Element) {
	l.pending[list][name] = el
	l.order = append(l.order, templateKey{element: list, name: name})
}

func (l *lazyLoader) buildAll() error {
	var errs []error
	for _, key := range l.order {
		if _, done := l.set.lists[key.element][key.name]; done {
			continue
		}
		if err, failed := l.failed[key]; failed {
			errs = append(errs, err)
			continue
		}
		if _, err := l.build(key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Template implements merge.Templates.
func (l *lazyLoader) Template(element, name string) (*graph.Node, error) {
	if t, ok := l.set.lists[element][name]; ok {
		return t, nil
	}
	key := templateKey{element: element, name: name}
	if err, failed := l.failed[key]; failed {
		return nil, err
	}
	if _, ok := l.pending[element][name]; ok {
		if l.building[key] {
			return nil, fmt.Errorf("%w: template %q for <%s> in %s", ErrTemplateCycle, name, element, l.set.source)
		}
		return l.build(key)
	}
	return l.set.include.Template(element, name)
}

func (l *lazyLoader) build(key templateKey) (*graph.Node, error) {
	l.building[key] = true
	defer delete(l.building, key)

	raw := l.pending[key.element][key.name]
	t, err := l.merger.ResolveAs(nil, key.element, raw, l, nil)
	if errors.Is(err, merge.ErrInheritRemove) {
		err = fmt.Errorf("%w: unexpected %s in %s", ErrParse, merge.AttrInheritRemove, l.set.source)
	}
	if err != nil {
		err = fmt.Errorf("template %q for <%s>: %w", key.name, key.element, err)
		l.failed[key] = err
		return nil, err
	}
	l.set.lists[key.element][key.name] = t
	return t, nil
}
