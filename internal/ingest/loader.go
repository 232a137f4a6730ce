package ingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agentic-research/snowpak/internal/archive"
	"github.com/agentic-research/snowpak/internal/diag"
	"github.com/agentic-research/snowpak/internal/graph"
	"github.com/agentic-research/snowpak/internal/known"
	"github.com/agentic-research/snowpak/internal/markup"
	"github.com/agentic-research/snowpak/internal/merge"
	"github.com/agentic-research/snowpak/internal/scan"
	"github.com/agentic-research/snowpak/internal/template"
)

var (
	ErrParse             = errors.New("item parse error")
	ErrUnreadable        = errors.New("unreadable file")
	ErrSkipped           = errors.New("item skipped")
	ErrParentCycle       = errors.New("parent cycle")
	ErrParentUnavailable = errors.New("parent item unavailable")
)

// Loader resolves items on demand. Parents are loaded recursively through
// the same memoized path, so every item is built at most once per Loader.
//
// A Loader is not safe for concurrent use.
type Loader struct {
	structure *scan.Structure
	templates *template.Builder
	known     *known.Table
	report    *diag.Report
	target    Target

	parsed  map[string]parseResult // item path → pre-parsed markup
	loaded  map[string]*Item
	failed  map[string]error
	loading map[string]bool
}

type parseResult struct {
	roots []*markup.Element
	err   error
}

// NewLoader returns a loader over structure. Resolved items go to target.
func NewLoader(structure *scan.Structure, templates *template.Builder, table *known.Table, report *diag.Report, target Target) *Loader {
	return &Loader{
		structure: structure,
		templates: templates,
		known:     table,
		report:    report,
		target:    target,
		parsed:    make(map[string]parseResult),
		loaded:    make(map[string]*Item),
		failed:    make(map[string]error),
		loading:   make(map[string]bool),
	}
}

func itemKey(it *scan.Item) string {
	return it.ClassName + "/" + it.Name
}

// done reports whether it has already been resolved or has failed.
func (l *Loader) done(it *scan.Item) bool {
	key := itemKey(it)
	_, ok := l.loaded[key]
	_, bad := l.failed[key]
	return ok || bad
}

// setParsed hands pre-parsed markup for the item file at path to the loader.
func (l *Loader) setParsed(path string, roots []*markup.Element, err error) {
	l.parsed[path] = parseResult{roots: roots, err: err}
}

// LoadItem returns the resolved item for it. Failures are recorded in the
// report once; later calls return the memoized result or error.
func (l *Loader) LoadItem(it *scan.Item) (*Item, error) {
	key := itemKey(it)
	if item, ok := l.loaded[key]; ok {
		return item, nil
	}
	if err, ok := l.failed[key]; ok {
		return nil, err
	}
	if l.loading[key] {
		return nil, fmt.Errorf("%w: %s", ErrParentCycle, it.Path)
	}

	l.loading[key] = true
	item, err := l.load(it)
	delete(l.loading, key)
	delete(l.parsed, it.Path)

	if err != nil {
		l.failed[key] = err
		switch {
		case errors.Is(err, ErrSkipped):
			l.report.SkipItem(it.Path, "known wrong class file")
		case errors.Is(err, ErrUnreadable):
			l.report.IgnoreFile(it.Path, err)
		default:
			l.report.IgnoreItem(it.Path, err)
		}
		return nil, err
	}
	l.loaded[key] = item
	l.target.AddItem(item)
	return item, nil
}

func (l *Loader) load(it *scan.Item) (*Item, error) {
	// 1. Known wrong files never get parsed
	if l.known.SkipItem(it.ClassName, it.SubClassName, it.File.Name(), it.Path) {
		return nil, fmt.Errorf("%w: %s", ErrSkipped, it.Path)
	}

	// 2. Markup
	roots, err := l.roots(it)
	if err != nil {
		return nil, err
	}
	f, err := splitItemFile(it.Path, roots)
	if err != nil {
		return nil, err
	}

	// 3. Local templates
	var set *template.Set
	if f.templates == nil {
		set = l.templates.ForClass(it.Path, it.ClassName)
	} else {
		var relocated *markup.Element
		set, relocated, err = l.templates.Parse(it.Path, f.templates)
		if errors.Is(err, template.ErrUnknownInclude) {
			return nil, fmt.Errorf("%w: %w", scan.ErrStructure, err)
		}
		if err != nil {
			return nil, err
		}
		if relocated != nil {
			if f.parent != nil {
				return nil, fmt.Errorf("%w: <%s> both inside and outside <%s> in %s", ErrParse, parentElement, template.ContainerElement, it.Path)
			}
			f.parent = relocated
		}
	}

	// 4. Parent item
	name, err := parentName(it.Path, f.parent)
	if err != nil {
		return nil, err
	}
	var parent *Item
	if name != "" {
		name = l.known.FixParent(it.Path, name)
		if p := l.findParent(it, name); p != nil {
			if parent, err = l.LoadItem(p); err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrParentUnavailable, p.Path, err)
			}
		}
	}

	// 5. Content
	m := &merge.Merger{Source: it.Path, Report: l.report}
	content, err := m.Resolve(nil, f.content, set, parentContent(parent))
	if errors.Is(err, merge.ErrInheritRemove) {
		return nil, fmt.Errorf("%w: unexpected %s on content element in %s", ErrParse, merge.AttrInheritRemove, it.Path)
	}
	if err != nil {
		return nil, err
	}

	item := &Item{
		Name:         it.Name,
		FilePath:     it.Path,
		DLC:          it.DLC,
		ClassName:    it.ClassName,
		SubClassName: it.SubClassName,
		Content:      content,
	}
	if parent != nil {
		l.target.LinkParent(item, parent)
	}
	return item, nil
}

func (l *Loader) roots(it *scan.Item) ([]*markup.Element, error) {
	if p, ok := l.parsed[it.Path]; ok {
		return p.roots, p.err
	}
	return parseFile(it.File)
}

func parseFile(f archive.Entry) ([]*markup.Element, error) {
	data, err := archive.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreadable, f.Path(), err)
	}
	roots, err := markup.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreadable, f.Path(), err)
	}
	return roots, nil
}

// findParent looks name up as <name>.xml anywhere below the content root,
// ignoring case.
// Missing, ambiguous and non-item matches are warnings and yield no parent.
func (l *Loader) findParent(it *scan.Item, name string) *scan.Item {
	matches := l.structure.FindFiles(name + ".xml")
	switch len(matches) {
	case 0:
		l.report.Warn(it.Path, "can't find parent %q", name)
		return nil
	case 1:
	default:
		found := make([]string, len(matches))
		for i, m := range matches {
			found[i] = m.Path()
		}
		l.report.Warn(it.Path, "found more than one parent %q: %s", name, strings.Join(found, ", "))
		return nil
	}

	path := matches[0].Path()
	p := l.structure.ItemAt(path)
	if p == nil {
		l.report.Warn(it.Path, "parent %q is not an item file: %s", name, path)
		return nil
	}
	l.report.AddParentRelation(path, it.Path)
	return p
}

func parentContent(parent *Item) *graph.Node {
	if parent == nil {
		return nil
	}
	return parent.Content
}
