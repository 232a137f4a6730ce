// Package scan walks the content root of an archive into the registry of
// classes, items and global template files.
//
// The expected layout is
//
//	[media]/_templates/<name>.xml
//	[media]/classes/<class>/[<subclass>/]<item>.xml
//	[media]/_dlc/<dlc>/classes/<class>/[<subclass>/]<item>.xml
//
// Any deviation inside these folders is a structural error and fails the
// whole load.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/snowpak/internal/archive"
	"github.com/agentic-research/snowpak/internal/diag"
)

const (
	ContentRoot     = "[media]"
	TemplatesFolder = "_templates"
	ClassesFolder   = "classes"
	DLCFolder       = "_dlc"

	xmlExt = ".xml"
)

var ErrStructure = errors.New("archive structure error")

func structErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStructure, fmt.Sprintf(format, args...))
}

// Item is an item file found by the scanner, not yet parsed.
type Item struct {
	Name         string
	ClassName    string
	SubClassName string // empty for main items
	DLC          string // empty for base-game items
	File         archive.Entry
	Path         string
}

func (it *Item) IsMain() bool { return it.SubClassName == "" }

// Class is the set of item files of one class, base game and DLCs merged.
type Class struct {
	Name  string
	Items map[string]*Item
}

// ItemNames returns the item names in lexical order.
func (c *Class) ItemNames() []string {
	return sortedKeys(c.Items)
}

// Structure is the scanned layout of a content root.
type Structure struct {
	Root      archive.Entry
	Templates map[string]archive.Entry // template file base name → file
	Classes   map[string]*Class

	byPath map[string]*Item
	byName map[string][]archive.Entry // lower-cased file name → files
}

func (s *Structure) ClassNames() []string    { return sortedKeys(s.Classes) }
func (s *Structure) TemplateNames() []string { return sortedKeys(s.Templates) }

// Items returns every item, ordered by class then item name.
func (s *Structure) Items() []*Item {
	var out []*Item
	for _, cn := range s.ClassNames() {
		c := s.Classes[cn]
		for _, n := range c.ItemNames() {
			out = append(out, c.Items[n])
		}
	}
	return out
}

// ItemAt returns the item read from the file at path, or nil.
func (s *Structure) ItemAt(path string) *Item {
	return s.byPath[path]
}

// FindFiles returns every file below the content root called name, compared
// case-insensitively.
func (s *Structure) FindFiles(name string) []archive.Entry {
	return s.byName[strings.ToLower(name)]
}

// FindContentRoot returns the [media] folder of an archive.
func FindContentRoot(root archive.Entry) (archive.Entry, error) {
	cr := root.SubFolder(ContentRoot)
	if cr == nil {
		return nil, structErr("no content root folder %q", ContentRoot)
	}
	return cr, nil
}

// ItemName strips the .xml extension of an item or template file.
func ItemName(file archive.Entry) (string, error) {
	if !strings.HasSuffix(file.Name(), xmlExt) {
		return "", structErr("non-XML file %s", file.Path())
	}
	return strings.TrimSuffix(file.Name(), xmlExt), nil
}

// Scan walks contentRoot. Layout oddities outside the three known folders are
// recorded in report as anomalies.
func Scan(ctx context.Context, contentRoot archive.Entry, report *diag.Report) (*Structure, error) {
	checkContentRoot(contentRoot, report)

	s := &Structure{
		Root:    contentRoot,
		Classes: make(map[string]*Class),
		byPath:  make(map[string]*Item),
		byName:  make(map[string][]archive.Entry),
	}

	var err error
	if s.Templates, err = scanTemplates(contentRoot.SubFolder(TemplatesFolder)); err != nil {
		return nil, err
	}

	classes := contentRoot.SubFolder(ClassesFolder)
	if classes == nil {
		return nil, structErr("no %q folder in %s", ClassesFolder, contentRoot.Path())
	}
	if err := s.scanClasses(ctx, "", classes); err != nil {
		return nil, err
	}
	if err := s.scanDLCs(ctx, contentRoot.SubFolder(DLCFolder)); err != nil {
		return nil, err
	}

	for _, f := range contentRoot.AllFiles() {
		key := strings.ToLower(f.Name())
		s.byName[key] = append(s.byName[key], f)
	}
	return s, nil
}

func checkContentRoot(contentRoot archive.Entry, report *diag.Report) {
	for _, f := range contentRoot.AllFiles() {
		if !strings.HasSuffix(f.Name(), xmlExt) {
			report.Anomaly("non-XML file %s", f.Path())
		}
	}
	for _, f := range contentRoot.Files() {
		report.Anomaly("file in content root folder: %s", f.Path())
	}
	for _, f := range contentRoot.Folders() {
		switch f.Name() {
		case TemplatesFolder, ClassesFolder, DLCFolder:
		default:
			report.Anomaly("unexpected folder in content root folder: %s", f.Path())
		}
	}
}

func scanTemplates(folder archive.Entry) (map[string]archive.Entry, error) {
	if folder == nil {
		return nil, structErr("no %q folder", TemplatesFolder)
	}
	if len(folder.Folders()) > 0 {
		return nil, structErr("unexpected folders in templates folder %s", folder.Path())
	}
	files := folder.Files()
	if len(files) == 0 {
		return nil, structErr("no files in templates folder %s", folder.Path())
	}
	templates := make(map[string]archive.Entry, len(files))
	for _, f := range files {
		name, err := ItemName(f)
		if err != nil {
			return nil, err
		}
		if _, dup := templates[name]; dup {
			return nil, structErr("more than one templates file named %q in %s", name, folder.Path())
		}
		templates[name] = f
	}
	return templates, nil
}

func (s *Structure) scanDLCs(ctx context.Context, folder archive.Entry) error {
	if folder == nil {
		return structErr("no %q folder", DLCFolder)
	}
	if len(folder.Files()) > 0 {
		return structErr("unexpected files in DLC folder %s", folder.Path())
	}
	dlcs := folder.Folders()
	if len(dlcs) == 0 {
		return structErr("no DLC folders in %s", folder.Path())
	}
	for _, dlc := range dlcs {
		if len(dlc.Files()) > 0 {
			return structErr("unexpected files in DLC folder %s", dlc.Path())
		}
		var classes archive.Entry
		for _, sub := range dlc.Folders() {
			if sub.Name() != ClassesFolder {
				return structErr("unexpected folder %q in DLC folder %s", sub.Name(), dlc.Path())
			}
			classes = sub
		}
		if classes == nil {
			return structErr("no %q folder in DLC folder %s", ClassesFolder, dlc.Path())
		}
		if err := s.scanClasses(ctx, dlc.Name(), classes); err != nil {
			return err
		}
	}
	return nil
}

// scanClasses scans every class folder of one classes folder in parallel and
// merges the results in name order.
func (s *Structure) scanClasses(ctx context.Context, dlc string, folder archive.Entry) error {
	if len(folder.Files()) > 0 {
		return structErr("unexpected files in classes folder %s", folder.Path())
	}
	classFolders := folder.Folders()
	if len(classFolders) == 0 {
		return structErr("no class folders in %s", folder.Path())
	}

	found := make([][]*Item, len(classFolders))
	g, gctx := errgroup.WithContext(ctx)
	for i, cf := range classFolders {
		i, cf := i, cf
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			items, err := scanClass(dlc, cf)
			if err != nil {
				return err
			}
			found[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, cf := range classFolders {
		class, ok := s.Classes[cf.Name()]
		if !ok {
			class = &Class{Name: cf.Name(), Items: make(map[string]*Item)}
			s.Classes[cf.Name()] = class
		}
		for _, it := range found[i] {
			if other, dup := class.Items[it.Name]; dup {
				return structErr("more than one item file named %q in class %q: %s and %s", it.Name, class.Name, other.Path, it.Path)
			}
			class.Items[it.Name] = it
			s.byPath[it.Path] = it
		}
	}
	return nil
}

func scanClass(dlc string, classFolder archive.Entry) ([]*Item, error) {
	var items []*Item
	for _, sub := range classFolder.Folders() {
		if len(sub.Folders()) > 0 {
			return nil, structErr("unexpected folders in subclass folder %s", sub.Path())
		}
		if len(sub.Files()) == 0 {
			return nil, structErr("no item files in subclass folder %s", sub.Path())
		}
		subItems, err := scanItems(dlc, classFolder.Name(), sub.Name(), sub)
		if err != nil {
			return nil, err
		}
		items = append(items, subItems...)
	}
	mainItems, err := scanItems(dlc, classFolder.Name(), "", classFolder)
	if err != nil {
		return nil, err
	}
	return append(items, mainItems...), nil
}

func scanItems(dlc, className, subClassName string, folder archive.Entry) ([]*Item, error) {
	files := folder.Files()
	items := make([]*Item, 0, len(files))
	for _, f := range files {
		name, err := ItemName(f)
		if err != nil {
			return nil, err
		}
		items = append(items, &Item{
			Name:         name,
			ClassName:    className,
			SubClassName: subClassName,
			DLC:          dlc,
			File:         f,
			Path:         f.Path(),
		})
	}
	return items, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
