// Package archive exposes a packed asset archive as a read-only tree of
// folder and file entries.
//
// Two backends are supported: zip containers (the game's .pak files, read
// with klauspost/compress/zip) and any go-billy filesystem, which covers
// unpacked directories (osfs) and in-memory fixtures (memfs).
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/klauspost/compress/zip"
)

var ErrNotFile = errors.New("entry is not a file")

// Entry is a folder or file inside an archive.
type Entry interface {
	IsFile() bool
	Name() string
	// Path is the slash-separated path from the archive root, without a
	// leading slash.
	Path() string
	// SubFolder returns the direct sub folder called name, or nil.
	SubFolder(name string) Entry
	// Files returns the direct file children ordered by name.
	Files() []Entry
	// Folders returns the direct folder children ordered by name.
	Folders() []Entry
	// AllFiles returns every file below this entry, depth first, ordered
	// by name within each folder.
	AllFiles() []Entry
	// Open streams the raw bytes of a file entry.
	Open() (io.ReadCloser, error)
}

// Archive is an opened archive.
type Archive struct {
	name   string
	root   *node
	closer io.Closer
}

// Open opens path as a zip archive, or as an unpacked archive when path is a
// directory.
func Open(p string) (*Archive, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if info.IsDir() {
		a, err := FromFilesystem(osfs.New(p))
		if err != nil {
			return nil, err
		}
		a.name = p
		return a, nil
	}
	return OpenZip(p)
}

// OpenZip opens a zip container.
func OpenZip(p string) (*Archive, error) {
	rc, err := zip.OpenReader(p)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("open zip %s: %w", p, err)
	}
	root := newFolder(nil, "")
	for _, f := range rc.File {
		name := strings.Trim(strings.ReplaceAll(f.Name, "\\", "/"), "/")
		if name == "" {
			continue
		}
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			root.folder(name)
			continue
		}
		zf := f
		root.addFile(name, func() (io.ReadCloser, error) { return zf.Open() })
	}
	return &Archive{name: p, root: root, closer: rc}, nil
}

// FromFilesystem walks fs into an Archive. The walk happens once; later
// changes to fs are not reflected.
func FromFilesystem(fs billy.Filesystem) (*Archive, error) {
	root := newFolder(nil, "")
	if err := walkBilly(fs, "", root); err != nil {
		return nil, err
	}
	return &Archive{name: fs.Root(), root: root}, nil
}

func walkBilly(fs billy.Filesystem, dir string, folder *node) error {
	infos, err := fs.ReadDir(dirOrRoot(dir))
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}
	for _, info := range infos {
		p := path.Join(dir, info.Name())
		if info.IsDir() {
			if err := walkBilly(fs, p, folder.folder(info.Name())); err != nil {
				return err
			}
			continue
		}
		filePath := p
		folder.addFile(info.Name(), func() (io.ReadCloser, error) { return fs.Open(filePath) })
	}
	return nil
}

func dirOrRoot(dir string) string {
	if dir == "" {
		return "/"
	}
	return dir
}

// Name returns the path the archive was opened from.
func (a *Archive) Name() string { return a.name }

// Root returns the root folder of the archive.
func (a *Archive) Root() Entry { return a.root }

func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// node implements Entry for both backends.
type node struct {
	name    string
	parent  *node
	file    bool
	open    func() (io.ReadCloser, error)
	files   map[string]*node
	folders map[string]*node
}

func newFolder(parent *node, name string) *node {
	return &node{
		name:    name,
		parent:  parent,
		files:   make(map[string]*node),
		folders: make(map[string]*node),
	}
}

// folder returns the folder at the slash-separated relative path p,
// creating missing folders on the way.
func (n *node) folder(p string) *node {
	cur := n
	for _, part := range strings.Split(p, "/") {
		if part == "" {
			continue
		}
		next, ok := cur.folders[part]
		if !ok {
			next = newFolder(cur, part)
			cur.folders[part] = next
		}
		cur = next
	}
	return cur
}

func (n *node) addFile(p string, open func() (io.ReadCloser, error)) {
	dir, name := path.Split(p)
	parent := n.folder(dir)
	parent.files[name] = &node{name: name, parent: parent, file: true, open: open}
}

func (n *node) IsFile() bool { return n.file }
func (n *node) Name() string { return n.name }

func (n *node) Path() string {
	if n.parent == nil {
		return n.name
	}
	if pp := n.parent.Path(); pp != "" {
		return pp + "/" + n.name
	}
	return n.name
}

func (n *node) SubFolder(name string) Entry {
	if f, ok := n.folders[name]; ok {
		return f
	}
	return nil
}

func (n *node) Files() []Entry   { return sortedEntries(n.files) }
func (n *node) Folders() []Entry { return sortedEntries(n.folders) }

func (n *node) AllFiles() []Entry {
	var out []Entry
	n.walkFiles(&out)
	return out
}

func (n *node) walkFiles(out *[]Entry) {
	if n.file {
		*out = append(*out, n)
		return
	}
	for _, f := range n.Files() {
		*out = append(*out, f)
	}
	for _, f := range n.Folders() {
		f.(*node).walkFiles(out)
	}
}

func (n *node) Open() (io.ReadCloser, error) {
	if !n.file {
		return nil, fmt.Errorf("%w: %s", ErrNotFile, n.Path())
	}
	return n.open()
}

func sortedEntries(m map[string]*node) []Entry {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Entry, len(names))
	for i, name := range names {
		out[i] = m[name]
	}
	return out
}

// ReadAll reads the full content of a file entry.
func ReadAll(e Entry) ([]byte, error) {
	rc, err := e.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }() // read-only
	return io.ReadAll(rc)
}
