package graph

import (
	"cmp"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// Item is one resolved data item (truck, addon, wheel, ...).
type Item struct {
	Name         string
	FilePath     string
	DLC          string // empty for base-game items
	ClassName    string
	SubClassName string // empty for the main items of a class
	Content      *Node
}

// IsMain reports whether the item sits directly in its class folder rather
// than in a subclass folder.
func (it *Item) IsMain() bool {
	return it.SubClassName == ""
}

// ID returns the store-wide identity "class/name".
func (it *Item) ID() string {
	return it.ClassName + "/" + it.Name
}

// Class groups the resolved items of one class, base game and DLCs together.
type Class struct {
	Name  string
	Items map[string]*Item
}

// ItemNames returns the item names of c in lexical order.
func (c *Class) ItemNames() []string {
	return sortedKeys(c.Items)
}

// Store is the in-memory registry of resolved items.
//
// Besides the class → item maps it keeps two roaring bitmap indexes over
// internal item IDs: items per DLC and children per parent item. Both are
// filled as items are added and are safe for concurrent readers.
type Store struct {
	mu      sync.RWMutex
	classes map[string]*Class

	intID    map[string]uint32 // Item.ID() → internal bitmap ID
	items    []*Item           // reverse: internal ID → item
	byDLC    map[string]*roaring.Bitmap
	children map[uint32]*roaring.Bitmap // parent internal ID → child internal IDs
}

func NewStore() *Store {
	return &Store{
		classes:  make(map[string]*Class),
		intID:    make(map[string]uint32),
		byDLC:    make(map[string]*roaring.Bitmap),
		children: make(map[uint32]*roaring.Bitmap),
	}
}

// AddItem registers a resolved item under its class. Adding an item with an
// ID that is already present replaces the earlier entry.
func (s *Store) AddItem(it *Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	class, ok := s.classes[it.ClassName]
	if !ok {
		class = &Class{Name: it.ClassName, Items: make(map[string]*Item)}
		s.classes[it.ClassName] = class
	}
	class.Items[it.Name] = it

	id := s.indexItem(it)
	bm, exists := s.byDLC[it.DLC]
	if !exists {
		bm = roaring.New()
		s.byDLC[it.DLC] = bm
	}
	bm.Add(id)
}

// indexItem assigns an internal bitmap ID. Must be called with s.mu held.
func (s *Store) indexItem(it *Item) uint32 {
	key := it.ID()
	if id, ok := s.intID[key]; ok {
		s.items[id] = it
		return id
	}
	id := uint32(len(s.items))
	s.intID[key] = id
	s.items = append(s.items, it)
	return id
}

// LinkParent records that child was resolved on top of parent. Items not yet
// added with AddItem are indexed but not listed in their class.
func (s *Store) LinkParent(child, parent *Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid := s.indexItem(parent)
	cid := s.indexItem(child)
	bm, ok := s.children[pid]
	if !ok {
		bm = roaring.New()
		s.children[pid] = bm
	}
	bm.Add(cid)
}

// GetItem returns the item name of class className.
func (s *Store) GetItem(className, name string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	class, ok := s.classes[className]
	if !ok {
		return nil, fmt.Errorf("%w: class %q", ErrNotFound, className)
	}
	it, ok := class.Items[name]
	if !ok {
		return nil, fmt.Errorf("%w: item %q in class %q", ErrNotFound, name, className)
	}
	return it, nil
}

// Class returns the class named name.
func (s *Store) Class(name string) (*Class, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.classes[name]
	return c, ok
}

// Classes returns all classes ordered by name.
func (s *Store) Classes() []*Class {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Class, 0, len(s.classes))
	for _, c := range s.classes {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *Class) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// Len returns the number of items in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.classes {
		n += len(c.Items)
	}
	return n
}

// DLCs returns the DLC names that contributed items, base game ("") first.
func (s *Store) DLCs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.byDLC)
}

// ItemsOfDLC returns the items tagged with dlc; "" selects base-game items.
func (s *Store) ItemsOfDLC(dlc string) []*Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byDLC[dlc])
}

// ChildrenOf returns the items that were resolved with parent as their
// parent item.
func (s *Store) ChildrenOf(parent *Item) []*Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pid, ok := s.intID[parent.ID()]
	if !ok {
		return nil
	}
	return s.collect(s.children[pid])
}

// collect maps a bitmap of internal IDs back to items. Must be called with
// s.mu held.
func (s *Store) collect(bm *roaring.Bitmap) []*Item {
	if bm == nil {
		return nil
	}
	out := make([]*Item, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		id := it.Next()
		if int(id) < len(s.items) {
			out = append(out, s.items[id])
		}
	}
	slices.SortFunc(out, func(a, b *Item) int { return cmp.Compare(a.ID(), b.ID()) })
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
