package ingest

import "github.com/agentic-research/snowpak/internal/graph"

// Item and Class are the resolved results handed to downstream consumers.
type (
	Item  = graph.Item
	Class = graph.Class
)

// Target receives resolved items as the loader finishes them.
// graph.Store keeps them in memory; SQLiteWriter persists them.
type Target interface {
	// AddItem stores a fully resolved item.
	AddItem(it *Item)
	// LinkParent records that child was resolved on top of parent. It is
	// called before AddItem(child).
	LinkParent(child, parent *Item)
}

var _ Target = (*graph.Store)(nil)

// Copy replays every item of store into t, each followed by the links to
// its children.
func Copy(store *graph.Store, t Target) {
	for _, class := range store.Classes() {
		for _, name := range class.ItemNames() {
			it := class.Items[name]
			t.AddItem(it)
			for _, child := range store.ChildrenOf(it) {
				t.LinkParent(child, it)
			}
		}
	}
}
