// Package render writes resolved node trees back out as markup, either to a
// single writer or as one file per item into a billy filesystem.
package render

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/agentic-research/snowpak/internal/graph"
)

// Node writes n and its subtree as indented markup. Attributes are sorted by
// name; children keep their resolved order.
func Node(w io.Writer, n *graph.Node) error {
	bw := bufio.NewWriter(w)
	writeNode(bw, n, 0)
	return bw.Flush()
}

func writeNode(w *bufio.Writer, n *graph.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	keys := make([]string, 0, len(n.Attrs))
	for k := range n.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w.WriteString(indent)
	w.WriteString("<")
	w.WriteString(n.Name)
	for _, k := range keys {
		w.WriteString(" ")
		w.WriteString(k)
		w.WriteString(`="`)
		_ = xml.EscapeText(w, []byte(n.Attrs[k]))
		w.WriteString(`"`)
	}
	if n.Children.Count() == 0 {
		w.WriteString("/>\n")
		return
	}
	w.WriteString(">\n")
	for _, key := range n.Children.Keys() {
		for _, child := range n.Children.Get(key) {
			writeNode(w, child, depth+1)
		}
	}
	fmt.Fprintf(w, "%s</%s>\n", indent, n.Name)
}

// ItemPath is the file an item is rendered to: <class>/<name>.xml, with DLC
// items below _dlc/<dlc>/.
func ItemPath(it *graph.Item) string {
	p := path.Join(it.ClassName, it.Name+".xml")
	if it.DLC != "" {
		p = path.Join("_dlc", it.DLC, p)
	}
	return p
}

// Store writes every item of store into fs and returns how many files were
// written.
func Store(fs billy.Filesystem, store *graph.Store) (int, error) {
	n := 0
	var buf bytes.Buffer
	for _, class := range store.Classes() {
		for _, name := range class.ItemNames() {
			it := class.Items[name]
			if it.Content == nil {
				continue
			}
			buf.Reset()
			if err := Node(&buf, it.Content); err != nil {
				return n, err
			}
			if err := util.WriteFile(fs, ItemPath(it), buf.Bytes(), 0o644); err != nil {
				return n, fmt.Errorf("write %s: %w", ItemPath(it), err)
			}
			n++
		}
	}
	return n, nil
}
