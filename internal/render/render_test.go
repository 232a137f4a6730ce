package render

import (
	"bytes"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/snowpak/internal/graph"
	"github.com/agentic-research/snowpak/internal/markup"
)

func truck() *graph.Node {
	root := graph.NewNode(nil, "Truck")
	root.Attrs["Name"] = `Big "A" & co`
	root.Attrs["Country"] = "US"
	w := graph.NewNode(root, "Wheel")
	w.Attrs["size"] = "4"
	root.Children.Add("Wheel", w)
	root.Children.Add("Engine", graph.NewNode(root, "Engine"))
	return root
}

func TestNode(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Node(&out, truck()))
	assert.Equal(t, `<Truck Country="US" Name="Big &#34;A&#34; &amp; co">
  <Wheel size="4"/>
  <Engine/>
</Truck>
`, out.String())

	// The output parses back to the same attributes.
	roots, err := markup.ParseBytes(out.Bytes())
	require.NoError(t, err)
	v, _ := roots[0].Attr("Name")
	assert.Equal(t, `Big "A" & co`, v)
}

func TestStore(t *testing.T) {
	s := graph.NewStore()
	s.AddItem(&graph.Item{Name: "a", ClassName: "trucks", Content: truck()})
	s.AddItem(&graph.Item{Name: "b", ClassName: "trucks", DLC: "dlc_1", Content: graph.NewNode(nil, "Truck")})
	s.AddItem(&graph.Item{Name: "c", ClassName: "trucks"})

	fs := memfs.New()
	n, err := Store(fs, s)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := util.ReadFile(fs, "trucks/a.xml")
	require.NoError(t, err)
	assert.Contains(t, string(data), `<Wheel size="4"/>`)

	data, err = util.ReadFile(fs, "_dlc/dlc_1/trucks/b.xml")
	require.NoError(t, err)
	assert.Equal(t, "<Truck/>\n", string(data))
}
