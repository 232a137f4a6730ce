package scan

import (
	"context"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/snowpak/internal/archive"
	"github.com/agentic-research/snowpak/internal/diag"
)

func memArchive(t *testing.T, files ...string) archive.Entry {
	t.Helper()
	fs := memfs.New()
	for _, p := range files {
		require.NoError(t, util.WriteFile(fs, p, []byte("<X/>"), 0o644))
	}
	a, err := archive.FromFilesystem(fs)
	require.NoError(t, err)
	root, err := FindContentRoot(a.Root())
	require.NoError(t, err)
	return root
}

var baseLayout = []string{
	"[media]/_templates/trucks.xml",
	"[media]/_templates/wheels.xml",
	"[media]/classes/trucks/a.xml",
	"[media]/classes/trucks/b.xml",
	"[media]/classes/trucks/cargo/c.xml",
	"[media]/classes/wheels/w1.xml",
	"[media]/_dlc/dlc_1/classes/trucks/d.xml",
	"[media]/_dlc/dlc_1/classes/engines/e.xml",
}

func TestScan(t *testing.T) {
	report := diag.NewReport(nil)
	s, err := Scan(context.Background(), memArchive(t, baseLayout...), report)
	require.NoError(t, err)

	assert.Equal(t, []string{"trucks", "wheels"}, s.TemplateNames())
	assert.Equal(t, []string{"engines", "trucks", "wheels"}, s.ClassNames())

	trucks := s.Classes["trucks"]
	assert.Equal(t, []string{"a", "b", "c", "d"}, trucks.ItemNames())

	a := trucks.Items["a"]
	assert.Equal(t, "trucks", a.ClassName)
	assert.True(t, a.IsMain())
	assert.Equal(t, "", a.DLC)
	assert.Equal(t, "[media]/classes/trucks/a.xml", a.Path)

	c := trucks.Items["c"]
	assert.Equal(t, "cargo", c.SubClassName)
	assert.False(t, c.IsMain())

	d := trucks.Items["d"]
	assert.Equal(t, "dlc_1", d.DLC)
	assert.Same(t, d, s.ItemAt("[media]/_dlc/dlc_1/classes/trucks/d.xml"))

	assert.Len(t, s.Items(), 6)
	assert.Len(t, s.FindFiles("A.XML"), 1)
	assert.Empty(t, report.Anomalies())
}

func TestScan_Anomalies(t *testing.T) {
	report := diag.NewReport(nil)
	files := append([]string{
		"[media]/readme.xml",
		"[media]/extra/thing.txt",
	}, baseLayout...)
	_, err := Scan(context.Background(), memArchive(t, files...), report)
	require.NoError(t, err)

	anomalies := report.Anomalies()
	assert.Len(t, anomalies, 3)
	assert.Contains(t, anomalies[0], "thing.txt")
}

func TestScan_StructuralErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]string) []string
	}{
		{"non-xml item", func(f []string) []string { return append(f, "[media]/classes/trucks/x.txt") }},
		{"non-xml template", func(f []string) []string { return append(f, "[media]/_templates/x.json") }},
		{"folder in templates", func(f []string) []string { return append(f, "[media]/_templates/sub/x.xml") }},
		{"file in classes", func(f []string) []string { return append(f, "[media]/classes/x.xml") }},
		{"too deep", func(f []string) []string { return append(f, "[media]/classes/trucks/cargo/deep/x.xml") }},
		{"duplicate item", func(f []string) []string { return append(f, "[media]/classes/trucks/other/a.xml") }},
		{"duplicate across dlc", func(f []string) []string { return append(f, "[media]/_dlc/dlc_2/classes/trucks/a.xml") }},
		{"file in dlc folder", func(f []string) []string { return append(f, "[media]/_dlc/x.xml") }},
		{"file in a dlc", func(f []string) []string { return append(f, "[media]/_dlc/dlc_1/x.xml") }},
		{"unexpected dlc folder", func(f []string) []string { return append(f, "[media]/_dlc/dlc_1/other/x.xml") }},
		{"dlc without classes", func(f []string) []string { return append(f, "[media]/_dlc/dlc_3/x/y/z.xml") }},
		{"no templates", func(f []string) []string { return without(f, "[media]/_templates/") }},
		{"no dlc", func(f []string) []string { return without(f, "[media]/_dlc/") }},
		{"no classes", func(f []string) []string { return without(f, "[media]/classes/") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := tt.mutate(append([]string(nil), baseLayout...))
			_, err := Scan(context.Background(), memArchive(t, files...), nil)
			assert.ErrorIs(t, err, ErrStructure)
		})
	}
}

func without(files []string, prefix string) []string {
	var out []string
	for _, f := range files {
		if len(f) < len(prefix) || f[:len(prefix)] != prefix {
			out = append(out, f)
		}
	}
	return out
}

func TestScan_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Scan(ctx, memArchive(t, baseLayout...), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFindContentRoot_Missing(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "other/x.xml", []byte("<X/>"), 0o644))
	a, err := archive.FromFilesystem(fs)
	require.NoError(t, err)
	_, err = FindContentRoot(a.Root())
	assert.ErrorIs(t, err, ErrStructure)
}
