package known

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/snowpak/internal/diag"
)

func TestBuiltin_Valid(t *testing.T) {
	for _, issue := range Builtin() {
		assert.NoError(t, issue.Validate(), "issue %+v", issue)
	}
}

func TestTable_SkipItem(t *testing.T) {
	report := diag.NewReport(nil)
	table := NewTable(Builtin(), report, false)

	assert.True(t, table.SkipItem("engines", "", "e_un_truck_heavy_boarpac.xml", "[media]/classes/engines/e_un_truck_heavy_boarpac.xml"))
	assert.True(t, table.SkipItem("trucks", "cargo", "cargo_wooden_planks_04.xml", "[media]/classes/trucks/cargo/cargo_wooden_planks_04.xml"))
	assert.False(t, table.SkipItem("trucks", "", "cargo_wooden_planks_04.xml", "[media]/classes/trucks/cargo_wooden_planks_04.xml"))
	assert.False(t, table.SkipItem("wheels", "", "e_un_truck_heavy_boarpac.xml", "[media]/classes/wheels/e_un_truck_heavy_boarpac.xml"))

	hits := report.KnownIssues()
	require.Len(t, hits, 2)
	assert.Equal(t, string(WrongClassFile), hits[0].Kind)
}

func TestTable_IgnoreTemplateList_OnlyDuplicate(t *testing.T) {
	table := NewTable(Builtin(), nil, true)
	path := "[media]/_dlc/dlc_8/classes/trucks/kirovets_k7m.xml"

	assert.False(t, table.IgnoreTemplateList(path, "Body", false))
	assert.True(t, table.IgnoreTemplateList(path, "Body", true))
	assert.False(t, table.IgnoreTemplateList("[media]/classes/trucks/other.xml", "Body", true))

	bumper := "[media]/_dlc/dlc_9/classes/trucks/derry_special_15c177_tunning/derry_special_15c177_bumper_1a.xml"
	assert.True(t, table.IgnoreTemplateList(bumper, "CollarF", false))
}

func TestTable_FixParent(t *testing.T) {
	table := NewTable(Builtin(), nil, false)
	path := "[media]/_dlc/stuff_01/classes/trucks/western_star_57x_stuff/stuff_hood_tiger_western_star_57x.xml"

	assert.Equal(t, "stuff_hood_tiger_ford_f750", table.FixParent(path, "stuff_hood_bull_tiger_f750"))
	assert.Equal(t, "something_else", table.FixParent(path, "something_else"))
	assert.Equal(t, "stuff_hood_bull_tiger_f750", table.FixParent("[media]/classes/trucks/x.xml", "stuff_hood_bull_tiger_f750"))
}

func TestTable_MisplacedTemplateAndParent(t *testing.T) {
	table := NewTable(Builtin(), nil, false)

	list, name, ok := table.MisplacedTemplate("[media]/classes/trucks/trailers/semitrailer.xml", "Mudguard")
	require.True(t, ok)
	assert.Equal(t, "Body", list)
	assert.Equal(t, "Mudguard", name)

	_, _, ok = table.MisplacedTemplate("[media]/classes/trucks/trailers/semitrailer.xml", "Wheel")
	assert.False(t, ok)

	assert.True(t, table.MisplacedParent("[media]/classes/trucks/any.xml"))
}

func TestTable_QuietStillCounts(t *testing.T) {
	report := diag.NewReport(nil)
	table := NewTable(Builtin(), report, true)

	table.MisplacedParent("[media]/classes/trucks/any.xml")
	assert.Equal(t, 1, report.Summary().KnownIssues)
}

func TestTable_NilIsEmpty(t *testing.T) {
	var table *Table
	assert.False(t, table.SkipItem("engines", "", "e_un_truck_heavy_boarpac.xml", ""))
	assert.Equal(t, "p", table.FixParent("x", "p"))
	assert.Nil(t, table.Issues())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "issues.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
issues:
  - kind: parent-typo
    path: '[media]\classes\trucks\foo.xml'
    value: bar
    replacement: baz
    note: typo
  - kind: wrong-class-file
    class: wheels
    file: broken.xml
`), 0o644))

	issues, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, "[media]/classes/trucks/foo.xml", issues[0].Path)

	table := NewTable(issues, nil, false)
	assert.Equal(t, "baz", table.FixParent("[media]/classes/trucks/foo.xml", "bar"))
	assert.True(t, table.SkipItem("wheels", "", "broken.xml", "[media]/classes/wheels/broken.xml"))
}

func TestLoadFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "issues.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
issues:
  - kind: parent-typo
    value: bar
  - kind: nonsense
`), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidIssue)
	assert.Contains(t, err.Error(), "issue 1")
	assert.Contains(t, err.Error(), "issue 2")
}
