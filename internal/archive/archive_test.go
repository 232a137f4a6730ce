package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixture = map[string]string{
	"[media]/_templates/trucks.xml":           "<_templates/>",
	"[media]/classes/trucks/b.xml":            "<Truck/>",
	"[media]/classes/trucks/a.xml":            "<Truck/>",
	"[media]/classes/trucks/cargo/c.xml":      "<Truck/>",
	"[media]/_dlc/dlc_1/classes/wheels/w.xml": "<Wheel/>",
}

func names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name()
	}
	return out
}

func paths(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path()
	}
	return out
}

func checkTree(t *testing.T, a *Archive) {
	t.Helper()
	root := a.Root()
	assert.False(t, root.IsFile())
	assert.Equal(t, "", root.Path())

	media := root.SubFolder("[media]")
	require.NotNil(t, media)
	assert.Equal(t, []string{"_dlc", "_templates", "classes"}, names(media.Folders()))
	assert.Nil(t, media.SubFolder("nope"))

	trucks := media.SubFolder("classes").SubFolder("trucks")
	require.NotNil(t, trucks)
	assert.Equal(t, "[media]/classes/trucks", trucks.Path())
	assert.Equal(t, []string{"a.xml", "b.xml"}, names(trucks.Files()))
	assert.Equal(t, []string{
		"[media]/classes/trucks/a.xml",
		"[media]/classes/trucks/b.xml",
		"[media]/classes/trucks/cargo/c.xml",
	}, paths(trucks.AllFiles()))

	assert.Len(t, media.AllFiles(), len(fixture))

	a1 := trucks.Files()[0]
	assert.True(t, a1.IsFile())
	data, err := ReadAll(a1)
	require.NoError(t, err)
	assert.Equal(t, "<Truck/>", string(data))

	_, err = trucks.Open()
	assert.ErrorIs(t, err, ErrNotFile)
}

func TestFromFilesystem(t *testing.T) {
	fs := memfs.New()
	for p, content := range fixture {
		require.NoError(t, util.WriteFile(fs, p, []byte(content), 0o644))
	}

	a, err := FromFilesystem(fs)
	require.NoError(t, err)
	defer func() { _ = a.Close() }()
	checkTree(t, a)
}

func TestOpen_Zip(t *testing.T) {
	dir := t.TempDir()
	pak := filepath.Join(dir, "initial.pak")

	f, err := os.Create(pak)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for p, content := range fixture {
		// Some packers write Windows separators.
		name := p
		if filepath.Base(p) == "b.xml" {
			name = `[media]\classes\trucks\b.xml`
		}
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	_, err = zw.Create("[media]/empty/")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	a, err := Open(pak)
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	checkTree(t, a)
	assert.NotNil(t, a.Root().SubFolder("[media]").SubFolder("empty"))
	assert.Equal(t, pak, a.Name())
}

func TestOpen_Directory(t *testing.T) {
	dir := t.TempDir()
	for p, content := range fixture {
		full := filepath.Join(dir, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}

	a, err := Open(dir)
	require.NoError(t, err)
	checkTree(t, a)
	assert.Equal(t, dir, a.Name())
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.pak"))
	assert.Error(t, err)
}
