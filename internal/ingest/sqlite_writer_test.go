package ingest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestSQLiteWriter_Export(t *testing.T) {
	res := runSession(t, Config{}, baseFiles)

	dbPath := filepath.Join(t.TempDir(), "export.db")
	w, err := NewSQLiteWriter(dbPath, nil)
	require.NoError(t, err)
	w.batchSize = 2 // force several commits
	Copy(res.Store, w)
	require.NoError(t, w.Close())

	var items []ExportedItem
	require.NoError(t, StreamItems(dbPath, func(it ExportedItem) error {
		items = append(items, it)
		return nil
	}))
	require.Len(t, items, 5)
	assert.Equal(t, "trucks/a", items[0].ID)
	assert.Equal(t, ExportedItem{
		ID:     "trucks/c",
		Class:  "trucks",
		Name:   "c",
		File:   "[media]/classes/trucks/c.xml",
		Parent: "trucks/b",
	}, items[2])
	assert.Equal(t, "dlc_1", items[3].DLC)
	assert.Equal(t, "trucks/a", items[3].Parent)

	rec, err := RootRecord(dbPath, "trucks/c")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"speed": "20"}, rec)

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var size string
	err = db.QueryRow(`
		SELECT a.value FROM attributes a
		JOIN nodes n ON n.id = a.node_id
		WHERE n.item_id = 'trucks/c' AND n.name = 'Wheel' AND a.name = 'size'`).Scan(&size)
	require.NoError(t, err)
	assert.Equal(t, "4", size)

	var nodes int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM nodes`).Scan(&nodes))
	// a, b+Wheel, c+Wheel, d, w1+Tire
	assert.Equal(t, 8, nodes)
}

func TestSQLiteWriter_Direct(t *testing.T) {
	// The writer can stand in for the store while loading.
	dbPath := filepath.Join(t.TempDir(), "direct.db")
	w, err := NewSQLiteWriter(dbPath, nil)
	require.NoError(t, err)

	res := runSession(t, Config{}, baseFiles)
	for _, it := range res.Store.ItemsOfDLC("") {
		w.AddItem(it)
	}
	require.NoError(t, w.Close())

	n := 0
	require.NoError(t, StreamItems(dbPath, func(ExportedItem) error { n++; return nil }))
	assert.Equal(t, 4, n)
}

func TestRootRecord_Missing(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	w, err := NewSQLiteWriter(dbPath, nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = RootRecord(dbPath, "trucks/none")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
