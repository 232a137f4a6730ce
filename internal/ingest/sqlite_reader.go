package ingest

import (
	"database/sql"
	"fmt"

	"github.com/ohler55/ojg/oj"
	_ "modernc.org/sqlite"
)

// ExportedItem is an item row read back from an export database.
type ExportedItem struct {
	ID       string
	Class    string
	Name     string
	SubClass string
	DLC      string
	File     string
	Parent   string // empty without a parent item
}

// StreamItems iterates over the items of an export database ordered by ID,
// calling fn for each one.
func StreamItems(dbPath string, fn func(ExportedItem) error) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	defer func() { _ = db.Close() }() // safe to ignore

	rows, err := db.Query(`
		SELECT i.id, i.class, i.name, i.subclass, i.dlc, i.file, COALESCE(p.parent_id, '')
		FROM items i LEFT JOIN item_parents p ON p.child_id = i.id
		ORDER BY i.id`)
	if err != nil {
		return fmt.Errorf("query items: %w", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	for rows.Next() {
		var it ExportedItem
		if err := rows.Scan(&it.ID, &it.Class, &it.Name, &it.SubClass, &it.DLC, &it.File, &it.Parent); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		if err := fn(it); err != nil {
			return err
		}
	}
	return rows.Err()
}

// RootRecord returns the attributes of the content node of itemID as stored
// in the record column.
func RootRecord(dbPath, itemID string) (map[string]any, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	defer func() { _ = db.Close() }() // safe to ignore

	var raw string
	err = db.QueryRow(`SELECT record FROM nodes WHERE item_id = ? AND parent_id IS NULL`, itemID).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("record of %s: %w", itemID, err)
	}
	parsed, err := oj.ParseString(raw)
	if err != nil {
		return nil, fmt.Errorf("parse record json: %w", err)
	}
	m, ok := parsed.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("record of %s is not an object", itemID)
	}
	return m, nil
}
