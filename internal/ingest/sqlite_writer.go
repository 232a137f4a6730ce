package ingest

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ohler55/ojg/oj"
	_ "modernc.org/sqlite"

	"github.com/agentic-research/snowpak/internal/graph"
)

const exportSchema = `
CREATE TABLE IF NOT EXISTS items (
	id TEXT PRIMARY KEY,
	class TEXT NOT NULL,
	name TEXT NOT NULL,
	subclass TEXT NOT NULL,
	dlc TEXT NOT NULL,
	file TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS item_parents (
	child_id TEXT NOT NULL,
	parent_id TEXT NOT NULL,
	PRIMARY KEY (child_id, parent_id)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS nodes (
	id INTEGER PRIMARY KEY,
	item_id TEXT NOT NULL,
	parent_id INTEGER,
	name TEXT NOT NULL,
	position INTEGER NOT NULL,
	record JSON
);

CREATE TABLE IF NOT EXISTS attributes (
	node_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (node_id, name)
) WITHOUT ROWID;
`

// SQLiteWriter is a Target that exports resolved items into a SQLite
// database. Rows are written in batched transactions. Target methods cannot
// fail, so the first error is kept and returned by Close.
type SQLiteWriter struct {
	db         *sql.DB
	tx         *sql.Tx
	stmtItem   *sql.Stmt
	stmtParent *sql.Stmt
	stmtNode   *sql.Stmt
	stmtAttr   *sql.Stmt
	batchSize  int
	count      int
	nextNode   int64
	err        error
	logger     *slog.Logger
	mu         sync.Mutex
}

var _ Target = (*SQLiteWriter)(nil)

// NewSQLiteWriter creates the database at dbPath and its schema.
func NewSQLiteWriter(dbPath string, logger *slog.Logger) (*SQLiteWriter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Bulk insert tuning
	for _, pragma := range []string{"PRAGMA synchronous = OFF", "PRAGMA journal_mode = MEMORY"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if _, err := db.Exec(exportSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	w := &SQLiteWriter{
		db:        db,
		batchSize: 10000,
		logger:    logger,
	}
	if err := db.QueryRow("SELECT COALESCE(MAX(id), 0) FROM nodes").Scan(&w.nextNode); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := w.beginTx(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *SQLiteWriter) beginTx() error {
	var err error
	if w.tx, err = w.db.Begin(); err != nil {
		return err
	}
	if w.stmtItem, err = w.tx.Prepare(`INSERT OR REPLACE INTO items (id, class, name, subclass, dlc, file) VALUES (?, ?, ?, ?, ?, ?)`); err != nil {
		return err
	}
	if w.stmtParent, err = w.tx.Prepare(`INSERT OR IGNORE INTO item_parents (child_id, parent_id) VALUES (?, ?)`); err != nil {
		return err
	}
	if w.stmtNode, err = w.tx.Prepare(`INSERT INTO nodes (id, item_id, parent_id, name, position, record) VALUES (?, ?, ?, ?, ?, ?)`); err != nil {
		return err
	}
	w.stmtAttr, err = w.tx.Prepare(`INSERT OR REPLACE INTO attributes (node_id, name, value) VALUES (?, ?, ?)`)
	return err
}

func (w *SQLiteWriter) commitTx() error {
	if w.tx == nil {
		return nil
	}
	for _, st := range []*sql.Stmt{w.stmtItem, w.stmtParent, w.stmtNode, w.stmtAttr} {
		if st != nil {
			_ = st.Close()
		}
	}
	return w.tx.Commit()
}

// fail keeps the first error. Must be called with w.mu held.
func (w *SQLiteWriter) fail(err error) {
	if err == nil {
		return
	}
	w.logger.Error("sqlite export failed", "err", err)
	if w.err == nil {
		w.err = err
	}
}

// AddItem writes the item row and its whole node tree. Re-adding an item is
// not supported; its old nodes are not removed.
func (w *SQLiteWriter) AddItem(it *Item) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	_, err := w.stmtItem.Exec(it.ID(), it.ClassName, it.Name, it.SubClassName, it.DLC, it.FilePath)
	if err != nil {
		w.fail(fmt.Errorf("insert item %s: %w", it.ID(), err))
		return
	}
	if it.Content != nil {
		w.fail(w.addNode(it.ID(), nil, 0, it.Content))
	}
	w.tick()
}

// LinkParent writes the parent relation of child.
func (w *SQLiteWriter) LinkParent(child, parent *Item) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	if _, err := w.stmtParent.Exec(child.ID(), parent.ID()); err != nil {
		w.fail(fmt.Errorf("insert parent link %s → %s: %w", child.ID(), parent.ID(), err))
	}
}

func (w *SQLiteWriter) addNode(itemID string, parentID *int64, position int, n *graph.Node) error {
	w.nextNode++
	id := w.nextNode

	attrs := make(map[string]any, len(n.Attrs))
	for k, v := range n.Attrs {
		attrs[k] = v
	}
	record := oj.JSON(attrs, &oj.Options{Sort: true})
	if _, err := w.stmtNode.Exec(id, itemID, parentID, n.Name, position, record); err != nil {
		return fmt.Errorf("insert node %s of %s: %w", n.Name, itemID, err)
	}
	for k, v := range n.Attrs {
		if _, err := w.stmtAttr.Exec(id, k, v); err != nil {
			return fmt.Errorf("insert attribute %s of %s: %w", k, itemID, err)
		}
	}
	w.count++

	for _, key := range n.Children.Keys() {
		for i, child := range n.Children.Get(key) {
			if err := w.addNode(itemID, &id, i, child); err != nil {
				return err
			}
		}
	}
	return nil
}

// tick commits the running transaction once the batch is full.
func (w *SQLiteWriter) tick() {
	if w.err != nil || w.count < w.batchSize {
		return
	}
	if err := w.commitTx(); err != nil {
		w.fail(fmt.Errorf("commit: %w", err))
		return
	}
	w.fail(w.beginTx())
	w.count = 0
}

// Close commits the pending rows, builds the lookup indexes and closes the
// database. It returns the first error seen by any Target call.
func (w *SQLiteWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.commitTx(); err != nil {
		w.fail(fmt.Errorf("commit: %w", err))
	}
	if w.err == nil {
		// Indexes after the bulk load
		_, err := w.db.Exec(`
			CREATE INDEX IF NOT EXISTS idx_nodes_item ON nodes(item_id, parent_id);
			CREATE INDEX IF NOT EXISTS idx_items_class ON items(class, name);
			CREATE INDEX IF NOT EXISTS idx_attributes_name ON attributes(name, value);
		`)
		w.fail(err)
	}
	if err := w.db.Close(); err != nil {
		w.fail(err)
	}
	return w.err
}
