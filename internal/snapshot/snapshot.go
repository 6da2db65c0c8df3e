// Package snapshot persists the last-known-good document collection in a
// local SQLite database, so a restarted panel can show stale-but-available
// data before the first listing fetch completes.
package snapshot

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/officeboard/panel/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	board_id     TEXT NOT NULL,
	id           TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	document_url TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL DEFAULT '',
	modified_at  TEXT NOT NULL DEFAULT '',
	position     INTEGER NOT NULL,
	PRIMARY KEY (board_id, id)
);

CREATE INDEX IF NOT EXISTS idx_documents_board ON documents(board_id, position);
`

// DB wraps a sql.DB with snapshot operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the snapshot database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("snapshot: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("snapshot: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("snapshot: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// ForBoard binds the snapshot to one board.
func (db *DB) ForBoard(boardID string) *BoardSnapshot {
	return &BoardSnapshot{db: db, boardID: boardID}
}

// BoardSnapshot is the per-board view consumed by the document store.
type BoardSnapshot struct {
	db      *DB
	boardID string
}

// Load returns the stored collection in its persisted order.
func (s *BoardSnapshot) Load() ([]models.Document, error) {
	rows, err := s.db.conn.Query(
		`SELECT id, title, document_url, created_at, modified_at
		 FROM documents WHERE board_id = ? ORDER BY position`, s.boardID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var (
			doc   models.Document
			title string
			url   string
		)
		if err := rows.Scan(&doc.ID, &title, &url, &doc.CreatedAt, &doc.ModifiedAt); err != nil {
			return nil, fmt.Errorf("snapshot: scan: %w", err)
		}
		if title != "" || url != "" {
			doc.Data = &models.DocumentData{Title: title, DocumentURL: url}
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Replace atomically swaps the stored collection for the given one.
func (s *BoardSnapshot) Replace(docs []models.Document) error {
	tx, err := s.db.conn.Begin()
	if err != nil {
		return fmt.Errorf("snapshot: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM documents WHERE board_id = ?`, s.boardID); err != nil {
		return fmt.Errorf("snapshot: clear: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO documents (board_id, id, title, document_url, created_at, modified_at, position)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("snapshot: prepare: %w", err)
	}
	defer stmt.Close()

	for i, doc := range docs {
		if _, err := stmt.Exec(s.boardID, doc.ID, doc.Title(), doc.DocumentURL(),
			doc.CreatedAt, doc.ModifiedAt, i); err != nil {
			return fmt.Errorf("snapshot: insert %s: %w", doc.ID, err)
		}
	}
	return tx.Commit()
}
