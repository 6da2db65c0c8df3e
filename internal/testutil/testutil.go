// Package testutil provides shared test helpers for snapshots and documents.
package testutil

import (
	"os"
	"testing"

	"github.com/officeboard/panel/internal/models"
	"github.com/officeboard/panel/internal/snapshot"
)

// TestDB creates a temporary snapshot database that is automatically cleaned up.
func TestDB(t *testing.T) *snapshot.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "panel-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := snapshot.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Doc builds a document with the given id and title.
func Doc(id, title string) models.Document {
	return models.Document{
		ID: id,
		Data: &models.DocumentData{
			Title:       title,
			DocumentURL: "https://board.example/docs/" + id,
		},
		CreatedAt:  "2024-01-01T00:00:00Z",
		ModifiedAt: "2024-01-01T00:00:00Z",
	}
}
