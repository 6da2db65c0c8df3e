package snapshot

import (
	"os"
	"testing"

	"github.com/officeboard/panel/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "panel-snapshot-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestReplaceAndLoadRoundTrip(t *testing.T) {
	db := testDB(t)
	snap := db.ForBoard("board-1")

	docs := []models.Document{
		{
			ID:         "b",
			Data:       &models.DocumentData{Title: "Beta", DocumentURL: "https://x/b"},
			CreatedAt:  "2024-01-02T00:00:00Z",
			ModifiedAt: "2024-01-02T00:00:00Z",
		},
		{ID: "a", Data: &models.DocumentData{Title: "Alpha", DocumentURL: "https://x/a"}},
		{ID: "c"}, // no display payload
	}
	if err := snap.Replace(docs); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, err := snap.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("loaded %d docs, want 3", len(got))
	}
	// Insertion order survives, even when it is not id order.
	if got[0].ID != "b" || got[1].ID != "a" || got[2].ID != "c" {
		t.Errorf("order = %s %s %s", got[0].ID, got[1].ID, got[2].ID)
	}
	if got[0].Title() != "Beta" || got[0].DocumentURL() != "https://x/b" {
		t.Errorf("payload = %+v", got[0].Data)
	}
	if got[2].Data != nil {
		t.Errorf("expected nil payload for bare document, got %+v", got[2].Data)
	}
}

func TestReplaceSwapsCollection(t *testing.T) {
	db := testDB(t)
	snap := db.ForBoard("board-1")

	if err := snap.Replace([]models.Document{{ID: "a"}, {ID: "b"}}); err != nil {
		t.Fatal(err)
	}
	if err := snap.Replace([]models.Document{{ID: "c"}}); err != nil {
		t.Fatal(err)
	}

	got, err := snap.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "c" {
		t.Errorf("got %+v, want only c", got)
	}
}

func TestBoardsAreIsolated(t *testing.T) {
	db := testDB(t)

	if err := db.ForBoard("board-1").Replace([]models.Document{{ID: "a"}}); err != nil {
		t.Fatal(err)
	}
	if err := db.ForBoard("board-2").Replace([]models.Document{{ID: "z"}}); err != nil {
		t.Fatal(err)
	}

	got, err := db.ForBoard("board-1").Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("board-1 docs = %+v", got)
	}
}

func TestLoadEmptyBoard(t *testing.T) {
	db := testDB(t)

	got, err := db.ForBoard("board-9").Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %+v, want none", got)
	}
}
