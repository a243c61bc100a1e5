package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/morgisync/internal/model"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testImages returns a small library, newest first.
func testImages() []model.Image {
	return []model.Image{
		{ID: "1", Site: "a.org", OriginalURL: "https://a.org/1.jpg?x=1&y=2", Category: "A", IsFavorite: true},
		{ID: "2", Site: "a.org", OriginalURL: "https://a.org/2.jpg", Category: "A"},
		{ID: "3", Site: "b.org", OriginalURL: "https://b.org/3.png", Category: "B", IsDeleted: true},
	}
}

func testCategories() []model.Category {
	return []model.Category{{Name: "A"}, {Name: "B"}}
}
