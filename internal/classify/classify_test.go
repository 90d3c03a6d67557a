package classify

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/TobiSchelling/newsrank/internal/database"
	"github.com/TobiSchelling/newsrank/internal/taxonomy"
)

func testTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	tax, err := taxonomy.New([]taxonomy.Category{
		{Name: "Politics", Keywords: []string{"election", "parliament", "vote"}},
		{Name: "Sports", Keywords: []string{"football", "goal"}},
		{Name: "Health", Keywords: []string{"hospital"}},
	})
	if err != nil {
		t.Fatalf("taxonomy: %v", err)
	}
	return tax
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestScorePresenceNotFrequency(t *testing.T) {
	c := New(testTaxonomy(t), nil)
	got := c.Score("ELECTION day: the Election and the vote. Football goal goal goal.")

	want := map[string]int{"Politics": 2, "Sports": 2, "Health": 0}
	for cat, n := range want {
		if got[cat] != n {
			t.Errorf("%s: expected %d, got %d", cat, n, got[cat])
		}
	}
	if len(got) != 3 {
		t.Errorf("expected every category in result, got %v", got)
	}
}

func TestScoreSubstringMatch(t *testing.T) {
	c := New(testTaxonomy(t), nil)
	// "goalkeeper" contains "goal"; matching is substring based.
	if got := c.Score("The goalkeeper saved it")["Sports"]; got != 1 {
		t.Errorf("expected substring match, got %d", got)
	}
}

func TestClassifyPersistsAllCategories(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	id, _, err := db.InsertArticle(ctx, "Vote", "text", "")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	c := New(testTaxonomy(t), db)
	scores, err := c.Classify(ctx, id, "Parliament holds a vote")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scores["Politics"] != 2 {
		t.Errorf("expected Politics=2, got %d", scores["Politics"])
	}

	rows, err := db.GetClassification(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected one row per category, got %+v", rows)
	}

	// Idempotent: classifying again with new text replaces counts.
	if _, err := c.Classify(ctx, id, "hospital"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, _ = db.GetClassification(ctx, id)
	for _, r := range rows {
		want := 0
		if r.Category == "Health" {
			want = 1
		}
		if r.KeywordCount != want {
			t.Errorf("%s: expected %d after reclassify, got %d", r.Category, want, r.KeywordCount)
		}
	}
}

type failingStore struct{ err error }

func (f failingStore) SaveClassification(context.Context, int64, []database.Classification) error {
	return f.err
}

func TestClassifyStoreError(t *testing.T) {
	boom := &database.StorageError{Op: "save classification", Err: errors.New("disk full")}
	c := New(testTaxonomy(t), failingStore{err: boom})
	if _, err := c.Classify(context.Background(), 1, "vote"); !database.IsStorageError(err) {
		t.Errorf("expected storage error, got %v", err)
	}
}

func TestTopCategory(t *testing.T) {
	c := New(testTaxonomy(t), nil)

	tests := []struct {
		scores map[string]int
		want   string
		count  int
	}{
		{map[string]int{"Politics": 1, "Sports": 3}, "Sports", 3},
		{map[string]int{"Politics": 2, "Sports": 2}, "Politics", 2},
		{map[string]int{"Health": 0}, "", 0},
		{nil, "", 0},
	}
	for _, tt := range tests {
		got, n := c.TopCategory(tt.scores)
		if got != tt.want || n != tt.count {
			t.Errorf("TopCategory(%v) = (%q, %d), want (%q, %d)", tt.scores, got, n, tt.want, tt.count)
		}
	}
}
