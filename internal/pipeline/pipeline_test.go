package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/newsrank/internal/classify"
	"github.com/TobiSchelling/newsrank/internal/config"
	"github.com/TobiSchelling/newsrank/internal/database"
	"github.com/TobiSchelling/newsrank/internal/taxonomy"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Ingest: config.Ingest{
			Concurrency:    4,
			Attempts:       2,
			AttemptTimeout: config.Duration(time.Second),
			BackoffInitial: config.Duration(time.Millisecond),
			BackoffMax:     config.Duration(2 * time.Millisecond),
		},
	}
}

func testTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	tax, err := taxonomy.New([]taxonomy.Category{
		{Name: "Politics", Keywords: []string{"election"}},
		{Name: "Health", Keywords: []string{"hospital"}},
	})
	if err != nil {
		t.Fatalf("taxonomy: %v", err)
	}
	return tax
}

func newsServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, `<a class="t" href="/one">One</a><a class="t" href="/two">Two</a>`)
		case "/down":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			fmt.Fprint(w, `<div class="b">An election story from the hospital.</div>`)
		}
	}))
}

func TestRun(t *testing.T) {
	srv := newsServer()
	defer srv.Close()

	db := openTestDB(t)
	p := New(testConfig(), db, testTaxonomy(t))
	sources := []config.Source{
		{Name: "site", IndexURL: srv.URL + "/", Kind: config.KindHTML, TitleSelector: ".t", BodySelector: ".b"},
		{Name: "broken", IndexURL: srv.URL + "/down", Kind: config.KindHTML, TitleSelector: ".t"},
	}

	r := p.Run(context.Background(), sources, Options{Reclassify: true})
	if len(r.Steps) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(r.Steps))
	}
	if r.Steps[0].Err != nil || r.Steps[0].Ingest == nil || r.Steps[0].Ingest.Processed != 2 {
		t.Errorf("expected 2 processed articles, got %+v", r.Steps[0])
	}
	if r.Steps[1].Err == nil {
		t.Error("expected broken source to fail its step")
	}
	if !strings.Contains(r.Steps[2].Summary, "Reclassified 2") {
		t.Errorf("unexpected reclassify summary %q", r.Steps[2].Summary)
	}
	if r.Steps[3].Name != "Report" || !strings.Contains(r.Steps[3].Summary, "2 articles") {
		t.Errorf("unexpected report %+v", r.Steps[3])
	}
	if !r.Failed() {
		t.Error("expected Failed() to report the broken source")
	}
}

func TestDryRunDoesNotWrite(t *testing.T) {
	db := openTestDB(t)
	p := New(testConfig(), db, testTaxonomy(t))
	sources := []config.Source{
		{Name: "site", IndexURL: "http://127.0.0.1:1/", Kind: config.KindHTML, TitleSelector: ".t"},
		{Name: "bad", IndexURL: "http://127.0.0.1:1/", Kind: config.KindHTML},
	}

	r := p.DryRun(context.Background(), sources, Options{Reclassify: true})
	if len(r.Steps) != 4 {
		t.Fatalf("expected 4 steps, got %+v", r.Steps)
	}
	if !strings.HasPrefix(r.Steps[0].Summary, "[dry-run]") {
		t.Errorf("unexpected summary %q", r.Steps[0].Summary)
	}
	if r.Steps[1].Err == nil {
		t.Error("expected missing title selector to be reported")
	}

	stats, _ := db.GetStats(context.Background())
	if stats.Articles != 0 {
		t.Errorf("dry run wrote %d articles", stats.Articles)
	}
}

func TestReclassify(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	id, _, _ := db.InsertArticle(ctx, "A", "a hospital report", "")

	n, err := Reclassify(ctx, db, classify.New(testTaxonomy(t), db))
	if err != nil || n != 1 {
		t.Fatalf("expected 1 article reclassified, got %d (err %v)", n, err)
	}
	rows, _ := db.GetClassification(ctx, id)
	for _, r := range rows {
		if r.Category == "Health" && r.KeywordCount != 1 {
			t.Errorf("expected Health=1, got %d", r.KeywordCount)
		}
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 rows, got %+v", rows)
	}
}
