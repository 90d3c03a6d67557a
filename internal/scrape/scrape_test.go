package scrape

import (
	"net/url"
	"strings"
	"testing"

	"github.com/TobiSchelling/newsrank/internal/config"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

const indexPage = `<html><body>
<a class="headline" href="/news/one">  Election   results </a>
<a class="headline" href="https://other.example/two">Storm hits coast</a>
<a class="headline" href="/news/dup">Election results</a>
<a class="headline" href="/news/empty">   </a>
<div class="headline"><span>Wrapped</span> <a href="three">Market rally</a></div>
<a class="other" href="/ignored">Ignored</a>
</body></html>`

func TestHTMLIndexCandidates(t *testing.T) {
	idx := &HTMLIndex{Selector: ".headline"}
	got, err := idx.Candidates([]byte(indexPage), mustURL(t, "https://news.example/section/"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Candidate{
		{Title: "Election results", URL: "https://news.example/news/one"},
		{Title: "Storm hits coast", URL: "https://other.example/two"},
		{Title: "Wrapped Market rally", URL: "https://news.example/section/three"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestHTMLBodySelector(t *testing.T) {
	page := `<html><body><div class="wysiwyg"><p>First   paragraph.</p></div>
<div class="wysiwyg"><p>Second.</p></div><div class="ad">Buy now</div></body></html>`

	body, err := (&HTMLBody{Selector: ".wysiwyg"}).Body([]byte(page), mustURL(t, "https://news.example/a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "First paragraph. Second." {
		t.Errorf("unexpected body %q", body)
	}
}

func TestHTMLBodyReadabilityFallback(t *testing.T) {
	para := strings.Repeat("The parliament debated the budget and the minister answered questions. ", 8)
	page := `<html><head><title>Budget</title></head><body><article><h1>Budget</h1><p>` + para +
		`</p><p>` + para + `</p></article></body></html>`

	body, err := (&HTMLBody{Selector: ".missing"}).Body([]byte(page), mustURL(t, "https://news.example/a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(body, "parliament debated the budget") {
		t.Errorf("expected readability text, got %q", body)
	}
}

func TestHTMLBodyEmpty(t *testing.T) {
	body, err := (&HTMLBody{Selector: ".wysiwyg"}).Body([]byte("<html><body><p>hi</p></body></html>"), mustURL(t, "https://news.example/a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "" {
		t.Errorf("expected empty body, got %q", body)
	}
}

func TestFeedIndexCandidates(t *testing.T) {
	feed := `<?xml version="1.0"?>
<rss version="2.0"><channel><title>World</title>
<item><title>Summit opens</title><link>https://feeds.example/summit</link></item>
<item><title>Summit opens</title><link>https://feeds.example/summit-2</link></item>
<item><title>Relative link</title><link>/rel</link></item>
<item><title></title><link>https://feeds.example/untitled</link></item>
</channel></rss>`

	got, err := FeedIndex{}.Candidates([]byte(feed), mustURL(t, "https://feeds.example/world/rss.xml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %+v", got)
	}
	if got[0].URL != "https://feeds.example/summit" || got[1].URL != "https://feeds.example/rel" {
		t.Errorf("unexpected candidates: %+v", got)
	}
}

func TestFeedIndexInvalid(t *testing.T) {
	if _, err := (FeedIndex{}).Candidates([]byte("not a feed"), nil); err == nil {
		t.Error("expected parse error")
	}
}

func TestForSource(t *testing.T) {
	if _, _, err := ForSource(config.Source{Name: "x", Kind: config.KindHTML}); err == nil {
		t.Error("expected error for html source without title selector")
	}
	idx, body, err := ForSource(config.Source{Name: "f", Kind: config.KindFeed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := idx.(*FeedIndex); !ok {
		t.Errorf("expected *FeedIndex, got %T", idx)
	}
	if body == nil {
		t.Error("expected body extractor")
	}
	if _, _, err := ForSource(config.Source{Name: "x", Kind: "ftp"}); err == nil {
		t.Error("expected error for unknown kind")
	}
}
