// Package scrape turns fetched pages into ingestion input: candidate
// (title, url) pairs from an index page and plain body text from an
// article page.
package scrape

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/TobiSchelling/newsrank/internal/config"
)

// Candidate is an article found on an index page.
type Candidate struct {
	Title string
	URL   string
}

// IndexExtractor finds article candidates on an index page.
type IndexExtractor interface {
	Candidates(page []byte, base *url.URL) ([]Candidate, error)
}

// BodyExtractor pulls the article text out of an article page.
// It returns an empty string when the page holds no usable text.
type BodyExtractor interface {
	Body(page []byte, pageURL *url.URL) (string, error)
}

// ForSource builds the extractors configured for a source.
func ForSource(src config.Source) (IndexExtractor, BodyExtractor, error) {
	body := &HTMLBody{Selector: src.BodySelector}

	switch src.Kind {
	case "", config.KindHTML:
		if src.TitleSelector == "" {
			return nil, nil, fmt.Errorf("source %s: title_selector is required for html sources", src.Name)
		}
		return &HTMLIndex{Selector: src.TitleSelector}, body, nil
	case config.KindFeed:
		return &FeedIndex{}, body, nil
	default:
		return nil, nil, fmt.Errorf("source %s: unknown kind %q", src.Name, src.Kind)
	}
}

// dedupe drops empty titles and keeps the first occurrence of each title.
func dedupe(in []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(in))
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		if c.Title == "" || c.URL == "" {
			continue
		}
		if _, ok := seen[c.Title]; ok {
			continue
		}
		seen[c.Title] = struct{}{}
		out = append(out, c)
	}
	return out
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
