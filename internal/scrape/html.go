package scrape

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// minReadableLength is the shortest readability extraction accepted as body text.
const minReadableLength = 100

// HTMLIndex extracts candidates from elements matching a CSS selector.
// Matches that are not links use their first descendant link.
type HTMLIndex struct {
	Selector string
}

func (x *HTMLIndex) Candidates(page []byte, base *url.URL) ([]Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parsing index page: %w", err)
	}

	var out []Candidate
	doc.Find(x.Selector).Each(func(_ int, s *goquery.Selection) {
		link := s
		if goquery.NodeName(s) != "a" {
			link = s.Find("a[href]").First()
		}
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		out = append(out, Candidate{
			Title: normalizeSpace(s.Text()),
			URL:   resolve(base, href),
		})
	})

	return dedupe(out), nil
}

// HTMLBody extracts article text from the elements matching Selector,
// falling back to readability when the selector is empty or matches nothing.
type HTMLBody struct {
	Selector string
}

func (x *HTMLBody) Body(page []byte, pageURL *url.URL) (string, error) {
	if x.Selector != "" {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
		if err != nil {
			return "", fmt.Errorf("parsing article page: %w", err)
		}

		var parts []string
		doc.Find(x.Selector).Each(func(_ int, s *goquery.Selection) {
			if t := normalizeSpace(s.Text()); t != "" {
				parts = append(parts, t)
			}
		})
		if len(parts) > 0 {
			return strings.Join(parts, " "), nil
		}
	}

	article, err := readability.FromReader(bytes.NewReader(page), pageURL)
	if err != nil {
		return "", nil
	}
	text := normalizeSpace(article.TextContent)
	if len(text) < minReadableLength {
		return "", nil
	}
	return text, nil
}
