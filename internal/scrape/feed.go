package scrape

import (
	"bytes"
	"fmt"
	"net/url"

	"github.com/mmcdole/gofeed"
)

// FeedIndex extracts candidates from an RSS or Atom feed.
type FeedIndex struct{}

func (FeedIndex) Candidates(page []byte, base *url.URL) ([]Candidate, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	out := make([]Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		link := item.Link
		if link == "" {
			link = item.GUID
		}
		out = append(out, Candidate{
			Title: normalizeSpace(item.Title),
			URL:   resolve(base, link),
		})
	}
	return dedupe(out), nil
}
