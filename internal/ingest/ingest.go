// Package ingest fetches a source's index page, then fetches, stores and
// classifies every new article it lists on a bounded worker pool.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/newsrank/internal/database"
	"github.com/TobiSchelling/newsrank/internal/fetch"
	"github.com/TobiSchelling/newsrank/internal/logging"
	"github.com/TobiSchelling/newsrank/internal/metrics"
	"github.com/TobiSchelling/newsrank/internal/scrape"
)

// DefaultConcurrency is the worker pool size used when none is configured.
const DefaultConcurrency = 10

// ErrIndexUnavailable is returned when the index page cannot be fetched or parsed.
var ErrIndexUnavailable = errors.New("index page unavailable")

// Fetcher downloads a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Store is the article storage used by the pipeline.
type Store interface {
	GetArticleIDByTitle(ctx context.Context, title string) (int64, error)
	WithTx(ctx context.Context, fn func(tx *database.Tx) error) error
}

// Classifier scores an article and writes its categories through tx.
type Classifier interface {
	ClassifyTx(ctx context.Context, tx *database.Tx, articleID int64, text string) (map[string]int, error)
}

// Failure is a candidate that could not be ingested. It never aborts the run.
type Failure struct {
	Title string
	URL   string
	Err   error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s (%s): %v", f.Title, f.URL, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Result summarizes one ingestion run.
type Result struct {
	RunID      string
	Candidates int
	Processed  int // new articles fetched, stored and classified
	Reused     int // candidates whose title was already stored
	Failures   []Failure
	Duration   time.Duration
}

// Config wires a Pipeline.
type Config struct {
	Fetcher     Fetcher
	Store       Store
	Classifier  Classifier
	Index       scrape.IndexExtractor
	Body        scrape.BodyExtractor
	Concurrency int
}

// Pipeline runs ingestion for one source.
type Pipeline struct {
	fetcher     Fetcher
	store       Store
	classifier  Classifier
	index       scrape.IndexExtractor
	body        scrape.BodyExtractor
	concurrency int
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Pipeline{
		fetcher:     cfg.Fetcher,
		store:       cfg.Store,
		classifier:  cfg.Classifier,
		index:       cfg.Index,
		body:        cfg.Body,
		concurrency: cfg.Concurrency,
	}
}

// Ingest processes every candidate on the index page at sourceIndexURL and
// blocks until all of them have finished. Only an unreachable or unparsable
// index page fails the run; per-candidate problems are reported in
// Result.Failures.
func (p *Pipeline) Ingest(ctx context.Context, sourceIndexURL string) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: ulid.Make().String()}
	log := logging.With().Str("run_id", res.RunID).Logger()

	candidates, err := p.candidates(ctx, sourceIndexURL)
	if err != nil {
		metrics.IngestRuns.WithLabelValues("aborted").Inc()
		log.Error().Err(err).Str("index", sourceIndexURL).Msg("ingest aborted")
		return nil, err
	}
	res.Candidates = len(candidates)
	log.Info().Str("index", sourceIndexURL).Int("candidates", len(candidates)).Msg("ingest started")

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for _, c := range candidates {
		g.Go(func() error {
			outcome, err := p.process(ctx, c)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				res.Failures = append(res.Failures, Failure{Title: c.Title, URL: c.URL, Err: err})
				log.Warn().Err(err).Str("title", c.Title).Str("url", c.URL).Msg("candidate failed")
			case outcome == outcomeReused:
				res.Reused++
			default:
				res.Processed++
			}
			metrics.IngestCandidates.WithLabelValues(outcome).Inc()
			return nil
		})
	}
	g.Wait()

	res.Duration = time.Since(start)
	metrics.IngestRuns.WithLabelValues("ok").Inc()
	log.Info().
		Int("processed", res.Processed).
		Int("reused", res.Reused).
		Int("failed", len(res.Failures)).
		Dur("duration", res.Duration).
		Msg("ingest finished")
	return res, nil
}

func (p *Pipeline) candidates(ctx context.Context, sourceIndexURL string) ([]scrape.Candidate, error) {
	base, err := url.Parse(sourceIndexURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	page, err := p.fetcher.Fetch(ctx, sourceIndexURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}

	candidates, err := p.index.Candidates(page, base)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	return candidates, nil
}

const (
	outcomeProcessed = "processed"
	outcomeReused    = "reused"
	outcomeFailed    = "failed"
)

// process handles a single candidate end to end.
func (p *Pipeline) process(ctx context.Context, c scrape.Candidate) (string, error) {
	_, err := p.store.GetArticleIDByTitle(ctx, c.Title)
	if err == nil {
		return outcomeReused, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return outcomeFailed, err
	}

	pageURL, err := url.Parse(c.URL)
	if err != nil {
		return outcomeFailed, fmt.Errorf("parsing article url: %w", err)
	}

	page, err := p.fetcher.Fetch(ctx, c.URL)
	if err != nil {
		return outcomeFailed, err
	}

	text, err := p.body.Body(page, pageURL)
	if err != nil {
		return outcomeFailed, err
	}
	if text == "" {
		return outcomeFailed, fetch.ErrEmptyContent
	}

	// The article and its classification commit together: a title that is
	// stored is always classified.
	var (
		id      int64
		created bool
		scores  map[string]int
	)
	err = p.store.WithTx(ctx, func(tx *database.Tx) error {
		var err error
		id, created, err = tx.InsertArticle(ctx, c.Title, text, c.URL)
		if err != nil || !created {
			return err
		}
		scores, err = p.classifier.ClassifyTx(ctx, tx, id, text)
		return err
	})
	if err != nil {
		return outcomeFailed, err
	}
	if !created {
		// Another run stored the same title first.
		return outcomeReused, nil
	}

	logging.Debug().Int64("article_id", id).Str("title", c.Title).Interface("scores", nonZero(scores)).Msg("article stored")
	return outcomeProcessed, nil
}

func nonZero(scores map[string]int) map[string]int {
	out := make(map[string]int)
	for k, v := range scores {
		if v > 0 {
			out[k] = v
		}
	}
	return out
}
