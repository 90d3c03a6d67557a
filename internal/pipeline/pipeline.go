package pipeline

import (
	"context"
	"fmt"

	"github.com/TobiSchelling/newsrank/internal/classify"
	"github.com/TobiSchelling/newsrank/internal/config"
	"github.com/TobiSchelling/newsrank/internal/database"
	"github.com/TobiSchelling/newsrank/internal/fetch"
	"github.com/TobiSchelling/newsrank/internal/ingest"
	"github.com/TobiSchelling/newsrank/internal/logging"
	"github.com/TobiSchelling/newsrank/internal/scrape"
	"github.com/TobiSchelling/newsrank/internal/taxonomy"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
	Ingest  *ingest.Result
}

// Result holds the results of a full pipeline run.
type Result struct {
	Steps []StepResult
}

// Failed reports whether any step returned an error.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Options selects optional steps.
type Options struct {
	Reclassify bool
}

// Pipeline orchestrates ingest → reclassify → report over configured sources.
type Pipeline struct {
	cfg        *config.Config
	db         *database.DB
	fetcher    ingest.Fetcher
	classifier *classify.Classifier
}

// New creates a new pipeline.
func New(cfg *config.Config, db *database.DB, tax *taxonomy.Taxonomy) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		db:         db,
		fetcher:    fetch.New(fetch.OptionsFromConfig(cfg.Ingest)),
		classifier: classify.New(tax, db),
	}
}

// Run ingests every source, optionally reclassifies stored articles and
// reports store totals. A source whose index is unreachable fails its own
// step; the remaining sources still run.
func (p *Pipeline) Run(ctx context.Context, sources []config.Source, opts Options) *Result {
	r := &Result{}
	total := len(sources) + 1
	if opts.Reclassify {
		total++
	}
	n := 0

	for _, src := range sources {
		n++
		logging.Info().Msgf("Step %d/%d: ingesting %s", n, total, src.Name)
		r.Steps = append(r.Steps, p.runIngest(ctx, src))
	}

	if opts.Reclassify {
		n++
		logging.Info().Msgf("Step %d/%d: reclassifying stored articles", n, total)
		r.Steps = append(r.Steps, p.runReclassify(ctx))
	}

	n++
	logging.Info().Msgf("Step %d/%d: reporting", n, total)
	r.Steps = append(r.Steps, p.runReport(ctx))
	return r
}

// DryRun shows what would be done without executing.
func (p *Pipeline) DryRun(ctx context.Context, sources []config.Source, opts Options) *Result {
	r := &Result{}

	for _, src := range sources {
		summary := fmt.Sprintf("[dry-run] Would ingest %s index %s with %d workers", src.Kind, src.IndexURL, p.cfg.Ingest.Concurrency)
		if _, _, err := scrape.ForSource(src); err != nil {
			r.Steps = append(r.Steps, StepResult{Name: "Ingest " + src.Name, Err: err})
			continue
		}
		r.Steps = append(r.Steps, StepResult{Name: "Ingest " + src.Name, Summary: summary})
	}

	stats, err := p.db.GetStats(ctx)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Report", Err: err})
		return r
	}
	if opts.Reclassify {
		r.Steps = append(r.Steps, StepResult{
			Name:    "Reclassify",
			Summary: fmt.Sprintf("[dry-run] Would reclassify %d stored articles", stats.Articles),
		})
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Report",
		Summary: fmt.Sprintf("[dry-run] %d articles already in DB", stats.Articles),
	})
	return r
}

func (p *Pipeline) runIngest(ctx context.Context, src config.Source) StepResult {
	name := "Ingest " + src.Name
	index, body, err := scrape.ForSource(src)
	if err != nil {
		return StepResult{Name: name, Err: err}
	}

	ing := ingest.New(ingest.Config{
		Fetcher:     p.fetcher,
		Store:       p.db,
		Classifier:  p.classifier,
		Index:       index,
		Body:        body,
		Concurrency: p.cfg.Ingest.Concurrency,
	})
	res, err := ing.Ingest(ctx, src.IndexURL)
	if err != nil {
		return StepResult{Name: name, Err: err}
	}
	return StepResult{
		Name:    name,
		Summary: fmt.Sprintf("%d new articles, %d already stored, %d failed (%d candidates)", res.Processed, res.Reused, len(res.Failures), res.Candidates),
		Ingest:  res,
	}
}

func (p *Pipeline) runReclassify(ctx context.Context) StepResult {
	n, err := Reclassify(ctx, p.db, p.classifier)
	if err != nil {
		return StepResult{Name: "Reclassify", Err: err}
	}
	return StepResult{Name: "Reclassify", Summary: fmt.Sprintf("Reclassified %d articles", n)}
}

func (p *Pipeline) runReport(ctx context.Context) StepResult {
	stats, err := p.db.GetStats(ctx)
	if err != nil {
		return StepResult{Name: "Report", Err: err}
	}
	return StepResult{
		Name: "Report",
		Summary: fmt.Sprintf("%d articles (%d classified), %d users with preferences, %d interactions",
			stats.Articles, stats.ClassifiedArticles, stats.UsersWithPreferences, stats.Interactions),
	}
}

// Reclassify recomputes category counts for every stored article, e.g. after
// the taxonomy changed. It returns the number of articles processed.
func Reclassify(ctx context.Context, db *database.DB, c *classify.Classifier) (int, error) {
	articles, err := db.ListArticles(ctx)
	if err != nil {
		return 0, err
	}
	for i, a := range articles {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if _, err := c.Classify(ctx, a.ID, a.Content); err != nil {
			return i, fmt.Errorf("reclassifying article %d: %w", a.ID, err)
		}
	}
	return len(articles), nil
}
