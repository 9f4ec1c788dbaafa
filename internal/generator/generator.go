package generator

import (
	"context"
	"errors"
	"fmt"

	"github.com/demod-llc/nixgen/internal/scrapers"
	"github.com/demod-llc/nixgen/pkg/logging"
	"github.com/demod-llc/nixgen/pkg/pipeline"
	"github.com/demod-llc/nixgen/pkg/ratelimit"
)

// BoundSource pairs a source with its per-run record budget
type BoundSource struct {
	source scrapers.Source
	limit  int
}

// SourceReport summarizes what one source contributed to a run
type SourceReport struct {
	Fetched   int    `json:"fetched"`
	Accepted  int    `json:"accepted"`
	Skipped   int    `json:"skipped"`
	Duplicate int    `json:"duplicate"`
	Err       string `json:"error,omitempty"`
}

// Generator drains sources in priority order, normalizes every record,
// deduplicates, and exports the accumulated corpus. Sources are processed
// strictly sequentially so first-seen-wins dedup stays deterministic.
type Generator struct {
	config     *pipeline.RunConfig
	normalizer *Normalizer
	ledger     *DedupLedger
	corpus     *Corpus
	sources    []BoundSource

	reports map[string]*SourceReport
}

// NewGenerator wires the default source set for the given configuration.
// Curated examples always run first so they win ties against scraped
// duplicates; scraped sources follow in trust order.
func NewGenerator(cfg *pipeline.RunConfig) *Generator {
	limiter := ratelimit.NewSourceRateLimiter()

	sources := []BoundSource{
		{source: NewManualSource(), limit: 2},
	}

	if !cfg.SkipSearchAPI {
		sources = append(sources, BoundSource{
			source: scrapers.NewSearchAPIScraper(limiter),
			limit:  cfg.SearchPerQuery(),
		})
	}

	if !cfg.SearchAPIOnly {
		if !cfg.SkipPackages {
			sources = append(sources, BoundSource{
				source: scrapers.NewNixpkgsScraper(cfg.GitHubToken, limiter),
				limit:  cfg.MaxPackages,
			})
		}
		if !cfg.SkipWiki {
			sources = append(sources, BoundSource{
				source: scrapers.NewWikiScraper(cfg.WikiTopics, limiter),
				limit:  cfg.MaxWikiSections,
			})
		}
		if !cfg.SkipDiscourse {
			sources = append(sources, BoundSource{
				source: scrapers.NewDiscourseScraper(limiter),
				limit:  cfg.MaxDiscourse,
			})
		}
	}

	return NewGeneratorWithSources(cfg, sources...)
}

// NewGeneratorWithSources builds a generator over an explicit source list,
// preserving the given order
func NewGeneratorWithSources(cfg *pipeline.RunConfig, sources ...BoundSource) *Generator {
	return &Generator{
		config:     cfg,
		normalizer: NewNormalizer(),
		ledger:     NewDedupLedger(),
		corpus:     NewCorpus(),
		sources:    sources,
		reports:    make(map[string]*SourceReport),
	}
}

// BindSource wraps a source and its limit for NewGeneratorWithSources
func BindSource(src scrapers.Source, limit int) BoundSource {
	return BoundSource{source: src, limit: limit}
}

// Run drains every configured source. A source failure is logged and the
// run continues; Run only returns an error when the context is cancelled.
func (g *Generator) Run(ctx context.Context) error {
	log := logging.GetPipelineLogger("generation", "aggregate")

	for _, bound := range g.sources {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := string(bound.source.Name())
		report := &SourceReport{}
		g.reports[name] = report

		log.Info().Str("source", name).Int("limit", bound.limit).Msg("Fetching source")

		records, err := bound.source.Fetch(ctx, bound.limit)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			err = fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
			report.Err = err.Error()
			log.Warn().Err(err).Str("source", name).Msg("Source unavailable, continuing without it")
			continue
		}

		report.Fetched = len(records)
		for _, rec := range records {
			examples, err := g.normalizer.Normalize(rec)
			if err != nil {
				report.Skipped++
				log.Debug().Err(err).Str("source", name).Msg("Skipping record")
				continue
			}

			for i := range examples {
				if !g.ledger.Admit(&examples[i]) {
					report.Duplicate++
					continue
				}
				g.corpus.Add(examples[i])
				report.Accepted++
			}
		}

		log.Info().
			Str("source", name).
			Int("fetched", report.Fetched).
			Int("accepted", report.Accepted).
			Int("skipped", report.Skipped).
			Int("duplicates", report.Duplicate).
			Msg("Source complete")
	}

	log.Info().Int("total_examples", g.corpus.Len()).Msg("Generation complete")
	return nil
}

// Export writes the corpus to every configured destination. One failing
// destination doesn't stop the others; Export fails only when every
// destination failed.
func (g *Generator) Export() error {
	log := logging.GetPipelineLogger("generation", "export")
	snapshot := g.corpus.Snapshot()

	attempts := 0
	var failures []error

	attempts++
	if err := ExportJSONL(snapshot, g.config.Output, g.config.Format); err != nil {
		failures = append(failures, err)
		log.Error().Err(err).Str("path", g.config.Output).Msg("JSONL export failed")
	} else {
		log.Info().Str("path", g.config.Output).Str("format", g.config.Format).
			Int("examples", len(snapshot)).Msg("Wrote JSONL dataset")
	}

	if g.config.CSV {
		attempts++
		if err := ExportCSV(snapshot, g.config.CSVPath()); err != nil {
			failures = append(failures, err)
			log.Error().Err(err).Str("path", g.config.CSVPath()).Msg("CSV export failed")
		} else {
			log.Info().Str("path", g.config.CSVPath()).Msg("Wrote CSV dataset")
		}
	}

	if len(failures) == attempts {
		return fmt.Errorf("all exports failed: %w", errors.Join(failures...))
	}
	return nil
}

// Corpus exposes the accumulated dataset
func (g *Generator) Corpus() *Corpus {
	return g.corpus
}

// Statistics summarizes the accumulated dataset
func (g *Generator) Statistics() Stats {
	return g.corpus.Statistics()
}

// Reports returns per-source run outcomes keyed by source tag
func (g *Generator) Reports() map[string]*SourceReport {
	return g.reports
}
