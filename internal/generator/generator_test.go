package generator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demod-llc/nixgen/internal/scrapers"
	"github.com/demod-llc/nixgen/pkg/example"
	"github.com/demod-llc/nixgen/pkg/pipeline"
)

// stubSource feeds canned records into the pipeline and records the
// limit it was asked for
type stubSource struct {
	tag       example.SourceTag
	records   []scrapers.Record
	err       error
	seenLimit int
}

func (s *stubSource) Name() example.SourceTag { return s.tag }

func (s *stubSource) Fetch(_ context.Context, limit int) ([]scrapers.Record, error) {
	s.seenLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.records) {
		return s.records[:limit], nil
	}
	return s.records, nil
}

func curated(prompt, completion string) scrapers.CuratedPair {
	return scrapers.CuratedPair{
		Prompt:     prompt,
		Completion: completion,
		Metadata:   map[string]any{"type": "template"},
	}
}

func testRunConfig(t *testing.T) *pipeline.RunConfig {
	t.Helper()
	cfg := pipeline.DefaultRunConfig()
	cfg.Output = filepath.Join(t.TempDir(), "out.jsonl")
	cfg.Format = pipeline.FormatGeneric
	return cfg
}

func TestGeneratorRunAccumulatesInOrder(t *testing.T) {
	cfg := testRunConfig(t)

	first := &stubSource{tag: example.SourceManual, records: []scrapers.Record{
		curated("prompt one", "completion one"),
	}}
	second := &stubSource{tag: example.SourceWiki, records: []scrapers.Record{
		curated("prompt two", "completion two"),
	}}

	gen := NewGeneratorWithSources(cfg, BindSource(first, 10), BindSource(second, 10))
	require.NoError(t, gen.Run(context.Background()))

	snapshot := gen.Corpus().Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "prompt one", snapshot[0].Prompt)
	assert.Equal(t, "prompt two", snapshot[1].Prompt)
}

func TestGeneratorFirstSourceWinsDuplicates(t *testing.T) {
	cfg := testRunConfig(t)

	// Same content from two sources; whitespace differences must not
	// defeat the duplicate check
	trusted := &stubSource{tag: example.SourceManual, records: []scrapers.Record{
		curated("How do I enable flakes?", "Set the experimental-features option."),
	}}
	scraped := &stubSource{tag: example.SourceDiscourse, records: []scrapers.Record{
		curated("How do I   enable flakes?", "Set the experimental-features   option."),
	}}

	gen := NewGeneratorWithSources(cfg, BindSource(trusted, 10), BindSource(scraped, 10))
	require.NoError(t, gen.Run(context.Background()))

	snapshot := gen.Corpus().Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, example.SourceManual, snapshot[0].Source)

	report := gen.Reports()["discourse"]
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Duplicate)
}

func TestGeneratorContinuesPastFailedSource(t *testing.T) {
	cfg := testRunConfig(t)

	broken := &stubSource{tag: example.SourceNixpkgs, err: fmt.Errorf("%w: github says no", ErrSourceUnavailable)}
	healthy := &stubSource{tag: example.SourceManual, records: []scrapers.Record{
		curated("still works", "still produces output"),
	}}

	gen := NewGeneratorWithSources(cfg, BindSource(broken, 10), BindSource(healthy, 10))
	require.NoError(t, gen.Run(context.Background()))

	assert.Equal(t, 1, gen.Corpus().Len())
	report := gen.Reports()["nixpkgs"]
	require.NotNil(t, report)
	assert.Contains(t, report.Err, "github says no")
}

func TestGeneratorSkipsMalformedRecords(t *testing.T) {
	cfg := testRunConfig(t)

	src := &stubSource{tag: example.SourceWiki, records: []scrapers.Record{
		scrapers.WikiSection{Topic: "NixOS", Heading: "Broken"}, // no parts
		curated("good prompt", "good completion"),
	}}

	gen := NewGeneratorWithSources(cfg, BindSource(src, 10))
	require.NoError(t, gen.Run(context.Background()))

	assert.Equal(t, 1, gen.Corpus().Len())
	report := gen.Reports()["wiki"]
	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Accepted)
}

func TestGeneratorPassesLimitToSource(t *testing.T) {
	cfg := testRunConfig(t)

	var records []scrapers.Record
	for i := 0; i < 100; i++ {
		records = append(records, curated(fmt.Sprintf("prompt %d", i), fmt.Sprintf("completion %d", i)))
	}
	src := &stubSource{tag: example.SourceManual, records: records}

	gen := NewGeneratorWithSources(cfg, BindSource(src, 5))
	require.NoError(t, gen.Run(context.Background()))

	assert.Equal(t, 5, src.seenLimit)
	assert.Equal(t, 5, gen.Corpus().Len())
}

func TestGeneratorRunHonorsCancellation(t *testing.T) {
	cfg := testRunConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &stubSource{tag: example.SourceManual, records: []scrapers.Record{curated("p", "c")}}
	gen := NewGeneratorWithSources(cfg, BindSource(src, 10))

	assert.ErrorIs(t, gen.Run(ctx), context.Canceled)
	assert.Equal(t, 0, gen.Corpus().Len())
}

func TestGeneratorExport(t *testing.T) {
	cfg := testRunConfig(t)
	cfg.CSV = true

	src := &stubSource{tag: example.SourceManual, records: []scrapers.Record{
		curated("prompt", "completion"),
	}}
	gen := NewGeneratorWithSources(cfg, BindSource(src, 10))
	require.NoError(t, gen.Run(context.Background()))
	require.NoError(t, gen.Export())

	jsonl, err := os.ReadFile(cfg.Output)
	require.NoError(t, err)
	assert.Contains(t, string(jsonl), `"prompt":"prompt"`)

	csvRaw, err := os.ReadFile(cfg.CSVPath())
	require.NoError(t, err)
	assert.Contains(t, string(csvRaw), "prompt,completion,source,timestamp,metadata_json")
}

func TestGeneratorExportFailsWhenAllDestinationsFail(t *testing.T) {
	cfg := testRunConfig(t)
	cfg.Output = filepath.Join(t.TempDir(), "missing-dir", "nested", "out.jsonl")

	gen := NewGeneratorWithSources(cfg)
	require.NoError(t, gen.Run(context.Background()))

	err := gen.Export()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all exports failed")
}

func TestNewGeneratorSourceSelection(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*pipeline.RunConfig)
		wantNames []string
	}{
		{
			name:      "default wiring",
			mutate:    func(c *pipeline.RunConfig) {},
			wantNames: []string{"manual", "search_api", "nixpkgs", "wiki", "discourse"},
		},
		{
			name:      "search api only",
			mutate:    func(c *pipeline.RunConfig) { c.SearchAPIOnly = true },
			wantNames: []string{"manual", "search_api"},
		},
		{
			name: "skip flags",
			mutate: func(c *pipeline.RunConfig) {
				c.SkipWiki = true
				c.SkipDiscourse = true
			},
			wantNames: []string{"manual", "search_api", "nixpkgs"},
		},
		{
			name:      "skip search api",
			mutate:    func(c *pipeline.RunConfig) { c.SkipSearchAPI = true },
			wantNames: []string{"manual", "nixpkgs", "wiki", "discourse"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := pipeline.DefaultRunConfig()
			tt.mutate(cfg)

			gen := NewGenerator(cfg)
			var names []string
			for _, bound := range gen.sources {
				names = append(names, string(bound.source.Name()))
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}
}
