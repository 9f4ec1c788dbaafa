package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/demod-llc/nixgen/pkg/logging"
)

// Export format names accepted by the generator
const (
	FormatOpenAI    = "openai"
	FormatAnthropic = "anthropic"
	FormatGeneric   = "generic"
)

// RunConfig holds the complete configuration for one generation run.
// It is built once from CLI input and passed read-only into the generator.
type RunConfig struct {
	// Output settings
	Output string `json:"output"` // JSONL output path
	Format string `json:"format"` // openai, anthropic, generic
	CSV    bool   `json:"csv"`    // also emit a CSV next to the JSONL
	Stats  bool   `json:"stats"`  // print dataset statistics after export

	// Source selection
	SkipSearchAPI bool `json:"skip_search_api"`
	SkipPackages  bool `json:"skip_packages"`
	SkipWiki      bool `json:"skip_wiki"`
	SkipDiscourse bool `json:"skip_discourse"`
	SearchAPIOnly bool `json:"search_api_only"`

	// Per-source bounds
	MaxPackages     int `json:"max_packages"`
	MaxDiscourse    int `json:"max_discourse"`
	MaxPerQuery     int `json:"max_per_query"` // search API results kept per query
	MaxWikiSections int `json:"max_wiki_sections"`

	// Wiki topics to scrape
	WikiTopics []string `json:"wiki_topics"`

	// GitHubToken is passed opaquely to the nixpkgs scraper
	GitHubToken string `json:"-"`

	// Logging configuration
	Logging *logging.LogConfig `json:"logging"`
}

// DefaultRunConfig returns the defaults matching the documented CLI surface
func DefaultRunConfig() *RunConfig {
	return &RunConfig{
		Output:          "nix_training_data.jsonl",
		Format:          FormatOpenAI,
		MaxPackages:     50,
		MaxDiscourse:    30,
		MaxPerQuery:     5,
		MaxWikiSections: 100,
		WikiTopics: []string{
			"NixOS", "Flakes", "Overlays", "Home_Manager",
			"Docker", "Kubernetes", "Development_environment",
		},
		Logging: logging.DefaultLogConfig(),
	}
}

// SearchPerQuery returns the search API per-query bound. Fast mode derives it
// from the package budget so --max-packages keeps meaning something.
func (c *RunConfig) SearchPerQuery() int {
	if c.SearchAPIOnly {
		perQuery := c.MaxPackages / 10
		if perQuery < 1 {
			perQuery = 1
		}
		return perQuery
	}
	return c.MaxPerQuery
}

// Validate checks the configuration before any source is contacted.
// A failure here aborts the run with no output written.
func (c *RunConfig) Validate() error {
	switch c.Format {
	case FormatOpenAI, FormatAnthropic, FormatGeneric:
	default:
		return fmt.Errorf("invalid format %q (expected openai, anthropic, or generic)", c.Format)
	}

	if c.Output == "" {
		return fmt.Errorf("output path cannot be empty")
	}

	if c.MaxPackages < 0 || c.MaxDiscourse < 0 || c.MaxPerQuery < 0 || c.MaxWikiSections < 0 {
		return fmt.Errorf("per-source limits cannot be negative")
	}

	// Prove the output location is writable up front
	outDir := filepath.Dir(c.Output)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("output directory not writable: %w", err)
	}
	probe, err := os.CreateTemp(outDir, ".nixgen-probe-*")
	if err != nil {
		return fmt.Errorf("output directory not writable: %w", err)
	}
	probe.Close()
	os.Remove(probe.Name())

	return nil
}

// CSVPath returns the CSV output path derived from the JSONL output path
func (c *RunConfig) CSVPath() string {
	ext := filepath.Ext(c.Output)
	return c.Output[:len(c.Output)-len(ext)] + ".csv"
}
