package scrapers

import (
	"context"

	"github.com/demod-llc/nixgen/pkg/example"
)

// userAgent identifies the generator to upstream services
const userAgent = "nixgen/1.0 (+https://github.com/demod-llc/nixgen)"

// Source is the capability every raw record producer implements. The
// generator is closed over a fixed, ordered list of sources built once at
// startup; adding a scraper means extending that list, not touching the
// pipeline.
type Source interface {
	Name() example.SourceTag
	Fetch(ctx context.Context, limit int) ([]Record, error)
}

// Record is a source-specific raw data item before normalization
type Record interface {
	record()
}

// SearchKind distinguishes the three search.nixos.org result kinds
type SearchKind string

const (
	SearchKindPackage SearchKind = "package"
	SearchKindOption  SearchKind = "option"
	SearchKindFlake   SearchKind = "flake"
)

// SearchHit is one result from the search.nixos.org backend
type SearchHit struct {
	Kind SearchKind

	// package fields
	AttrName    string
	PName       string
	Version     string
	Description string

	// option fields
	OptionName    string
	OptionType    string
	OptionDefault string
	OptionExample string

	// flake fields
	FlakeName string
	FlakeRepo string
}

func (SearchHit) record() {}

// PackageFile is one default.nix definition fetched from nixpkgs
type PackageFile struct {
	Name    string
	Path    string
	Content string
}

func (PackageFile) record() {}

// ContentPart is a prose or code fragment within a wiki section
type ContentPart struct {
	Kind string // "text" or "code"
	Text string
}

// WikiSection is one h2/h3 section of a wiki page
type WikiSection struct {
	Topic   string
	Heading string
	Parts   []ContentPart
	URL     string
}

func (WikiSection) record() {}

// DiscourseTopic is one forum thread reduced to its Q&A pair
type DiscourseTopic struct {
	Title    string
	Question string
	Answer   string
	Tags     []string
	URL      string
}

func (DiscourseTopic) record() {}

// CuratedPair is a hand-authored example folded through the same
// normalize/dedupe path as scraped records
type CuratedPair struct {
	Prompt     string
	Completion string
	Metadata   map[string]any
}

func (CuratedPair) record() {}
