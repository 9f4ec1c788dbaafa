package example

import (
	"fmt"
	"strings"
)

// SourceTag identifies where a training example was derived from
type SourceTag string

const (
	SourceNixpkgs   SourceTag = "nixpkgs"
	SourceWiki      SourceTag = "wiki"
	SourceDiscourse SourceTag = "discourse"
	SourceSearchAPI SourceTag = "search_api"
	SourceManual    SourceTag = "manual"
)

// KnownSources lists every valid source tag
var KnownSources = []SourceTag{
	SourceNixpkgs,
	SourceWiki,
	SourceDiscourse,
	SourceSearchAPI,
	SourceManual,
}

// FineTuningExample represents a single prompt/completion training pair
type FineTuningExample struct {
	ID         string         `json:"id"`
	Prompt     string         `json:"prompt"`
	Completion string         `json:"completion"`
	Metadata   map[string]any `json:"metadata"`
	Source     SourceTag      `json:"source"`
	Timestamp  string         `json:"timestamp"` // RFC3339, assigned at normalization
}

// Validate checks that the example satisfies the corpus invariants
func (e *FineTuningExample) Validate() error {
	if strings.TrimSpace(e.Prompt) == "" {
		return fmt.Errorf("example prompt cannot be empty")
	}
	if strings.TrimSpace(e.Completion) == "" {
		return fmt.Errorf("example completion cannot be empty")
	}
	if !validSource(e.Source) {
		return fmt.Errorf("unknown example source: %q", e.Source)
	}
	for key, value := range e.Metadata {
		if !scalarMetadata(value) {
			return fmt.Errorf("metadata %q holds non-scalar value %T", key, value)
		}
	}
	return nil
}

// TypeTag returns the metadata "type" value, or "unknown" when absent
func (e *FineTuningExample) TypeTag() string {
	if t, ok := e.Metadata["type"].(string); ok && t != "" {
		return t
	}
	return "unknown"
}

func validSource(tag SourceTag) bool {
	for _, known := range KnownSources {
		if tag == known {
			return true
		}
	}
	return false
}

// scalarMetadata restricts metadata values to string, number, bool, or a
// flat string list so the tabular exporter stays well-defined.
func scalarMetadata(value any) bool {
	switch v := value.(type) {
	case string, bool, int, int64, float64:
		return true
	case []string:
		return true
	case []any:
		for _, item := range v {
			if _, ok := item.(string); !ok {
				return false
			}
		}
		return true
	default:
		return false
	}
}
