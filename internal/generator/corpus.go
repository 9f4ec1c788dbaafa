package generator

import (
	"github.com/demod-llc/nixgen/pkg/example"
)

// Corpus accumulates accepted examples in admission order. Memory stays
// proportional to accepted (not raw) records: rejected candidates are
// never appended.
type Corpus struct {
	examples []example.FineTuningExample
}

// NewCorpus creates an empty corpus
func NewCorpus() *Corpus {
	return &Corpus{}
}

// Add appends an example, preserving first-admitted order
func (c *Corpus) Add(ex example.FineTuningExample) {
	c.examples = append(c.examples, ex)
}

// Len returns the number of accepted examples
func (c *Corpus) Len() int {
	return len(c.examples)
}

// Snapshot returns the ordered sequence for export. The corpus retains
// ownership; exporters must not mutate the returned slice.
func (c *Corpus) Snapshot() []example.FineTuningExample {
	return c.examples
}

// Stats summarizes the dataset for the reporting layer
type Stats struct {
	TotalExamples       int            `json:"total_examples"`
	BySource            map[string]int `json:"by_source"`
	ByType              map[string]int `json:"by_type"`
	AvgPromptLength     int            `json:"avg_prompt_length"`
	AvgCompletionLength int            `json:"avg_completion_length"`
}

// Statistics computes counts by source and metadata type plus average
// prompt/completion lengths in characters
func (c *Corpus) Statistics() Stats {
	stats := Stats{
		TotalExamples: len(c.examples),
		BySource:      make(map[string]int),
		ByType:        make(map[string]int),
	}

	promptChars := 0
	completionChars := 0
	for i := range c.examples {
		ex := &c.examples[i]
		stats.BySource[string(ex.Source)]++
		stats.ByType[ex.TypeTag()]++
		promptChars += len(ex.Prompt)
		completionChars += len(ex.Completion)
	}

	if len(c.examples) > 0 {
		stats.AvgPromptLength = promptChars / len(c.examples)
		stats.AvgCompletionLength = completionChars / len(c.examples)
	}

	return stats
}
