package generator

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"

	"github.com/demod-llc/nixgen/pkg/example"
	"github.com/demod-llc/nixgen/pkg/pipeline"
)

// chatMessage is one role-tagged turn in the message-array format
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRecord struct {
	Messages []chatMessage `json:"messages"`
}

type anthropicRecord struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

// genericRecord carries the example verbatim; decoding a generic line
// reconstructs exactly what was accumulated
type genericRecord struct {
	Prompt     string            `json:"prompt"`
	Completion string            `json:"completion"`
	Metadata   map[string]any    `json:"metadata"`
	Source     example.SourceTag `json:"source"`
	Timestamp  string            `json:"timestamp"`
}

// EncodeExample projects one example into the requested format's JSON
// object. Exporters never mutate the example.
func EncodeExample(ex *example.FineTuningExample, format string) ([]byte, error) {
	var entry any

	switch format {
	case pipeline.FormatOpenAI:
		entry = openAIRecord{
			Messages: []chatMessage{
				{Role: "user", Content: ex.Prompt},
				{Role: "assistant", Content: ex.Completion},
			},
		}
	case pipeline.FormatAnthropic:
		// The leading space on the completion is part of the format
		entry = anthropicRecord{
			Prompt:     "Human: " + ex.Prompt + "\n\nAssistant:",
			Completion: " " + ex.Completion,
		}
	case pipeline.FormatGeneric:
		entry = genericRecord{
			Prompt:     ex.Prompt,
			Completion: ex.Completion,
			Metadata:   ex.Metadata,
			Source:     ex.Source,
			Timestamp:  ex.Timestamp,
		}
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrEncodingFailure, format)
	}

	encoded, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodingFailure, err)
	}
	return encoded, nil
}

// ExportJSONL writes one complete JSON object per line, UTF-8,
// newline-terminated. Each line is marshalled fully before the single
// write call that emits it, so a crash mid-run never leaves a torn line.
func ExportJSONL(snapshot []example.FineTuningExample, path, format string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	for i := range snapshot {
		encoded, err := EncodeExample(&snapshot[i], format)
		if err != nil {
			return err
		}
		if _, err := file.Write(append(encoded, '\n')); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}

	return nil
}

// ExportCSV writes the tabular encoding: a header row then one row per
// example, metadata serialized as a nested JSON string
func ExportCSV(snapshot []example.FineTuningExample, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write([]string{"prompt", "completion", "source", "timestamp", "metadata_json"}); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	for i := range snapshot {
		ex := &snapshot[i]

		metadata, err := json.Marshal(ex.Metadata)
		if err != nil {
			return fmt.Errorf("%w: metadata for example %s: %v", ErrEncodingFailure, ex.ID, err)
		}

		row := []string{ex.Prompt, ex.Completion, string(ex.Source), ex.Timestamp, string(metadata)}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
