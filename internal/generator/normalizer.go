package generator

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/demod-llc/nixgen/internal/processing"
	"github.com/demod-llc/nixgen/internal/scrapers"
	"github.com/demod-llc/nixgen/pkg/example"
)

const maxAnswerLength = 1000

var (
	versionRegex   = regexp.MustCompile(`version\s*=\s*"([^"]+)"`)
	codeFenceRegex = regexp.MustCompile("(?s)```(?:nix)?\n(.*?)```")
)

// Normalizer converts raw source records into canonical training examples.
// It is a pure transform: one record in, zero or more examples out, no
// side effects beyond debug logging at the call site.
type Normalizer struct {
	cleaner *processing.ProseCleaner
	now     func() time.Time
}

// NewNormalizer creates a normalizer with the default prose cleaner
func NewNormalizer() *Normalizer {
	return &Normalizer{
		cleaner: processing.NewProseCleaner(),
		now:     time.Now,
	}
}

// Normalize converts one raw record into canonical examples. A malformed
// record (missing required fields) returns ErrMalformedRecord; the caller
// skips it and continues with the source's remaining records.
func (n *Normalizer) Normalize(rec scrapers.Record) ([]example.FineTuningExample, error) {
	switch r := rec.(type) {
	case scrapers.PackageFile:
		return n.normalizePackage(r)
	case scrapers.WikiSection:
		return n.normalizeWikiSection(r)
	case scrapers.DiscourseTopic:
		return n.normalizeDiscourseTopic(r)
	case scrapers.SearchHit:
		return n.normalizeSearchHit(r)
	case scrapers.CuratedPair:
		return n.normalizeCurated(r)
	default:
		return nil, fmt.Errorf("%w: unsupported record type %T", ErrMalformedRecord, rec)
	}
}

func (n *Normalizer) newExample(source example.SourceTag, prompt, completion string, metadata map[string]any) example.FineTuningExample {
	return example.FineTuningExample{
		ID:         uuid.New().String(),
		Prompt:     prompt,
		Completion: completion,
		Metadata:   metadata,
		Source:     source,
		Timestamp:  n.now().UTC().Format(time.RFC3339),
	}
}

// normalizePackage emits one mandatory full-definition example plus
// optional pattern-derived enrichment examples for version pinning and
// source fetching idioms.
func (n *Normalizer) normalizePackage(pkg scrapers.PackageFile) ([]example.FineTuningExample, error) {
	if pkg.Name == "" || strings.TrimSpace(pkg.Content) == "" {
		return nil, fmt.Errorf("%w: package record missing name or content", ErrMalformedRecord)
	}

	examples := []example.FineTuningExample{
		n.newExample(example.SourceNixpkgs,
			fmt.Sprintf("Write a Nix derivation for the package '%s'", pkg.Name),
			fmt.Sprintf("Here's the Nix derivation:\n\n```nix\n%s\n```", strings.TrimRight(pkg.Content, "\n")),
			map[string]any{
				"type":    "package_definition",
				"package": pkg.Name,
				"path":    pkg.Path,
			}),
	}

	if match := versionRegex.FindStringSubmatch(pkg.Content); match != nil {
		version := match[1]
		examples = append(examples, n.newExample(example.SourceNixpkgs,
			fmt.Sprintf("How do I specify the version for %s in Nix?", pkg.Name),
			fmt.Sprintf("You can specify the version using the `version` attribute:\n\n```nix\nversion = \"%s\";\n```", version),
			map[string]any{
				"type":    "package_version",
				"package": pkg.Name,
				"version": version,
			}))
	}

	if match := fetchurlBlock(pkg.Content); match != "" {
		examples = append(examples, n.newExample(example.SourceNixpkgs,
			fmt.Sprintf("How do I fetch a source tarball in Nix for %s?", pkg.Name),
			fmt.Sprintf("Use `fetchurl` with the URL and hash:\n\n```nix\n%s\n```", match),
			map[string]any{
				"type":    "fetcher",
				"fetcher": "fetchurl",
				"package": pkg.Name,
			}))
	}

	return examples, nil
}

// normalizeWikiSection emits one example per section: prose introduces
// the topic, the first code fragment lands in a verbatim nix fence.
func (n *Normalizer) normalizeWikiSection(section scrapers.WikiSection) ([]example.FineTuningExample, error) {
	if section.Topic == "" || section.Heading == "" {
		return nil, fmt.Errorf("%w: wiki section missing topic or heading", ErrMalformedRecord)
	}

	var textParts, codeParts []string
	for _, part := range section.Parts {
		switch part.Kind {
		case "text":
			if cleaned := n.cleaner.Clean(part.Text); cleaned != "" {
				textParts = append(textParts, cleaned)
			}
		case "code":
			codeParts = append(codeParts, strings.TrimRight(part.Text, "\n"))
		}
	}

	// A useful guide needs both explanation and a config snippet
	if len(textParts) == 0 || len(codeParts) == 0 {
		return nil, fmt.Errorf("%w: wiki section %q has no usable prose/code pairing", ErrMalformedRecord, section.Heading)
	}

	if len(textParts) > 2 {
		textParts = textParts[:2]
	}

	ex := n.newExample(example.SourceWiki,
		fmt.Sprintf("How do I %s in NixOS?", strings.ToLower(section.Heading)),
		fmt.Sprintf("%s\n\n```nix\n%s\n```", strings.Join(textParts, " "), codeParts[0]),
		map[string]any{
			"type":    "wiki_guide",
			"topic":   section.Topic,
			"section": section.Heading,
		})

	return []example.FineTuningExample{ex}, nil
}

// normalizeDiscourseTopic emits one Q&A example per topic when the answer
// carries a code block
func (n *Normalizer) normalizeDiscourseTopic(topic scrapers.DiscourseTopic) ([]example.FineTuningExample, error) {
	if topic.Title == "" || strings.TrimSpace(topic.Answer) == "" {
		return nil, fmt.Errorf("%w: discourse topic missing title or answer", ErrMalformedRecord)
	}

	codeBlocks := codeFenceRegex.FindAllString(topic.Answer, -1)
	if len(codeBlocks) == 0 {
		return nil, fmt.Errorf("%w: discourse topic %q has no code in its answer", ErrMalformedRecord, topic.Title)
	}

	answer := n.cleanOutsideFences(topic.Answer)
	answer = truncateAnswer(answer, maxAnswerLength)

	tags := topic.Tags
	if tags == nil {
		tags = []string{}
	}

	ex := n.newExample(example.SourceDiscourse,
		topic.Title,
		answer,
		map[string]any{
			"type":     "qa",
			"tags":     tags,
			"has_code": true,
		})

	return []example.FineTuningExample{ex}, nil
}

// normalizeSearchHit emits templated examples per result kind
func (n *Normalizer) normalizeSearchHit(hit scrapers.SearchHit) ([]example.FineTuningExample, error) {
	switch hit.Kind {
	case scrapers.SearchKindPackage:
		return n.normalizePackageHit(hit)
	case scrapers.SearchKindOption:
		return n.normalizeOptionHit(hit)
	case scrapers.SearchKindFlake:
		return n.normalizeFlakeHit(hit)
	default:
		return nil, fmt.Errorf("%w: search hit with unknown kind %q", ErrMalformedRecord, hit.Kind)
	}
}

func (n *Normalizer) normalizePackageHit(hit scrapers.SearchHit) ([]example.FineTuningExample, error) {
	if hit.AttrName == "" || hit.PName == "" {
		return nil, fmt.Errorf("%w: package hit missing attribute name", ErrMalformedRecord)
	}

	desc := strings.TrimRight(hit.Description, ".")

	examples := []example.FineTuningExample{
		n.newExample(example.SourceSearchAPI,
			fmt.Sprintf("How do I install %s on NixOS?", hit.PName),
			fmt.Sprintf("To install %s (%s) system-wide:\n\n```nix\nenvironment.systemPackages = with pkgs; [ %s ];\n```\n\nCurrent version: %s",
				hit.PName, desc, hit.AttrName, hit.Version),
			map[string]any{
				"type":      "package_installation",
				"package":   hit.PName,
				"attr_name": hit.AttrName,
				"version":   hit.Version,
			}),
		n.newExample(example.SourceSearchAPI,
			fmt.Sprintf("What is the NixOS package attribute for %s?", strings.ToLower(hit.PName)),
			fmt.Sprintf("The attribute is `%s` (pname: %s, version: %s).\n\nDescription: %s",
				hit.AttrName, hit.PName, hit.Version, desc),
			map[string]any{
				"type":    "package_attribute",
				"package": hit.PName,
			}),
	}

	// Very short names make ambiguous prompts
	if len(hit.PName) > 2 {
		examples = append(examples, n.newExample(example.SourceSearchAPI,
			fmt.Sprintf("Add %s to my NixOS config", hit.PName),
			fmt.Sprintf("Add `%s` to your `environment.systemPackages`:\n\n```nix\nenvironment.systemPackages = with pkgs; [\n  %s\n];\n```",
				hit.AttrName, hit.AttrName),
			map[string]any{
				"type":    "quick_config",
				"package": hit.PName,
			}))
	}

	return examples, nil
}

func (n *Normalizer) normalizeOptionHit(hit scrapers.SearchHit) ([]example.FineTuningExample, error) {
	if hit.OptionName == "" {
		return nil, fmt.Errorf("%w: option hit missing name", ErrMalformedRecord)
	}

	desc := strings.TrimRight(hit.Description, ".")
	lowerDesc := lowerFirst(desc)
	if lowerDesc == "" {
		lowerDesc = "configure this option"
	}

	defaultValue := hit.OptionDefault
	if defaultValue == "" {
		defaultValue = "none"
	}

	howto := fmt.Sprintf("Set the option `%s`:\n\n```nix\n%s = true;  # or appropriate value\n```\n\nDescription: %s\nType: %s\nDefault: %s",
		hit.OptionName, hit.OptionName, desc, hit.OptionType, defaultValue)
	if hit.OptionExample != "" {
		howto += fmt.Sprintf("\n\nExample:\n```nix\n%s = %s;\n```", hit.OptionName, hit.OptionExample)
	}

	explanation := fmt.Sprintf("The `%s` option %s.\n\nType: %s\nDefault: %s",
		hit.OptionName, lowerDesc, hit.OptionType, defaultValue)
	if hit.OptionExample != "" {
		explanation += fmt.Sprintf("\n\nExample value: `%s`", hit.OptionExample)
	}

	return []example.FineTuningExample{
		n.newExample(example.SourceSearchAPI,
			fmt.Sprintf("How do I %s in NixOS?", lowerDesc),
			howto,
			map[string]any{
				"type":        "option_howto",
				"option":      hit.OptionName,
				"option_type": hit.OptionType,
			}),
		n.newExample(example.SourceSearchAPI,
			fmt.Sprintf("What is the NixOS option %s for?", hit.OptionName),
			explanation,
			map[string]any{
				"type":   "option_explanation",
				"option": hit.OptionName,
			}),
	}, nil
}

func (n *Normalizer) normalizeFlakeHit(hit scrapers.SearchHit) ([]example.FineTuningExample, error) {
	if hit.FlakeName == "" || hit.FlakeRepo == "" {
		return nil, fmt.Errorf("%w: flake hit missing name or repo", ErrMalformedRecord)
	}

	desc := strings.TrimRight(hit.Description, ".")
	if desc == "" {
		desc = "a Nix flake"
	}

	return []example.FineTuningExample{
		n.newExample(example.SourceSearchAPI,
			fmt.Sprintf("How do I use the %s flake in NixOS?", hit.FlakeName),
			fmt.Sprintf("%s provides: %s\n\nRepository: %s\n\nAdd as input in your `flake.nix`:\n\n```nix\ninputs.%s.url = \"github:%s\";\n```\n\nThen use its outputs in your configuration (e.g., overlays, NixOS modules, packages).",
				hit.FlakeName, desc, hit.FlakeRepo, hit.FlakeName, hit.FlakeRepo),
			map[string]any{
				"type":  "flake_usage",
				"flake": hit.FlakeName,
				"repo":  hit.FlakeRepo,
			}),
		n.newExample(example.SourceSearchAPI,
			fmt.Sprintf("What is the %s flake?", hit.FlakeName),
			fmt.Sprintf("%s\n\nSource: github:%s\n\nThis is a Nix flake that can be used as an input in your flake-based NixOS configuration or development environment.",
				desc, hit.FlakeRepo),
			map[string]any{
				"type":  "flake_description",
				"flake": hit.FlakeName,
			}),
	}, nil
}

// normalizeCurated validates a hand-authored example through the same
// path as scraped records
func (n *Normalizer) normalizeCurated(pair scrapers.CuratedPair) ([]example.FineTuningExample, error) {
	ex := n.newExample(example.SourceManual, pair.Prompt, pair.Completion, pair.Metadata)
	if err := ex.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return []example.FineTuningExample{ex}, nil
}

// cleanOutsideFences runs the prose cleaner over text segments between
// code fences, leaving fenced content byte-for-byte intact
func (n *Normalizer) cleanOutsideFences(text string) string {
	segments := strings.Split(text, "```")

	var b strings.Builder
	for i, segment := range segments {
		if i%2 == 1 {
			// Inside a fence: the language tag and code stay byte-for-byte
			b.WriteString("```")
			b.WriteString(segment)
			b.WriteString("```")
			continue
		}

		cleaned := n.cleaner.Clean(segment)
		if cleaned == "" {
			if i > 0 && i < len(segments)-1 {
				b.WriteString("\n")
			}
			continue
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(cleaned)
		if i < len(segments)-1 {
			b.WriteString("\n\n")
		}
	}
	return strings.TrimSpace(b.String())
}

// fetchurlBlock extracts the first fetchurl { ... } attribute set from a
// package definition. Brace depth is tracked so ${version} interpolations
// inside the block don't terminate the match.
func fetchurlBlock(content string) string {
	for offset := 0; offset < len(content); {
		idx := strings.Index(content[offset:], "fetchurl")
		if idx == -1 {
			return ""
		}
		start := offset + idx
		rest := content[start+len("fetchurl"):]

		i := 0
		for i < len(rest) && (rest[i] == ' ' || rest[i] == '\t' || rest[i] == '\n') {
			i++
		}
		if i >= len(rest) || rest[i] != '{' {
			offset = start + len("fetchurl")
			continue
		}

		depth := 0
		for j := i; j < len(rest); j++ {
			switch rest[j] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return content[start : start+len("fetchurl")+j+1]
				}
			}
		}
		return ""
	}
	return ""
}

// truncateAnswer caps the answer length, closing a fence the cut left open.
// The cut backs up to a rune boundary so the result stays valid UTF-8.
func truncateAnswer(answer string, limit int) string {
	if len(answer) <= limit {
		return answer
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(answer[cut]) {
		cut--
	}
	truncated := answer[:cut]
	if strings.Count(truncated, "```")%2 == 1 {
		truncated += "\n```"
	}
	return truncated
}

func lowerFirst(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToLower(s[:1]) + s[1:]
}
