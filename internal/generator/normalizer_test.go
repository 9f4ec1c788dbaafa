package generator

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demod-llc/nixgen/internal/scrapers"
	"github.com/demod-llc/nixgen/pkg/example"
)

func testNormalizer() *Normalizer {
	n := NewNormalizer()
	n.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return n
}

func TestNormalizePackageFile(t *testing.T) {
	n := testNormalizer()

	content := `{ stdenv, fetchurl }:

stdenv.mkDerivation rec {
  pname = "hello";
  version = "2.12.1";

  src = fetchurl {
    url = "mirror://gnu/hello/hello-${version}.tar.gz";
    sha256 = "086vqwk2wl8zfs47sq2xpjc9k066ilmb8z6dn0q6ymwjzlm196cd";
  };
}
`

	examples, err := n.Normalize(scrapers.PackageFile{
		Name:    "hello",
		Path:    "pkgs/applications/misc/hello/default.nix",
		Content: content,
	})
	require.NoError(t, err)
	require.Len(t, examples, 3)

	def := examples[0]
	assert.Equal(t, "Write a Nix derivation for the package 'hello'", def.Prompt)
	assert.Contains(t, def.Completion, "```nix\n")
	assert.Contains(t, def.Completion, "stdenv.mkDerivation rec {")
	assert.Equal(t, example.SourceNixpkgs, def.Source)
	assert.Equal(t, "package_definition", def.TypeTag())
	assert.Equal(t, "2025-06-01T12:00:00Z", def.Timestamp)
	assert.NotEmpty(t, def.ID)

	version := examples[1]
	assert.Equal(t, "package_version", version.TypeTag())
	assert.Contains(t, version.Completion, `version = "2.12.1";`)

	fetcher := examples[2]
	assert.Equal(t, "fetcher", fetcher.TypeTag())
	assert.Contains(t, fetcher.Completion, "fetchurl {")
	assert.Contains(t, fetcher.Completion, "sha256")
}

func TestNormalizePackageFileWithoutPatterns(t *testing.T) {
	n := testNormalizer()

	examples, err := n.Normalize(scrapers.PackageFile{
		Name:    "trivial",
		Path:    "pkgs/trivial/default.nix",
		Content: "{ pkgs }: pkgs.writeText \"x\" \"y\"",
	})
	require.NoError(t, err)
	require.Len(t, examples, 1)
	assert.Equal(t, "package_definition", examples[0].TypeTag())
}

func TestNormalizePackageFileMalformed(t *testing.T) {
	n := testNormalizer()

	_, err := n.Normalize(scrapers.PackageFile{Name: "", Content: "x"})
	assert.ErrorIs(t, err, ErrMalformedRecord)

	_, err = n.Normalize(scrapers.PackageFile{Name: "x", Content: "   \n"})
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestNormalizeWikiSection(t *testing.T) {
	n := testNormalizer()

	examples, err := n.Normalize(scrapers.WikiSection{
		Topic:   "Flakes",
		Heading: "Enable flakes",
		Parts: []scrapers.ContentPart{
			{Kind: "text", Text: "Flakes are an experimental feature.  Enable   them in your configuration."},
			{Kind: "code", Text: "nix.settings.experimental-features = [ \"nix-command\" \"flakes\" ];\n"},
			{Kind: "text", Text: "Then rebuild."},
			{Kind: "text", Text: "A third paragraph that should be dropped."},
		},
		URL: "https://wiki.nixos.org/wiki/Flakes",
	})
	require.NoError(t, err)
	require.Len(t, examples, 1)

	ex := examples[0]
	assert.Equal(t, "How do I enable flakes in NixOS?", ex.Prompt)
	assert.Contains(t, ex.Completion, "Flakes are an experimental feature. Enable them in your configuration.")
	assert.Contains(t, ex.Completion, "Then rebuild.")
	assert.NotContains(t, ex.Completion, "third paragraph")
	assert.Contains(t, ex.Completion, "```nix\nnix.settings.experimental-features = [ \"nix-command\" \"flakes\" ];\n```")
	assert.Equal(t, example.SourceWiki, ex.Source)
	assert.Equal(t, "wiki_guide", ex.TypeTag())
	assert.Equal(t, "Flakes", ex.Metadata["topic"])
}

func TestNormalizeWikiSectionRequiresProseAndCode(t *testing.T) {
	n := testNormalizer()

	tests := []struct {
		name  string
		parts []scrapers.ContentPart
	}{
		{"prose only", []scrapers.ContentPart{{Kind: "text", Text: "Just words."}}},
		{"code only", []scrapers.ContentPart{{Kind: "code", Text: "pkgs.hello"}}},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(scrapers.WikiSection{Topic: "NixOS", Heading: "Setup", Parts: tt.parts})
			assert.ErrorIs(t, err, ErrMalformedRecord)
		})
	}
}

func TestNormalizeDiscourseTopic(t *testing.T) {
	n := testNormalizer()

	answer := "You need   to enable the service.\n\n```nix\nservices.openssh.enable = true;\n```\n\nThen  rebuild."

	examples, err := n.Normalize(scrapers.DiscourseTopic{
		Title:  "How to enable SSH on NixOS?",
		Answer: answer,
		Tags:   []string{"services", "ssh"},
		URL:    "https://discourse.nixos.org/t/12345",
	})
	require.NoError(t, err)
	require.Len(t, examples, 1)

	ex := examples[0]
	assert.Equal(t, "How to enable SSH on NixOS?", ex.Prompt)
	// Code stays verbatim while prose around it gets cleaned
	assert.Contains(t, ex.Completion, "```nix\nservices.openssh.enable = true;\n```")
	assert.Contains(t, ex.Completion, "You need to enable the service.")
	assert.Contains(t, ex.Completion, "Then rebuild.")
	assert.Equal(t, "qa", ex.TypeTag())
	assert.Equal(t, []string{"services", "ssh"}, ex.Metadata["tags"])
	assert.Equal(t, true, ex.Metadata["has_code"])
}

func TestNormalizeDiscourseTopicWithoutCode(t *testing.T) {
	n := testNormalizer()

	_, err := n.Normalize(scrapers.DiscourseTopic{
		Title:  "General question",
		Answer: "Just prose, no configuration snippet anywhere.",
	})
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestNormalizeDiscourseNilTagsBecomeEmptySlice(t *testing.T) {
	n := testNormalizer()

	examples, err := n.Normalize(scrapers.DiscourseTopic{
		Title:  "Title",
		Answer: "Answer.\n\n```nix\nx = 1;\n```",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{}, examples[0].Metadata["tags"])
}

func TestFetchurlBlock(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "interpolation inside the block",
			content: "src = fetchurl {\n  url = \"mirror://gnu/hello/hello-${version}.tar.gz\";\n  sha256 = \"abc\";\n};",
			want:    "fetchurl {\n  url = \"mirror://gnu/hello/hello-${version}.tar.gz\";\n  sha256 = \"abc\";\n}",
		},
		{
			name:    "plain block",
			content: "src = fetchurl { url = \"https://example.com/a.tar.gz\"; sha256 = \"abc\"; };",
			want:    "fetchurl { url = \"https://example.com/a.tar.gz\"; sha256 = \"abc\"; }",
		},
		{
			name:    "mention before the real block",
			content: "# fetchurl fetches sources\nsrc = fetchurl { sha256 = \"abc\"; };",
			want:    "fetchurl { sha256 = \"abc\"; }",
		},
		{
			name:    "no block",
			content: "src = fetchFromGitHub { owner = \"NixOS\"; };",
			want:    "",
		},
		{
			name:    "unclosed block",
			content: "src = fetchurl {\n  url = \"https://example.com\";",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fetchurlBlock(tt.content))
		})
	}
}

func TestNormalizePackageFetcherKeepsFullBlock(t *testing.T) {
	n := testNormalizer()

	examples, err := n.Normalize(scrapers.PackageFile{
		Name: "hello",
		Path: "pkgs/applications/misc/hello/default.nix",
		Content: "{ stdenv, fetchurl }:\n\nstdenv.mkDerivation rec {\n  pname = \"hello\";\n" +
			"  src = fetchurl {\n    url = \"mirror://gnu/hello/hello-${version}.tar.gz\";\n" +
			"    sha256 = \"086vqwk2wl8zfs47sq2xpjc9k066ilmb8z6dn0q6ymwjzlm196cd\";\n  };\n}\n",
	})
	require.NoError(t, err)

	var fetcher string
	for _, ex := range examples {
		if ex.TypeTag() == "fetcher" {
			fetcher = ex.Completion
		}
	}
	require.NotEmpty(t, fetcher)
	assert.Contains(t, fetcher, "${version}.tar.gz")
	assert.Contains(t, fetcher, "sha256 = \"086vqwk2wl8zfs47sq2xpjc9k066ilmb8z6dn0q6ymwjzlm196cd\";")
}

func TestTruncateAnswerRuneBoundary(t *testing.T) {
	// A multi-byte rune straddling the byte limit must not be torn
	answer := strings.Repeat("a", maxAnswerLength-1) + "é more text past the limit"
	got := truncateAnswer(answer, maxAnswerLength)

	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), maxAnswerLength)
	assert.True(t, strings.HasSuffix(got, "a"), "the partial rune is dropped entirely")
}

func TestTruncateAnswerClosesOpenFence(t *testing.T) {
	long := "intro\n\n```nix\n" + strings.Repeat("x = 1;\n", 300) + "```"
	got := truncateAnswer(long, maxAnswerLength)

	assert.LessOrEqual(t, len(got), maxAnswerLength+4)
	assert.Equal(t, 0, strings.Count(got, "```")%2)
	assert.True(t, strings.HasSuffix(got, "```"))

	short := "short answer"
	assert.Equal(t, short, truncateAnswer(short, maxAnswerLength))
}

func TestNormalizePackageHit(t *testing.T) {
	n := testNormalizer()

	examples, err := n.Normalize(scrapers.SearchHit{
		Kind:        scrapers.SearchKindPackage,
		AttrName:    "firefox",
		PName:       "firefox",
		Version:     "128.0",
		Description: "A web browser.",
	})
	require.NoError(t, err)
	require.Len(t, examples, 3)

	assert.Equal(t, "How do I install firefox on NixOS?", examples[0].Prompt)
	assert.Contains(t, examples[0].Completion, "environment.systemPackages = with pkgs; [ firefox ];")
	assert.Contains(t, examples[0].Completion, "Current version: 128.0")
	assert.Contains(t, examples[0].Completion, "(A web browser)")

	assert.Equal(t, "package_attribute", examples[1].TypeTag())
	assert.Contains(t, examples[1].Completion, "The attribute is `firefox`")

	assert.Equal(t, "quick_config", examples[2].TypeTag())
}

func TestNormalizePackageHitShortNameSkipsQuickConfig(t *testing.T) {
	n := testNormalizer()

	examples, err := n.Normalize(scrapers.SearchHit{
		Kind:        scrapers.SearchKindPackage,
		AttrName:    "bc",
		PName:       "bc",
		Version:     "1.07",
		Description: "Calculator",
	})
	require.NoError(t, err)
	assert.Len(t, examples, 2)
}

func TestNormalizeOptionHit(t *testing.T) {
	n := testNormalizer()

	examples, err := n.Normalize(scrapers.SearchHit{
		Kind:          scrapers.SearchKindOption,
		OptionName:    "services.openssh.enable",
		OptionType:    "boolean",
		OptionDefault: "false",
		OptionExample: "true",
		Description:   "Whether to enable the OpenSSH daemon.",
	})
	require.NoError(t, err)
	require.Len(t, examples, 2)

	howto := examples[0]
	assert.Equal(t, "How do I whether to enable the OpenSSH daemon in NixOS?", howto.Prompt)
	assert.Contains(t, howto.Completion, "Set the option `services.openssh.enable`")
	assert.Contains(t, howto.Completion, "Default: false")
	assert.Contains(t, howto.Completion, "Example:\n```nix\nservices.openssh.enable = true;\n```")
	assert.Equal(t, "option_howto", howto.TypeTag())

	explanation := examples[1]
	assert.Equal(t, "What is the NixOS option services.openssh.enable for?", explanation.Prompt)
	assert.Contains(t, explanation.Completion, "whether to enable the OpenSSH daemon")
	assert.Equal(t, "option_explanation", explanation.TypeTag())
}

func TestNormalizeOptionHitDefaults(t *testing.T) {
	n := testNormalizer()

	examples, err := n.Normalize(scrapers.SearchHit{
		Kind:       scrapers.SearchKindOption,
		OptionName: "boot.loader.timeout",
		OptionType: "int",
	})
	require.NoError(t, err)
	require.Len(t, examples, 2)

	assert.Equal(t, "How do I configure this option in NixOS?", examples[0].Prompt)
	assert.Contains(t, examples[0].Completion, "Default: none")
	assert.NotContains(t, examples[0].Completion, "Example:")
}

func TestNormalizeFlakeHit(t *testing.T) {
	n := testNormalizer()

	examples, err := n.Normalize(scrapers.SearchHit{
		Kind:        scrapers.SearchKindFlake,
		FlakeName:   "home-manager",
		FlakeRepo:   "nix-community/home-manager",
		Description: "Manage a user environment using Nix.",
	})
	require.NoError(t, err)
	require.Len(t, examples, 2)

	usage := examples[0]
	assert.Equal(t, "How do I use the home-manager flake in NixOS?", usage.Prompt)
	assert.Contains(t, usage.Completion, "inputs.home-manager.url = \"github:nix-community/home-manager\";")
	assert.Equal(t, "flake_usage", usage.TypeTag())

	desc := examples[1]
	assert.Equal(t, "What is the home-manager flake?", desc.Prompt)
	assert.Contains(t, desc.Completion, "Manage a user environment using Nix")
	assert.Equal(t, "flake_description", desc.TypeTag())
}

func TestNormalizeFlakeHitEmptyDescription(t *testing.T) {
	n := testNormalizer()

	examples, err := n.Normalize(scrapers.SearchHit{
		Kind:      scrapers.SearchKindFlake,
		FlakeName: "mystery",
		FlakeRepo: "someone/mystery",
	})
	require.NoError(t, err)
	assert.Contains(t, examples[0].Completion, "mystery provides: a Nix flake")
}

func TestNormalizeSearchHitUnknownKind(t *testing.T) {
	n := testNormalizer()

	_, err := n.Normalize(scrapers.SearchHit{Kind: "app"})
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestNormalizeCuratedPair(t *testing.T) {
	n := testNormalizer()

	examples, err := n.Normalize(scrapers.CuratedPair{
		Prompt:     "Create a basic Nix flake template",
		Completion: "Here's one.",
		Metadata:   map[string]any{"type": "template"},
	})
	require.NoError(t, err)
	require.Len(t, examples, 1)
	assert.Equal(t, example.SourceManual, examples[0].Source)
	assert.Equal(t, "template", examples[0].TypeTag())

	_, err = n.Normalize(scrapers.CuratedPair{Prompt: "", Completion: "x"})
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestCleanOutsideFencesPreservesCode(t *testing.T) {
	n := testNormalizer()

	text := "Some  messy   prose!!\n\n```nix\nfoo   =   \"bar\";  # spacing matters\n```\n\nMore    prose??"
	got := n.cleanOutsideFences(text)

	assert.Contains(t, got, "Some messy prose!")
	assert.Contains(t, got, "More prose?")
	assert.Contains(t, got, "foo   =   \"bar\";  # spacing matters")
}
