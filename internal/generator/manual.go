package generator

import (
	"context"

	"github.com/demod-llc/nixgen/internal/scrapers"
	"github.com/demod-llc/nixgen/pkg/example"
)

const flakeTemplateCompletion = "Here's a basic Nix flake template:\n\n```nix\n{\n  description = \"A basic flake\";\n\n  inputs = {\n    nixpkgs.url = \"github:NixOS/nixpkgs/nixos-unstable\";\n    flake-utils.url = \"github:numtide/flake-utils\";\n  };\n\n  outputs = { self, nixpkgs, flake-utils }:\n    flake-utils.lib.eachDefaultSystem (system:\n      let\n        pkgs = nixpkgs.legacyPackages.${system};\n      in\n      {\n        packages.default = pkgs.hello;\n        \n        devShells.default = pkgs.mkShell {\n          buildInputs = [ pkgs.hello ];\n        };\n      }\n    );\n}\n```"

const overlayCompletion = "Overlays allow you to customize packages. Here's an example:\n\n```nix\nfinal: prev: {\n  # Override an existing package\n  mypackage = prev.mypackage.overrideAttrs (oldAttrs: {\n    version = \"1.2.3\";\n    src = prev.fetchurl {\n      url = \"https://example.com/mypackage-1.2.3.tar.gz\";\n      sha256 = \"...\";\n    };\n  });\n  \n  # Add a new package\n  newpackage = prev.callPackage ./newpackage.nix { };\n}\n```\n\nUse it in your configuration:\n\n```nix\nnixpkgs.overlays = [ (import ./overlay.nix) ];\n```"

// ManualSource yields the hand-curated examples covering patterns the
// scraped sources rarely explain well. It flows through the same
// normalize/dedupe/accumulate path as every scraper so curated entries
// get identical validation.
type ManualSource struct{}

// NewManualSource creates the curated source
func NewManualSource() *ManualSource {
	return &ManualSource{}
}

// Name returns the source tag
func (m *ManualSource) Name() example.SourceTag {
	return example.SourceManual
}

// Fetch returns the curated pairs, bounded by limit
func (m *ManualSource) Fetch(_ context.Context, limit int) ([]scrapers.Record, error) {
	pairs := []scrapers.Record{
		scrapers.CuratedPair{
			Prompt:     "Create a basic Nix flake template",
			Completion: flakeTemplateCompletion,
			Metadata:   map[string]any{"type": "template", "category": "flake"},
		},
		scrapers.CuratedPair{
			Prompt:     "How do I create a Nix overlay to modify a package?",
			Completion: overlayCompletion,
			Metadata:   map[string]any{"type": "guide", "category": "overlay"},
		},
	}

	if limit < len(pairs) {
		pairs = pairs[:limit]
	}
	return pairs, nil
}
