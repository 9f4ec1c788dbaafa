package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/demod-llc/nixgen/internal/generator"
	"github.com/demod-llc/nixgen/pkg/logging"
	"github.com/demod-llc/nixgen/pkg/pipeline"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	// Optional .env for GITHUB_TOKEN; missing file is fine
	godotenv.Load()

	app := &cli.App{
		Name:    "nixgen",
		Usage:   "Generate Nix/NixOS fine-tuning datasets from ecosystem sources",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "nix_training_data.jsonl", Usage: "JSONL output path"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "openai", Usage: "Export format: openai|anthropic|generic"},
			&cli.StringFlag{Name: "github-token", Aliases: []string{"g"}, EnvVars: []string{"GITHUB_TOKEN"}, Usage: "GitHub token for the nixpkgs code search API"},
			&cli.IntFlag{Name: "max-packages", Aliases: []string{"p"}, Value: 50, Usage: "Maximum nixpkgs package files to fetch"},
			&cli.IntFlag{Name: "max-discourse", Aliases: []string{"d"}, Value: 30, Usage: "Maximum Discourse topics to fetch"},
			&cli.BoolFlag{Name: "skip-search-api", Usage: "Skip the search.nixos.org source"},
			&cli.BoolFlag{Name: "skip-packages", Usage: "Skip the nixpkgs source"},
			&cli.BoolFlag{Name: "skip-wiki", Usage: "Skip the NixOS wiki source"},
			&cli.BoolFlag{Name: "skip-discourse", Usage: "Skip the Discourse source"},
			&cli.BoolFlag{Name: "search-api-only", Usage: "Fast mode: curated examples plus the search API only"},
			&cli.BoolFlag{Name: "csv", Usage: "Also write a CSV next to the JSONL"},
			&cli.BoolFlag{Name: "stats", Usage: "Print dataset statistics after export"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "Log level: debug|info|warn|error"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := pipeline.DefaultRunConfig()
	cfg.Output = c.String("output")
	cfg.Format = c.String("format")
	cfg.CSV = c.Bool("csv")
	cfg.Stats = c.Bool("stats")
	cfg.SkipSearchAPI = c.Bool("skip-search-api")
	cfg.SkipPackages = c.Bool("skip-packages")
	cfg.SkipWiki = c.Bool("skip-wiki")
	cfg.SkipDiscourse = c.Bool("skip-discourse")
	cfg.SearchAPIOnly = c.Bool("search-api-only")
	cfg.MaxPackages = c.Int("max-packages")
	cfg.MaxDiscourse = c.Int("max-discourse")
	cfg.GitHubToken = c.String("github-token")
	cfg.Logging.Level = c.String("log-level")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logging.SetupLogger(cfg.Logging); err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}

	fmt.Println("🚀 nixgen - Nix Fine-Tuning Dataset Generator")
	fmt.Println("=============================================")
	fmt.Printf("Output:  %s (%s)\n", cfg.Output, cfg.Format)
	if cfg.GitHubToken == "" {
		fmt.Println("⚠️  No GitHub token found, nixpkgs fetching will be limited")
	}
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen := generator.NewGenerator(cfg)
	if err := gen.Run(ctx); err != nil {
		return fmt.Errorf("generation aborted: %w", err)
	}
	if err := gen.Export(); err != nil {
		return err
	}

	stats := gen.Statistics()
	fmt.Printf("✅ Generated %d training examples\n", stats.TotalExamples)
	fmt.Printf("📄 Dataset written to %s\n", cfg.Output)
	if cfg.CSV {
		fmt.Printf("📄 CSV written to %s\n", cfg.CSVPath())
	}

	if cfg.Stats {
		printStats(stats)
	}

	return nil
}

func printStats(stats generator.Stats) {
	fmt.Println()
	fmt.Println("📊 Dataset Statistics")
	fmt.Println("---------------------")
	fmt.Printf("Total examples:        %d\n", stats.TotalExamples)
	fmt.Printf("Avg prompt length:     %d chars\n", stats.AvgPromptLength)
	fmt.Printf("Avg completion length: %d chars\n", stats.AvgCompletionLength)

	fmt.Println("\nBy source:")
	for _, key := range sortedKeys(stats.BySource) {
		fmt.Printf("  %-20s %d\n", key, stats.BySource[key])
	}

	fmt.Println("\nBy type:")
	for _, key := range sortedKeys(stats.ByType) {
		fmt.Printf("  %-20s %d\n", key, stats.ByType[key])
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
