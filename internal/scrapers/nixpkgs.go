package scrapers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/demod-llc/nixgen/pkg/example"
	"github.com/demod-llc/nixgen/pkg/logging"
	"github.com/demod-llc/nixgen/pkg/ratelimit"
)

const (
	defaultGitHubAPIURL = "https://api.github.com"
	defaultRawBaseURL   = "https://raw.githubusercontent.com/NixOS/nixpkgs/master/pkgs"
)

// Popular packages fetched when no GitHub token is available
var fallbackPackages = []string{
	"hello", "vim", "git", "python3", "nodejs", "gcc",
	"postgresql", "redis", "nginx", "docker",
}

// Directories tried per package in the unauthenticated fallback
var fallbackCategories = []string{
	"applications/misc", "tools/misc", "development/tools/misc",
}

// NixpkgsScraper fetches package definitions (default.nix files) from the
// nixpkgs repository. With a token it uses the GitHub code search API;
// without one it falls back to fetching a fixed popular-package list from
// raw.githubusercontent.com.
type NixpkgsScraper struct {
	apiURL  string
	rawURL  string
	token   string
	client  *http.Client
	limiter *ratelimit.SourceRateLimiter
}

// NewNixpkgsScraper creates a scraper; token may be empty
func NewNixpkgsScraper(token string, limiter *ratelimit.SourceRateLimiter) *NixpkgsScraper {
	return &NixpkgsScraper{
		apiURL:  defaultGitHubAPIURL,
		rawURL:  defaultRawBaseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: limiter,
	}
}

// SetEndpoints overrides the API and raw endpoints
func (s *NixpkgsScraper) SetEndpoints(apiURL, rawURL string) {
	s.apiURL = strings.TrimRight(apiURL, "/")
	s.rawURL = strings.TrimRight(rawURL, "/")
}

// Name returns the source tag
func (s *NixpkgsScraper) Name() example.SourceTag {
	return example.SourceNixpkgs
}

// Fetch returns up to limit package definition files
func (s *NixpkgsScraper) Fetch(ctx context.Context, limit int) ([]Record, error) {
	if s.token == "" {
		logger := logging.GetScraperLogger("nixpkgs")
		logger.Warn().Msg("No GitHub token provided, using unauthenticated fallback (limited)")
		return s.fetchWithoutAPI(ctx, limit)
	}
	return s.fetchViaCodeSearch(ctx, limit)
}

type codeSearchResponse struct {
	Items []codeSearchItem `json:"items"`
}

type codeSearchItem struct {
	Path string `json:"path"`
	URL  string `json:"url"` // contents API URL for the blob
}

type contentsResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

func (s *NixpkgsScraper) fetchViaCodeSearch(ctx context.Context, limit int) ([]Record, error) {
	logger := logging.GetScraperLogger("nixpkgs")

	query := url.Values{}
	query.Set("q", "repo:NixOS/nixpkgs path:pkgs filename:default.nix")
	query.Set("per_page", fmt.Sprintf("%d", min(limit, 100)))

	searchURL := fmt.Sprintf("%s/search/code?%s", s.apiURL, query.Encode())

	if err := s.limiter.WaitForSource(ctx, "nixpkgs"); err != nil {
		return nil, err
	}

	var search codeSearchResponse
	if err := s.getJSON(ctx, searchURL, &search); err != nil {
		s.limiter.RecordError("nixpkgs")
		return nil, fmt.Errorf("nixpkgs code search: %w", err)
	}
	s.limiter.RecordSuccess("nixpkgs")

	var records []Record
	for _, item := range search.Items {
		if len(records) >= limit {
			break
		}

		if err := s.limiter.WaitForSource(ctx, "nixpkgs"); err != nil {
			return records, err
		}

		content, err := s.fetchBlob(ctx, item.URL)
		if err != nil {
			logger.Warn().Err(err).Str("path", item.Path).Msg("Failed to fetch package file")
			s.limiter.RecordError("nixpkgs")
			continue
		}
		s.limiter.RecordSuccess("nixpkgs")

		records = append(records, PackageFile{
			Name:    path.Base(path.Dir(item.Path)),
			Path:    item.Path,
			Content: content,
		})
	}

	logger.Info().Int("records", len(records)).Msg("Nixpkgs fetch complete")
	return records, nil
}

func (s *NixpkgsScraper) fetchBlob(ctx context.Context, contentsURL string) (string, error) {
	var contents contentsResponse
	if err := s.getJSON(ctx, contentsURL, &contents); err != nil {
		return "", err
	}

	if contents.Encoding != "base64" {
		return contents.Content, nil
	}

	// The contents API wraps base64 at 60 columns
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(contents.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decode blob: %w", err)
	}
	return string(decoded), nil
}

func (s *NixpkgsScraper) getJSON(ctx context.Context, reqURL string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, reqURL)
	}

	return json.NewDecoder(resp.Body).Decode(target)
}

func (s *NixpkgsScraper) fetchWithoutAPI(ctx context.Context, limit int) ([]Record, error) {
	logger := logging.GetScraperLogger("nixpkgs")

	var records []Record
	for _, pkg := range fallbackPackages {
		if len(records) >= limit {
			break
		}

		for _, category := range fallbackCategories {
			if err := s.limiter.WaitForSource(ctx, "nixpkgs_raw"); err != nil {
				return records, err
			}

			relPath := fmt.Sprintf("%s/%s/default.nix", category, pkg)
			content, err := s.fetchRaw(ctx, fmt.Sprintf("%s/%s", s.rawURL, relPath))
			if err != nil {
				continue
			}

			records = append(records, PackageFile{
				Name:    pkg,
				Path:    relPath,
				Content: content,
			})
			break
		}
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("nixpkgs fallback: no package files reachable")
	}

	logger.Info().Int("records", len(records)).Msg("Nixpkgs fallback fetch complete")
	return records, nil
}

func (s *NixpkgsScraper) fetchRaw(ctx context.Context, reqURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
