package scrapers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/demod-llc/nixgen/pkg/example"
	"github.com/demod-llc/nixgen/pkg/logging"
	"github.com/demod-llc/nixgen/pkg/ratelimit"
)

const defaultSearchBaseURL = "https://search.nixos.org/backend"

// Curated queries giving broad coverage of the package ecosystem
var packageQueries = []string{
	"firefox", "chromium", "google-chrome", "brave", "librewolf",
	"vim", "neovim", "emacs", "helix", "vscode", "zed",
	"tmux", "zellij", "htop", "btop", "starship",
	"git", "curl", "ripgrep", "fd", "jq", "fzf",
	"python3", "nodejs", "go", "rustc", "zig", "gcc",
	"nginx", "caddy", "apache-httpd", "traefik",
	"steam", "wine", "lutris", "gamescope", "heroic",
	"tailscale", "wireguard", "zerotierone", "openvpn",
	"podman", "docker", "libvirt", "virt-manager", "kubernetes",
}

var optionQueries = []string{
	"services.openssh", "sshd", "ssh",
	"services.nginx", "services.caddy", "services.httpd",
	"services.postgresql", "services.mysql", "services.redis",
	"fonts", "fontconfig",
	"i18n", "time.timeZone", "locale",
	"boot.loader", "grub", "systemd-boot",
	"users.users", "users.mutableUsers", "security.sudo",
	"networking.networkmanager", "networking.firewall",
	"sound", "hardware.pulseaudio", "services.pipewire",
	"services.xserver", "desktopManager", "displayManager", "wayland",
	"virtualisation.podman", "virtualisation.docker", "virtualisation.libvirtd",
	"services.tailscale", "networking.wireguard", "nix.settings",
}

var flakeQueries = []string{
	"flake-utils", "home-manager", "nixvim", "devos",
	"impermanence", "disko", "lanzaboote", "sops-nix",
	"nix-colors", "nur", "agenix", "nixos-hardware",
	"flake-parts", "nixpkgs", "crane", "fenix",
}

// SearchAPIScraper queries the official search.nixos.org backend for
// packages, options, and flakes
type SearchAPIScraper struct {
	baseURL string
	channel string
	client  *http.Client
	limiter *ratelimit.SourceRateLimiter
}

// NewSearchAPIScraper creates a scraper against the official search backend
func NewSearchAPIScraper(limiter *ratelimit.SourceRateLimiter) *SearchAPIScraper {
	return &SearchAPIScraper{
		baseURL: defaultSearchBaseURL,
		channel: "unstable",
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: limiter,
	}
}

// SetBaseURL overrides the backend endpoint
func (s *SearchAPIScraper) SetBaseURL(baseURL string) {
	s.baseURL = strings.TrimRight(baseURL, "/")
}

// Name returns the source tag
func (s *SearchAPIScraper) Name() example.SourceTag {
	return example.SourceSearchAPI
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	// package fields
	AttrName    string `json:"attr_name"`
	PName       string `json:"pname"`
	Version     string `json:"version"`
	Description string `json:"description"`

	// option fields
	Name       string          `json:"name"`
	OptionType string          `json:"type"`
	Default    json.RawMessage `json:"default"`
	Example    json.RawMessage `json:"example"`

	// flake fields
	Repo string `json:"repo"`
}

// Fetch pulls up to limit results per curated query for each of the three
// result kinds. Flake queries keep a smaller bound; the index is shallow.
func (s *SearchAPIScraper) Fetch(ctx context.Context, limit int) ([]Record, error) {
	logger := logging.GetScraperLogger("search_api")

	var records []Record

	kinds := []struct {
		endpoint string
		kind     SearchKind
		queries  []string
		perQuery int
	}{
		{"packages", SearchKindPackage, packageQueries, limit},
		{"options", SearchKindOption, optionQueries, limit},
		{"flakes", SearchKindFlake, flakeQueries, min(limit, 3)},
	}

	failures := 0
	for _, k := range kinds {
		for _, query := range k.queries {
			if err := s.limiter.WaitForSource(ctx, "search_api"); err != nil {
				return records, err
			}

			results, err := s.fetchSearch(ctx, k.endpoint, query)
			if err != nil {
				logger.Warn().Err(err).Str("query", query).Str("kind", k.endpoint).Msg("Search query failed")
				s.limiter.RecordError("search_api")
				failures++
				continue
			}
			s.limiter.RecordSuccess("search_api")

			for i, result := range results {
				if i >= k.perQuery {
					break
				}
				records = append(records, hitFromResult(k.kind, result))
			}
		}
	}

	if len(records) == 0 && failures > 0 {
		return nil, fmt.Errorf("search API unavailable: all %d queries failed", failures)
	}

	logger.Info().Int("records", len(records)).Msg("Search API fetch complete")
	return records, nil
}

func (s *SearchAPIScraper) fetchSearch(ctx context.Context, endpoint, query string) ([]searchResult, error) {
	params := url.Values{}
	params.Set("channel", s.channel)
	params.Set("query", query)

	reqURL := fmt.Sprintf("%s/%s?%s", s.baseURL, endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search %s %q: unexpected status %d", endpoint, query, resp.StatusCode)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("search %s %q: %w", endpoint, query, err)
	}

	return decoded.Results, nil
}

func hitFromResult(kind SearchKind, result searchResult) SearchHit {
	hit := SearchHit{Kind: kind}

	switch kind {
	case SearchKindPackage:
		hit.AttrName = orUnknown(result.AttrName)
		hit.PName = orUnknown(result.PName)
		hit.Version = orUnknown(result.Version)
		hit.Description = result.Description
	case SearchKindOption:
		hit.OptionName = orUnknown(result.Name)
		hit.Description = result.Description
		hit.OptionType = orUnknown(result.OptionType)
		hit.OptionDefault = rawToString(result.Default)
		hit.OptionExample = rawToString(result.Example)
	case SearchKindFlake:
		hit.FlakeName = orUnknown(result.Name)
		hit.Description = result.Description
		hit.FlakeRepo = orUnknown(result.Repo)
	}

	return hit
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

// rawToString renders a JSON value for inclusion in completion text.
// Strings lose their quotes; everything else keeps its JSON form.
func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
