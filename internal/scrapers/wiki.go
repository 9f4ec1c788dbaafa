package scrapers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/demod-llc/nixgen/pkg/example"
	"github.com/demod-llc/nixgen/pkg/logging"
	"github.com/demod-llc/nixgen/pkg/ratelimit"
)

const defaultWikiBaseURL = "https://wiki.nixos.org"

// WikiScraper fetches NixOS wiki pages and splits them into sections.
// Each h2/h3 heading opens a section; sibling paragraphs and pre blocks
// up to the next heading become its content parts.
type WikiScraper struct {
	baseURL string
	topics  []string
	client  *http.Client
	robots  *RobotCache
	limiter *ratelimit.SourceRateLimiter
}

// NewWikiScraper creates a scraper for the given topic list
func NewWikiScraper(topics []string, limiter *ratelimit.SourceRateLimiter) *WikiScraper {
	return &WikiScraper{
		baseURL: defaultWikiBaseURL,
		topics:  topics,
		client:  &http.Client{Timeout: 30 * time.Second},
		robots:  NewRobotCache(),
		limiter: limiter,
	}
}

// SetBaseURL overrides the wiki host
func (s *WikiScraper) SetBaseURL(baseURL string) {
	s.baseURL = strings.TrimRight(baseURL, "/")
}

// Name returns the source tag
func (s *WikiScraper) Name() example.SourceTag {
	return example.SourceWiki
}

// Fetch scrapes each configured topic page, up to limit sections total
func (s *WikiScraper) Fetch(ctx context.Context, limit int) ([]Record, error) {
	logger := logging.GetScraperLogger("wiki")

	var records []Record
	failures := 0

	for _, topic := range s.topics {
		if len(records) >= limit {
			break
		}

		pageURL := fmt.Sprintf("%s/wiki/%s", s.baseURL, topic)

		if !s.robots.CanFetch(pageURL, userAgent) {
			logger.Warn().Str("topic", topic).Msg("Disallowed by robots.txt, skipping")
			continue
		}

		if err := s.limiter.WaitForSource(ctx, "wiki"); err != nil {
			return records, err
		}

		sections, err := s.scrapePage(ctx, topic, pageURL)
		if err != nil {
			logger.Warn().Err(err).Str("topic", topic).Msg("Failed to scrape wiki page")
			s.limiter.RecordError("wiki")
			failures++
			continue
		}
		s.limiter.RecordSuccess("wiki")

		for _, section := range sections {
			if len(records) >= limit {
				break
			}
			records = append(records, section)
		}
	}

	if len(records) == 0 && failures > 0 {
		return nil, fmt.Errorf("wiki unavailable: all %d pages failed", failures)
	}

	logger.Info().Int("records", len(records)).Msg("Wiki fetch complete")
	return records, nil
}

func (s *WikiScraper) scrapePage(ctx context.Context, topic, pageURL string) ([]WikiSection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse wiki page: %w", err)
	}

	return ParseWikiSections(doc, topic, pageURL), nil
}

// ParseWikiSections extracts h2/h3-delimited sections from a MediaWiki
// content document
func ParseWikiSections(doc *goquery.Document, topic, pageURL string) []WikiSection {
	content := doc.Find("#mw-content-text")
	if content.Length() == 0 {
		return nil
	}

	var sections []WikiSection

	content.Find("h2, h3").Each(func(_ int, heading *goquery.Selection) {
		// MediaWiki wraps heading text in a span; fall back to raw text
		title := strings.TrimSpace(heading.Find(".mw-headline").Text())
		if title == "" {
			title = strings.TrimSpace(heading.Text())
		}
		if title == "" {
			return
		}

		var parts []ContentPart
		for sibling := heading.Next(); sibling.Length() > 0; sibling = sibling.Next() {
			node := goquery.NodeName(sibling)
			if node == "h2" || node == "h3" {
				break
			}
			switch node {
			case "pre":
				parts = append(parts, ContentPart{Kind: "code", Text: sibling.Text()})
			case "p":
				text := strings.TrimSpace(sibling.Text())
				if text != "" {
					parts = append(parts, ContentPart{Kind: "text", Text: text})
				}
			case "div":
				// Syntax-highlighted blocks live inside wrapper divs
				sibling.Find("pre").Each(func(_ int, pre *goquery.Selection) {
					parts = append(parts, ContentPart{Kind: "code", Text: pre.Text()})
				})
			}
		}

		if len(parts) > 0 {
			sections = append(sections, WikiSection{
				Topic:   topic,
				Heading: title,
				Parts:   parts,
				URL:     pageURL,
			})
		}
	})

	return sections
}
