package scrapers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/demod-llc/nixgen/pkg/example"
	"github.com/demod-llc/nixgen/pkg/logging"
	"github.com/demod-llc/nixgen/pkg/ratelimit"
)

const defaultDiscourseBaseURL = "https://discourse.nixos.org"

// DiscourseScraper pulls Q&A pairs from the NixOS Discourse forum: the
// first post of a topic is the question, the second the answer.
type DiscourseScraper struct {
	baseURL string
	client  *http.Client
	limiter *ratelimit.SourceRateLimiter
}

// NewDiscourseScraper creates a scraper against the NixOS forum
func NewDiscourseScraper(limiter *ratelimit.SourceRateLimiter) *DiscourseScraper {
	return &DiscourseScraper{
		baseURL: defaultDiscourseBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: limiter,
	}
}

// SetBaseURL overrides the forum host
func (s *DiscourseScraper) SetBaseURL(baseURL string) {
	s.baseURL = strings.TrimRight(baseURL, "/")
}

// Name returns the source tag
func (s *DiscourseScraper) Name() example.SourceTag {
	return example.SourceDiscourse
}

type latestResponse struct {
	TopicList struct {
		Topics []topicSummary `json:"topics"`
	} `json:"topic_list"`
}

type topicSummary struct {
	ID    int      `json:"id"`
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

type topicResponse struct {
	PostStream struct {
		Posts []struct {
			Cooked string `json:"cooked"`
		} `json:"posts"`
	} `json:"post_stream"`
}

// Fetch returns up to limit Q&A topics from the latest listing
func (s *DiscourseScraper) Fetch(ctx context.Context, limit int) ([]Record, error) {
	logger := logging.GetScraperLogger("discourse")

	if err := s.limiter.WaitForSource(ctx, "discourse"); err != nil {
		return nil, err
	}

	var latest latestResponse
	if err := s.getJSON(ctx, s.baseURL+"/latest.json", &latest); err != nil {
		s.limiter.RecordError("discourse")
		return nil, fmt.Errorf("discourse latest: %w", err)
	}
	s.limiter.RecordSuccess("discourse")

	var records []Record
	for _, topic := range latest.TopicList.Topics {
		if len(records) >= limit {
			break
		}

		if err := s.limiter.WaitForSource(ctx, "discourse"); err != nil {
			return records, err
		}

		var full topicResponse
		topicURL := fmt.Sprintf("%s/t/%d.json", s.baseURL, topic.ID)
		if err := s.getJSON(ctx, topicURL, &full); err != nil {
			logger.Debug().Err(err).Int("topic_id", topic.ID).Msg("Failed to fetch topic")
			s.limiter.RecordError("discourse")
			continue
		}
		s.limiter.RecordSuccess("discourse")

		posts := full.PostStream.Posts
		if len(posts) < 2 {
			// Need both a question and an answer
			continue
		}

		records = append(records, DiscourseTopic{
			Title:    topic.Title,
			Question: StripHTML(posts[0].Cooked),
			Answer:   StripHTML(posts[1].Cooked),
			Tags:     topic.Tags,
			URL:      fmt.Sprintf("%s/t/%d", s.baseURL, topic.ID),
		})
	}

	logger.Info().Int("records", len(records)).Msg("Discourse fetch complete")
	return records, nil
}

func (s *DiscourseScraper) getJSON(ctx context.Context, reqURL string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

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

// StripHTML converts a cooked Discourse post body to plain text, turning
// code blocks into fenced blocks so they survive normalization verbatim.
func StripHTML(cooked string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(cooked))
	if err != nil {
		return cooked
	}

	// Fence code blocks before flattening so they stay distinguishable
	doc.Find("pre > code").Each(func(_ int, code *goquery.Selection) {
		code.SetText("\n```\n" + strings.TrimRight(code.Text(), "\n") + "\n```\n")
	})

	doc.Find("p, li, h1, h2, h3").Each(func(_ int, block *goquery.Selection) {
		block.AppendHtml("\n")
	})

	text := doc.Text()

	// Collapse the blank-line runs flattening leaves behind
	lines := strings.Split(text, "\n")
	var out []string
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if strings.TrimSpace(trimmed) == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, trimmed)
		blank = false
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
