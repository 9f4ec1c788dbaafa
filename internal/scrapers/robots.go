package scrapers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotCache fetches and caches robots.txt per host so scrapers can check
// whether a path is allowed before requesting it
type RobotCache struct {
	robots map[string]*robotstxt.RobotsData
	client *http.Client
}

// NewRobotCache creates an empty robots.txt cache
func NewRobotCache() *RobotCache {
	return &RobotCache{
		robots: make(map[string]*robotstxt.RobotsData),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// CanFetch reports whether userAgent may fetch urlStr. Missing or broken
// robots.txt allows the fetch.
func (rc *RobotCache) CanFetch(urlStr, userAgent string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)

	if robots, exists := rc.robots[baseURL]; exists {
		if robots == nil {
			return true
		}
		return robots.TestAgent(parsedURL.Path, userAgent)
	}

	robotsURL := baseURL + "/robots.txt"
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		rc.robots[baseURL] = nil
		return true
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := rc.client.Do(req)
	if err != nil {
		rc.robots[baseURL] = nil
		return true
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		rc.robots[baseURL] = nil
		return true
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		rc.robots[baseURL] = nil
		return true
	}

	robots, err := robotstxt.FromBytes(body)
	if err != nil {
		rc.robots[baseURL] = nil
		return true
	}

	rc.robots[baseURL] = robots
	return robots.TestAgent(parsedURL.Path, userAgent)
}
