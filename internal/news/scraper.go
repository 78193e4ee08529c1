package news

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"aitradebot/internal/api"
	"aitradebot/internal/logger"

	"github.com/PuerkitoBio/goquery"
)

var scrapeRetry = &api.RetryConfig{MaxAttempts: 2, InitialWait: 200 * time.Millisecond, MaxWait: time.Second}

// Scraper pulls headline text from a single page. HTML pages are read with a
// CSS selector; plain-text pages yield one headline per line.
type Scraper struct {
	client   *api.Client
	url      string
	selector string
	max      int
}

func NewScraper(client *api.Client, url, selector string, max int) *Scraper {
	return &Scraper{client: client, url: url, selector: selector, max: max}
}

func (s *Scraper) Scrape(ctx context.Context) ([]string, error) {
	resp, err := s.client.DoWithRetry(api.NewRequest(ctx, http.MethodGet, s.url), scrapeRetry)
	if err != nil {
		return nil, fmt.Errorf("fetch headlines from %s: %w", s.url, err)
	}

	var out []string
	if isHTML(resp) {
		out, err = s.fromHTML(resp.Body)
		if err != nil {
			return nil, err
		}
	} else {
		out = s.fromText(resp.String())
	}

	logger.Debug(ctx, "Headlines scraped", "url", s.url, "count", len(out))
	return out, nil
}

func isHTML(resp *api.Response) bool {
	if ct := resp.Headers.Get("Content-Type"); ct != "" {
		return strings.Contains(ct, "html")
	}
	return bytes.Contains(resp.Body, []byte("<"))
}

func (s *Scraper) fromHTML(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse headline page: %w", err)
	}
	var out []string
	seen := map[string]bool{}
	doc.Find(s.selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		title := strings.Join(strings.Fields(sel.Text()), " ")
		if title == "" || seen[title] {
			return true
		}
		seen[title] = true
		out = append(out, title)
		return s.max <= 0 || len(out) < s.max
	})
	return out, nil
}

func (s *Scraper) fromText(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if s.max > 0 && len(out) >= s.max {
			break
		}
	}
	return out
}
