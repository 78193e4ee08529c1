package news

import (
	"context"
	"sync"
	"time"

	"aitradebot/internal/api"
	"aitradebot/internal/logger"
	"aitradebot/internal/store"
)

// Service caches scraped headlines so every decision cycle does not hit the
// source. A failed refresh keeps serving the previous headlines.
type Service struct {
	scraper *Scraper
	cache   *headlineCache
}

// headlineCache stores the last successful scrape
type headlineCache struct {
	mu        sync.RWMutex
	headlines []string
	fetchedAt time.Time
	ttl       time.Duration
	now       func() time.Time
}

func newHeadlineCache(ttl time.Duration) *headlineCache {
	return &headlineCache{ttl: ttl, now: time.Now}
}

// get returns the cached headlines and whether they are still fresh
func (c *headlineCache) get() ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.fetchedAt.IsZero() {
		return nil, false
	}
	return c.headlines, c.now().Sub(c.fetchedAt) < c.ttl
}

func (c *headlineCache) set(h []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headlines = h
	c.fetchedAt = c.now()
}

func NewService(cfg *store.Config) *Service {
	client := api.NewClient(
		api.WithTimeout(cfg.News.Timeout),
		api.WithHeaders(api.BrowserHeaders()),
	)
	return &Service{
		scraper: NewScraper(client, cfg.News.URL, cfg.News.Selector, cfg.News.Max),
		cache:   newHeadlineCache(cfg.News.CacheTTL),
	}
}

// Headlines satisfies advisory.HeadlineSource.
func (s *Service) Headlines(ctx context.Context) ([]string, error) {
	cached, fresh := s.cache.get()
	if fresh {
		return cached, nil
	}

	h, err := s.scraper.Scrape(ctx)
	if err != nil {
		if cached != nil {
			logger.Warn(ctx, "Headline refresh failed, serving stale headlines", "error", err)
			return cached, nil
		}
		return nil, err
	}
	s.cache.set(h)
	return h, nil
}
