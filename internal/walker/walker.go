package walker

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/autovista-hq/autovista-harvester/internal/domain"
	"github.com/autovista-hq/autovista-harvester/internal/logger"
	"github.com/autovista-hq/autovista-harvester/pkg/feeds"
)

// Package walker paginates one seed feed at a time, extracting listing stubs
// from each results page and handing the not-yet-seen ones to the caller.

// ErrStop is returned by a page handler to abort the walk (and the whole
// crawl) cleanly, e.g. when the global item ceiling is reached.
var ErrStop = errors.New("walk stopped")

const (
	resultsSelector = `div[data-testid="search-results"]`
	itemSelector    = "article[data-id]"
)

// PageFetcher retrieves a raw page body with the given request headers. The
// fetcher is expected to do its own bounded retrying; an error here means
// retries were exhausted.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

// DedupChecker answers whether a listing id was already committed.
type DedupChecker interface {
	Seen(id string) (bool, error)
}

// PageHandler receives the fresh stubs of one results page.
type PageHandler func(page int, stubs []domain.Stub) error

// Walker drives pagination for seed feeds.
type Walker struct {
	fetcher  PageFetcher
	seen     DedupChecker
	maxPages int
	cooldown time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// New builds a walker. maxPages caps pagination per feed; cooldown is the
// pause before re-fetching a page whose retrieval failed terminally.
func New(fetcher PageFetcher, seen DedupChecker, maxPages int, cooldown time.Duration) *Walker {
	if maxPages <= 0 {
		maxPages = 1
	}
	return &Walker{
		fetcher:  fetcher,
		seen:     seen,
		maxPages: maxPages,
		cooldown: cooldown,
		sleep:    sleepCtx,
	}
}

// Walk paginates the feed from page 1, calling handler for every page that
// yields fresh stubs. It returns nil when the feed ends naturally (results
// container absent, zero items, or page ceiling) and the handler's error when
// the handler aborts. A failed page fetch does not advance the page counter:
// the walk pauses for the cooldown and retries the same page, on the theory
// that an exhausted retry budget means the remote is unhappy with the whole
// crawl, not just this request.
func (w *Walker) Walk(ctx context.Context, feed feeds.Feed, handler PageHandler) error {
	headers := feeds.Headers(feed)

	page := 1
	for page <= w.maxPages {
		if err := ctx.Err(); err != nil {
			return err
		}

		pageURL := feed.PageURL(page)
		body, err := w.fetcher.Fetch(ctx, pageURL, headers)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.WarnObj("page fetch failed; cooling down", "page_error", map[string]any{
				"feed_id": feed.ID,
				"page":    page,
				"error":   err.Error(),
			})
			if err := w.sleep(ctx, w.cooldown); err != nil {
				return err
			}
			continue
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			logger.WarnObj("page parse failed; cooling down", "page_error", map[string]any{
				"feed_id": feed.ID,
				"page":    page,
				"error":   err.Error(),
			})
			if err := w.sleep(ctx, w.cooldown); err != nil {
				return err
			}
			continue
		}

		container := doc.Find(resultsSelector).First()
		if container.Length() == 0 {
			logger.InfoObj("results container absent; feed exhausted", "feed_done", map[string]any{
				"feed_id":   feed.ID,
				"last_page": page,
			})
			return nil
		}

		stubs := extractStubs(container, pageURL)
		if len(stubs) == 0 {
			logger.InfoObj("no listings on page; feed exhausted", "feed_done", map[string]any{
				"feed_id":   feed.ID,
				"last_page": page,
			})
			return nil
		}

		fresh := w.filterSeen(feed.ID, stubs)
		if len(fresh) > 0 {
			if err := handler(page, fresh); err != nil {
				return err
			}
		} else {
			logger.DebugObj("page held no new listings", "page_skip", map[string]any{
				"feed_id": feed.ID,
				"page":    page,
			})
		}

		page++
	}
	return nil
}

// extractStubs collects one stub per listing article in the results container.
func extractStubs(container *goquery.Selection, pageURL string) []domain.Stub {
	var stubs []domain.Stub

	container.Find(itemSelector).Each(func(_ int, article *goquery.Selection) {
		id := strings.TrimSpace(article.AttrOr("data-id", ""))
		if id == "" {
			return
		}

		link := article.Find("a[href]").First()
		if link.Length() == 0 {
			return
		}
		href := strings.TrimSpace(link.AttrOr("href", ""))
		if href == "" {
			return
		}

		description := ""
		if section := article.Find("section").First(); section.Length() > 0 {
			description = strings.TrimSpace(section.Find("p").First().Text())
		}

		stubs = append(stubs, domain.Stub{
			ID:          id,
			URL:         resolveURL(href, pageURL),
			Title:       strings.TrimSpace(link.Text()),
			Description: description,
		})
	})

	return stubs
}

// filterSeen drops stubs whose ids are already in the dedup store. A lookup
// error is logged and the stub kept: refetching is cheaper than losing it.
func (w *Walker) filterSeen(feedID string, stubs []domain.Stub) []domain.Stub {
	if w.seen == nil {
		return stubs
	}

	fresh := make([]domain.Stub, 0, len(stubs))
	for _, stub := range stubs {
		seen, err := w.seen.Seen(stub.ID)
		if err != nil {
			logger.WarnObj("dedup lookup failed", "dedup_error", map[string]any{
				"feed_id":    feedID,
				"listing_id": stub.ID,
				"error":      err.Error(),
			})
			fresh = append(fresh, stub)
			continue
		}
		if !seen {
			fresh = append(fresh, stub)
		}
	}
	return fresh
}

// resolveURL makes href absolute against base when it is relative.
func resolveURL(href, base string) string {
	if href == "" {
		return ""
	}
	hrefURL, err := url.Parse(href)
	if err != nil {
		return href
	}
	if hrefURL.IsAbs() {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(hrefURL).String()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
