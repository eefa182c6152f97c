package crawler

import (
	"context"
	"errors"
	"fmt"

	"github.com/autovista-hq/autovista-harvester/internal/domain"
	"github.com/autovista-hq/autovista-harvester/internal/logger"
	"github.com/autovista-hq/autovista-harvester/internal/walker"
	"github.com/autovista-hq/autovista-harvester/pkg/feeds"
	"github.com/autovista-hq/autovista-harvester/pkg/publishers"
)

// Service coordinates the crawl: it drives the walker across seed feeds,
// fans detail work out to the worker pool, merges stub and detail data, and
// commits batches to the record sink and dedup store together.
type Service struct {
	walker  FeedWalker
	fetcher Fetcher
	records RecordSink
	visited DedupStore
	fanout  EventPublisher
	opts    Options

	total   int
	pending []pendingItem
	seenRun map[string]struct{}
}

// Options bounds a crawl run.
type Options struct {
	Workers       int
	BatchSize     int
	MaxTotalItems int
}

type pendingItem struct {
	feed   feeds.Feed
	id     string
	record domain.Record
}

// NewService wires the crawl orchestrator. fanout may be nil when no
// downstream publishers are configured.
func NewService(w FeedWalker, fetcher Fetcher, records RecordSink, visited DedupStore, fanout EventPublisher, opts Options) *Service {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	return &Service{
		walker:  w,
		fetcher: fetcher,
		records: records,
		visited: visited,
		fanout:  fanout,
		opts:    opts,
		seenRun: make(map[string]struct{}),
	}
}

// Run crawls the feeds in order until all are exhausted or the global item
// ceiling is reached. Committed returns the number of records flushed.
func (s *Service) Run(ctx context.Context, feedList []feeds.Feed) error {
	if s == nil || s.walker == nil || s.fetcher == nil {
		return fmt.Errorf("crawler service is not initialized")
	}
	if len(feedList) == 0 {
		return fmt.Errorf("no feeds configured for crawling")
	}

	for _, feed := range feedList {
		if s.ceilingReached() {
			break
		}

		feed := feed
		err := s.walker.Walk(ctx, feed, func(page int, stubs []domain.Stub) error {
			return s.handlePage(ctx, feed, page, stubs)
		})

		// Flush whatever accumulated for this feed before moving on, so the
		// dedup log and record file stay aligned at a feed boundary.
		if flushErr := s.flush(ctx); flushErr != nil {
			return flushErr
		}

		switch {
		case err == nil:
			logger.InfoObj("feed exhausted", "feed_result", map[string]any{
				"feed_id":         feed.ID,
				"total_committed": s.total,
			})
		case errors.Is(err, walker.ErrStop):
			logger.InfoObj("item ceiling reached; stopping crawl", "crawl_stop", map[string]any{
				"feed_id":         feed.ID,
				"total_committed": s.total,
			})
			return nil
		default:
			return fmt.Errorf("walk feed %s: %w", feed.ID, err)
		}
	}

	return nil
}

// Committed reports the number of records flushed so far in this run.
func (s *Service) Committed() int {
	if s == nil {
		return 0
	}
	return s.total - len(s.pending)
}

// handlePage runs the detail pipeline for one page's fresh stubs and folds
// the merged records into the current batch. The walker filters against the
// durable store, which only learns ids at flush time; seenRun closes that
// window, so a listing shifted onto a later page mid-run is not committed
// twice.
func (s *Service) handlePage(ctx context.Context, feed feeds.Feed, page int, stubs []domain.Stub) error {
	fresh := make([]domain.Stub, 0, len(stubs))
	for _, stub := range stubs {
		if _, dup := s.seenRun[stub.ID]; dup {
			continue
		}
		fresh = append(fresh, stub)
	}

	results := s.fetchDetails(ctx, fresh, feeds.Headers(feed))

	collected := 0
	dropped := 0
	for _, res := range results {
		if res.err != nil {
			// Not marked visited, so the next run naturally retries it.
			dropped++
			logger.WarnObj("detail fetch failed; listing dropped for this run", "detail_error", map[string]any{
				"feed_id":    feed.ID,
				"listing_id": res.stub.ID,
				"url":        res.stub.URL,
				"error":      res.err.Error(),
			})
			continue
		}
		if _, dup := s.seenRun[res.stub.ID]; dup {
			continue
		}
		if s.opts.MaxTotalItems > 0 && s.total >= s.opts.MaxTotalItems {
			// Past the ceiling: neither committed nor marked visited.
			break
		}
		s.seenRun[res.stub.ID] = struct{}{}
		s.pending = append(s.pending, pendingItem{feed: feed, id: res.stub.ID, record: res.record})
		s.total++
		collected++
	}

	if len(s.pending) >= s.opts.BatchSize {
		if err := s.flush(ctx); err != nil {
			return err
		}
	}

	logger.InfoObj("page processed", "page_result", map[string]any{
		"feed_id":   feed.ID,
		"page":      page,
		"collected": collected,
		"dropped":   dropped,
		"total":     s.total,
	})

	if s.ceilingReached() {
		return walker.ErrStop
	}
	return nil
}

// flush appends the pending records to the record sink, then marks their ids
// in the dedup store. Both are append-only, so a crash between the two writes
// leaves at worst a record whose id is unmarked, which a later run rewrites.
func (s *Service) flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}

	records := make([]domain.Record, len(s.pending))
	ids := make([]string, len(s.pending))
	for i, item := range s.pending {
		records[i] = item.record
		ids[i] = item.id
	}

	if err := s.records.Append(records); err != nil {
		return fmt.Errorf("append records: %w", err)
	}
	if err := s.visited.MarkBatch(ids); err != nil {
		return fmt.Errorf("mark visited batch: %w", err)
	}

	s.publishBatch(ctx, s.pending)

	logger.InfoObj("batch committed", "batch_result", map[string]any{
		"batch_size":      len(records),
		"total_committed": s.total,
	})

	s.pending = s.pending[:0]
	return nil
}

// publishBatch fans committed records out to downstream publishers. Delivery
// is best effort: the records are already durable in the sink.
func (s *Service) publishBatch(ctx context.Context, items []pendingItem) {
	if s.fanout == nil {
		return
	}
	for _, item := range items {
		evt := publishers.NewEvent(item.feed.ID, item.feed.Name, item.id, item.record)
		if _, err := s.fanout.Publish(ctx, evt); err != nil {
			logger.WarnObj("event publish failed", "publish_error", map[string]any{
				"feed_id":    item.feed.ID,
				"listing_id": item.id,
				"error":      err.Error(),
			})
		}
	}
}

func (s *Service) ceilingReached() bool {
	return s.opts.MaxTotalItems > 0 && s.total >= s.opts.MaxTotalItems
}
