package crawler

import (
	"context"

	"github.com/autovista-hq/autovista-harvester/internal/domain"
	"github.com/autovista-hq/autovista-harvester/internal/walker"
	"github.com/autovista-hq/autovista-harvester/pkg/feeds"
	"github.com/autovista-hq/autovista-harvester/pkg/publishers"
)

// FeedWalker paginates one seed feed, handing fresh stubs to the handler.
type FeedWalker interface {
	Walk(ctx context.Context, feed feeds.Feed, handler walker.PageHandler) error
}

// Fetcher retrieves a detail page body with retries already applied.
type Fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

// RecordSink receives committed batches of normalized records.
type RecordSink interface {
	Append(records []domain.Record) error
}

// DedupStore persists committed listing ids across runs.
type DedupStore interface {
	Seen(id string) (bool, error)
	MarkBatch(ids []string) error
}

// EventPublisher fans committed-record events out to downstream sinks.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}
