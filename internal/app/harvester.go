package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/autovista-hq/autovista-harvester/internal/config"
	"github.com/autovista-hq/autovista-harvester/internal/crawler"
	"github.com/autovista-hq/autovista-harvester/internal/fetch"
	"github.com/autovista-hq/autovista-harvester/internal/logger"
	"github.com/autovista-hq/autovista-harvester/internal/storage"
	"github.com/autovista-hq/autovista-harvester/internal/walker"
	"github.com/autovista-hq/autovista-harvester/pkg/feeds"
	"github.com/autovista-hq/autovista-harvester/pkg/httpclient"
	"github.com/autovista-hq/autovista-harvester/pkg/publishers"
)

// Harvester represents the crawl runtime. It wires feeds, the retrying
// fetcher, the walker, stores, and optional publishers into one crawl run.
type Harvester struct {
	cfg          *config.Config
	feedReg      *feeds.Registry
	crawlService *crawler.Service
	fanout       *publishers.Fanout
	log          logger.Logger
	visited      storage.Store
	records      *storage.CSVSink
}

// NewHarvester builds a harvester runtime from config files.
func NewHarvester(ctx context.Context, cfg *config.Config, log logger.Logger) (*Harvester, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	feedReg, err := feeds.LoadRegistry(cfg.FeedsFile)
	if err != nil {
		return nil, fmt.Errorf("load feeds registry: %w", err)
	}
	feedList := feedReg.All()
	feedIDs := make([]string, 0, len(feedList))
	for _, f := range feedList {
		feedIDs = append(feedIDs, f.ID)
	}
	log.InfoObj("feeds registry loaded", "feeds_meta", map[string]any{
		"count": len(feedIDs),
		"ids":   feedIDs,
	})

	fanout, err := buildFanout(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	visited, err := storage.NewStore(cfg.StorageType, cfg.VisitedPath)
	if err != nil {
		return nil, fmt.Errorf("init dedup storage: %w", err)
	}
	log.InfoObj("dedup storage initialized", "storage_config", map[string]any{
		"type":      cfg.StorageType,
		"path":      cfg.VisitedPath,
		"known_ids": visited.Len(),
	})

	records, err := storage.NewCSVSink(cfg.RecordsPath)
	if err != nil {
		visited.Close()
		return nil, fmt.Errorf("init record sink: %w", err)
	}

	client := httpclient.NewRestyClient(cfg.RequestTimeout, map[string]string{
		"User-Agent": cfg.UserAgent,
	})
	fetcher := fetch.NewRetrying(client, fetch.Policy{
		MaxAttempts: cfg.RetryAttempts,
		Delay:       cfg.RetryDelay,
		JitterMin:   cfg.RetryJitterMin,
		JitterMax:   cfg.RetryJitterMax,
	}, nil)

	feedWalker := walker.New(fetcher, visited, cfg.MaxPagesPerFeed, cfg.PageCooldown)

	var pub crawler.EventPublisher
	if fanout != nil && fanout.Size() > 0 {
		pub = fanout
	}
	crawlService := crawler.NewService(feedWalker, fetcher, records, visited, pub, crawler.Options{
		Workers:       cfg.WorkerCount,
		BatchSize:     cfg.BatchSize,
		MaxTotalItems: cfg.MaxTotalItems,
	})

	return &Harvester{
		cfg:          cfg,
		feedReg:      feedReg,
		crawlService: crawlService,
		fanout:       fanout,
		log:          log,
		visited:      visited,
		records:      records,
	}, nil
}

// buildFanout constructs the optional downstream publishers. An unset
// publishers file means publishing is disabled; the CSV sink is the primary
// output either way.
func buildFanout(ctx context.Context, cfg *config.Config, log logger.Logger) (*publishers.Fanout, error) {
	if cfg.PublishersFile == "" {
		return nil, nil
	}
	if _, err := os.Stat(cfg.PublishersFile); os.IsNotExist(err) {
		log.WarnObj("publishers file absent; publishing disabled", "publishers_file", cfg.PublishersFile)
		return nil, nil
	}

	publisherReg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabled := publisherReg.Enabled()
	if len(enabled) == 0 {
		log.WarnObj("no publishers enabled; publishing disabled", "publishers_file", cfg.PublishersFile)
		return nil, nil
	}

	pubClients, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}
	fanout := publishers.NewFanout(pubClients)
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count": fanout.Size(),
		"ids":   fanout.IDs(),
	})
	return fanout, nil
}

// Run executes one crawl to natural completion: all feeds exhausted or the
// global item ceiling reached.
func (h *Harvester) Run(ctx context.Context) error {
	if h == nil || h.crawlService == nil {
		return fmt.Errorf("harvester is not initialized")
	}
	defer h.close()

	feedList := h.feedReg.All()
	if len(feedList) == 0 {
		h.log.WarnObj("no feeds configured; nothing to crawl", "feeds_file", h.cfg.FeedsFile)
		return nil
	}

	start := time.Now()
	h.log.InfoObj("crawl started", "crawl_meta", map[string]any{
		"feeds_count": len(feedList),
		"started_at":  start.UTC(),
	})

	if err := h.crawlService.Run(ctx, feedList); err != nil {
		return err
	}

	h.log.InfoObj("crawl completed", "crawl_meta", map[string]any{
		"feeds_count":       len(feedList),
		"records_committed": h.crawlService.Committed(),
		"elapsed_ms":        time.Since(start).Milliseconds(),
	})
	return nil
}

// close releases the storage handles, logging any errors encountered.
func (h *Harvester) close() {
	if h == nil {
		return
	}
	if h.records != nil {
		if err := h.records.Close(); err != nil {
			h.log.ErrorObj("record sink close failed", "error", err)
		}
	}
	if h.visited != nil {
		if err := h.visited.Close(); err != nil {
			h.log.ErrorObj("dedup storage close failed", "error", err)
		}
	}
}
