package crawler

import (
	"context"
	"fmt"
	"testing"

	"github.com/autovista-hq/autovista-harvester/internal/domain"
	"github.com/autovista-hq/autovista-harvester/internal/walker"
	"github.com/autovista-hq/autovista-harvester/pkg/feeds"
	"github.com/autovista-hq/autovista-harvester/pkg/publishers"
)

// pagedWalker feeds a fixed page sequence through the handler, mirroring how
// the real walker surfaces ErrStop from the handler.
type pagedWalker struct {
	pages [][]domain.Stub
}

func (w *pagedWalker) Walk(ctx context.Context, feed feeds.Feed, handler walker.PageHandler) error {
	for i, stubs := range w.pages {
		if err := handler(i+1, stubs); err != nil {
			return err
		}
	}
	return nil
}

// stubFetcher serves canned detail bodies and fails the urls listed in fail.
type stubFetcher struct {
	fail    map[string]bool
	headers map[string]string
}

func (f *stubFetcher) Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	f.headers = headers
	if f.fail[url] {
		return nil, fmt.Errorf("fetch %s: giving up after 20 attempts", url)
	}
	return []byte("<html><body></body></html>"), nil
}

// memorySink records each committed batch.
type memorySink struct {
	batches [][]domain.Record
}

func (s *memorySink) Append(records []domain.Record) error {
	batch := make([]domain.Record, len(records))
	copy(batch, records)
	s.batches = append(s.batches, batch)
	return nil
}

// memoryDedup records marked id batches.
type memoryDedup struct {
	marked  map[string]bool
	batches [][]string
}

func newMemoryDedup() *memoryDedup {
	return &memoryDedup{marked: map[string]bool{}}
}

func (d *memoryDedup) Seen(id string) (bool, error) { return d.marked[id], nil }

func (d *memoryDedup) MarkBatch(ids []string) error {
	batch := make([]string, len(ids))
	copy(batch, ids)
	d.batches = append(d.batches, batch)
	for _, id := range ids {
		d.marked[id] = true
	}
	return nil
}

type capturedFanout struct {
	events []publishers.Event
}

func (f *capturedFanout) Publish(ctx context.Context, evt publishers.Event) (int, error) {
	f.events = append(f.events, evt)
	return 1, nil
}

func stubsFor(ids ...string) []domain.Stub {
	stubs := make([]domain.Stub, 0, len(ids))
	for _, id := range ids {
		stubs = append(stubs, domain.Stub{
			ID:    id,
			URL:   "https://cars.example/oferta/" + id + ".html",
			Title: "Listing " + id,
		})
	}
	return stubs
}

func crawlFeed() feeds.Feed {
	return feeds.Feed{ID: "otomoto-pl", Name: "OTOMOTO", BaseURL: "https://cars.example/search", PageParam: "page"}
}

func TestRunCommitsInBatches(t *testing.T) {
	w := &pagedWalker{pages: [][]domain.Stub{
		stubsFor("a1", "a2"),
		stubsFor("a3", "a4"),
		stubsFor("a5", "a6"),
	}}
	sink := &memorySink{}
	dedup := newMemoryDedup()

	svc := NewService(w, &stubFetcher{}, sink, dedup, nil, Options{
		Workers:       2,
		BatchSize:     4,
		MaxTotalItems: 20000,
	})

	if err := svc.Run(context.Background(), []feeds.Feed{crawlFeed()}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(sink.batches) != 2 || len(sink.batches[0]) != 4 || len(sink.batches[1]) != 2 {
		t.Fatalf("expected batches of 4 then 2, got %d batches %v", len(sink.batches), sink.batches)
	}
	if len(dedup.batches) != 2 || len(dedup.marked) != 6 {
		t.Fatalf("expected 6 ids marked across 2 batches, got %v", dedup.batches)
	}
	if svc.Committed() != 6 {
		t.Fatalf("Committed = %d, want 6", svc.Committed())
	}
}

func TestRunDropsFailedDetailWithoutMarking(t *testing.T) {
	w := &pagedWalker{pages: [][]domain.Stub{stubsFor("ok1", "bad", "ok2")}}
	fetcher := &stubFetcher{fail: map[string]bool{
		"https://cars.example/oferta/bad.html": true,
	}}
	sink := &memorySink{}
	dedup := newMemoryDedup()

	svc := NewService(w, fetcher, sink, dedup, nil, Options{Workers: 2, BatchSize: 10})

	if err := svc.Run(context.Background(), []feeds.Feed{crawlFeed()}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if dedup.marked["bad"] {
		t.Fatal("failed listing must not be marked visited")
	}
	if !dedup.marked["ok1"] || !dedup.marked["ok2"] {
		t.Fatal("successful listings must be marked visited")
	}
	if svc.Committed() != 2 {
		t.Fatalf("Committed = %d, want 2", svc.Committed())
	}
	for _, batch := range sink.batches {
		for _, rec := range batch {
			if rec["url"] == "https://cars.example/oferta/bad.html" {
				t.Fatal("failed listing leaked into the record sink")
			}
		}
	}
}

func TestRunStopsAtItemCeiling(t *testing.T) {
	w := &pagedWalker{pages: [][]domain.Stub{
		stubsFor("c1", "c2", "c3", "c4", "c5", "c6"),
		stubsFor("never"),
	}}
	sink := &memorySink{}
	dedup := newMemoryDedup()

	svc := NewService(w, &stubFetcher{}, sink, dedup, nil, Options{
		Workers:       2,
		BatchSize:     100,
		MaxTotalItems: 5,
	})

	if err := svc.Run(context.Background(), []feeds.Feed{crawlFeed()}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if svc.Committed() != 5 {
		t.Fatalf("Committed = %d, want 5", svc.Committed())
	}
	if len(dedup.marked) != 5 {
		t.Fatalf("expected exactly 5 ids marked, got %d", len(dedup.marked))
	}
	if dedup.marked["never"] {
		t.Fatal("walker page past the ceiling must not be processed")
	}
}

func TestRunPublishesCommittedRecords(t *testing.T) {
	w := &pagedWalker{pages: [][]domain.Stub{stubsFor("p1", "p2")}}
	fanout := &capturedFanout{}

	svc := NewService(w, &stubFetcher{}, &memorySink{}, newMemoryDedup(), fanout, Options{
		Workers:   1,
		BatchSize: 2,
	})

	if err := svc.Run(context.Background(), []feeds.Feed{crawlFeed()}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(fanout.events) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(fanout.events))
	}
	evt := fanout.events[0]
	if evt.FeedID != "otomoto-pl" || evt.ListingID != "p1" {
		t.Fatalf("unexpected event %+v", evt)
	}
	if evt.Record["name"] != "Listing p1" {
		t.Fatalf("event record missing merged stub fields: %+v", evt.Record)
	}
}

func TestRunMergesStubFieldsIntoRecord(t *testing.T) {
	w := &pagedWalker{pages: [][]domain.Stub{stubsFor("m1")}}
	sink := &memorySink{}

	svc := NewService(w, &stubFetcher{}, sink, newMemoryDedup(), nil, Options{Workers: 1, BatchSize: 1})

	if err := svc.Run(context.Background(), []feeds.Feed{crawlFeed()}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(sink.batches) != 1 || len(sink.batches[0]) != 1 {
		t.Fatalf("expected one committed record, got %v", sink.batches)
	}
	rec := sink.batches[0][0]
	if rec["url"] != "https://cars.example/oferta/m1.html" || rec["name"] != "Listing m1" {
		t.Fatalf("stub fields not merged: %+v", rec)
	}
	if len(rec) != len(domain.Schema) {
		t.Fatalf("record has %d fields, want full schema of %d", len(rec), len(domain.Schema))
	}
}

func TestRunRequiresFeeds(t *testing.T) {
	svc := NewService(&pagedWalker{}, &stubFetcher{}, &memorySink{}, newMemoryDedup(), nil, Options{})
	if err := svc.Run(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty feed list")
	}
}

func TestRunSendsFeedHeadersWithDetailFetches(t *testing.T) {
	w := &pagedWalker{pages: [][]domain.Stub{stubsFor("h1")}}
	fetcher := &stubFetcher{}
	feed := crawlFeed()
	feed.Config = map[string]any{"accept_language": "pl-PL,pl;q=0.9"}

	svc := NewService(w, fetcher, &memorySink{}, newMemoryDedup(), nil, Options{Workers: 1, BatchSize: 1})

	if err := svc.Run(context.Background(), []feeds.Feed{feed}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fetcher.headers["Accept-Language"] != "pl-PL,pl;q=0.9" {
		t.Fatalf("feed headers not sent with detail fetch: %v", fetcher.headers)
	}
}
