package walker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/autovista-hq/autovista-harvester/internal/domain"
	"github.com/autovista-hq/autovista-harvester/pkg/feeds"
)

func listingPage(ids ...string) []byte {
	html := `<html><body><div data-testid="search-results">`
	for _, id := range ids {
		html += fmt.Sprintf(
			`<article data-id="%s"><a href="/oferta/%s.html">Car %s</a><section><p>desc %s</p></section></article>`,
			id, id, id, id)
	}
	html += `</div></body></html>`
	return []byte(html)
}

// pagedFetcher serves page bodies keyed by URL, with optional scripted errors.
type pagedFetcher struct {
	pages   map[string][]byte
	fails   map[string]int
	calls   []string
	headers map[string]string
}

func (p *pagedFetcher) Fetch(_ context.Context, url string, headers map[string]string) ([]byte, error) {
	p.calls = append(p.calls, url)
	p.headers = headers
	if p.fails[url] > 0 {
		p.fails[url]--
		return nil, errors.New("fetch exhausted")
	}
	body, ok := p.pages[url]
	if !ok {
		return []byte(`<html><body></body></html>`), nil
	}
	return body, nil
}

type seenSet map[string]bool

func (s seenSet) Seen(id string) (bool, error) { return s[id], nil }

func testFeed() feeds.Feed {
	return feeds.Feed{ID: "f1", Name: "Feed One", BaseURL: "https://cars.example/search", PageParam: "page"}
}

func noSleepWalker(w *Walker) {
	w.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
}

func TestWalkPaginatesUntilContainerAbsent(t *testing.T) {
	feed := testFeed()
	fetcher := &pagedFetcher{pages: map[string][]byte{
		feed.PageURL(1): listingPage("a1", "a2"),
		feed.PageURL(2): listingPage("b1"),
		// page 3 has no results container → natural end
	}}
	w := New(fetcher, seenSet{}, 100, time.Second)
	noSleepWalker(w)

	var got []domain.Stub
	err := w.Walk(context.Background(), feed, func(_ int, stubs []domain.Stub) error {
		got = append(got, stubs...)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 stubs, got %d", len(got))
	}
	if got[0].ID != "a1" || got[0].Title != "Car a1" || got[0].Description != "desc a1" {
		t.Fatalf("unexpected first stub %+v", got[0])
	}
	if got[0].URL != "https://cars.example/oferta/a1.html" {
		t.Fatalf("relative href not resolved: %q", got[0].URL)
	}
}

func TestWalkSkipsSeenStubs(t *testing.T) {
	feed := testFeed()
	fetcher := &pagedFetcher{pages: map[string][]byte{
		feed.PageURL(1): listingPage("a1", "a2", "a3"),
	}}
	w := New(fetcher, seenSet{"a1": true, "a3": true}, 100, time.Second)
	noSleepWalker(w)

	var got []domain.Stub
	if err := w.Walk(context.Background(), feed, func(_ int, stubs []domain.Stub) error {
		got = append(got, stubs...)
		return nil
	}); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a2" {
		t.Fatalf("expected only a2, got %+v", got)
	}
}

func TestWalkRetriesSamePageAfterFetchFailure(t *testing.T) {
	feed := testFeed()
	fetcher := &pagedFetcher{
		pages: map[string][]byte{feed.PageURL(1): listingPage("a1")},
		fails: map[string]int{feed.PageURL(1): 2},
	}
	w := New(fetcher, seenSet{}, 100, time.Millisecond)
	noSleepWalker(w)

	var got []domain.Stub
	if err := w.Walk(context.Background(), feed, func(_ int, stubs []domain.Stub) error {
		got = append(got, stubs...)
		return nil
	}); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected stub after page retries, got %d", len(got))
	}
	// two failures + one success on page 1, then the empty page 2
	wantFirst := feed.PageURL(1)
	for i := 0; i < 3; i++ {
		if fetcher.calls[i] != wantFirst {
			t.Fatalf("call %d = %s, want %s", i, fetcher.calls[i], wantFirst)
		}
	}
}

func TestWalkStopsOnHandlerError(t *testing.T) {
	feed := testFeed()
	fetcher := &pagedFetcher{pages: map[string][]byte{
		feed.PageURL(1): listingPage("a1"),
		feed.PageURL(2): listingPage("b1"),
	}}
	w := New(fetcher, seenSet{}, 100, time.Second)
	noSleepWalker(w)

	err := w.Walk(context.Background(), feed, func(_ int, _ []domain.Stub) error {
		return ErrStop
	})
	if !errors.Is(err, ErrStop) {
		t.Fatalf("expected ErrStop, got %v", err)
	}
	if len(fetcher.calls) != 1 {
		t.Fatalf("walk should stop after the aborting page, got %d fetches", len(fetcher.calls))
	}
}

func TestWalkHonorsPageCeiling(t *testing.T) {
	feed := testFeed()
	fetcher := &pagedFetcher{pages: map[string][]byte{
		feed.PageURL(1): listingPage("a1"),
		feed.PageURL(2): listingPage("b1"),
		feed.PageURL(3): listingPage("c1"),
	}}
	w := New(fetcher, seenSet{}, 2, time.Second)
	noSleepWalker(w)

	var got []domain.Stub
	if err := w.Walk(context.Background(), feed, func(_ int, stubs []domain.Stub) error {
		got = append(got, stubs...)
		return nil
	}); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 stubs under page ceiling, got %d", len(got))
	}
}

func TestWalkEndsOnContainerWithoutItems(t *testing.T) {
	feed := testFeed()
	fetcher := &pagedFetcher{pages: map[string][]byte{
		feed.PageURL(1): []byte(`<html><body><div data-testid="search-results"></div></body></html>`),
	}}
	w := New(fetcher, seenSet{}, 100, time.Second)
	noSleepWalker(w)

	called := false
	if err := w.Walk(context.Background(), feed, func(_ int, _ []domain.Stub) error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if called {
		t.Fatal("handler should not run for an empty results container")
	}
	if len(fetcher.calls) != 1 {
		t.Fatalf("expected walk to end on page 1, got %d fetches", len(fetcher.calls))
	}
}

func TestWalkSendsFeedHeaders(t *testing.T) {
	feed := testFeed()
	feed.Config = map[string]any{"accept_language": "pl-PL,pl;q=0.9"}
	fetcher := &pagedFetcher{pages: map[string][]byte{
		feed.PageURL(1): listingPage("a1"),
	}}
	w := New(fetcher, seenSet{}, 100, time.Second)
	noSleepWalker(w)

	if err := w.Walk(context.Background(), feed, func(_ int, _ []domain.Stub) error {
		return nil
	}); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if fetcher.headers["Accept-Language"] != "pl-PL,pl;q=0.9" {
		t.Fatalf("feed headers not sent with page fetch: %v", fetcher.headers)
	}
}
