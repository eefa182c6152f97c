package crawler

import (
	"context"
	"sync"

	"github.com/autovista-hq/autovista-harvester/internal/domain"
	"github.com/autovista-hq/autovista-harvester/internal/extract"
)

// detailResult is one finished detail task: a fully merged record or the
// terminal fetch error that kept the stub out of this run.
type detailResult struct {
	stub   domain.Stub
	record domain.Record
	err    error
}

// fetchDetails runs one detail fetch+extract task per stub on a fixed-size
// worker pool and waits for all of them before returning, so batch commits
// always align with a page boundary. Detail tasks may finish in any order.
// headers are the feed's request headers, shared by every task.
func (s *Service) fetchDetails(ctx context.Context, stubs []domain.Stub, headers map[string]string) []detailResult {
	if len(stubs) == 0 {
		return nil
	}

	workers := s.opts.Workers
	if workers > len(stubs) {
		workers = len(stubs)
	}

	jobs := make(chan domain.Stub)
	out := make(chan detailResult, len(stubs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for stub := range jobs {
				out <- s.fetchOne(ctx, stub, headers)
			}
		}()
	}

	for _, stub := range stubs {
		jobs <- stub
	}
	close(jobs)
	wg.Wait()
	close(out)

	results := make([]detailResult, 0, len(stubs))
	for res := range out {
		results = append(results, res)
	}
	return results
}

// fetchOne retrieves and extracts a single detail page, merging the stub's
// listing fields over the normalized attributes. Extraction never fails:
// anything the page does not yield stays an empty field.
func (s *Service) fetchOne(ctx context.Context, stub domain.Stub, headers map[string]string) detailResult {
	body, err := s.fetcher.Fetch(ctx, stub.URL, headers)
	if err != nil {
		return detailResult{stub: stub, err: err}
	}

	record := domain.NewRecord()
	if doc, err := extract.Parse(body); err == nil {
		record.Merge(extract.Normalize(extract.Details(doc)))
	}
	record.Merge(map[string]string{
		"url":         stub.URL,
		"name":        stub.Title,
		"description": stub.Description,
	})

	return detailResult{stub: stub, record: record}
}
