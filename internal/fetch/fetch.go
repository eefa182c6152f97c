package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/autovista-hq/autovista-harvester/pkg/httpclient"
)

// Package fetch wraps the HTTP client with a bounded retry policy. It is the
// single network entry point for both listing pages and detail pages.

// Policy describes how failed fetches are retried: a fixed delay plus a
// uniform random jitter between attempts. There is no exponential backoff;
// the coarse delay is what absorbs rate limiting here.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	JitterMin   time.Duration
	JitterMax   time.Duration
}

// FetchError is the terminal error surfaced after all attempts failed.
type FetchError struct {
	URL        string
	Attempts   int
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s failed after %d attempts: last status %d", e.URL, e.Attempts, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retrying performs GET requests through the shared client, retrying any
// failure (transport error or non-2xx status) per its policy. Each attempt
// is a fresh request; nothing is cached between attempts.
type Retrying struct {
	client  httpclient.Client
	policy  Policy
	headers map[string]string
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewRetrying builds a retrying fetcher around client. headers are sent with
// every request in addition to the client's defaults; per-call headers
// override them key by key.
func NewRetrying(client httpclient.Client, policy Policy, headers map[string]string) *Retrying {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.JitterMax < policy.JitterMin {
		policy.JitterMax = policy.JitterMin
	}
	return &Retrying{
		client:  client,
		policy:  policy,
		headers: headers,
		sleep:   sleepCtx,
	}
}

// Fetch retrieves url, returning the response body on the first 2xx result.
// headers are merged over the fetcher's base headers for this request only.
func (r *Retrying) Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	merged := r.headers
	if len(headers) > 0 {
		merged = make(map[string]string, len(r.headers)+len(headers))
		for k, v := range r.headers {
			merged[k] = v
		}
		for k, v := range headers {
			merged[k] = v
		}
	}

	var lastErr error
	lastStatus := 0

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := r.client.Get(ctx, url, merged)
		switch {
		case err != nil:
			lastErr = err
			lastStatus = 0
		case resp.StatusCode() >= 200 && resp.StatusCode() < 300:
			return resp.Body(), nil
		default:
			lastStatus = resp.StatusCode()
			lastErr = fmt.Errorf("status %d body: %s", resp.StatusCode(), bodySnippet(resp.Body()))
		}

		if attempt == r.policy.MaxAttempts {
			break
		}
		if err := r.sleep(ctx, r.backoff()); err != nil {
			return nil, err
		}
	}

	return nil, &FetchError{URL: url, Attempts: r.policy.MaxAttempts, StatusCode: lastStatus, Err: lastErr}
}

// backoff returns the pause before the next attempt.
func (r *Retrying) backoff() time.Duration {
	d := r.policy.Delay
	if span := r.policy.JitterMax - r.policy.JitterMin; span > 0 {
		d += r.policy.JitterMin + time.Duration(rand.Int63n(int64(span)))
	} else {
		d += r.policy.JitterMin
	}
	return d
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

func bodySnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
