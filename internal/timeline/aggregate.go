package timeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ppiankov/postnotify/internal/metrics"
)

// AccountSummary is one account's share of an aggregated fetch.
type AccountSummary struct {
	Handle string
	ID     string
	Result Result
}

// Aggregator fetches every configured account, one after another.
type Aggregator struct {
	resolver *Resolver
	fetcher  *Fetcher
	log      zerolog.Logger
}

func NewAggregator(resolver *Resolver, fetcher *Fetcher, log zerolog.Logger) *Aggregator {
	return &Aggregator{resolver: resolver, fetcher: fetcher, log: log}
}

// FetchAll resolves handles once, then fetches each account in input order
// and concatenates the posts. Resolution failures, store failures and
// cancellation abort the run; a failing page request only shortens that
// account's result. On abort the posts and summaries of accounts whose
// watermarks were already committed are returned along with the error.
func (a *Aggregator) FetchAll(ctx context.Context, handles []string) ([]Post, []AccountSummary, error) {
	ids, err := a.resolver.Resolve(ctx, handles)
	if err != nil {
		return nil, nil, err
	}

	var (
		posts     []Post
		summaries = make([]AccountSummary, 0, len(ids))
	)
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return posts, summaries, err
		}

		handle := NormalizeHandle(handles[i])
		res, err := a.fetcher.Fetch(ctx, id)
		if err != nil {
			return posts, summaries, fmt.Errorf("fetch @%s: %w", handle, err)
		}

		observe(handle, res)
		a.log.Info().
			Str("handle", handle).
			Int("posts", len(res.Posts)).
			Int("pages", res.Requests).
			Bool("first_run", res.FirstRun).
			Bool("truncated", res.Truncated).
			Bool("degraded", res.Degraded).
			Msg("fetched account")

		posts = append(posts, res.Posts...)
		summaries = append(summaries, AccountSummary{Handle: handle, ID: id, Result: res})
	}

	return posts, summaries, nil
}

func observe(handle string, res Result) {
	metrics.PostsFetchedTotal.WithLabelValues(handle).Add(float64(len(res.Posts)))
	metrics.FetchPagesTotal.WithLabelValues(handle).Add(float64(res.Requests))

	outcome := "ok"
	switch {
	case res.Degraded:
		outcome = "degraded"
	case res.Truncated:
		outcome = "truncated"
	case res.FirstRun:
		outcome = "first_run"
	}
	metrics.FetchOutcomesTotal.WithLabelValues(outcome).Inc()
}
