package timeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ppiankov/postnotify/internal/feed"
	"github.com/ppiankov/postnotify/internal/store"
)

const (
	DefaultPageSize = 100
	DefaultMaxPages = 5
	MinPageSize     = 5
	MaxPageSize     = 100
)

// Options bounds a fetch.
type Options struct {
	// PageSize is the number of posts requested per page.
	PageSize int
	// MaxPages is the ceiling on page requests for one account in one run.
	MaxPages int
	// FirstRunPosts is how many of the newest posts an account's first run
	// surfaces. Zero only establishes the watermark.
	FirstRunPosts int
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.PageSize < MinPageSize {
		o.PageSize = MinPageSize
	}
	if o.PageSize > MaxPageSize {
		o.PageSize = MaxPageSize
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.FirstRunPosts < 0 {
		o.FirstRunPosts = 0
	}
	return o
}

// Result describes one account's fetch.
type Result struct {
	Posts     []Post // newest first
	Watermark string // watermark after the fetch; empty if still unknown
	Requests  int    // page requests issued
	FirstRun  bool   // no watermark existed before this fetch
	Truncated bool   // stopped at MaxPages while more pages were available
	Degraded  bool   // a page request failed and paging ended early
}

// Fetcher retrieves the posts an account published since its watermark.
type Fetcher struct {
	kv      store.KV
	api     Provider
	authors *authorCache
	opts    Options
	log     zerolog.Logger
}

func NewFetcher(kv store.KV, api Provider, opts Options, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		kv:      kv,
		api:     api,
		authors: newAuthorCache(kv, api, log),
		opts:    opts.withDefaults(),
		log:     log,
	}
}

// pageContext indexes a page's side payload.
type pageContext struct {
	posts map[string]feed.Post
	users map[string]feed.User
}

func newPageContext(page feed.Page) *pageContext {
	pc := &pageContext{
		posts: make(map[string]feed.Post, len(page.IncludedPosts)),
		users: make(map[string]feed.User, len(page.IncludedUsers)),
	}
	for _, p := range page.IncludedPosts {
		pc.posts[p.ID] = p
	}
	for _, u := range page.IncludedUsers {
		pc.users[u.ID] = u
	}
	return pc
}

type pagedPost struct {
	raw  feed.Post
	page *pageContext
}

// Fetch walks the account's timeline newest first until the provider runs
// out of pages, the page ceiling is reached or a request fails. Whatever was
// collected is returned and the watermark moves to the newest id seen. Only
// store failures are returned as errors, and then the watermark is unchanged.
func (f *Fetcher) Fetch(ctx context.Context, id string) (Result, error) {
	log := f.log.With().Str("account_id", id).Logger()

	watermark, ok, err := f.kv.Get(ctx, store.NamespaceWatermarks, id)
	if err != nil {
		return Result{}, fmt.Errorf("read watermark: %w", err)
	}

	res := Result{FirstRun: !ok, Watermark: watermark}

	// The newest posts are always on the first page; a first run needs
	// nothing older.
	maxPages := f.opts.MaxPages
	if res.FirstRun {
		maxPages = 1
	}

	var (
		collected []pagedPost
		seen      = make(map[string]struct{})
		newest    = watermark
		cursor    string
	)

	for {
		page, err := f.api.ListRecentPosts(ctx, feed.PageRequest{
			UserID:   id,
			SinceID:  watermark,
			Cursor:   cursor,
			PageSize: f.opts.PageSize,
		})
		res.Requests++
		if err != nil {
			log.Warn().Err(err).Int("page", res.Requests).Msg("page request failed, keeping what was fetched")
			res.Degraded = true
			break
		}

		newest = maxID(newest, page.NewestID)
		pc := newPageContext(page)
		for _, p := range page.Posts {
			if p.ID == "" {
				continue
			}
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
			newest = maxID(newest, p.ID)

			if watermark != "" && CompareIDs(p.ID, watermark) <= 0 {
				continue
			}
			collected = append(collected, pagedPost{raw: p, page: pc})
		}

		if page.NextCursor == "" {
			break
		}
		if res.Requests >= maxPages {
			if !res.FirstRun {
				res.Truncated = true
				log.Warn().Int("pages", res.Requests).Msg("page ceiling reached, older posts skipped")
			}
			break
		}
		cursor = page.NextCursor
	}

	if res.FirstRun {
		collected = collected[:min(f.opts.FirstRunPosts, len(collected))]
	}

	// Posts are built before the watermark moves so a failed build leaves
	// them to the next run.
	res.Posts = make([]Post, 0, len(collected))
	for _, pp := range collected {
		post, err := f.buildPost(ctx, pp)
		if err != nil {
			return Result{}, err
		}
		res.Posts = append(res.Posts, post)
	}

	if newest != "" && newest != watermark {
		if err := f.kv.Put(ctx, store.NamespaceWatermarks, id, newest); err != nil {
			return Result{}, fmt.Errorf("save watermark: %w", err)
		}
		res.Watermark = newest
	}
	if res.FirstRun {
		log.Info().Str("watermark", res.Watermark).Int("surfaced", len(res.Posts)).Msg("first run for account")
	}

	return res, nil
}

func (f *Fetcher) buildPost(ctx context.Context, pp pagedPost) (Post, error) {
	author, err := f.authors.lookup(ctx, pp.raw.AuthorID, pp.page.users)
	if err != nil {
		return Post{}, err
	}

	post := Post{
		ID:           pp.raw.ID,
		Content:      stringPtr(pp.raw.Text),
		AuthorID:     pp.raw.AuthorID,
		AuthorName:   author.Name,
		AuthorHandle: author.Handle,
		CreatedAt:    pp.raw.CreatedAt,
	}

	ref, kind, ok := pickReference(pp.raw.References)
	if !ok {
		return post, nil
	}

	if kind == LinkRepost {
		post.Content = nil
	}
	linked, err := f.linkedPost(ctx, ref.ID, pp.page)
	if err != nil {
		return Post{}, err
	}
	post.Link = &Link{Kind: kind, ID: ref.ID, Post: linked}
	return post, nil
}

// linkedPost finds a referenced post in the page includes, falling back to a
// single-post lookup. A post that cannot be found yields nil so the referring
// post still renders.
func (f *Fetcher) linkedPost(ctx context.Context, id string, pc *pageContext) (*Post, error) {
	raw, ok := pc.posts[id]
	users := pc.users

	if !ok {
		lookup, err := f.api.GetPost(ctx, id)
		if err != nil {
			f.log.Warn().Err(err).Str("post_id", id).Msg("linked post unavailable")
			return nil, nil
		}
		raw = lookup.Post
		if lookup.Author != nil {
			users = map[string]feed.User{lookup.Author.ID: *lookup.Author}
		}
	}

	author, err := f.authors.lookup(ctx, raw.AuthorID, users)
	if err != nil {
		return nil, err
	}

	return &Post{
		ID:           raw.ID,
		Content:      stringPtr(raw.Text),
		AuthorID:     raw.AuthorID,
		AuthorName:   author.Name,
		AuthorHandle: author.Handle,
		CreatedAt:    raw.CreatedAt,
	}, nil
}
