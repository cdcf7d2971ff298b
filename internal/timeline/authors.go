package timeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ppiankov/postnotify/internal/feed"
	"github.com/ppiankov/postnotify/internal/store"
)

// authorCache resolves provider user ids to display identity. Lookups go
// memory, durable store, page includes, then the user endpoint. Entries
// never expire.
type authorCache struct {
	kv  store.KV
	api Provider
	log zerolog.Logger
	mem map[string]Author
}

func newAuthorCache(kv store.KV, api Provider, log zerolog.Logger) *authorCache {
	return &authorCache{kv: kv, api: api, log: log, mem: make(map[string]Author)}
}

// lookup only returns an error for store failures. An author the provider
// cannot describe comes back with just its id set and is not asked for again
// by this cache.
func (c *authorCache) lookup(ctx context.Context, id string, included map[string]feed.User) (Author, error) {
	if id == "" {
		return Author{}, nil
	}
	if a, ok := c.mem[id]; ok {
		return a, nil
	}

	raw, ok, err := c.kv.Get(ctx, store.NamespaceAuthors, id)
	if err != nil {
		return Author{}, fmt.Errorf("read author cache: %w", err)
	}
	if ok {
		var a Author
		if err := json.Unmarshal([]byte(raw), &a); err == nil && a.Handle != "" {
			c.mem[id] = a
			return a, nil
		}
		c.log.Warn().Str("author_id", id).Msg("ignoring unreadable author cache entry")
	}

	u, found := included[id]
	if !found {
		u, err = c.api.GetUser(ctx, id)
		if err != nil {
			c.log.Warn().Err(err).Str("author_id", id).Msg("author lookup failed")
			// Memory only: the next run asks again.
			c.mem[id] = Author{ID: id}
			return c.mem[id], nil
		}
	}

	return c.remember(ctx, Author{ID: id, Name: u.Name, Handle: u.Username})
}

func (c *authorCache) remember(ctx context.Context, a Author) (Author, error) {
	encoded, err := json.Marshal(a)
	if err != nil {
		return Author{}, fmt.Errorf("encode author %s: %w", a.ID, err)
	}
	if err := c.kv.Put(ctx, store.NamespaceAuthors, a.ID, string(encoded)); err != nil {
		return Author{}, fmt.Errorf("save author cache: %w", err)
	}
	c.mem[a.ID] = a
	return a, nil
}
