package timeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ppiankov/postnotify/internal/store"
)

// ResolutionError reports handles the provider returned no id for.
type ResolutionError struct {
	Missing []string
}

func (e *ResolutionError) Error() string {
	return "unresolved handles: " + strings.Join(e.Missing, ", ")
}

// NormalizeHandle case-folds a handle and drops a leading "@".
func NormalizeHandle(handle string) string {
	handle = strings.TrimSpace(handle)
	handle = strings.TrimPrefix(handle, "@")
	return strings.ToLower(handle)
}

// Resolver maps handles to stable ids. Learned ids are cached forever.
type Resolver struct {
	kv  store.KV
	api Provider
	log zerolog.Logger
}

func NewResolver(kv store.KV, api Provider, log zerolog.Logger) *Resolver {
	return &Resolver{kv: kv, api: api, log: log}
}

// Resolve returns one id per handle, in input order. Uncached handles are
// looked up in a single batched request; if any of them is unknown the call
// fails with *ResolutionError and nothing is written to the store.
func (r *Resolver) Resolve(ctx context.Context, handles []string) ([]string, error) {
	normalized := make([]string, len(handles))
	known := make(map[string]string, len(handles))
	var uncached []string

	for i, h := range handles {
		n := NormalizeHandle(h)
		if n == "" {
			return nil, fmt.Errorf("handle %d is empty", i+1)
		}
		normalized[i] = n

		if _, ok := known[n]; ok || slices.Contains(uncached, n) {
			continue
		}
		id, ok, err := r.kv.Get(ctx, store.NamespaceHandles, n)
		if err != nil {
			return nil, fmt.Errorf("read handle cache: %w", err)
		}
		if ok {
			known[n] = id
			continue
		}
		uncached = append(uncached, n)
	}

	if len(uncached) > 0 {
		if err := r.lookup(ctx, uncached, known); err != nil {
			return nil, err
		}
	}

	ids := make([]string, len(normalized))
	for i, n := range normalized {
		ids[i] = known[n]
	}
	return ids, nil
}

func (r *Resolver) lookup(ctx context.Context, handles []string, known map[string]string) error {
	r.log.Debug().Strs("handles", handles).Msg("resolving uncached handles")

	users, err := r.api.ResolveHandles(ctx, handles)
	if err != nil {
		return fmt.Errorf("resolve handles: %w", err)
	}

	var missing []string
	for _, h := range handles {
		if u, ok := users[h]; !ok || u.ID == "" {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &ResolutionError{Missing: missing}
	}

	ids := make(map[string]string, len(handles))
	authors := make(map[string]string, len(handles))
	for _, h := range handles {
		u := users[h]
		ids[h] = u.ID
		encoded, err := json.Marshal(Author{ID: u.ID, Name: u.Name, Handle: u.Username})
		if err != nil {
			return fmt.Errorf("encode author %s: %w", u.ID, err)
		}
		authors[u.ID] = string(encoded)
	}

	if err := r.kv.PutMany(ctx, store.NamespaceHandles, ids); err != nil {
		return fmt.Errorf("save handle cache: %w", err)
	}
	if err := r.kv.PutMany(ctx, store.NamespaceAuthors, authors); err != nil {
		return fmt.Errorf("save author cache: %w", err)
	}

	for h, id := range ids {
		known[h] = id
		r.log.Info().Str("handle", h).Str("id", id).Msg("resolved handle")
	}
	return nil
}

// IsResolutionError reports whether err is, or wraps, a *ResolutionError.
func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}
