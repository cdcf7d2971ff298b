package timeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/ppiankov/postnotify/internal/feed"
	"github.com/ppiankov/postnotify/internal/store"
)

// fakeProvider serves canned responses and records every call.
type fakeProvider struct {
	handles   map[string]feed.User            // lower-cased handle -> user
	timelines map[string]map[string]feed.Page // user id -> cursor -> page
	failures  map[string]error                // "userID|cursor" -> error
	endless   map[string]int                  // user id -> page size of a never-ending timeline
	posts     map[string]feed.PostLookup
	users     map[string]feed.User

	resolveErr error

	resolveCalls [][]string
	pageCalls    []feed.PageRequest
	postCalls    []string
	userCalls    []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		handles:   map[string]feed.User{},
		timelines: map[string]map[string]feed.Page{},
		failures:  map[string]error{},
		endless:   map[string]int{},
		posts:     map[string]feed.PostLookup{},
		users:     map[string]feed.User{},
	}
}

func (f *fakeProvider) addUser(id, name, handle string) feed.User {
	u := feed.User{ID: id, Name: name, Username: handle}
	f.handles[strings.ToLower(handle)] = u
	f.users[id] = u
	return u
}

func (f *fakeProvider) setPage(userID, cursor string, page feed.Page) {
	if f.timelines[userID] == nil {
		f.timelines[userID] = map[string]feed.Page{}
	}
	f.timelines[userID][cursor] = page
}

func (f *fakeProvider) ResolveHandles(_ context.Context, handles []string) (map[string]feed.User, error) {
	f.resolveCalls = append(f.resolveCalls, append([]string(nil), handles...))
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	out := map[string]feed.User{}
	for _, h := range handles {
		if u, ok := f.handles[h]; ok {
			out[h] = u
		}
	}
	return out, nil
}

func (f *fakeProvider) ListRecentPosts(_ context.Context, req feed.PageRequest) (feed.Page, error) {
	f.pageCalls = append(f.pageCalls, req)
	if err, ok := f.failures[req.UserID+"|"+req.Cursor]; ok {
		return feed.Page{}, err
	}
	if size, ok := f.endless[req.UserID]; ok {
		return endlessPage(req.UserID, req.Cursor, size), nil
	}
	page, ok := f.timelines[req.UserID][req.Cursor]
	if !ok {
		return feed.Page{}, nil
	}
	return page, nil
}

func (f *fakeProvider) GetPost(_ context.Context, id string) (feed.PostLookup, error) {
	f.postCalls = append(f.postCalls, id)
	lookup, ok := f.posts[id]
	if !ok {
		return feed.PostLookup{}, fmt.Errorf("post %s: %w", id, feed.ErrNotFound)
	}
	return lookup, nil
}

func (f *fakeProvider) GetUser(_ context.Context, id string) (feed.User, error) {
	f.userCalls = append(f.userCalls, id)
	u, ok := f.users[id]
	if !ok {
		return feed.User{}, fmt.Errorf("user %s: %w", id, feed.ErrNotFound)
	}
	return u, nil
}

// endlessPage simulates an account with an unbounded backlog: page n holds
// ids counting down from 1_000_000 - n*size.
func endlessPage(userID, cursor string, size int) feed.Page {
	n := 0
	if cursor != "" {
		n, _ = strconv.Atoi(cursor)
	}
	top := 1_000_000 - n*size
	var posts []feed.Post
	for i := range size {
		posts = append(posts, feed.Post{ID: strconv.Itoa(top - i), Text: "backlog", AuthorID: userID})
	}
	return feed.Page{
		Posts:      posts,
		NewestID:   posts[0].ID,
		NextCursor: strconv.Itoa(n + 1),
	}
}

// page builds a timeline page of plain posts by author, newest first.
func page(author feed.User, next string, ids ...string) feed.Page {
	p := feed.Page{NextCursor: next, IncludedUsers: []feed.User{author}}
	for _, id := range ids {
		p.Posts = append(p.Posts, feed.Post{ID: id, Text: "post " + id, AuthorID: author.ID})
	}
	if len(ids) > 0 {
		p.NewestID = ids[0]
	}
	return p
}

func openKV(t *testing.T) *store.SQLite {
	t.Helper()
	kv, err := store.OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func setWatermark(t *testing.T, kv store.KV, id, watermark string) {
	t.Helper()
	if err := kv.Put(context.Background(), store.NamespaceWatermarks, id, watermark); err != nil {
		t.Fatalf("seed watermark: %v", err)
	}
}

func getWatermark(t *testing.T, kv store.KV, id string) (string, bool) {
	t.Helper()
	v, ok, err := kv.Get(context.Background(), store.NamespaceWatermarks, id)
	if err != nil {
		t.Fatalf("read watermark: %v", err)
	}
	return v, ok
}

func postIDs(posts []Post) []string {
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	return ids
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
