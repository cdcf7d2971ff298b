// Package timeline turns an account list into the posts published since the
// previous run: handle resolution, paging with a ceiling, watermark upkeep
// and linked-post reconstruction.
package timeline

import (
	"context"
	"time"

	"github.com/ppiankov/postnotify/internal/feed"
)

// LinkKind is how a post relates to the post it references.
type LinkKind int

const (
	LinkRepost LinkKind = iota + 1
	LinkQuote
	LinkReply
)

func (k LinkKind) String() string {
	switch k {
	case LinkRepost:
		return "repost"
	case LinkQuote:
		return "quote"
	case LinkReply:
		return "reply"
	default:
		return "unknown"
	}
}

// refPriority orders reference types when a post carries several, e.g. a
// reply that also quotes.
var refPriority = []struct {
	ref  string
	kind LinkKind
}{
	{feed.RefRetweeted, LinkRepost},
	{feed.RefQuoted, LinkQuote},
	{feed.RefRepliedTo, LinkReply},
}

// pickReference returns the reference that determines the post's link.
func pickReference(refs []feed.Reference) (feed.Reference, LinkKind, bool) {
	for _, p := range refPriority {
		for _, r := range refs {
			if r.Type == p.ref && r.ID != "" {
				return r, p.kind, true
			}
		}
	}
	return feed.Reference{}, 0, false
}

// Author is the cached identity of a provider user.
type Author struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Handle string `json:"username"`
}

// Post is a post ready for rendering.
type Post struct {
	ID           string
	Content      *string // nil for a pure repost
	AuthorID     string
	AuthorName   string
	AuthorHandle string
	CreatedAt    time.Time
	Link         *Link
}

// Link is a post's reference to another post. Post is nil when the
// referenced post could not be found. A linked post never has a Link itself.
type Link struct {
	Kind LinkKind
	ID   string
	Post *Post
}

// Provider is the subset of the feed API the engine talks to.
type Provider interface {
	ResolveHandles(ctx context.Context, handles []string) (map[string]feed.User, error)
	ListRecentPosts(ctx context.Context, req feed.PageRequest) (feed.Page, error)
	GetPost(ctx context.Context, id string) (feed.PostLookup, error)
	GetUser(ctx context.Context, id string) (feed.User, error)
}

var _ Provider = (*feed.Client)(nil)

func stringPtr(s string) *string {
	return &s
}
