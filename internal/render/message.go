// Package render turns fetched posts into notification text.
package render

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ppiankov/postnotify/internal/timeline"
)

// DefaultWebURL is the public site posts link to.
const DefaultWebURL = "https://x.com"

// Message is one notification: a title, a body and an optional link.
type Message struct {
	Title     string
	Body      string
	URL       string
	PostID    string
	Author    string
	CreatedAt time.Time
}

// Messages renders posts in order.
func Messages(posts []timeline.Post, webURL string) []Message {
	out := make([]Message, 0, len(posts))
	for _, p := range posts {
		out = append(out, Build(p, webURL))
	}
	return out
}

// Build renders a single post.
func Build(p timeline.Post, webURL string) Message {
	return Message{
		Title:     Title(p),
		Body:      Body(p),
		URL:       PostURL(webURL, p.AuthorHandle, p.ID),
		PostID:    p.ID,
		Author:    p.AuthorHandle,
		CreatedAt: p.CreatedAt,
	}
}

// Title is "<name> posted", or "<name> <verb> <name>'s post" for a linked post.
func Title(p timeline.Post) string {
	name := displayName(p)
	if p.Link == nil {
		return name + " posted"
	}
	if p.Link.Post == nil {
		return fmt.Sprintf("%s %s a post", name, verb(p.Link.Kind))
	}
	return fmt.Sprintf("%s %s %s's post", name, verb(p.Link.Kind), displayName(*p.Link.Post))
}

// Body is the post's own content, followed by the linked post framed by its
// author's handle. A post without content shows only the linked post, with
// the bare handle; under commentary the handle carries an "@".
func Body(p timeline.Post) string {
	content := ""
	if p.Content != nil {
		content = *p.Content
	}
	if p.Link == nil {
		return content
	}

	lp := p.Link.Post
	if content == "" {
		if lp == nil {
			return "(post unavailable)"
		}
		return quoteLinked(handleOrID(*lp), *lp)
	}

	linked := "(post unavailable)"
	if lp != nil {
		linked = quoteLinked("@"+handleOrID(*lp), *lp)
	}
	return fmt.Sprintf("%s\n\n%s:\n%s", content, strings.ToUpper(p.Link.Kind.String()), linked)
}

func quoteLinked(who string, lp timeline.Post) string {
	text := ""
	if lp.Content != nil {
		text = *lp.Content
	}
	return fmt.Sprintf("%s: \"%s\"", who, text)
}

// PostURL is the public link to a post.
func PostURL(webURL, handle, id string) string {
	if id == "" {
		return ""
	}
	if webURL == "" {
		webURL = DefaultWebURL
	}
	if handle == "" {
		handle = "i/web"
	}
	return strings.TrimRight(webURL, "/") + "/" + handle + "/status/" + id
}

// Truncate shortens s to at most limit runes, marking the cut with an ellipsis.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}

func verb(k timeline.LinkKind) string {
	switch k {
	case timeline.LinkRepost:
		return "reposted"
	case timeline.LinkQuote:
		return "quoted"
	case timeline.LinkReply:
		return "replied to"
	default:
		return "linked"
	}
}

// displayName falls back to the handle, then the id, when the author could
// not be looked up.
func displayName(p timeline.Post) string {
	if p.AuthorName != "" {
		return p.AuthorName
	}
	if p.AuthorHandle != "" {
		return "@" + p.AuthorHandle
	}
	if p.AuthorID != "" {
		return "user " + p.AuthorID
	}
	return "someone"
}

func handleOrID(p timeline.Post) string {
	if p.AuthorHandle != "" {
		return p.AuthorHandle
	}
	return p.AuthorID
}
