package feed

import (
	"fmt"
	"time"
)

// Reference types as reported in referenced_tweets.
const (
	RefRetweeted = "retweeted"
	RefQuoted    = "quoted"
	RefRepliedTo = "replied_to"
)

// User is an account as returned by the provider.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// Reference points from a post to another post.
type Reference struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Post is a raw post record.
type Post struct {
	ID         string      `json:"id"`
	Text       string      `json:"text"`
	AuthorID   string      `json:"author_id"`
	CreatedAt  time.Time   `json:"created_at"`
	References []Reference `json:"referenced_tweets,omitempty"`
}

// Page is one response of the user timeline endpoint.
type Page struct {
	Posts         []Post
	IncludedPosts []Post
	IncludedUsers []User
	NextCursor    string
	NewestID      string
	ResultCount   int
}

// PageRequest selects one page of an account's posts, newest first.
type PageRequest struct {
	UserID   string
	SinceID  string // only posts newer than this id; empty for no bound
	Cursor   string // continuation token from the previous page
	PageSize int
}

// PostLookup is a single post plus its expanded author.
type PostLookup struct {
	Post   Post
	Author *User
}

// APIError is an entry of the provider's "errors" array. Partial failures,
// such as an unknown username in a batch lookup, come back this way with
// HTTP 200.
type APIError struct {
	Value  string `json:"value"`
	Detail string `json:"detail"`
	Title  string `json:"title"`
	Type   string `json:"type"`
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

type usersResponse struct {
	Data   []User     `json:"data"`
	Errors []APIError `json:"errors"`
}

type userResponse struct {
	Data   *User      `json:"data"`
	Errors []APIError `json:"errors"`
}

type includes struct {
	Tweets []Post `json:"tweets"`
	Users  []User `json:"users"`
}

type timelineMeta struct {
	ResultCount int    `json:"result_count"`
	NewestID    string `json:"newest_id"`
	OldestID    string `json:"oldest_id"`
	NextToken   string `json:"next_token"`
}

type timelineResponse struct {
	Data     []Post       `json:"data"`
	Includes includes     `json:"includes"`
	Meta     timelineMeta `json:"meta"`
	Errors   []APIError   `json:"errors"`
}

type postResponse struct {
	Data     *Post      `json:"data"`
	Includes includes   `json:"includes"`
	Errors   []APIError `json:"errors"`
}
