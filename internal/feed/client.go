// Package feed is a client for the provider's v2 REST API: batched handle
// lookup, user timelines, single post and single user lookups.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/postnotify/internal/metrics"
)

const (
	DefaultBaseURL = "https://api.twitter.com/2"
	DefaultTimeout = 30 * time.Second
	userAgent      = "postnotify/1.0"
	maxErrorBody   = 512

	timelineExpansions = "author_id,referenced_tweets.id,referenced_tweets.id.author_id"
	postFields         = "author_id,created_at,referenced_tweets"
	userFields         = "name,username"
)

// Endpoint labels for errors and metrics.
const (
	EndpointUsersBy  = "users_by"
	EndpointTimeline = "timeline"
	EndpointPost     = "post"
	EndpointUser     = "user"
)

// ErrNotFound is returned by single-object lookups when the provider has no
// such object (deleted, protected or suspended).
var ErrNotFound = errors.New("not found")

// Client issues authenticated GET requests against the provider.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithBaseURL points the client at another API root.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if strings.TrimSpace(base) != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

// New creates a client authenticated with a bearer token.
func New(token string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("feed: bearer token is required")
	}
	c := &Client{
		baseURL: DefaultBaseURL,
		token:   token,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ResolveHandles looks up all handles in one request. The result is keyed by
// lower-cased username and holds only the handles the provider knows.
func (c *Client) ResolveHandles(ctx context.Context, handles []string) (map[string]User, error) {
	if len(handles) == 0 {
		return map[string]User{}, nil
	}

	q := url.Values{}
	q.Set("usernames", strings.Join(handles, ","))
	q.Set("user.fields", userFields)

	var resp usersResponse
	if err := c.get(ctx, EndpointUsersBy, "/users/by", q, &resp); err != nil {
		return nil, err
	}

	users := make(map[string]User, len(resp.Data))
	for _, u := range resp.Data {
		users[strings.ToLower(u.Username)] = u
	}
	return users, nil
}

// ListRecentPosts returns one page of an account's posts, newest first.
func (c *Client) ListRecentPosts(ctx context.Context, req PageRequest) (Page, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return Page{}, errors.New("feed: user id is required")
	}

	q := url.Values{}
	if req.PageSize > 0 {
		q.Set("max_results", strconv.Itoa(req.PageSize))
	}
	if req.SinceID != "" {
		q.Set("since_id", req.SinceID)
	}
	if req.Cursor != "" {
		q.Set("pagination_token", req.Cursor)
	}
	q.Set("expansions", timelineExpansions)
	q.Set("tweet.fields", postFields)
	q.Set("user.fields", userFields)

	var resp timelineResponse
	path := "/users/" + url.PathEscape(req.UserID) + "/tweets"
	if err := c.get(ctx, EndpointTimeline, path, q, &resp); err != nil {
		return Page{}, err
	}

	return Page{
		Posts:         resp.Data,
		IncludedPosts: resp.Includes.Tweets,
		IncludedUsers: resp.Includes.Users,
		NextCursor:    resp.Meta.NextToken,
		NewestID:      resp.Meta.NewestID,
		ResultCount:   resp.Meta.ResultCount,
	}, nil
}

// GetPost fetches a single post with its author expanded.
func (c *Client) GetPost(ctx context.Context, id string) (PostLookup, error) {
	if strings.TrimSpace(id) == "" {
		return PostLookup{}, errors.New("feed: post id is required")
	}

	q := url.Values{}
	q.Set("expansions", "author_id")
	q.Set("tweet.fields", postFields)
	q.Set("user.fields", userFields)

	var resp postResponse
	if err := c.get(ctx, EndpointPost, "/tweets/"+url.PathEscape(id), q, &resp); err != nil {
		return PostLookup{}, err
	}
	if resp.Data == nil {
		return PostLookup{}, fmt.Errorf("post %s: %w", id, ErrNotFound)
	}

	lookup := PostLookup{Post: *resp.Data}
	for i := range resp.Includes.Users {
		if resp.Includes.Users[i].ID == resp.Data.AuthorID {
			u := resp.Includes.Users[i]
			lookup.Author = &u
			break
		}
	}
	return lookup, nil
}

// GetUser fetches a single account by id.
func (c *Client) GetUser(ctx context.Context, id string) (User, error) {
	if strings.TrimSpace(id) == "" {
		return User{}, errors.New("feed: user id is required")
	}

	q := url.Values{}
	q.Set("user.fields", userFields)

	var resp userResponse
	if err := c.get(ctx, EndpointUser, "/users/"+url.PathEscape(id), q, &resp); err != nil {
		return User{}, err
	}
	if resp.Data == nil {
		return User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return *resp.Data, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.ObserveFeedRequest(endpoint, start, 0)
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.ObserveFeedRequest(endpoint, start, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", endpoint, err)
	}
	return nil
}
