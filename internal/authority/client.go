// Package authority talks to the remote HTTP service that owns the truth
// about likes and connections.
package authority

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/artpar/kith/internal/core"
	"github.com/artpar/kith/internal/interfaces"
)

// DefaultTimeout is the client-wide request deadline.
const DefaultTimeout = 8 * time.Second

// Client is a resty-backed interfaces.Authority.
type Client struct {
	http    *resty.Client
	baseURL string
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(d)
	}
}

// WithToken sends a bearer token with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		if token != "" {
			c.http.SetAuthToken(token)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
		c.http.SetLogger(logger.Sugar())
	}
}

// New creates a client for the authority at baseURL.
func New(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	c := &Client{
		baseURL: baseURL,
		logger:  zap.NewNop(),
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(DefaultTimeout).
			SetHeader("Accept", "application/json"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Origin returns the host the client talks to, used to scope local caches.
func (c *Client) Origin() string {
	return Origin(c.baseURL)
}

// Origin returns the lower-cased host[:port] of rawURL, or rawURL itself
// when it does not parse.
func Origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.ToLower(u.Host)
}

type likeBody struct {
	Liked *bool `json:"liked"`
	Likes *int  `json:"likes"`
}

type statusBody struct {
	Status *string `json:"status"`
}

// TurnOn likes a post or sends a connection request.
func (c *Client) TurnOn(ctx context.Context, kind core.RelationKind, id string) (core.MutationResult, error) {
	return c.mutate(ctx, kind, id, true)
}

// TurnOff unlikes a post or removes a connection.
func (c *Client) TurnOff(ctx context.Context, kind core.RelationKind, id string) (core.MutationResult, error) {
	return c.mutate(ctx, kind, id, false)
}

func (c *Client) mutate(ctx context.Context, kind core.RelationKind, id string, on bool) (core.MutationResult, error) {
	path, err := relationPath(kind)
	if err != nil {
		return core.MutationResult{}, err
	}

	method := http.MethodPost
	if !on {
		method = http.MethodDelete
	}

	body, err := c.do(ctx, method, path, id)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			if res, ok := classify(kind, on, e); ok {
				c.logger.Debug("authority error reclassified",
					zap.String("code", e.Code),
					zap.String("result", res.Kind.String()),
				)
				return res, nil
			}
		}
		return core.MutationResult{}, err
	}

	if kind == core.RelationLiked {
		return decodeLike(body)
	}
	return decodeConnection(body, !on)
}

// Accept accepts an incoming connection request.
func (c *Client) Accept(ctx context.Context, username string) (core.MutationResult, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/connections/{id}/accept", username)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			if res, ok := classify(core.RelationConnected, true, e); ok {
				return res, nil
			}
		}
		return core.MutationResult{}, err
	}

	res, err := decodeConnection(body, true)
	if err != nil {
		return res, err
	}
	if res.Status == core.StatusUnknown {
		res.Status = core.StatusConnected
	}
	return res, nil
}

// FetchRelationState returns the authority's view of one relation. A 404
// means the authority does not report it.
func (c *Client) FetchRelationState(ctx context.Context, kind core.RelationKind, id string) (core.Snapshot, error) {
	path, err := relationPath(kind)
	if err != nil {
		return core.Snapshot{}, err
	}

	body, err := c.do(ctx, http.MethodGet, path, id)
	if err != nil {
		if IsNotFound(err) {
			return core.Snapshot{}, nil
		}
		return core.Snapshot{}, err
	}

	if kind == core.RelationLiked {
		var lb likeBody
		if err := json.Unmarshal(body, &lb); err != nil {
			return core.Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return core.Snapshot{Value: lb.Liked, Count: lb.Likes}, nil
	}

	res, err := decodeConnection(body, false)
	if err != nil {
		return core.Snapshot{}, err
	}
	return core.SearchResult{Status: res.Status}.Snapshot(), nil
}

// Search returns peers matching query in authority order.
func (c *Client) Search(ctx context.Context, query string) ([]core.SearchResult, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		Get("/api/users/search")
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	if resp.IsError() {
		return nil, parseError(resp.StatusCode(), resp.Body())
	}

	var out struct {
		Results []struct {
			ID          json.RawMessage `json:"id"`
			Username    string          `json:"username"`
			DisplayName string          `json:"displayName"`
			Status      string          `json:"status"`
		} `json:"results"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	results := make([]core.SearchResult, 0, len(out.Results))
	for _, r := range out.Results {
		sr := core.SearchResult{
			ID:          rawID(r.ID),
			Username:    r.Username,
			DisplayName: r.DisplayName,
		}
		if r.Status != "" {
			st, err := core.ParseStatus(r.Status)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
			}
			sr.Status = st
		}
		if sr.Key() == "" {
			return nil, fmt.Errorf("%w: search result without id", ErrMalformedResponse)
		}
		results = append(results, sr)
	}
	return results, nil
}

// Feed returns the posts to render.
func (c *Client) Feed(ctx context.Context) ([]core.Post, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/api/feed")
	if err != nil {
		return nil, fmt.Errorf("feed: %w", err)
	}
	if resp.IsError() {
		return nil, parseError(resp.StatusCode(), resp.Body())
	}

	var out struct {
		Posts []core.Post `json:"posts"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return out.Posts, nil
}

func (c *Client) do(ctx context.Context, method, path, id string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, strings.Replace(path, "{id}", id, 1), err)
	}

	c.logger.Debug("authority response",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("id", id),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("elapsed", resp.Time()),
	)

	if resp.IsError() {
		return nil, parseError(resp.StatusCode(), resp.Body())
	}
	return resp.Body(), nil
}

func relationPath(kind core.RelationKind) (string, error) {
	switch kind {
	case core.RelationLiked:
		return "/api/posts/{id}/like", nil
	case core.RelationConnected:
		return "/api/connections/{id}", nil
	default:
		return "", fmt.Errorf("unknown relation %q", kind)
	}
}

func decodeLike(body []byte) (core.MutationResult, error) {
	var lb likeBody
	if err := json.Unmarshal(body, &lb); err != nil {
		return core.MutationResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return core.MutationResult{Kind: core.ResultApplied, Count: lb.Likes}, nil
}

// decodeConnection reads a {"status": ...} body. An empty body is accepted
// when allowEmpty is set (DELETE may answer 204).
func decodeConnection(body []byte, allowEmpty bool) (core.MutationResult, error) {
	res := core.MutationResult{Kind: core.ResultApplied}
	if len(strings.TrimSpace(string(body))) == 0 {
		if allowEmpty {
			return res, nil
		}
		return res, fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}

	var sb statusBody
	if err := json.Unmarshal(body, &sb); err != nil {
		return res, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if sb.Status == nil {
		return res, nil
	}
	st, err := core.ParseStatus(*sb.Status)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	res.Status = st
	if st == core.StatusSelf {
		res.Kind = core.ResultSelf
	}
	return res, nil
}

// rawID accepts both string and numeric ids.
func rawID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

var _ interfaces.Authority = (*Client)(nil)
