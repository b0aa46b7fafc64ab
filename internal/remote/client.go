// Package remote implements the HTTP client for the managed habit
// backend (a PostgREST-style REST API over Postgres with row-level
// security).
//
// The backend is consumed as a black box: one idempotent request per
// mutation type, each returning success or a classified failure
// (transport / client error / server error). All writes carry the full
// intended state, so retrying an identical request is always safe.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/lokigod69/sprout/internal/schema"
)

// Config holds client configuration.
type Config struct {
	// BaseURL is the backend root, e.g. https://xyz.supabase.co
	BaseURL string

	// APIKey is sent as the apikey header on every request.
	APIKey string

	// Token is the user's bearer token; row-level security scopes every
	// request to the authenticated user.
	Token string

	// Timeout bounds each request (default: 10s).
	Timeout time.Duration

	// Logger for request activity (default: stderr logger).
	Logger *log.Logger
}

// Client talks to the remote habit backend.
type Client struct {
	baseURL string
	apiKey  string
	token   string
	httpc   *http.Client
	logger  *log.Logger
}

// NewClient creates a client for the remote backend.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		token:   cfg.Token,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		logger:  cfg.Logger,
	}
}

// CreateGoal creates a goal remotely. Upserts on id so a replay of the
// same mutation (crash between remote success and local consume) is
// idempotent instead of a duplicate-key rejection.
func (c *Client) CreateGoal(ctx context.Context, g *schema.Goal) error {
	return c.do(ctx, string(schema.OpCreateGoal), http.MethodPost, "/rest/v1/goals",
		url.Values{"on_conflict": {"id"}}, g)
}

// UpdateGoal replaces a goal's fields remotely (last-writer-wins).
func (c *Client) UpdateGoal(ctx context.Context, id string, g *schema.Goal) error {
	return c.do(ctx, string(schema.OpUpdateGoal), http.MethodPatch, "/rest/v1/goals", eqID(id), g)
}

// DeleteGoal deletes a goal remotely.
func (c *Client) DeleteGoal(ctx context.Context, id string) error {
	return c.do(ctx, string(schema.OpDeleteGoal), http.MethodDelete, "/rest/v1/goals", eqID(id), nil)
}

// CreateSeed creates a seed remotely. Same id-keyed upsert semantics as
// CreateGoal.
func (c *Client) CreateSeed(ctx context.Context, s *schema.Seed) error {
	return c.do(ctx, string(schema.OpCreateSeed), http.MethodPost, "/rest/v1/seeds",
		url.Values{"on_conflict": {"id"}}, s)
}

// UpdateSeed replaces a seed's fields remotely (last-writer-wins).
func (c *Client) UpdateSeed(ctx context.Context, id string, s *schema.Seed) error {
	return c.do(ctx, string(schema.OpUpdateSeed), http.MethodPatch, "/rest/v1/seeds", eqID(id), s)
}

// DeleteSeed deletes a seed remotely.
func (c *Client) DeleteSeed(ctx context.Context, id string) error {
	return c.do(ctx, string(schema.OpDeleteSeed), http.MethodDelete, "/rest/v1/seeds", eqID(id), nil)
}

// LogDone records a completed seed for a date. Upserts on seed+date so a
// replay of the same mutation is idempotent.
func (c *Client) LogDone(ctx context.Context, l *schema.DailyLog) error {
	return c.do(ctx, string(schema.OpLogDone), http.MethodPost, "/rest/v1/daily_logs",
		url.Values{"on_conflict": {"seed_id,date"}}, l)
}

// LogSkip records a skipped seed for a date. Same upsert semantics as LogDone.
func (c *Client) LogSkip(ctx context.Context, l *schema.DailyLog) error {
	return c.do(ctx, string(schema.OpLogSkip), http.MethodPost, "/rest/v1/daily_logs",
		url.Values{"on_conflict": {"seed_id,date"}}, l)
}

// UpdateIntegration upserts integration state keyed by provider.
func (c *Client) UpdateIntegration(ctx context.Context, i *schema.IntegrationState) error {
	return c.do(ctx, string(schema.OpUpdateIntegration), http.MethodPost, "/rest/v1/integration_state",
		url.Values{"on_conflict": {"provider"}}, i)
}

// Ping checks backend reachability without touching any table.
// Used by the connectivity probe.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/rest/v1/", nil)
	if err != nil {
		return fmt.Errorf("failed to build ping request: %w", err)
	}
	c.setHeaders(req, false)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &Error{Kind: KindTransport, Op: "ping", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return &Error{Kind: KindServer, Op: "ping", StatusCode: resp.StatusCode}
	}
	return nil
}

// do issues one request and classifies the outcome.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s body: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	c.setHeaders(req, body != nil)
	if query.Has("on_conflict") {
		// Upsert: replay of the same payload merges instead of conflicting.
		req.Header.Set("Prefer", "resolution=merge-duplicates")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	excerpt := readExcerpt(resp.Body)
	kind := KindServer
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		kind = KindClient
	}

	c.logger.Printf("%s failed: status=%d kind=%s", op, resp.StatusCode, kind)
	return &Error{Kind: kind, Op: op, StatusCode: resp.StatusCode, Message: excerpt}
}

func (c *Client) setHeaders(req *http.Request, hasBody bool) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.token)
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
}

// eqID builds the PostgREST row filter for one record.
func eqID(id string) url.Values {
	return url.Values{"id": {"eq." + id}}
}

// readExcerpt reads up to 512 bytes of an error body for diagnostics.
func readExcerpt(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
