// Package gateway implements the remote data gateway client: authenticated
// CRUD against named collections, signed storage URLs, and a realtime
// change-event channel per collection.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// ErrRequestFailed wraps any non-2xx gateway response.
var ErrRequestFailed = errors.New("gateway: request failed")

// Config carries gateway connection settings.
type Config struct {
	BaseURL    string
	APIKey     string
	Token      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Identity is the actor encoded in the gateway access token.
type Identity struct {
	ID    string
	Email string
}

// Client performs authenticated requests against the gateway REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger

	mu        sync.Mutex
	token     string
	listeners map[int]func(*Identity)
	nextSub   int
}

// NewClient constructs a gateway client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("gateway: base url required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		http:      hc,
		logger:    logger,
		token:     cfg.Token,
		listeners: make(map[int]func(*Identity)),
	}, nil
}

// Token returns the current access token.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// SetToken swaps the access token and notifies identity-change listeners.
// An empty token signals sign-out (listeners receive nil).
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	fns := make([]func(*Identity), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	ident, err := c.Identity()
	if err != nil {
		ident = nil
	}
	for _, fn := range fns {
		fn(ident)
	}
}

// OnIdentityChange registers a listener invoked whenever the token is
// replaced. Returns an unsubscribe func.
func (c *Client) OnIdentityChange(fn func(*Identity)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	id := c.nextSub
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Identity decodes the current actor from the access token claims.
// The token signature is the gateway's concern; claims are read unverified.
func (c *Client) Identity() (*Identity, error) {
	token := c.Token()
	if token == "" {
		return nil, nil
	}
	parser := gojwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, gojwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("gateway: parse token: %w", err)
	}
	claims, ok := parsed.Claims.(gojwt.MapClaims)
	if !ok {
		return nil, errors.New("gateway: unexpected token claims")
	}
	ident := &Identity{}
	if sub, ok := claims["sub"].(string); ok {
		ident.ID = sub
	}
	if email, ok := claims["email"].(string); ok {
		ident.Email = email
	}
	if ident.ID == "" {
		return nil, errors.New("gateway: token missing subject")
	}
	return ident, nil
}

// Select fetches all records of a collection matching the filter.
func (c *Client) Select(ctx context.Context, collection string, filter map[string]string) ([]json.RawMessage, error) {
	endpoint := c.collectionURL(collection, "")
	if len(filter) > 0 {
		q := url.Values{}
		for k, v := range filter {
			q.Set(k, v)
		}
		endpoint += "?" + q.Encode()
	}
	var rows []json.RawMessage
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Insert creates a record and returns the server-assigned row.
func (c *Client) Insert(ctx context.Context, collection string, payload any) (json.RawMessage, error) {
	var row json.RawMessage
	if err := c.do(ctx, http.MethodPost, c.collectionURL(collection, ""), payload, &row); err != nil {
		return nil, err
	}
	return row, nil
}

// Update patches a record and returns the server row.
func (c *Client) Update(ctx context.Context, collection, id string, patch any) (json.RawMessage, error) {
	var row json.RawMessage
	if err := c.do(ctx, http.MethodPatch, c.collectionURL(collection, id), patch, &row); err != nil {
		return nil, err
	}
	return row, nil
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	return c.do(ctx, http.MethodDelete, c.collectionURL(collection, id), nil, nil)
}

// Upload stores an object and returns its public URL.
func (c *Client) Upload(ctx context.Context, bucket, path, contentType string, body io.Reader) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/storage/%s/%s", c.baseURL, url.PathEscape(bucket), path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", c.statusError(resp)
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("gateway: decode upload response: %w", err)
	}
	return out.URL, nil
}

// SignedURL returns a time-limited URL for a stored object.
func (c *Client) SignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/storage/%s/%s/sign", c.baseURL, url.PathEscape(bucket), path)
	payload := map[string]any{"expires_in": int(ttl.Seconds())}
	var out struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint, payload, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

func (c *Client) collectionURL(collection, id string) string {
	if id == "" {
		return fmt.Sprintf("%s/v1/collections/%s", c.baseURL, url.PathEscape(collection))
	}
	return fmt.Sprintf("%s/v1/collections/%s/%s", c.baseURL, url.PathEscape(collection), url.PathEscape(id))
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("gateway: encode payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gateway: decode response: %w", err)
	}
	return nil
}

func (c *Client) statusError(resp *http.Response) error {
	var problem struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &problem)
	msg := problem.Detail
	if msg == "" {
		msg = problem.Title
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("%w: %s (%d)", ErrRequestFailed, msg, resp.StatusCode)
}
