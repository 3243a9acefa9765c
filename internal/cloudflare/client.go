// Package cloudflare is a typed client for the slice of the Cloudflare v4
// API that tunctl needs: zone listing, cfd_tunnel lifecycle, DNS records,
// and tunnel credential issuance.
//
// Failures are classified into the shared error taxonomy: rate limits,
// 5xx responses, and network errors are retried with bounded backoff here
// and surface as [domain.ErrRemoteTransient] when retries run out; nothing
// outside this package retries remote calls.
package cloudflare

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/koltyakov/tunctl/internal/domain"
)

const defaultBaseURL = "https://api.cloudflare.com/client/v4"

const (
	requestTimeout = 15 * time.Second
	maxAttempts    = 3
	retryBaseDelay = 500 * time.Millisecond
)

// Client issues authenticated requests against the Cloudflare API.
type Client struct {
	http       *http.Client
	baseURL    string
	token      string
	retryDelay time.Duration
}

// Option adjusts client construction.
type Option func(*Client)

// WithBaseURL overrides the API base URL (tests point it at httptest).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a client authenticated with the given API token.
func New(token string, opts ...Option) *Client {
	c := &Client{
		http:       &http.Client{Timeout: requestTimeout},
		baseURL:    defaultBaseURL,
		token:      token,
		retryDelay: retryBaseDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiResponse is the envelope every v4 endpoint returns.
type apiResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Errors  []apiError      `json:"errors"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func formatAPIErrors(errs []apiError) string {
	if len(errs) == 0 {
		return "unknown API error"
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, ", ")
}

// do executes one API call with retry on transient failures and decodes the
// envelope's result into out (when out is non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		retryable, err := c.doOnce(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %v", domain.ErrRemoteTransient, lastErr)
}

// doOnce performs a single request. The bool reports whether the failure is
// safe to retry.
func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, out any) (bool, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return true, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, fmt.Errorf("%w: %s %s", domain.ErrUnauthorized, method, path)
	case resp.StatusCode == http.StatusTooManyRequests:
		return true, errors.New("rate limited")
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("server error %d", resp.StatusCode)
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return false, fmt.Errorf("%w: unparseable response (%d): %v", domain.ErrRemoteRejected, resp.StatusCode, err)
	}
	if !envelope.Success {
		if resp.StatusCode == http.StatusNotFound {
			return false, fmt.Errorf("%w: %s", domain.ErrNotFound, formatAPIErrors(envelope.Errors))
		}
		return false, fmt.Errorf("%w: %s", domain.ErrRemoteRejected, formatAPIErrors(envelope.Errors))
	}
	if out != nil && len(envelope.Result) > 0 && string(envelope.Result) != "null" {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return false, fmt.Errorf("%w: decode result: %v", domain.ErrRemoteRejected, err)
		}
	}
	return false, nil
}

// zoneResult is the wire shape of a zone entry.
type zoneResult struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Account struct {
		ID string `json:"id"`
	} `json:"account"`
}

// ZoneInfo is a zone with its owning remote account id.
type ZoneInfo struct {
	domain.Zone
	AccountID string
}

// ListZones returns all zones visible to the token.
func (c *Client) ListZones(ctx context.Context) ([]ZoneInfo, error) {
	var result []zoneResult
	if err := c.do(ctx, http.MethodGet, "/zones", nil, &result); err != nil {
		return nil, err
	}
	zones := make([]ZoneInfo, 0, len(result))
	for _, z := range result {
		zones = append(zones, ZoneInfo{
			Zone:      domain.Zone{ID: z.ID, Name: z.Name},
			AccountID: z.Account.ID,
		})
	}
	return zones, nil
}

// remoteTunnel is the wire shape of a cfd_tunnel entry.
type remoteTunnel struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	DeletedAt *string `json:"deleted_at"`
}

// EnsureResult reports how EnsureTunnel satisfied the request.
type EnsureResult struct {
	TunnelID string
	// Created is true when a new remote tunnel was registered; Credentials
	// is populated only in that case (existing tunnels keep their original,
	// locally stored blob).
	Created     bool
	Credentials domain.Credentials
}

// EnsureTunnel returns the remote tunnel with the given name, creating it
// when absent. The call is idempotent: a tunnel that already exists is
// reused, never duplicated, which is what keeps a subdomain stable across
// delete-free restarts.
func (c *Client) EnsureTunnel(ctx context.Context, accountID, name string) (EnsureResult, error) {
	existing, err := c.findTunnel(ctx, accountID, name)
	if err != nil {
		return EnsureResult{}, err
	}
	if existing != "" {
		return EnsureResult{TunnelID: existing}, nil
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return EnsureResult{}, err
	}
	secretB64 := base64.StdEncoding.EncodeToString(secret)

	var created remoteTunnel
	body := map[string]string{"name": name, "tunnel_secret": secretB64}
	path := fmt.Sprintf("/accounts/%s/cfd_tunnel", url.PathEscape(accountID))
	if err := c.do(ctx, http.MethodPost, path, body, &created); err != nil {
		return EnsureResult{}, err
	}
	return EnsureResult{
		TunnelID: created.ID,
		Created:  true,
		Credentials: domain.Credentials{
			AccountTag:   accountID,
			TunnelID:     created.ID,
			TunnelSecret: secretB64,
		},
	}, nil
}

// findTunnel returns the id of an undeleted tunnel with the given name, or
// "" when none exists.
func (c *Client) findTunnel(ctx context.Context, accountID, name string) (string, error) {
	var tunnels []remoteTunnel
	path := fmt.Sprintf("/accounts/%s/cfd_tunnel?is_deleted=false", url.PathEscape(accountID))
	if err := c.do(ctx, http.MethodGet, path, nil, &tunnels); err != nil {
		return "", err
	}
	for _, t := range tunnels {
		if t.Name == name && t.DeletedAt == nil {
			return t.ID, nil
		}
	}
	return "", nil
}

// DeleteTunnel removes the remote tunnel registration. An already-absent
// tunnel is success.
func (c *Client) DeleteTunnel(ctx context.Context, accountID, tunnelID string) error {
	path := fmt.Sprintf("/accounts/%s/cfd_tunnel/%s", url.PathEscape(accountID), url.PathEscape(tunnelID))
	err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}
