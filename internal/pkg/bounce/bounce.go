// Package bounce talks to a SendGrid-compatible suppression API. An
// address on the bounce list never receives another confirmation email
// until the owner unblocks it.
package bounce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TravisBrace/formspree/internal/config"
)

// Entry is one suppressed address as the API reports it.
type Entry struct {
	Email   string `json:"email"`
	Reason  string `json:"reason"`
	Status  string `json:"status"`
	Created int64  `json:"created"`
}

type Client struct {
	base   string
	apiKey string
	enable bool
	http   *http.Client
}

func New(cfg config.BounceConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:   strings.TrimRight(cfg.APIBase, "/"),
		apiKey: cfg.APIKey,
		enable: cfg.Enable,
		http:   &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a suppression API is configured at all.
func (c *Client) Enabled() bool {
	return c.enable && c.apiKey != ""
}

// Lookup returns the bounce entry for an address, or nil when the
// address is clean (or no API is configured).
func (c *Client) Lookup(ctx context.Context, email string) (*Entry, error) {
	if !c.Enabled() {
		return nil, nil
	}

	req, err := c.newRequest(ctx, http.MethodGet, email)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bounce lookup request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("bounce lookup status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("bounce lookup decode: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// Delete removes an address from the bounce list.
func (c *Client) Delete(ctx context.Context, email string) error {
	if !c.Enabled() {
		return nil
	}

	req, err := c.newRequest(ctx, http.MethodDelete, email)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bounce delete request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bounce delete status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, email string) (*http.Request, error) {
	endpoint := fmt.Sprintf("%s/suppression/bounces/%s", c.base, url.PathEscape(strings.ToLower(email)))
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	return req, nil
}
