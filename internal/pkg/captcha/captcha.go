// Package captcha verifies challenge responses against a
// reCAPTCHA-compatible verification endpoint.
package captcha

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

// ResponseField is the payload key browsers submit the solution under.
const ResponseField = "g-recaptcha-response"

type Client struct {
	siteKey   string
	secret    string
	verifyURL string
	disable   bool
	http      *http.Client
}

func New(cfg config.CaptchaConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		siteKey:   cfg.SiteKey,
		secret:    cfg.Secret,
		verifyURL: cfg.VerifyURL,
		disable:   cfg.Disable,
		http:      &http.Client{Timeout: timeout},
	}
}

// SiteKey is embedded in rendered challenge pages.
func (c *Client) SiteKey() string { return c.siteKey }

// Bypassed reports whether verification is switched off (test mode or
// no secret configured).
func (c *Client) Bypassed() bool {
	return c.disable || c.secret == ""
}

// Verify checks a submitted solution. A false return with nil error is
// a refusal (wrong or missing solution); a non-nil error means the
// verification service itself could not be consulted.
func (c *Client) Verify(ctx context.Context, solution, remoteIP string) (bool, error) {
	if c.Bypassed() {
		return true, nil
	}
	if strings.TrimSpace(solution) == "" {
		return false, nil
	}

	form := url.Values{}
	form.Set("secret", c.secret)
	form.Set("response", solution)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("captcha verify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("captcha verify status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("captcha verify decode: %w", err)
	}
	return result.Success, nil
}
