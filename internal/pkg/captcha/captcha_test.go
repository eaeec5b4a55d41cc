package captcha

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TravisBrace/formspree/internal/config"
)

func newVerifyServer(t *testing.T, status int, body string) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "sekrit", r.PostFormValue("secret"))
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newClient(verifyURL string) *Client {
	return New(config.CaptchaConfig{
		SiteKey:        "site-key",
		Secret:         "sekrit",
		VerifyURL:      verifyURL,
		TimeoutSeconds: 2,
	})
}

func TestVerifySuccess(t *testing.T) {
	srv, calls := newVerifyServer(t, http.StatusOK, `{"success":true}`)
	c := newClient(srv.URL)

	ok, err := c.Verify(context.Background(), "solution", "127.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, *calls)
}

func TestVerifyRefused(t *testing.T) {
	srv, _ := newVerifyServer(t, http.StatusOK, `{"success":false,"error-codes":["invalid-input-response"]}`)
	c := newClient(srv.URL)

	ok, err := c.Verify(context.Background(), "wrong", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

// An empty solution is a refusal decided locally, not an error, and the
// verification service is never consulted for it.
func TestVerifyEmptySolutionSkipsRequest(t *testing.T) {
	srv, calls := newVerifyServer(t, http.StatusOK, `{"success":true}`)
	c := newClient(srv.URL)

	ok, err := c.Verify(context.Background(), "   ", "127.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, *calls)
}

func TestVerifyServiceError(t *testing.T) {
	srv, _ := newVerifyServer(t, http.StatusBadGateway, "upstream broken")
	c := newClient(srv.URL)

	_, err := c.Verify(context.Background(), "solution", "")
	assert.Error(t, err)
}

func TestBypass(t *testing.T) {
	disabled := New(config.CaptchaConfig{Secret: "sekrit", Disable: true})
	assert.True(t, disabled.Bypassed())
	ok, err := disabled.Verify(context.Background(), "", "")
	require.NoError(t, err)
	assert.True(t, ok)

	noSecret := New(config.CaptchaConfig{})
	assert.True(t, noSecret.Bypassed())
	ok, err = noSecret.Verify(context.Background(), "anything", "")
	require.NoError(t, err)
	assert.True(t, ok)

	armed := New(config.CaptchaConfig{Secret: "sekrit", VerifyURL: "http://x"})
	assert.False(t, armed.Bypassed())
}

func TestSiteKey(t *testing.T) {
	c := New(config.CaptchaConfig{SiteKey: "abc"})
	assert.Equal(t, "abc", c.SiteKey())
}
