package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TravisBrace/formspree/internal/pkg/tokens"
)

func TestReferrerHost(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"http://example.com", "example.com"},
		{"https://Example.COM/contact?utm=x", "example.com/contact"},
		{"https://example.com:8080/form", "example.com:8080/form"},
		{"http://www.example.com/", "www.example.com/"},
		{"https://bücher.example/kontakt", "xn--bcher-kva.example/kontakt"},
		{"not a url", ""},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, referrerHost(tc.in), "referrer %q", tc.in)
	}
}

func TestHostMatches(t *testing.T) {
	// exact forms: a trailing slash is cosmetic, anything else is not
	assert.True(t, hostMatches("example.com/contact", "example.com/contact", false))
	assert.True(t, hostMatches("example.com/contact/", "example.com/contact", false))
	assert.True(t, hostMatches("example.com/contact", "example.com/contact/", false))
	assert.False(t, hostMatches("example.com/contact", "example.com/about", false))
	assert.False(t, hostMatches("example.com", "example.com/contact", false))

	// sitewide forms accept any page under the registered host, www
	// being interchangeable on either side
	assert.True(t, hostMatches("example.com", "example.com/contact", true))
	assert.True(t, hostMatches("www.example.com", "example.com/deep/page", true))
	assert.True(t, hostMatches("example.com", "www.example.com/contact", true))
	assert.False(t, hostMatches("example.com", "blog.example.com/post", true))
	assert.False(t, hostMatches("example.com", "evilexample.com/contact", true))
}

func TestResolveOrigin(t *testing.T) {
	host, ref, err := resolveOrigin(&Payload{}, "https://example.com/contact?x=1")
	require.NoError(t, err)
	assert.Equal(t, "example.com/contact", host)
	assert.Equal(t, "https://example.com/contact?x=1", ref)

	_, _, err = resolveOrigin(&Payload{}, "")
	assert.ErrorIs(t, err, errNoReferrer)

	_, _, err = resolveOrigin(&Payload{}, "   ")
	assert.ErrorIs(t, err, errNoReferrer)

	// a host nonce wins even when the replay arrives referred by us
	nonce, err := tokens.SignHostNonce("example.com/contact", "https://example.com/contact", time.Hour)
	require.NoError(t, err)
	host, ref, err = resolveOrigin(&Payload{HostNonce: nonce}, "https://forms.test/visitor@example.com")
	require.NoError(t, err)
	assert.Equal(t, "example.com/contact", host)
	assert.Equal(t, "https://example.com/contact", ref)

	_, _, err = resolveOrigin(&Payload{HostNonce: "tampered"}, "https://example.com/")
	assert.ErrorIs(t, err, errBadNonce)
}
