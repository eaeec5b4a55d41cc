package relay

import (
	"errors"
	"net/url"
	"strings"

	"github.com/TravisBrace/formspree/internal/pkg/tokens"
	"golang.org/x/net/idna"
)

var (
	// errNoReferrer: the request carried no usable Referer, so there is
	// no website to attribute the submission to.
	errNoReferrer = errors.New("submission has no referrer")
	// errBadNonce: a replayed challenge carried a host nonce that does
	// not verify. That only happens when our own page was tampered with.
	errBadNonce = errors.New("invalid host nonce")
)

// resolveOrigin determines which site a submission came from. A host
// nonce minted by the challenge page wins over the Referer header,
// because the challenge POST originates from our own domain.
func resolveOrigin(p *Payload, referrer string) (host string, ref string, err error) {
	if p.HostNonce != "" {
		h, r, nerr := tokens.ParseHostNonce(p.HostNonce)
		if nerr != nil {
			return "", "", errBadNonce
		}
		return h, r, nil
	}

	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return "", "", errNoReferrer
	}
	host = referrerHost(referrer)
	if host == "" {
		return "", "", errNoReferrer
	}
	return host, referrer, nil
}

// referrerHost reduces a Referer URL to the host the form binds to:
// hostname (IDNA-normalized) plus port and path, never scheme or query.
func referrerHost(referrer string) string {
	u, err := url.Parse(referrer)
	if err != nil || u.Hostname() == "" {
		return ""
	}

	hostname := strings.ToLower(u.Hostname())
	if ascii, err := idna.Lookup.ToASCII(hostname); err == nil {
		hostname = ascii
	}
	if port := u.Port(); port != "" {
		hostname += ":" + port
	}
	return hostname + u.Path
}

func removeWWW(host string) string {
	return strings.TrimPrefix(host, "www.")
}

// hostMatches implements the trust rule for confirmed forms: an exact
// match up to a trailing slash, or, for sitewide forms, the stored host
// as a prefix of the current one once both drop their www.
func hostMatches(stored, current string, sitewide bool) bool {
	if strings.TrimRight(stored, "/") == strings.TrimRight(current, "/") {
		return true
	}
	if sitewide {
		return strings.HasPrefix(removeWWW(current), removeWWW(stored))
	}
	return false
}
