// Package tokens issues and checks the signed values the service hands
// out: owner session tokens, the host nonce that survives a captcha
// round-trip, and the confirmation nonce mailed to form owners. All are
// HS256 JWTs carrying a purpose claim so one kind can never pass for
// another.
package tokens

import (
	"fmt"
	"strconv"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const (
	defaultSecret = "formspree-secret-change-me"

	purposeSession = "session"
	purposeHost    = "host-nonce"
	purposeConfirm = "confirm-nonce"
)

var (
	sessionSecret = []byte(defaultSecret)
	nonceSecret   = []byte(defaultSecret)
)

// SetSecret configures the session signing secret (call on startup).
func SetSecret(s string) {
	if s != "" {
		sessionSecret = []byte(s)
	}
}

// SetNonceSecret configures the secret behind nonces, digests and form
// hashes (call on startup).
func SetNonceSecret(s string) {
	if s != "" {
		nonceSecret = []byte(s)
	}
}

// SessionClaims is the payload of an owner session token.
type SessionClaims struct {
	UserID  string `json:"uid"`
	Purpose string `json:"pur"`
	jwtlib.RegisteredClaims
}

// HostNonceClaims binds a resolved origin across the captcha handshake.
type HostNonceClaims struct {
	Host     string `json:"host"`
	Referrer string `json:"ref,omitempty"`
	Purpose  string `json:"pur"`
	jwtlib.RegisteredClaims
}

// ConfirmClaims binds a confirmation link to exactly one form.
type ConfirmClaims struct {
	Purpose string `json:"pur"`
	jwtlib.RegisteredClaims
}

// SignSession creates a signed session token for the given user ID.
func SignSession(userID string, ttl time.Duration) (string, error) {
	claims := SessionClaims{
		UserID:  userID,
		Purpose: purposeSession,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(time.Now()),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(sessionSecret)
}

// ParseSession validates a session token and returns its claims.
func ParseSession(tokenStr string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := parseInto(tokenStr, claims, sessionSecret); err != nil {
		return nil, err
	}
	if claims.Purpose != purposeSession {
		return nil, fmt.Errorf("not a session token")
	}
	return claims, nil
}

// SignHostNonce creates the short-lived token that carries a resolved
// (host, referrer) through the captcha page and back.
func SignHostNonce(host, referrer string, ttl time.Duration) (string, error) {
	claims := HostNonceClaims{
		Host:     host,
		Referrer: referrer,
		Purpose:  purposeHost,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(time.Now()),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(nonceSecret)
}

// ParseHostNonce validates a host nonce and returns the bound origin.
func ParseHostNonce(tokenStr string) (host, referrer string, err error) {
	claims := &HostNonceClaims{}
	if err := parseInto(tokenStr, claims, nonceSecret); err != nil {
		return "", "", err
	}
	if claims.Purpose != purposeHost {
		return "", "", fmt.Errorf("not a host nonce")
	}
	return claims.Host, claims.Referrer, nil
}

// SignConfirmNonce creates the nonce embedded in confirmation links.
func SignConfirmNonce(formID uint, ttl time.Duration) (string, error) {
	claims := ConfirmClaims{
		Purpose: purposeConfirm,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(formID), 10),
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(time.Now()),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(nonceSecret)
}

// ParseConfirmNonce validates a confirmation nonce and returns the form
// id it was minted for.
func ParseConfirmNonce(tokenStr string) (uint, error) {
	claims := &ConfirmClaims{}
	if err := parseInto(tokenStr, claims, nonceSecret); err != nil {
		return 0, err
	}
	if claims.Purpose != purposeConfirm {
		return 0, fmt.Errorf("not a confirmation nonce")
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed confirmation nonce subject: %w", err)
	}
	return uint(id), nil
}

func parseInto(tokenStr string, claims jwtlib.Claims, secret []byte) error {
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}
