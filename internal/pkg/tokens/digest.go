package tokens

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// FormHash derives the unique lookup key of an email-identified form.
// Two requests for the same (email, host) must always land on the same
// form row, so this is a keyed hash rather than a random id.
func FormHash(email, host string) string {
	mac := hmac.New(sha256.New, nonceSecret)
	mac.Write([]byte(strings.ToLower(email)))
	mac.Write([]byte{0})
	mac.Write([]byte(host))
	return hex.EncodeToString(mac.Sum(nil))
}

// UnconfirmDigest derives the non-expiring opt-out credential embedded
// in every notification email's unsubscribe link.
func UnconfirmDigest(formID uint, email string) string {
	mac := hmac.New(sha256.New, nonceSecret)
	mac.Write([]byte("unconfirm"))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatUint(uint64(formID), 10)))
	mac.Write([]byte{0})
	mac.Write([]byte(strings.ToLower(email)))
	return hex.EncodeToString(mac.Sum(nil))
}

// CheckUnconfirmDigest compares in constant time.
func CheckUnconfirmDigest(formID uint, email, digest string) bool {
	want := UnconfirmDigest(formID, email)
	return hmac.Equal([]byte(want), []byte(digest))
}
