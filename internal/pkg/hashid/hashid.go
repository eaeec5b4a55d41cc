// Package hashid turns integer form ids into the short opaque strings
// used in dashboard endpoints and export filenames.
package hashid

import (
	"github.com/speps/go-hashids/v2"
)

const minLength = 8

var codec = mustCodec("")

// Configure sets the salt (call on startup). An empty salt keeps the
// library default, which is fine for tests but not for production.
func Configure(salt string) error {
	data := hashids.NewData()
	data.Salt = salt
	data.MinLength = minLength
	h, err := hashids.NewWithData(data)
	if err != nil {
		return err
	}
	codec = h
	return nil
}

// Encode returns the opaque string for a form id.
func Encode(id uint) string {
	s, err := codec.EncodeInt64([]int64{int64(id)})
	if err != nil {
		return ""
	}
	return s
}

// Decode parses an opaque string back into a form id. ok is false for
// anything that is not a well-formed hashid of exactly one id, so
// arbitrary path segments (like email local parts) fall through safely.
func Decode(s string) (uint, bool) {
	if s == "" {
		return 0, false
	}
	ids, err := codec.DecodeInt64WithError(s)
	if err != nil || len(ids) != 1 || ids[0] < 0 {
		return 0, false
	}
	// Round-trip to reject strings that merely alias a valid encoding.
	enc, err := codec.EncodeInt64([]int64{ids[0]})
	if err != nil || enc != s {
		return 0, false
	}
	return uint(ids[0]), true
}

func mustCodec(salt string) *hashids.HashID {
	data := hashids.NewData()
	data.Salt = salt
	data.MinLength = minLength
	h, err := hashids.NewWithData(data)
	if err != nil {
		panic(err)
	}
	return h
}
