package relay

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/TravisBrace/formspree/internal/models"
	"github.com/TravisBrace/formspree/internal/pkg/captcha"
)

const maxPayloadBytes = 1 << 20

// wantsJSONRequest decides whether the caller is a browser navigating
// pages or a script expecting JSON. AJAX headers win outright; otherwise
// the Accept header is scanned in order and whichever of JSON and HTML
// appears first decides.
func wantsJSONRequest(c *gin.Context) bool {
	if strings.EqualFold(c.GetHeader("X-Requested-With"), "XMLHttpRequest") {
		return true
	}
	if ct, _, err := mime.ParseMediaType(c.GetHeader("Content-Type")); err == nil && ct == "application/json" {
		return true
	}
	for _, part := range strings.Split(c.GetHeader("Accept"), ",") {
		mt := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		switch mt {
		case "application/json":
			return true
		case "text/html":
			return false
		}
	}
	return false
}

// parsePayload reads the request body and splits it into visitor data
// and reserved control fields, preserving submission order. Form keys
// repeat sometimes (checkbox groups from naive markup); the first value
// wins, matching what a visitor sees at the top of their form.
func parsePayload(c *gin.Context) (*Payload, error) {
	entries, err := readEntries(c)
	if err != nil {
		return nil, err
	}

	p := &Payload{}
	for _, e := range entries {
		switch e.key {
		case captcha.ResponseField:
			p.Captcha = e.value
			continue
		case keyHostNonce:
			p.HostNonce = e.value
			continue
		}

		if !p.Raw.Has(e.key) {
			p.Raw.Set(e.key, e.value)
		}

		if strings.HasPrefix(e.key, "_") {
			switch e.key {
			case keyReplyTo:
				p.ReplyTo = e.value
			case keyNext:
				p.Next = e.value
			case keySubject:
				p.Subject = e.value
			case keyCC:
				p.CC = splitAddressList(e.value)
			case keyFormat:
				p.Format = strings.ToLower(strings.TrimSpace(e.value))
			case keyLanguage:
				p.Language = e.value
			case keyGotcha:
				p.Gotcha = e.value
			}
			continue
		}

		if !p.Fields.Has(e.key) {
			p.Fields.Set(e.key, e.value)
		}
	}

	if p.ReplyTo == "" {
		p.ReplyTo = p.Fields.Get("email")
	}
	return p, nil
}

type entry struct {
	key   string
	value string
}

func readEntries(c *gin.Context) ([]entry, error) {
	ct, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	switch ct {
	case "application/json":
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadBytes))
		if err != nil {
			return nil, err
		}
		var fields models.FieldList
		if err := fields.UnmarshalJSON(body); err != nil {
			return nil, fmt.Errorf("invalid json body: %w", err)
		}
		entries := make([]entry, 0, len(fields))
		for _, f := range fields {
			entries = append(entries, entry{key: f.Key, value: f.Value})
		}
		return entries, nil

	case "multipart/form-data":
		return readMultipartEntries(c.Request)

	default:
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadBytes))
		if err != nil {
			return nil, err
		}
		return parseOrderedQuery(string(body)), nil
	}
}

// parseOrderedQuery is url.ParseQuery minus the map: order matters for
// the notification table, so the pairs stay a slice. Undecodable
// escapes keep their raw text rather than dropping the field.
func parseOrderedQuery(raw string) []entry {
	var entries []entry
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		if decoded, err := url.QueryUnescape(key); err == nil {
			key = decoded
		}
		if decoded, err := url.QueryUnescape(value); err == nil {
			value = decoded
		}
		if key == "" {
			continue
		}
		entries = append(entries, entry{key: key, value: value})
	}
	return entries
}

func readMultipartEntries(r *http.Request) ([]entry, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	var entries []entry
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		if part.FileName() != "" || part.FormName() == "" {
			part.Close()
			continue
		}
		value, err := io.ReadAll(io.LimitReader(part, maxPayloadBytes))
		part.Close()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{key: part.FormName(), value: string(value)})
	}
}

func splitAddressList(raw string) []string {
	var out []string
	for _, addr := range strings.Split(raw, ",") {
		if a := strings.TrimSpace(addr); a != "" {
			out = append(out, a)
		}
	}
	return out
}
