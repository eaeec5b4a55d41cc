package relay

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payloadContext(t *testing.T, contentType, body string) *gin.Context {
	t.Helper()
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest(http.MethodPost, "/test@example.com", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.Request = req
	return c
}

func TestWantsJSONRequest(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		want    bool
	}{
		{"bare form post", nil, false},
		{"ajax header", map[string]string{"X-Requested-With": "XMLHttpRequest"}, true},
		{"ajax header lowercase", map[string]string{"X-Requested-With": "xmlhttprequest"}, true},
		{"json content type", map[string]string{"Content-Type": "application/json"}, true},
		{"json content type with charset", map[string]string{"Content-Type": "application/json; charset=utf-8"}, true},
		{"accept json", map[string]string{"Accept": "application/json"}, true},
		{"accept html before json", map[string]string{"Accept": "text/html,application/json;q=0.9"}, false},
		{"accept json before html", map[string]string{"Accept": "application/json, text/html"}, true},
		{"accept anything", map[string]string{"Accept": "*/*"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodPost, "/x@example.com", nil)
			for k, v := range tc.headers {
				c.Request.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, wantsJSONRequest(c))
		})
	}
}

func TestParsePayloadForm(t *testing.T) {
	body := "name=Jane&_replyto=jane%40example.com&message=hi" +
		"&_next=https%3A%2F%2Fexample.com%2Fthanks" +
		"&_cc=a%40b.c%2C%20d%40e.f&_format=PLAIN&_subject=Hello&_language=de" +
		"&_gotcha=&g-recaptcha-response=tok&_host_nonce=n1&name=Duplicate"
	p, err := parsePayload(payloadContext(t, "application/x-www-form-urlencoded", body))
	require.NoError(t, err)

	// visitor data in submission order, first value wins
	assert.Equal(t, []string{"name", "message"}, p.Fields.Keys())
	assert.Equal(t, "Jane", p.Fields.Get("name"))

	// control fields extracted
	assert.Equal(t, "jane@example.com", p.ReplyTo)
	assert.Equal(t, "https://example.com/thanks", p.Next)
	assert.Equal(t, "Hello", p.Subject)
	assert.Equal(t, []string{"a@b.c", "d@e.f"}, p.CC)
	assert.Equal(t, "plain", p.Format)
	assert.Equal(t, "de", p.Language)
	assert.Equal(t, "", p.Gotcha)
	assert.Equal(t, "tok", p.Captcha)
	assert.Equal(t, "n1", p.HostNonce)

	// Raw keeps everything replayable, minus the secrets
	assert.True(t, p.Raw.Has("name"))
	assert.True(t, p.Raw.Has("_replyto"))
	assert.True(t, p.Raw.Has("_gotcha"))
	assert.False(t, p.Raw.Has("g-recaptcha-response"))
	assert.False(t, p.Raw.Has("_host_nonce"))

	assert.False(t, p.Empty())
}

func TestParsePayloadReplyToFallsBackToEmailField(t *testing.T) {
	p, err := parsePayload(payloadContext(t, "application/x-www-form-urlencoded",
		"email=visitor%40example.com&message=hi"))
	require.NoError(t, err)
	assert.Equal(t, "visitor@example.com", p.ReplyTo)

	p, err = parsePayload(payloadContext(t, "application/x-www-form-urlencoded",
		"_replyto=explicit%40example.com&email=other%40example.com"))
	require.NoError(t, err)
	assert.Equal(t, "explicit@example.com", p.ReplyTo)
}

func TestParsePayloadJSON(t *testing.T) {
	p, err := parsePayload(payloadContext(t, "application/json",
		`{"name":"Jane","age":30,"_subject":"Yo"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age"}, p.Fields.Keys())
	assert.Equal(t, "30", p.Fields.Get("age"))
	assert.Equal(t, "Yo", p.Subject)

	_, err = parsePayload(payloadContext(t, "application/json", `{"name":`))
	assert.Error(t, err)
}

func TestParsePayloadMultipart(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "Jane"))
	require.NoError(t, mw.WriteField("_replyto", "jane@example.com"))
	fw, err := mw.CreateFormFile("upload", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("attachments are ignored"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	p, err := parsePayload(payloadContext(t, mw.FormDataContentType(), buf.String()))
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, p.Fields.Keys())
	assert.Equal(t, "jane@example.com", p.ReplyTo)
	assert.False(t, p.Raw.Has("upload"))
}

func TestParseOrderedQuery(t *testing.T) {
	entries := parseOrderedQuery("b=2&a=1&b=9")
	require.Len(t, entries, 3)
	assert.Equal(t, entry{"b", "2"}, entries[0])
	assert.Equal(t, entry{"a", "1"}, entries[1])
	assert.Equal(t, entry{"b", "9"}, entries[2])

	entries = parseOrderedQuery("=orphan&a=1")
	require.Len(t, entries, 1)
	assert.Equal(t, entry{"a", "1"}, entries[0])

	// broken escapes keep their raw text instead of losing the field
	entries = parseOrderedQuery("na%ZZme=v%ZZ")
	require.Len(t, entries, 1)
	assert.Equal(t, entry{"na%ZZme", "v%ZZ"}, entries[0])

	entries = parseOrderedQuery("flag")
	require.Len(t, entries, 1)
	assert.Equal(t, entry{"flag", ""}, entries[0])

	assert.Empty(t, parseOrderedQuery(""))
}

func TestSplitAddressList(t *testing.T) {
	assert.Equal(t, []string{"a@b.c", "d@e.f"}, splitAddressList(" a@b.c , ,d@e.f "))
	assert.Nil(t, splitAddressList(""))
	assert.Nil(t, splitAddressList(" , ,"))
}
