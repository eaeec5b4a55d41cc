package relay

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TravisBrace/formspree/internal/models"
	"github.com/TravisBrace/formspree/internal/pkg/bounce"
	"github.com/TravisBrace/formspree/internal/pkg/tokens"
)

func newTestRouter(fx *serviceFixture) *gin.Engine {
	r := gin.New()
	NewHandler(fx.svc).RegisterRoutes(r.Group(""))
	return r
}

func postForm(r *gin.Engine, path string, form url.Values, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.RemoteAddr = "203.0.113.5:34567"
	r.ServeHTTP(w, req)
	return w
}

func getPage(r *gin.Engine, path string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestSubmitRejectsGET(t *testing.T) {
	r := newTestRouter(newTestService(t))

	w := getPage(r, "/visitor@example.com", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Contains(t, w.Body.String(), "Use POST")

	w = getPage(r, "/visitor@example.com", map[string]string{"X-Requested-With": "XMLHttpRequest"})
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":0`)
}

func TestSubmitWithoutReferrer(t *testing.T) {
	r := newTestRouter(newTestService(t))

	w := postForm(r, "/visitor@example.com", url.Values{"name": {"Jane"}}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Unknown origin")
}

func TestSubmitFirstContactStartsConfirmation(t *testing.T) {
	fx := newTestService(t)
	r := newTestRouter(fx)
	headers := map[string]string{"Referer": "https://example.com/contact"}
	body := url.Values{"name": {"Jane"}, "message": {"hi"}}

	w := postForm(r, "/visitor@example.com", body, headers)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Almost there")
	assert.Contains(t, w.Body.String(), "visitor@example.com")
	assert.Contains(t, w.Body.String(), "/resend/visitor@example.com")
	require.Len(t, fx.mailer.confirmations, 1)

	var form models.FormModel
	require.NoError(t, fx.db.First(&form, "email = ?", "visitor@example.com").Error)
	assert.True(t, form.ConfirmSent)
	assert.False(t, form.Confirmed)

	// submitting again does not mail a second confirmation
	w = postForm(r, "/visitor@example.com", body, headers)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Almost there")
	require.Len(t, fx.mailer.confirmations, 1)
}

func TestSubmitAjaxUnregistered(t *testing.T) {
	fx := newTestService(t)
	r := newTestRouter(fx)

	w := postForm(r, "/fresh@example.com", url.Values{"name": {"Jane"}}, map[string]string{
		"Referer":          "https://example.com/contact",
		"X-Requested-With": "XMLHttpRequest",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "has not been registered")
	assert.Empty(t, fx.mailer.confirmations)
}

func TestSubmitChallengeAndReplay(t *testing.T) {
	fx := newTestService(t)
	fx.captcha.verified = false
	r := newTestRouter(fx)
	createEmailForm(t, fx.db, "owner@example.com", "example.com/contact", true)

	w := postForm(r, "/owner@example.com", url.Values{"name": {"Jane"}, "message": {"hi"}},
		map[string]string{"Referer": "https://example.com/contact"})
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "g-recaptcha")
	assert.Contains(t, body, `data-sitekey="test-site-key"`)
	assert.Contains(t, body, `name="name" value="Jane"`)
	assert.Contains(t, body, `name="message" value="hi"`)
	assert.Contains(t, body, `name="_host_nonce"`)
	assert.Contains(t, body, `action="/owner@example.com"`)
	assert.Empty(t, fx.mailer.submissions)

	// the solved challenge replays the payload with the nonce instead
	// of a Referer
	fx.captcha.verified = true
	nonce, err := tokens.SignHostNonce("example.com/contact", "https://example.com/contact", time.Hour)
	require.NoError(t, err)
	w = postForm(r, "/owner@example.com", url.Values{
		"name":        {"Jane"},
		"message":     {"hi"},
		"_host_nonce": {nonce},
	}, nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "http://forms.test/thanks"))
	require.Len(t, fx.mailer.submissions, 1)
	assert.Equal(t, "Jane", fx.mailer.submissions[0].Fields[0].Value)
}

func TestSubmitHoneypotRedirectsWithoutSending(t *testing.T) {
	fx := newTestService(t)
	r := newTestRouter(fx)
	form := createEmailForm(t, fx.db, "owner@example.com", "example.com/contact", true)

	w := postForm(r, "/owner@example.com", url.Values{"name": {"x"}, "_gotcha": {"bot"}},
		map[string]string{"Referer": "https://example.com/contact"})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Empty(t, fx.mailer.submissions)
	assert.Equal(t, 0, reloadForm(t, fx.db, form.ID).Counter)
}

func TestSubmitDashboardFormSkipsCaptcha(t *testing.T) {
	fx := newTestService(t)
	fx.captcha.verified = false
	r := newTestRouter(fx)

	owner := createUser(t, fx.db, "free")
	hash := tokens.FormHash("owner@example.com", "example.com/contact")
	createForm(t, fx.db, &models.FormModel{
		Email:           "owner@example.com",
		Host:            "example.com/contact",
		Hash:            &hash,
		Confirmed:       true,
		CaptchaDisabled: true,
		OwnerID:         &owner.ID,
	})

	w := postForm(r, "/owner@example.com", url.Values{"name": {"Jane"}},
		map[string]string{"Referer": "https://example.com/contact"})
	assert.Equal(t, http.StatusFound, w.Code)
	require.Len(t, fx.mailer.submissions, 1)
}

func TestSubmitAjaxDelivers(t *testing.T) {
	fx := newTestService(t)
	r := newTestRouter(fx)
	createEmailForm(t, fx.db, "owner@example.com", "example.com/contact", true)
	headers := map[string]string{
		"Referer":          "https://example.com/contact",
		"X-Requested-With": "XMLHttpRequest",
	}

	w := postForm(r, "/owner@example.com", url.Values{"name": {"Jane"}}, headers)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":"email sent"`)
	require.Len(t, fx.mailer.submissions, 1)
	assert.Equal(t, 0, fx.captcha.calls)

	w = postForm(r, "/owner@example.com", url.Values{}, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "empty form")
}

func TestSubmitCaptchaOutage(t *testing.T) {
	fx := newTestService(t)
	fx.captcha.err = errors.New("captcha api down")
	r := newTestRouter(fx)
	createEmailForm(t, fx.db, "owner@example.com", "example.com/contact", true)

	w := postForm(r, "/owner@example.com", url.Values{"name": {"Jane"}},
		map[string]string{"Referer": "https://example.com/contact"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "captcha could not be verified")
}

func TestSubmitBadReplyToPage(t *testing.T) {
	fx := newTestService(t)
	r := newTestRouter(fx)
	createEmailForm(t, fx.db, "owner@example.com", "example.com/contact", true)

	w := postForm(r, "/owner@example.com", url.Values{"name": {"J"}, "_replyto": {"not an address"}},
		map[string]string{"Referer": "https://example.com/contact"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid reply address")
	assert.Empty(t, fx.mailer.submissions)
}

func TestConfirmEndpoint(t *testing.T) {
	fx := newTestService(t)
	r := newTestRouter(fx)
	form := createEmailForm(t, fx.db, "owner@example.com", "example.com/contact", false)

	nonce, err := tokens.SignConfirmNonce(form.ID, time.Hour)
	require.NoError(t, err)

	w := getPage(r, "/confirm/"+nonce, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Email confirmed")
	assert.True(t, reloadForm(t, fx.db, form.ID).Confirmed)

	w = getPage(r, "/confirm/"+nonce, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Already confirmed")

	w = getPage(r, "/confirm/garbage", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid link")

	orphan, err := tokens.SignConfirmNonce(99999, time.Hour)
	require.NoError(t, err)
	w = getPage(r, "/confirm/"+orphan, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnconfirmOneClick(t *testing.T) {
	fx := newTestService(t)
	r := newTestRouter(fx)
	form := createEmailForm(t, fx.db, "owner@example.com", "example.com", true)
	digest := tokens.UnconfirmDigest(form.ID, form.Email)

	w := postForm(r, fmt.Sprintf("/unconfirm/%d/%s", form.ID, digest), url.Values{}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"unsubscribed":true`)
	assert.False(t, reloadForm(t, fx.db, form.ID).Confirmed)

	w = postForm(r, fmt.Sprintf("/unconfirm/%d/%s", form.ID, "wrong-digest"), url.Values{}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postForm(r, "/unconfirm/999999/"+digest, url.Values{}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = postForm(r, "/unconfirm/abc/"+digest, url.Values{}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnconfirmDigestPageAndBulk(t *testing.T) {
	fx := newTestService(t)
	r := newTestRouter(fx)
	a := createEmailForm(t, fx.db, "a@example.com", "one.example", true)
	b := createEmailForm(t, fx.db, "a@example.com", "two.example", true)

	w := getPage(r, fmt.Sprintf("/unconfirm/%d/%s", a.ID, "bad"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, reloadForm(t, fx.db, a.ID).Confirmed)

	digest := tokens.UnconfirmDigest(a.ID, a.Email)
	w = getPage(r, fmt.Sprintf("/unconfirm/%d/%s", a.ID, digest), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Unsubscribed")
	assert.Contains(t, w.Body.String(), "two.example")
	assert.False(t, reloadForm(t, fx.db, a.ID).Confirmed)

	var marker *http.Cookie
	for _, ck := range w.Result().Cookies() {
		if ck.Name == "unconfirm_marker" {
			marker = ck
		}
	}
	require.NotNil(t, marker)

	// the sibling can be turned off from the same page
	w2 := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/unconfirm/multiple",
		strings.NewReader(url.Values{"form_ids": {fmt.Sprint(b.ID)}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(marker)
	r.ServeHTTP(w2, req)
	assert.Equal(t, http.StatusOK, w2.Code)
	assert.Contains(t, w2.Body.String(), "Turned off 1 form")
	assert.False(t, reloadForm(t, fx.db, b.ID).Confirmed)

	// without the marker cookie the bulk endpoint refuses
	w3 := postForm(r, "/unconfirm/multiple", url.Values{"form_ids": {fmt.Sprint(b.ID)}}, nil)
	assert.Equal(t, http.StatusUnauthorized, w3.Code)
}

func TestRequestUnconfirmEmail(t *testing.T) {
	fx := newTestService(t)
	r := newTestRouter(fx)
	form := createEmailForm(t, fx.db, "owner@example.com", "example.com", true)

	// link scanners never trigger a send
	w := getPage(r, fmt.Sprintf("/unconfirm/%d", form.ID), map[string]string{"User-Agent": "curl/8.5"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Open in a browser")
	assert.Empty(t, fx.mailer.unconfirms)

	w = getPage(r, fmt.Sprintf("/unconfirm/%d", form.ID), map[string]string{"User-Agent": "Mozilla/5.0 (Macintosh)"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Check your email")
	require.Len(t, fx.mailer.unconfirms, 1)
	assert.Contains(t, fx.mailer.unconfirms[0].UnconfirmURL, fmt.Sprintf("/unconfirm/%d/", form.ID))
}

func TestResendConfirmation(t *testing.T) {
	fx := newTestService(t)
	r := newTestRouter(fx)
	form := createEmailForm(t, fx.db, "owner@example.com", "example.com/contact", false)
	require.NoError(t, fx.db.Model(form).Update("confirm_sent", true).Error)

	w := postForm(r, "/resend/owner@example.com", url.Values{"host": {"example.com/contact"}}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Almost there")
	require.Len(t, fx.mailer.confirmations, 1)
	assert.True(t, reloadForm(t, fx.db, form.ID).ConfirmSent)

	w = postForm(r, "/resend/owner@example.com", url.Values{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Missing details")

	w = postForm(r, "/resend/nobody@example.com", url.Values{"host": {"example.com"}}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "No such form")
}

func TestResendConfirmationRefusedForBouncedAddress(t *testing.T) {
	fx := newTestService(t)
	fx.bounce.entry = &bounce.Entry{Email: "owner@example.com", Reason: "550 mailbox unavailable"}
	r := newTestRouter(fx)
	createEmailForm(t, fx.db, "owner@example.com", "example.com/contact", false)

	w := postForm(r, "/resend/owner@example.com", url.Values{"host": {"example.com/contact"}}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Address blocked")
	assert.Contains(t, w.Body.String(), "/unblock/owner@example.com")
	assert.Empty(t, fx.mailer.confirmations)
}

func TestResendConfirmationNotForManagedForms(t *testing.T) {
	fx := newTestService(t)
	r := newTestRouter(fx)
	owner := createUser(t, fx.db, "free")
	hash := tokens.FormHash("owner@example.com", "example.com/contact")
	createForm(t, fx.db, &models.FormModel{
		Email:   "owner@example.com",
		Host:    "example.com/contact",
		Hash:    &hash,
		OwnerID: &owner.ID,
	})

	w := postForm(r, "/resend/owner@example.com", url.Values{"host": {"example.com/contact"}}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Not available here")
}

func TestUnblockFlow(t *testing.T) {
	fx := newTestService(t)
	r := newTestRouter(fx)

	w := getPage(r, "/unblock/bounced@example.com", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Unblock bounced@example.com")

	w = postForm(r, "/unblock/Bounced@example.com", url.Values{}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Address unblocked")
	assert.Equal(t, []string{"bounced@example.com"}, fx.bounce.deleted)
}

func TestThanksPage(t *testing.T) {
	r := newTestRouter(newTestService(t))

	w := getPage(r, "/thanks", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Thanks!")
}
