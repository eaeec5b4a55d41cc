package pages

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const confirmationSentTpl = `
<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Almost there - {{.ServiceName}}</title>
  {{if .SiteKey}}<script src="https://www.google.com/recaptcha/api.js" async defer></script>{{end}}
</head>
<body style="margin:0;padding:0;background-color:#f5f6f7;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;">
  <div style="max-width:560px;margin:0 auto;padding:64px 16px;">
    <div style="background:#ffffff;border-radius:8px;padding:40px;box-shadow:0 1px 3px rgba(0,0,0,0.08);text-align:center;">
      <div style="font-size:40px;margin-bottom:16px;">&#9993;</div>
      <h1 style="margin:0 0 12px;color:#1a1a2e;font-size:22px;">Almost there</h1>
      <p style="margin:0 0 8px;color:#555;font-size:15px;line-height:1.6;">
        We sent a confirmation email to <strong>{{.Email}}</strong> for the form
        on <strong>{{.Host}}</strong>.
      </p>
      <p style="margin:0;color:#555;font-size:15px;line-height:1.6;">
        Open it and click the link to start receiving submissions.
      </p>
      {{if .ResendURL}}
      <div style="margin-top:32px;padding-top:24px;border-top:1px solid #eee;">
        <p style="margin:0 0 16px;color:#999;font-size:13px;">Didn't get it? Check your spam folder, or resend it:</p>
        <form method="POST" action="{{.ResendURL}}">
          <input type="hidden" name="host" value="{{.Host}}">
          {{if .SiteKey}}
          <div style="display:inline-block;margin-bottom:16px;">
            <div class="g-recaptcha" data-sitekey="{{.SiteKey}}"></div>
          </div>
          {{end}}
          <div>
            <button type="submit" style="background:#ffffff;color:#4a7dff;border:1px solid #4a7dff;padding:10px 28px;border-radius:6px;font-size:14px;cursor:pointer;">Resend confirmation</button>
          </div>
        </form>
      </div>
      {{end}}
    </div>
    <p style="text-align:center;color:#999;font-size:12px;margin-top:24px;">&copy; {{year}} {{.ServiceName}}</p>
  </div>
</body>
</html>
`

const unconfirmedTpl = `
<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Unsubscribed - {{.ServiceName}}</title>
</head>
<body style="margin:0;padding:0;background-color:#f5f6f7;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;">
  <div style="max-width:560px;margin:0 auto;padding:64px 16px;">
    <div style="background:#ffffff;border-radius:8px;padding:40px;box-shadow:0 1px 3px rgba(0,0,0,0.08);">
      <div style="text-align:center;">
        <div style="font-size:40px;margin-bottom:16px;">&#10003;</div>
        <h1 style="margin:0 0 12px;color:#1a1a2e;font-size:22px;">Unsubscribed</h1>
        <p style="margin:0;color:#555;font-size:15px;line-height:1.6;">
          You will no longer receive submissions from the form on
          <strong>{{.Host}}</strong>.
        </p>
      </div>
      {{if .Others}}
      <div style="margin-top:32px;padding-top:24px;border-top:1px solid #eee;">
        <p style="margin:0 0 16px;color:#555;font-size:14px;">
          <strong>{{.Email}}</strong> also receives submissions from these forms.
          Select any you want to disable as well:
        </p>
        <form method="POST" action="{{.BulkURL}}">
          {{range .Others}}
          <label style="display:block;padding:8px 0;color:#1a1a2e;font-size:14px;">
            <input type="checkbox" name="form_ids" value="{{.ID}}" style="margin-right:8px;">{{.Host}}
          </label>
          {{end}}
          <div style="margin-top:16px;">
            <button type="submit" style="background:#e05252;color:#ffffff;border:none;padding:10px 28px;border-radius:6px;font-size:14px;cursor:pointer;">Disable selected</button>
          </div>
        </form>
      </div>
      {{end}}
    </div>
    <p style="text-align:center;color:#999;font-size:12px;margin-top:24px;">&copy; {{year}} {{.ServiceName}}</p>
  </div>
</body>
</html>
`

const unblockTpl = `
<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Unblock address - {{.ServiceName}}</title>
  {{if .SiteKey}}<script src="https://www.google.com/recaptcha/api.js" async defer></script>{{end}}
</head>
<body style="margin:0;padding:0;background-color:#f5f6f7;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;">
  <div style="max-width:560px;margin:0 auto;padding:64px 16px;">
    <div style="background:#ffffff;border-radius:8px;padding:40px;box-shadow:0 1px 3px rgba(0,0,0,0.08);text-align:center;">
      <h1 style="margin:0 0 12px;color:#1a1a2e;font-size:22px;">Unblock {{.Email}}</h1>
      <p style="margin:0 0 24px;color:#555;font-size:15px;line-height:1.6;">
        A previous email to this address bounced, so we stopped sending to it.
        If the mailbox works again, unblock it below and we will resume delivery.
      </p>
      <form method="POST" action="{{.ActionURL}}">
        {{if .SiteKey}}
        <div style="display:inline-block;margin-bottom:16px;">
          <div class="g-recaptcha" data-sitekey="{{.SiteKey}}"></div>
        </div>
        {{end}}
        <div>
          <button type="submit" style="background:#4a7dff;color:#ffffff;border:none;padding:12px 40px;border-radius:6px;font-size:15px;cursor:pointer;">Unblock this address</button>
        </div>
      </form>
    </div>
    <p style="text-align:center;color:#999;font-size:12px;margin-top:24px;">&copy; {{year}} {{.ServiceName}}</p>
  </div>
</body>
</html>
`

// ConfirmationSentData fills the "check your inbox" page. ResendURL is
// empty for forms that cannot resend from here.
type ConfirmationSentData struct {
	Email     string
	Host      string
	ResendURL string
	SiteKey   string
}

// ConfirmationSent renders the page shown right after a confirmation
// email goes out, including a resend form when a resend is possible.
func ConfirmationSent(c *gin.Context, data ConfirmationSentData) {
	write(c, http.StatusOK, render(confirmationSentTpl, map[string]interface{}{
		"ServiceName": serviceName,
		"Email":       data.Email,
		"Host":        data.Host,
		"ResendURL":   data.ResendURL,
		"SiteKey":     data.SiteKey,
	}))
}

// OtherForm is another confirmed form bound to the same address,
// offered for bulk opt-out.
type OtherForm struct {
	ID   uint
	Host string
}

// UnconfirmedData fills the post-unsubscribe page.
type UnconfirmedData struct {
	Host    string
	Email   string
	BulkURL string
	Others  []OtherForm
}

// Unconfirmed renders the page confirming an opt-out, with a bulk
// opt-out form for the address's other confirmed forms.
func Unconfirmed(c *gin.Context, data UnconfirmedData) {
	write(c, http.StatusOK, render(unconfirmedTpl, map[string]interface{}{
		"ServiceName": serviceName,
		"Host":        data.Host,
		"Email":       data.Email,
		"BulkURL":     data.BulkURL,
		"Others":      data.Others,
	}))
}

// UnblockData fills the bounce-suppression removal page.
type UnblockData struct {
	Email     string
	ActionURL string
	SiteKey   string
}

// Unblock renders the captcha-gated page for removing a bounced address
// from the suppression list.
func Unblock(c *gin.Context, data UnblockData) {
	write(c, http.StatusOK, render(unblockTpl, map[string]interface{}{
		"ServiceName": serviceName,
		"Email":       data.Email,
		"ActionURL":   data.ActionURL,
		"SiteKey":     data.SiteKey,
	}))
}
