package pages

import (
	"html/template"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
)

const challengeTpl = `
<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>One more step - {{.ServiceName}}</title>
  <script src="{{.ScriptURL}}" async defer></script>
</head>
<body style="margin:0;padding:0;background-color:#f5f6f7;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;">
  <div style="max-width:560px;margin:0 auto;padding:64px 16px;">
    <div style="background:#ffffff;border-radius:8px;padding:40px;box-shadow:0 1px 3px rgba(0,0,0,0.08);text-align:center;">
      <h1 style="margin:0 0 12px;color:#1a1a2e;font-size:22px;">One more step</h1>
      <p style="margin:0 0 24px;color:#555;font-size:15px;line-height:1.6;">
        Please confirm you are human and we will pass your message along.
      </p>
      <form method="POST" action="{{.ActionURL}}">
        {{range .Fields}}
        <input type="hidden" name="{{.Name}}" value="{{.Value}}">
        {{end}}
        <input type="hidden" name="_host_nonce" value="{{.HostNonce}}">
        <div style="display:inline-block;margin-bottom:24px;">
          <div class="g-recaptcha" data-sitekey="{{.SiteKey}}"></div>
        </div>
        <div>
          <button type="submit" style="background:#4a7dff;color:#ffffff;border:none;padding:12px 40px;border-radius:6px;font-size:15px;cursor:pointer;">Submit</button>
        </div>
      </form>
    </div>
    <p style="text-align:center;color:#999;font-size:12px;margin-top:24px;">&copy; {{year}} {{.ServiceName}}</p>
  </div>
</body>
</html>
`

// HiddenField is one original payload entry replayed through the
// challenge form so nothing the visitor typed is lost.
type HiddenField struct {
	Name  string
	Value string
}

// ChallengeData fills the captcha interstitial.
type ChallengeData struct {
	ActionURL string
	SiteKey   string
	Language  string
	HostNonce string
	Fields    []HiddenField
}

// Challenge renders the captcha interstitial. The original payload is
// carried in hidden inputs and replayed on resubmit.
func Challenge(c *gin.Context, data ChallengeData) {
	script := "https://www.google.com/recaptcha/api.js"
	if data.Language != "" {
		script += "?hl=" + url.QueryEscape(data.Language)
	}
	write(c, http.StatusOK, render(challengeTpl, map[string]interface{}{
		"ServiceName": serviceName,
		"ScriptURL":   template.URL(script),
		"ActionURL":   data.ActionURL,
		"SiteKey":     data.SiteKey,
		"HostNonce":   data.HostNonce,
		"Fields":      data.Fields,
	}))
}
