// Package pages renders the small set of HTML documents the relay serves
// directly to humans: error screens, the captcha challenge, confirmation
// notices and the thank-you page. Templates are inline so the binary
// stays self-contained.
package pages

import (
	"bytes"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

var serviceName = "Forms"

// SetServiceName sets the name shown in page footers. Call once on startup.
func SetServiceName(name string) {
	if name != "" {
		serviceName = name
	}
}

const messageTpl = `
<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}} - {{.ServiceName}}</title>
</head>
<body style="margin:0;padding:0;background-color:#f5f6f7;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;">
  <div style="max-width:560px;margin:0 auto;padding:64px 16px;">
    <div style="background:#ffffff;border-radius:8px;padding:40px;box-shadow:0 1px 3px rgba(0,0,0,0.08);text-align:center;">
      {{if .IsError}}
      <div style="font-size:40px;margin-bottom:16px;">&#9888;</div>
      {{else}}
      <div style="font-size:40px;margin-bottom:16px;">&#9993;</div>
      {{end}}
      <h1 style="margin:0 0 12px;color:#1a1a2e;font-size:22px;">{{.Title}}</h1>
      <p style="margin:0;color:#555;font-size:15px;line-height:1.6;">{{.Message}}</p>
      {{if .LinkURL}}
      <p style="margin:24px 0 0;"><a href="{{.LinkURL}}" style="color:#4a7dff;font-size:14px;">{{.LinkText}}</a></p>
      {{end}}
    </div>
    <p style="text-align:center;color:#999;font-size:12px;margin-top:24px;">&copy; {{year}} {{.ServiceName}}</p>
  </div>
</body>
</html>
`

const thanksTpl = `
<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Thanks - {{.ServiceName}}</title>
</head>
<body style="margin:0;padding:0;background-color:#f5f6f7;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;">
  <div style="max-width:560px;margin:0 auto;padding:64px 16px;">
    <div style="background:#ffffff;border-radius:8px;padding:40px;box-shadow:0 1px 3px rgba(0,0,0,0.08);text-align:center;">
      <div style="font-size:40px;margin-bottom:16px;">&#10003;</div>
      <h1 style="margin:0 0 12px;color:#1a1a2e;font-size:22px;">Thanks!</h1>
      <p style="margin:0;color:#555;font-size:15px;line-height:1.6;">
        The submission was sent. You can close this page now.
      </p>
      <p style="margin:24px 0 0;color:#999;font-size:13px;">
        Want your visitors to land on your own page instead? Add a hidden
        <code style="background:#f0f1f3;padding:2px 6px;border-radius:4px;">_next</code>
        field to your form.
      </p>
    </div>
    <p style="text-align:center;color:#999;font-size:12px;margin-top:24px;">&copy; {{year}} {{.ServiceName}}</p>
  </div>
</body>
</html>
`

type messageData struct {
	Title       string
	Message     string
	LinkURL     string
	LinkText    string
	IsError     bool
	ServiceName string
}

func render(tpl string, data interface{}) string {
	t, err := template.New("page").Funcs(template.FuncMap{
		"year": func() int { return time.Now().Year() },
	}).Parse(tpl)
	if err != nil {
		return ""
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return ""
	}
	return buf.String()
}

func write(c *gin.Context, status int, html string) {
	c.Data(status, "text/html; charset=utf-8", []byte(html))
	c.Abort()
}

// Error renders a human-facing error document with the given status.
func Error(c *gin.Context, status int, title, message string) {
	write(c, status, render(messageTpl, messageData{
		Title:       title,
		Message:     message,
		IsError:     true,
		ServiceName: serviceName,
	}))
}

// ErrorLink is Error with a single follow-up action offered below the
// message.
func ErrorLink(c *gin.Context, status int, title, message, linkURL, linkText string) {
	write(c, status, render(messageTpl, messageData{
		Title:       title,
		Message:     message,
		LinkURL:     linkURL,
		LinkText:    linkText,
		IsError:     true,
		ServiceName: serviceName,
	}))
}

// Info renders a neutral notice document, 200 unless told otherwise.
func Info(c *gin.Context, status int, title, message string) {
	if status == 0 {
		status = http.StatusOK
	}
	write(c, status, render(messageTpl, messageData{
		Title:       title,
		Message:     message,
		ServiceName: serviceName,
	}))
}

// Thanks renders the default post-submission landing page.
func Thanks(c *gin.Context) {
	write(c, http.StatusOK, render(thanksTpl, map[string]interface{}{
		"ServiceName": serviceName,
	}))
}
