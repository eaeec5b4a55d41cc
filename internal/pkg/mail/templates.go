package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

const submissionTpl = `
<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="margin:0;padding:0;background-color:#f5f6f7;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;">
  <div style="max-width:600px;margin:0 auto;padding:32px 16px;">
    <div style="background:#ffffff;border-radius:8px;padding:32px;box-shadow:0 1px 3px rgba(0,0,0,0.08);">
      <h2 style="margin:0 0 8px;color:#1a1a2e;font-size:20px;">New submission from {{.Host}}</h2>
      <p style="margin:0 0 24px;color:#666;font-size:14px;">Someone just submitted your form. Here is what they had to say:</p>
      <table style="width:100%;border-collapse:collapse;font-size:14px;">
        {{range .Fields}}
        <tr>
          <td style="padding:10px 12px;border-bottom:1px solid #eee;color:#888;vertical-align:top;white-space:nowrap;">{{.Key}}</td>
          <td style="padding:10px 12px;border-bottom:1px solid #eee;color:#1a1a2e;word-break:break-word;">{{.Value}}</td>
        </tr>
        {{end}}
      </table>
      {{if .UnsubscribeURL}}
      <p style="margin:24px 0 0;color:#999;font-size:12px;">
        Don't want to receive emails for this form anymore?
        <a href="{{.UnsubscribeURL}}" style="color:#4a7dff;">Unsubscribe here</a>.
      </p>
      {{end}}
    </div>
    <p style="text-align:center;color:#999;font-size:12px;margin-top:24px;">
      &copy; {{year}} {{.ServiceName}}
    </p>
  </div>
</body>
</html>
`

const confirmationTpl = `
<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="margin:0;padding:0;background-color:#f5f6f7;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;">
  <div style="max-width:600px;margin:0 auto;padding:32px 16px;">
    <div style="background:#ffffff;border-radius:8px;padding:32px;box-shadow:0 1px 3px rgba(0,0,0,0.08);">
      <h2 style="margin:0 0 8px;color:#1a1a2e;font-size:20px;">Confirm your email</h2>
      <p style="margin:0 0 16px;color:#444;font-size:14px;line-height:1.6;">
        A form on <strong>{{.Host}}</strong> wants to send its submissions to
        <strong>{{.Email}}</strong>. To start receiving them, confirm that this
        is really your address:
      </p>
      <div style="text-align:center;margin:28px 0;">
        <a href="{{.ConfirmURL}}" style="display:inline-block;background:#4a7dff;color:#ffffff;text-decoration:none;padding:12px 32px;border-radius:6px;font-size:15px;">Confirm email address</a>
      </div>
      <p style="margin:0;color:#999;font-size:12px;line-height:1.6;">
        If you did not set up this form, you can safely ignore this email and
        nothing will be sent to you.
      </p>
    </div>
    <p style="text-align:center;color:#999;font-size:12px;margin-top:24px;">
      &copy; {{year}} {{.ServiceName}}
    </p>
  </div>
</body>
</html>
`

const unconfirmRequestTpl = `
<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="margin:0;padding:0;background-color:#f5f6f7;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;">
  <div style="max-width:600px;margin:0 auto;padding:32px 16px;">
    <div style="background:#ffffff;border-radius:8px;padding:32px;box-shadow:0 1px 3px rgba(0,0,0,0.08);">
      <h2 style="margin:0 0 8px;color:#1a1a2e;font-size:20px;">Stop receiving these emails?</h2>
      <p style="margin:0 0 16px;color:#444;font-size:14px;line-height:1.6;">
        You asked to stop receiving submissions from the form on
        <strong>{{.Host}}</strong>. Click below to turn it off. You can turn it
        back on later by reconfirming your address.
      </p>
      <div style="text-align:center;margin:28px 0;">
        <a href="{{.UnconfirmURL}}" style="display:inline-block;background:#e05252;color:#ffffff;text-decoration:none;padding:12px 32px;border-radius:6px;font-size:15px;">Disable this form</a>
      </div>
      <p style="margin:0;color:#999;font-size:12px;line-height:1.6;">
        If you did not request this, ignore this email and the form will keep
        working as before.
      </p>
    </div>
    <p style="text-align:center;color:#999;font-size:12px;margin-top:24px;">
      &copy; {{year}} {{.ServiceName}}
    </p>
  </div>
</body>
</html>
`

// FieldRow is one submitted field as it appears in the notification table.
type FieldRow struct {
	Key   string
	Value string
}

// SubmissionEmail carries everything needed to notify a form owner of a
// new submission.
type SubmissionEmail struct {
	To             string
	CC             []string
	ReplyTo        string
	Subject        string
	FromName       string
	Host           string
	Fields         []FieldRow
	UnsubscribeURL string
	TextOnly       bool   // _format=plain
	CustomHTML     string // pre-rendered owner template, overrides the stock one
}

type submissionData struct {
	Host           string
	Fields         []FieldRow
	UnsubscribeURL string
	ServiceName    string
}

// ConfirmationData fills the ownership confirmation email.
type ConfirmationData struct {
	Host        string
	Email       string
	ConfirmURL  string
	ServiceName string
}

// UnconfirmRequestData fills the opt-out request email.
type UnconfirmRequestData struct {
	Host         string
	UnconfirmURL string
	ServiceName  string
}

func renderTemplate(tpl string, data interface{}) (string, error) {
	t, err := template.New("mail").Funcs(template.FuncMap{
		"year": func() int { return time.Now().Year() },
	}).Parse(tpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SendSubmission delivers a submission notification to the form owner.
func (s *Sender) SendSubmission(email SubmissionEmail) error {
	if email.Subject == "" {
		email.Subject = fmt.Sprintf("New submission from %s", email.Host)
	}

	text := submissionText(email)
	var html string
	if !email.TextOnly {
		if email.CustomHTML != "" {
			html = email.CustomHTML
		} else {
			rendered, err := renderTemplate(submissionTpl, submissionData{
				Host:           email.Host,
				Fields:         email.Fields,
				UnsubscribeURL: email.UnsubscribeURL,
				ServiceName:    s.cfg.FromName,
			})
			if err != nil {
				return err
			}
			html = rendered
		}
	}

	return s.Send(Message{
		To:          []string{email.To},
		CC:          email.CC,
		ReplyTo:     email.ReplyTo,
		FromName:    email.FromName,
		Subject:     email.Subject,
		HTML:        html,
		Text:        text,
		Unsubscribe: email.UnsubscribeURL,
	})
}

func submissionText(email SubmissionEmail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New submission from %s\r\n\r\n", email.Host)
	for _, f := range email.Fields {
		fmt.Fprintf(&b, "%s: %s\r\n", f.Key, f.Value)
	}
	if email.UnsubscribeURL != "" {
		fmt.Fprintf(&b, "\r\n---\r\nUnsubscribe: %s\r\n", email.UnsubscribeURL)
	}
	return b.String()
}

// SendConfirmation delivers the ownership confirmation email.
func (s *Sender) SendConfirmation(to string, data ConfirmationData) error {
	if data.ServiceName == "" {
		data.ServiceName = s.cfg.FromName
	}
	html, err := renderTemplate(confirmationTpl, data)
	if err != nil {
		return err
	}
	text := fmt.Sprintf(
		"A form on %s wants to send its submissions to %s.\r\n\r\nConfirm your email address: %s\r\n\r\nIf you did not set up this form, ignore this email.\r\n",
		data.Host, data.Email, data.ConfirmURL,
	)
	return s.Send(Message{
		To:      []string{to},
		Subject: fmt.Sprintf("Confirm email for %s", data.Host),
		HTML:    html,
		Text:    text,
	})
}

// SendUnconfirmRequest delivers the one-click opt-out email.
func (s *Sender) SendUnconfirmRequest(to string, data UnconfirmRequestData) error {
	if data.ServiceName == "" {
		data.ServiceName = s.cfg.FromName
	}
	html, err := renderTemplate(unconfirmRequestTpl, data)
	if err != nil {
		return err
	}
	text := fmt.Sprintf(
		"You asked to stop receiving submissions from the form on %s.\r\n\r\nDisable it here: %s\r\n\r\nIf you did not request this, ignore this email.\r\n",
		data.Host, data.UnconfirmURL,
	)
	return s.Send(Message{
		To:      []string{to},
		Subject: fmt.Sprintf("Unsubscribe from %s", data.Host),
		HTML:    html,
		Text:    text,
	})
}
