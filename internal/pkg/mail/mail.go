package mail

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/smtp"
	"strings"
	"time"
)

// Config holds mail provider settings.
type Config struct {
	Enable    bool
	Host      string
	Port      int
	User      string
	Pass      string
	From      string // the service's validated sending address
	FromName  string // display name, usually the service name
	UseResend bool
	ResendKey string
	Timeout   time.Duration
}

// Message is a single email to send. From is always the service's own
// sending address; ReplyTo is where a human reply should actually go.
type Message struct {
	To          []string
	CC          []string
	ReplyTo     string
	FromName    string // overrides Config.FromName when set
	Subject     string
	HTML        string
	Text        string
	Unsubscribe string // one-click opt-out URL, emitted as List-Unsubscribe
}

// Sender sends emails via SMTP or Resend.
type Sender struct {
	cfg Config
}

func New(cfg Config) *Sender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Sender{cfg: cfg}
}

// Send dispatches an email. Uses Resend if configured, otherwise SMTP.
// A nil return means the transport accepted the message; state changes
// that depend on a mail being out must wait for it.
func (s *Sender) Send(msg Message) error {
	if !s.cfg.Enable {
		return nil
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("mail: no recipients")
	}
	if s.cfg.UseResend && s.cfg.ResendKey != "" {
		return s.sendResend(msg)
	}
	return s.sendSMTP(msg)
}

func (s *Sender) fromName(msg Message) string {
	if msg.FromName != "" {
		return msg.FromName
	}
	return s.cfg.FromName
}

// sendSMTP sends via net/smtp with an explicit dial deadline so a
// wedged relay cannot hold a request open.
func (s *Sender) sendSMTP(msg Message) error {
	host := s.cfg.Host
	port := s.cfg.Port
	if port == 0 {
		port = 587
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	dialer := net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	if err := conn.SetDeadline(time.Now().Add(s.cfg.Timeout)); err != nil {
		conn.Close()
		return err
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if s.cfg.User != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, host)
			if err := client.Auth(auth); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range append(append([]string{}, msg.To...), msg.CC...) {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(s.buildMIME(msg)); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func (s *Sender) buildMIME(msg Message) []byte {
	var body bytes.Buffer
	body.WriteString("MIME-Version: 1.0\r\n")
	if name := s.fromName(msg); name != "" {
		body.WriteString(fmt.Sprintf("From: %s <%s>\r\n", encodeHeader(name), s.cfg.From))
	} else {
		body.WriteString(fmt.Sprintf("From: %s\r\n", s.cfg.From))
	}
	body.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.To, ", ")))
	if len(msg.CC) > 0 {
		body.WriteString(fmt.Sprintf("Cc: %s\r\n", strings.Join(msg.CC, ", ")))
	}
	body.WriteString(fmt.Sprintf("Subject: %s\r\n", encodeHeader(msg.Subject)))
	if msg.ReplyTo != "" {
		body.WriteString(fmt.Sprintf("Reply-To: %s\r\n", msg.ReplyTo))
	}
	if msg.Unsubscribe != "" {
		body.WriteString(fmt.Sprintf("List-Unsubscribe: <%s>\r\n", msg.Unsubscribe))
		body.WriteString("List-Unsubscribe-Post: List-Unsubscribe=One-Click\r\n")
	}
	body.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))

	switch {
	case msg.HTML != "" && msg.Text != "":
		boundary := fmt.Sprintf("=_part_%d", time.Now().UnixNano())
		body.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary))
		body.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		body.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		body.WriteString(msg.Text)
		body.WriteString(fmt.Sprintf("\r\n--%s\r\n", boundary))
		body.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		body.WriteString(msg.HTML)
		body.WriteString(fmt.Sprintf("\r\n--%s--\r\n", boundary))
	case msg.HTML != "":
		body.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		body.WriteString(msg.HTML)
	default:
		body.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		body.WriteString(msg.Text)
	}
	return body.Bytes()
}

func encodeHeader(value string) string {
	return mime.QEncoding.Encode("utf-8", value)
}

// sendResend sends via the Resend HTTP API.
func (s *Sender) sendResend(msg Message) error {
	from := s.cfg.From
	if name := s.fromName(msg); name != "" {
		from = fmt.Sprintf("%s <%s>", name, s.cfg.From)
	}

	fields := map[string]interface{}{
		"from":    from,
		"to":      msg.To,
		"subject": msg.Subject,
	}
	if msg.HTML != "" {
		fields["html"] = msg.HTML
	}
	if msg.Text != "" {
		fields["text"] = msg.Text
	}
	if len(msg.CC) > 0 {
		fields["cc"] = msg.CC
	}
	if msg.ReplyTo != "" {
		fields["reply_to"] = msg.ReplyTo
	}
	if msg.Unsubscribe != "" {
		fields["headers"] = map[string]string{
			"List-Unsubscribe":      fmt.Sprintf("<%s>", msg.Unsubscribe),
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
		}
	}
	payload, _ := json.Marshal(fields)

	req, err := http.NewRequest("POST", "https://api.resend.com/emails", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.ResendKey)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: s.cfg.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
		}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("resend error %d: %s", resp.StatusCode, errResp.Message)
	}
	return nil
}
