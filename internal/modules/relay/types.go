// Package relay is the public face of the service: it accepts form
// posts addressed to an email or a hashid, decides whether to deliver,
// challenge, confirm or refuse, and runs the confirmation lifecycle
// around form ownership.
package relay

import (
	"github.com/TravisBrace/formspree/internal/models"
)

// Reserved field names stripped from a payload before delivery. They
// steer the relay instead of being part of the message.
const (
	keyReplyTo   = "_replyto"
	keyNext      = "_next"
	keySubject   = "_subject"
	keyCC        = "_cc"
	keyFormat    = "_format"
	keyLanguage  = "_language"
	keyGotcha    = "_gotcha"
	keyHostNonce = "_host_nonce"
)

// OutcomeCode enumerates every way the delivery engine can conclude.
type OutcomeCode string

const (
	// OutcomeEmailSent: the notification went out (or the honeypot
	// pretended it did).
	OutcomeEmailSent OutcomeCode = "EMAIL_SENT"
	// OutcomeNoEmailArchived: owner muted email, submission archived only.
	OutcomeNoEmailArchived OutcomeCode = "NO_EMAIL_ARCHIVED"
	// OutcomeEmailEmpty: nothing but reserved fields was submitted.
	OutcomeEmailEmpty OutcomeCode = "EMAIL_EMPTY"
	// OutcomeConfirmationSent: ownership email dispatched, payload stashed.
	OutcomeConfirmationSent OutcomeCode = "CONFIRMATION_SENT"
	// OutcomeConfirmationDuplicated: a confirmation is already pending.
	OutcomeConfirmationDuplicated OutcomeCode = "CONFIRMATION_DUPLICATED"
	// OutcomeOverLimit: monthly quota exhausted, submission counted but dropped.
	OutcomeOverLimit OutcomeCode = "OVERLIMIT"
	// OutcomeReplyToError: the visitor supplied an unusable reply address.
	OutcomeReplyToError OutcomeCode = "REPLYTO_ERROR"
)

// Outcome is the delivery engine's verdict. Code decides which of the
// other fields carry meaning; the handler switches on it exhaustively.
type Outcome struct {
	Code     OutcomeCode
	Next     string // EMAIL_SENT, NO_EMAIL_ARCHIVED: where to send the browser
	Email    string // CONFIRMATION_*: owner address; REPLYTO_ERROR: the bad address
	Host     string // CONFIRMATION_*: resolved host shown on the page
	Referrer string // REPLYTO_ERROR: where the submission came from
}

// RequestInfo is everything about the incoming request the pipeline
// needs downstream, resolved once at the top.
type RequestInfo struct {
	WantsJSON bool
	Host      string // normalized origin host, path included
	Referrer  string // raw Referer value (or the one a host nonce restored)
	IP        string
	Language  string // captcha widget language, from _language
}

// Capabilities is what the owning account's plan allows, resolved once
// per request.
type Capabilities struct {
	Dashboard            bool
	Archive              bool
	ArchiveLimit         int
	UnlimitedSubmissions bool
	CC                   bool
}

// Payload is one parsed submission. Fields keeps the visitor's data in
// submission order with reserved keys removed; Raw keeps everything
// except secrets, for replay through the challenge page.
type Payload struct {
	Fields models.FieldList `json:"fields"`
	Raw    models.FieldList `json:"raw"`

	ReplyTo   string   `json:"replyto,omitempty"`
	Next      string   `json:"next,omitempty"`
	Subject   string   `json:"subject,omitempty"`
	CC        []string `json:"cc,omitempty"`
	Format    string   `json:"format,omitempty"`
	Language  string   `json:"-"`
	Gotcha    string   `json:"-"`
	HostNonce string   `json:"-"`
	Captcha   string   `json:"-"`
}

// Empty reports whether the submission carried no usable content.
func (p *Payload) Empty() bool {
	return len(p.Fields) == 0
}
