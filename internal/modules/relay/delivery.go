package relay

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/TravisBrace/formspree/internal/models"
	mailpkg "github.com/TravisBrace/formspree/internal/pkg/mail"
	"github.com/TravisBrace/formspree/internal/pkg/metrics"
	"github.com/TravisBrace/formspree/internal/pkg/tokens"
	"go.uber.org/zap"
)

// Deliver runs one submission against a confirmed form and returns the
// verdict. An error return means an external system refused and nothing
// user-visible happened; every policy decision comes back as an Outcome
// instead.
func (s *Service) Deliver(ctx context.Context, form *models.FormModel, caps Capabilities, info *RequestInfo, p *Payload) (Outcome, error) {
	if p.Gotcha != "" {
		// Honeypot tripped: lie to the bot, touch nothing.
		return Outcome{Code: OutcomeEmailSent, Next: s.resolveNext(p, info)}, nil
	}
	if p.Empty() {
		return Outcome{Code: OutcomeEmailEmpty}, nil
	}

	counter, err := s.incrementCounter(form)
	if err != nil {
		return Outcome{}, err
	}
	if counter > s.cfg.Limits.MonthlySubmissions && !caps.UnlimitedSubmissions {
		return Outcome{Code: OutcomeOverLimit}, nil
	}

	if p.ReplyTo != "" {
		if _, err := mail.ParseAddress(p.ReplyTo); err != nil {
			if caps.Archive {
				if aerr := s.archive(form, p.Fields, caps.ArchiveLimit); aerr != nil {
					s.log.Warn("archive failed", zap.Uint("form", form.ID), zap.Error(aerr))
				}
			}
			return Outcome{
				Code:     OutcomeReplyToError,
				Email:    p.ReplyTo,
				Referrer: info.Referrer,
			}, nil
		}
	}

	if caps.Archive {
		if err := s.archive(form, p.Fields, caps.ArchiveLimit); err != nil {
			return Outcome{}, err
		}
	}

	if form.DisableEmail {
		return Outcome{Code: OutcomeNoEmailArchived, Next: s.resolveNext(p, info)}, nil
	}

	if err := s.sendNotification(form, caps, info, p); err != nil {
		return Outcome{}, err
	}
	metrics.EmailsSent.WithLabelValues("notification").Inc()
	return Outcome{Code: OutcomeEmailSent, Next: s.resolveNext(p, info)}, nil
}

func (s *Service) sendNotification(form *models.FormModel, caps Capabilities, info *RequestInfo, p *Payload) error {
	email := mailpkg.SubmissionEmail{
		To:             form.Email,
		ReplyTo:        p.ReplyTo,
		Subject:        p.Subject,
		Host:           form.Host,
		Fields:         fieldRows(p.Fields),
		UnsubscribeURL: s.unconfirmURL(form),
		TextOnly:       p.Format == "plain",
	}
	if caps.CC {
		email.CC = p.CC
	}

	if form.Template != nil {
		html, err := RenderEmailTemplate(form.Template, p.Fields)
		if err != nil {
			s.log.Warn("custom template failed, falling back to stock",
				zap.Uint("form", form.ID), zap.Error(err))
		} else {
			email.CustomHTML = html
			email.FromName = form.Template.FromName
			if email.Subject == "" {
				email.Subject = form.Template.Subject
			}
		}
	}

	return s.sender.SendSubmission(email)
}

func fieldRows(fields models.FieldList) []mailpkg.FieldRow {
	rows := make([]mailpkg.FieldRow, 0, len(fields))
	for _, f := range fields {
		rows = append(rows, mailpkg.FieldRow{Key: f.Key, Value: f.Value})
	}
	return rows
}

// SendConfirmation starts (or reports an already started) ownership
// handshake. The submission that triggered it is parked in redis and
// replayed once the owner clicks through. ConfirmSent only commits
// after the mail transport accepted, so a failed send can be retried by
// simply submitting again.
func (s *Service) SendConfirmation(ctx context.Context, form *models.FormModel, p *Payload) (Outcome, error) {
	if form.ConfirmSent {
		return Outcome{Code: OutcomeConfirmationDuplicated, Email: form.Email, Host: form.Host}, nil
	}

	if p != nil && !p.Empty() {
		if err := s.stashPayload(ctx, form.ID, p); err != nil {
			s.log.Warn("could not stash pending payload", zap.Uint("form", form.ID), zap.Error(err))
		}
	}

	ttl := time.Duration(s.cfg.Limits.ConfirmNonceTTLHours) * time.Hour
	nonce, err := tokens.SignConfirmNonce(form.ID, ttl)
	if err != nil {
		return Outcome{}, err
	}

	err = s.sender.SendConfirmation(form.Email, mailpkg.ConfirmationData{
		Host:       form.Host,
		Email:      form.Email,
		ConfirmURL: s.serviceURL("/confirm/" + nonce),
	})
	if err != nil {
		return Outcome{}, err
	}
	metrics.EmailsSent.WithLabelValues("confirmation").Inc()

	if err := s.db.Model(form).Update("confirm_sent", true).Error; err != nil {
		return Outcome{}, err
	}
	form.ConfirmSent = true
	return Outcome{Code: OutcomeConfirmationSent, Email: form.Email, Host: form.Host}, nil
}

// ConfirmForm flips a form to confirmed and replays any parked
// submission through the normal delivery path. The bool reports whether
// anything changed (false: it was already confirmed).
func (s *Service) ConfirmForm(ctx context.Context, id uint) (*models.FormModel, bool, error) {
	form, err := s.loadForm(id)
	if err != nil || form == nil {
		return nil, false, err
	}
	if form.Confirmed {
		return form, false, nil
	}

	err = s.db.Model(form).Updates(map[string]interface{}{
		"confirmed":    true,
		"confirm_sent": false,
	}).Error
	if err != nil {
		return nil, false, err
	}
	form.Confirmed = true
	form.ConfirmSent = false

	if p, perr := s.popPayload(ctx, form.ID); perr == nil && p != nil && !p.Empty() {
		info := &RequestInfo{Host: form.Host, Referrer: form.Host}
		if _, derr := s.Deliver(ctx, form, s.capabilitiesFor(form), info, p); derr != nil {
			s.log.Warn("replay of parked submission failed", zap.Uint("form", form.ID), zap.Error(derr))
		}
	} else if perr != nil {
		s.log.Warn("could not pop parked payload", zap.Uint("form", form.ID), zap.Error(perr))
	}

	return form, true, nil
}

// resolveNext picks where to send the browser after a delivery. _next
// is honored when it parses as a sane http(s) or relative URL; anything
// else falls back to the service thanks page.
func (s *Service) resolveNext(p *Payload, info *RequestInfo) string {
	next := strings.TrimSpace(p.Next)
	if next != "" {
		if u, err := url.Parse(next); err == nil {
			switch u.Scheme {
			case "http", "https", "":
				if u.Host != "" || u.Path != "" {
					return next
				}
			}
		}
	}
	thanks := s.serviceURL("/thanks")
	if info.Referrer != "" {
		thanks += "?next=" + url.QueryEscape(info.Referrer)
	}
	return thanks
}

func (s *Service) serviceURL(path string) string {
	return strings.TrimRight(s.cfg.Service.URL, "/") + path
}

func (s *Service) unconfirmURL(form *models.FormModel) string {
	digest := tokens.UnconfirmDigest(form.ID, form.Email)
	return s.serviceURL(fmt.Sprintf("/unconfirm/%d/%s", form.ID, digest))
}
