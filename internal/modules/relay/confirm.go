package relay

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/TravisBrace/formspree/internal/models"
	"github.com/TravisBrace/formspree/internal/pkg/captcha"
	mailpkg "github.com/TravisBrace/formspree/internal/pkg/mail"
	"github.com/TravisBrace/formspree/internal/pkg/metrics"
	"github.com/TravisBrace/formspree/internal/pkg/pages"
	"github.com/TravisBrace/formspree/internal/pkg/response"
	"github.com/TravisBrace/formspree/internal/pkg/tokens"
	"go.uber.org/zap"
)

const (
	unconfirmMarkerCookie = "unconfirm_marker"
	unconfirmMarkerTTL    = time.Hour
)

// GET /confirm/:nonce is the link from the ownership email.
func (h *Handler) confirm(c *gin.Context) {
	id, err := tokens.ParseConfirmNonce(c.Param("nonce"))
	if err != nil {
		pages.Error(c, http.StatusBadRequest, "Invalid link",
			"This confirmation link is malformed or has expired. Submit the form again to receive a fresh one.")
		return
	}

	form, changed, err := h.svc.ConfirmForm(c.Request.Context(), id)
	if err != nil {
		h.svc.log.Error("confirm failed", zap.Uint("form", id), zap.Error(err))
		pages.Error(c, http.StatusInternalServerError, "Something went wrong",
			"The confirmation could not be completed. Try the link again in a little while.")
		return
	}
	if form == nil {
		pages.Error(c, http.StatusBadRequest, "Invalid link",
			"This confirmation link does not match any form.")
		return
	}
	if !changed {
		pages.Info(c, http.StatusOK, "Already confirmed",
			fmt.Sprintf("Submissions from %s are already being delivered to %s.", form.Host, form.Email))
		return
	}
	pages.Info(c, http.StatusOK, "Email confirmed",
		fmt.Sprintf("All set. Submissions from %s will now be delivered to %s.", form.Host, form.Email))
}

// GET /unconfirm/:formID asks for the one-click opt-out link by email.
// Link-prefetching scanners hit unsubscribe URLs constantly, so nothing
// that looks like a bot triggers a send.
func (h *Handler) requestUnconfirm(c *gin.Context) {
	form := h.formFromParam(c)
	if form == nil {
		return
	}
	if isNonBrowserAgent(c.Request.UserAgent()) {
		pages.Info(c, http.StatusOK, "Open in a browser",
			"Open this link in a regular web browser to manage this form's emails.")
		return
	}

	if err := h.svc.sendUnconfirmRequest(form); err != nil {
		h.svc.log.Error("unconfirm request email failed", zap.Uint("form", form.ID), zap.Error(err))
		pages.Error(c, http.StatusInternalServerError, "Something went wrong",
			"The email could not be sent. Try again in a little while.")
		return
	}
	pages.Info(c, http.StatusOK, "Check your email",
		fmt.Sprintf("We sent a link to %s that turns off this form with one click.", form.Email))
}

// GET /unconfirm/:formID/:digest is the authenticated opt-out link.
func (h *Handler) unconfirmWithDigest(c *gin.Context) {
	form := h.formFromParam(c)
	if form == nil {
		return
	}
	if !tokens.CheckUnconfirmDigest(form.ID, form.Email, c.Param("digest")) {
		pages.Error(c, http.StatusBadRequest, "Invalid link",
			"This unsubscribe link is not valid for this form.")
		return
	}

	if err := h.svc.disableConfirmation(form); err != nil {
		h.svc.log.Error("unconfirm failed", zap.Uint("form", form.ID), zap.Error(err))
		pages.Error(c, http.StatusInternalServerError, "Something went wrong",
			"The form could not be turned off. Try the link again in a little while.")
		return
	}

	others, err := h.svc.otherConfirmedForms(form)
	if err != nil {
		h.svc.log.Warn("listing sibling forms failed", zap.Error(err))
	}
	var offered []pages.OtherForm
	if len(others) > 0 {
		token, merr := h.svc.createUnconfirmMarker(c.Request.Context(), form.Email)
		if merr != nil {
			h.svc.log.Warn("unconfirm marker not created", zap.Error(merr))
		} else {
			c.SetCookie(unconfirmMarkerCookie, token, int(unconfirmMarkerTTL.Seconds()), "/", "", false, true)
			for _, other := range others {
				offered = append(offered, pages.OtherForm{ID: other.ID, Host: other.Host})
			}
		}
	}

	pages.Unconfirmed(c, pages.UnconfirmedData{
		Host:    form.Host,
		Email:   form.Email,
		BulkURL: "/unconfirm/multiple",
		Others:  offered,
	})
}

// POST /unconfirm/:formID/:digest is the List-Unsubscribe one-click
// variant. Mail clients fire this without a user session, so the digest
// is the whole credential.
func (h *Handler) unconfirmOneClick(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("formID"), 10, 32)
	if err != nil {
		response.NotFound(c)
		return
	}
	form, err := h.svc.loadForm(uint(id))
	if err != nil || form == nil {
		response.NotFound(c)
		return
	}
	if !tokens.CheckUnconfirmDigest(form.ID, form.Email, c.Param("digest")) {
		response.Unauthorized(c)
		return
	}
	if err := h.svc.disableConfirmation(form); err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"unsubscribed": true})
}

// POST /unconfirm/multiple handles bulk opt-out from the
// post-unsubscribe page, authorized by the short-lived marker cookie.
func (h *Handler) unconfirmMultiple(c *gin.Context) {
	token, err := c.Cookie(unconfirmMarkerCookie)
	if err != nil || token == "" {
		pages.Error(c, http.StatusUnauthorized, "Link expired",
			"This page has expired. Start again from the unsubscribe link in one of the emails.")
		return
	}
	email, err := h.svc.lookupUnconfirmMarker(c.Request.Context(), token)
	if err != nil || email == "" {
		pages.Error(c, http.StatusUnauthorized, "Link expired",
			"This page has expired. Start again from the unsubscribe link in one of the emails.")
		return
	}

	var ids []uint
	for _, raw := range c.PostFormArray("form_ids") {
		if id, err := strconv.ParseUint(raw, 10, 32); err == nil {
			ids = append(ids, uint(id))
		}
	}

	count, err := h.svc.unconfirmMany(ids, email)
	if err != nil {
		h.svc.log.Error("bulk unconfirm failed", zap.Error(err))
		pages.Error(c, http.StatusInternalServerError, "Something went wrong",
			"The forms could not be turned off. Try again in a little while.")
		return
	}
	pages.Info(c, http.StatusOK, "Unsubscribed",
		fmt.Sprintf("Turned off %d form(s) for %s.", count, email))
}

// POST /resend/:email resends the confirmation from the "almost
// there" page. Bounced addresses are refused until unblocked, and
// dashboard-managed forms resend from the dashboard instead: the email
// alone cannot say which of the owner's forms is meant.
func (h *Handler) resendConfirmation(c *gin.Context) {
	ctx := c.Request.Context()
	email := strings.ToLower(strings.TrimSpace(c.Param("email")))
	host := strings.TrimSpace(c.PostForm("host"))
	if email == "" || host == "" {
		pages.Error(c, http.StatusBadRequest, "Missing details",
			"Both the email address and the website are needed to resend a confirmation.")
		return
	}

	entry, err := h.svc.bounce.Lookup(ctx, email)
	if err != nil {
		h.svc.log.Error("bounce lookup failed", zap.String("email", email), zap.Error(err))
		pages.Error(c, http.StatusInternalServerError, "Something went wrong",
			"The address could not be checked. Try again in a little while.")
		return
	}
	if entry != nil {
		pages.ErrorLink(c, http.StatusBadRequest, "Address blocked",
			fmt.Sprintf("An earlier email to %s bounced, so sending to it is paused.", email),
			"/unblock/"+url.PathEscape(email), "Unblock this address")
		return
	}

	verified, err := h.svc.captcha.Verify(ctx, c.PostForm(captcha.ResponseField), c.ClientIP())
	if err != nil {
		pages.Error(c, http.StatusInternalServerError, "Something went wrong",
			"The captcha could not be verified. Try again in a little while.")
		return
	}
	if !verified {
		pages.Error(c, http.StatusBadRequest, "Captcha required",
			"Complete the captcha and try again.")
		return
	}

	form, err := h.svc.findByHash(tokens.FormHash(email, host))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if form == nil {
		pages.Error(c, http.StatusNotFound, "No such form",
			"No form matches this address and website.")
		return
	}
	if form.Managed() {
		pages.Error(c, http.StatusBadRequest, "Not available here",
			"This form belongs to a dashboard account. Resend its confirmation from the dashboard.")
		return
	}

	if err := h.svc.resetConfirmSent(form); err != nil {
		response.InternalError(c, err)
		return
	}
	if _, err := h.svc.SendConfirmation(ctx, form, nil); err != nil {
		h.svc.log.Error("resend failed", zap.Uint("form", form.ID), zap.Error(err))
		pages.Error(c, http.StatusInternalServerError, "Something went wrong",
			"The confirmation email could not be sent. Try again in a little while.")
		return
	}

	pages.ConfirmationSent(c, pages.ConfirmationSentData{
		Email:     form.Email,
		Host:      form.Host,
		ResendURL: h.resendURL(form),
		SiteKey:   h.svc.captcha.SiteKey(),
	})
}

// GET /unblock/:email serves the captcha page for lifting a bounce block.
func (h *Handler) unblockPage(c *gin.Context) {
	email := strings.ToLower(strings.TrimSpace(c.Param("email")))
	pages.Unblock(c, pages.UnblockData{
		Email:     email,
		ActionURL: c.Request.URL.Path,
		SiteKey:   h.svc.captcha.SiteKey(),
	})
}

// POST /unblock/:email removes the address from the suppression list
// once the captcha passes.
func (h *Handler) unblock(c *gin.Context) {
	ctx := c.Request.Context()
	email := strings.ToLower(strings.TrimSpace(c.Param("email")))

	verified, err := h.svc.captcha.Verify(ctx, c.PostForm(captcha.ResponseField), c.ClientIP())
	if err != nil {
		pages.Error(c, http.StatusInternalServerError, "Something went wrong",
			"The captcha could not be verified. Try again in a little while.")
		return
	}
	if !verified {
		pages.Error(c, http.StatusBadRequest, "Captcha required",
			"Complete the captcha and try again.")
		return
	}

	if err := h.svc.bounce.Delete(ctx, email); err != nil {
		h.svc.log.Error("unblock failed", zap.String("email", email), zap.Error(err))
		pages.Error(c, http.StatusInternalServerError, "Something went wrong",
			"The address could not be unblocked. Try again in a little while.")
		return
	}
	pages.Info(c, http.StatusOK, "Address unblocked",
		fmt.Sprintf("Emails to %s will be delivered again.", email))
}

// formFromParam loads the :formID route param, rendering the 404 page
// itself when there is nothing to show.
func (h *Handler) formFromParam(c *gin.Context) *models.FormModel {
	id, err := strconv.ParseUint(c.Param("formID"), 10, 32)
	if err != nil {
		pages.Error(c, http.StatusNotFound, "Not found", "No such form.")
		return nil
	}
	form, err := h.svc.loadForm(uint(id))
	if err != nil {
		h.svc.log.Error("form load failed", zap.Uint64("form", id), zap.Error(err))
		pages.Error(c, http.StatusInternalServerError, "Something went wrong", "Try again in a little while.")
		return nil
	}
	if form == nil {
		pages.Error(c, http.StatusNotFound, "Not found", "No such form.")
		return nil
	}
	return form
}

func isNonBrowserAgent(ua string) bool {
	ua = strings.ToLower(ua)
	if ua == "" {
		return true
	}
	for _, marker := range []string{"bot", "crawl", "spider", "curl", "wget", "python", "scan", "preview"} {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}

// --- service side ---

func (s *Service) sendUnconfirmRequest(form *models.FormModel) error {
	err := s.sender.SendUnconfirmRequest(form.Email, mailpkg.UnconfirmRequestData{
		Host:         form.Host,
		UnconfirmURL: s.unconfirmURL(form),
	})
	if err != nil {
		return err
	}
	metrics.EmailsSent.WithLabelValues("unconfirm").Inc()
	return nil
}

func (s *Service) disableConfirmation(form *models.FormModel) error {
	err := s.db.Model(form).Updates(map[string]interface{}{
		"confirmed":    false,
		"confirm_sent": false,
	}).Error
	if err == nil {
		form.Confirmed = false
		form.ConfirmSent = false
	}
	return err
}

func (s *Service) resetConfirmSent(form *models.FormModel) error {
	err := s.db.Model(form).Update("confirm_sent", false).Error
	if err == nil {
		form.ConfirmSent = false
	}
	return err
}

func (s *Service) otherConfirmedForms(form *models.FormModel) ([]models.FormModel, error) {
	var others []models.FormModel
	err := s.db.
		Where("email = ? AND id <> ? AND confirmed = ?", form.Email, form.ID, true).
		Order("host ASC").
		Find(&others).Error
	return others, err
}

// unconfirmMany flips Confirmed off for the given forms, but only where
// the marker's email actually owns them. Ids for other addresses are
// silently skipped.
func (s *Service) unconfirmMany(ids []uint, email string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.Model(&models.FormModel{}).
		Where("id IN ? AND email = ? AND confirmed = ?", ids, email, true).
		Updates(map[string]interface{}{"confirmed": false, "confirm_sent": false})
	return res.RowsAffected, res.Error
}

func (s *Service) markerKey(token string) string {
	return "forms:unconfirm-marker:" + token
}

func (s *Service) createUnconfirmMarker(ctx context.Context, email string) (string, error) {
	token := uuid.NewString()
	if err := s.rdb.Set(ctx, s.markerKey(token), email, unconfirmMarkerTTL); err != nil {
		return "", err
	}
	return token, nil
}

func (s *Service) lookupUnconfirmMarker(ctx context.Context, token string) (string, error) {
	return s.rdb.Get(ctx, s.markerKey(token))
}
