package relay

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/TravisBrace/formspree/internal/models"
	"github.com/TravisBrace/formspree/internal/pkg/metrics"
	"github.com/TravisBrace/formspree/internal/pkg/pages"
	"github.com/TravisBrace/formspree/internal/pkg/response"
	"github.com/TravisBrace/formspree/internal/pkg/tokens"
	"go.uber.org/zap"
)

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// RegisterRoutes mounts the public relay surface at the root: the
// submission endpoint plus the confirmation lifecycle around it.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/thanks", h.thanks)

	rg.GET("/confirm/:nonce", h.confirm)
	rg.GET("/unconfirm/:formID", h.requestUnconfirm)
	rg.GET("/unconfirm/:formID/:digest", h.unconfirmWithDigest)
	rg.POST("/unconfirm/:formID/:digest", h.unconfirmOneClick)
	rg.POST("/unconfirm/multiple", h.unconfirmMultiple)
	rg.POST("/resend/:email", h.resendConfirmation)
	rg.GET("/unblock/:email", h.unblockPage)
	rg.POST("/unblock/:email", h.unblock)

	rg.GET("/:target", h.methodNotAllowed)
	rg.POST("/:target", h.submit)
}

// GET /:target answers with a reminder that forms must POST.
func (h *Handler) methodNotAllowed(c *gin.Context) {
	if wantsJSONRequest(c) {
		response.MethodNotAllowed(c, "submit forms with POST, this endpoint does not answer GET")
		return
	}
	pages.Info(c, http.StatusMethodNotAllowed, "Use POST",
		"This is a form endpoint. Point your form's action attribute here and submit it with the POST method.")
}

// POST /:target runs the submission pipeline.
func (h *Handler) submit(c *gin.Context) {
	ctx := c.Request.Context()
	info := &RequestInfo{WantsJSON: wantsJSONRequest(c), IP: c.ClientIP()}

	p, err := parsePayload(c)
	if err != nil {
		h.respondError(c, info, http.StatusBadRequest, "Unreadable submission",
			"The submission body could not be parsed.")
		return
	}
	info.Language = p.Language

	host, referrer, err := resolveOrigin(p, c.Request.Referer())
	if err != nil {
		if errors.Is(err, errBadNonce) {
			h.respondError(c, info, http.StatusInternalServerError, "Invalid request",
				"The challenge reply carried an invalid host token. Reload the page the form lives on and submit again.")
			return
		}
		h.respondError(c, info, http.StatusBadRequest, "Unknown origin",
			"The submission arrived without a Referer header, so it cannot be matched to a website. Submit the form from a regular page.")
		return
	}
	info.Host, info.Referrer = host, referrer

	form, err := h.svc.resolveForm(c.Param("target"), info)
	if err != nil {
		h.respondResolveError(c, info, err)
		return
	}
	caps := h.svc.capabilitiesFor(form)

	if !form.Confirmed {
		outcome, err := h.svc.SendConfirmation(ctx, form, p)
		if err != nil {
			h.svc.log.Error("confirmation dispatch failed", zap.Uint("form", form.ID), zap.Error(err))
			h.respondError(c, info, http.StatusInternalServerError, "Something went wrong",
				"The confirmation email could not be sent. Try again in a little while.")
			return
		}
		h.respondOutcome(c, info, form, outcome)
		return
	}

	needsCaptcha := !info.WantsJSON
	if needsCaptcha {
		verified, verr := h.svc.captcha.Verify(ctx, p.Captcha, info.IP)
		if verr != nil {
			h.svc.log.Error("captcha verification unavailable", zap.Error(verr))
			h.respondError(c, info, http.StatusInternalServerError, "Something went wrong",
				"The captcha could not be verified. Try again in a little while.")
			return
		}
		needsCaptcha = !verified
	}
	if needsCaptcha && caps.Dashboard && form.CaptchaDisabled {
		needsCaptcha = false
	}
	if needsCaptcha {
		h.renderChallenge(c, info, p)
		return
	}

	outcome, err := h.svc.Deliver(ctx, form, caps, info, p)
	if err != nil {
		h.svc.log.Error("delivery failed", zap.Uint("form", form.ID), zap.Error(err))
		h.respondError(c, info, http.StatusInternalServerError, "Something went wrong",
			"The submission could not be delivered. Try again in a little while.")
		return
	}
	h.respondOutcome(c, info, form, outcome)
}

func (h *Handler) renderChallenge(c *gin.Context, info *RequestInfo, p *Payload) {
	ttl := time.Duration(h.svc.cfg.Limits.HostNonceTTLHours) * time.Hour
	nonce, err := tokens.SignHostNonce(info.Host, info.Referrer, ttl)
	if err != nil {
		h.respondError(c, info, http.StatusInternalServerError, "Something went wrong",
			"The challenge could not be prepared. Try again in a little while.")
		return
	}
	metrics.CaptchaChallenges.Inc()

	fields := make([]pages.HiddenField, 0, len(p.Raw))
	for _, f := range p.Raw {
		fields = append(fields, pages.HiddenField{Name: f.Key, Value: f.Value})
	}
	pages.Challenge(c, pages.ChallengeData{
		ActionURL: c.Request.URL.Path,
		SiteKey:   h.svc.captcha.SiteKey(),
		Language:  info.Language,
		HostNonce: nonce,
		Fields:    fields,
	})
}

func (h *Handler) respondResolveError(c *gin.Context, info *RequestInfo, err error) {
	var mismatch *hostMismatchError
	switch {
	case errors.Is(err, errInvalidAddress):
		h.respondError(c, info, http.StatusBadRequest, "Invalid email address", err.Error())
	case errors.Is(err, errFormDisabled):
		h.respondError(c, info, http.StatusForbidden, "Form disabled",
			"The owner of this form has disabled it. No submissions are accepted.")
	case errors.Is(err, errAjaxUnregistered):
		h.respondError(c, info, http.StatusBadRequest, "Unregistered endpoint", err.Error())
	case errors.Is(err, errServiceHost):
		h.respondError(c, info, http.StatusBadRequest, "Invalid host", err.Error())
	case errors.As(err, &mismatch):
		h.respondError(c, info, http.StatusForbidden, "Wrong website", mismatch.Error())
	default:
		h.svc.log.Error("form resolution failed", zap.Error(err))
		h.respondError(c, info, http.StatusInternalServerError, "Something went wrong",
			"The form could not be resolved. Try again in a little while.")
	}
}

// respondOutcome turns a delivery verdict into the HTTP answer. Every
// outcome code is handled; a new code must be wired here before it can
// ship.
func (h *Handler) respondOutcome(c *gin.Context, info *RequestInfo, form *models.FormModel, o Outcome) {
	metrics.SubmissionOutcomes.WithLabelValues(string(o.Code)).Inc()

	switch o.Code {
	case OutcomeEmailSent, OutcomeNoEmailArchived:
		if info.WantsJSON {
			response.OK(c, gin.H{"success": "email sent", "next": o.Next})
			return
		}
		c.Redirect(http.StatusFound, o.Next)

	case OutcomeEmailEmpty:
		if info.WantsJSON {
			response.BadRequest(c, "can't send an empty form")
			return
		}
		pages.Error(c, http.StatusBadRequest, "Empty form",
			"The form was submitted without any content. Give it at least one field with a name attribute.")

	case OutcomeConfirmationSent, OutcomeConfirmationDuplicated:
		if info.WantsJSON {
			msg := "confirmation email sent"
			if o.Code == OutcomeConfirmationDuplicated {
				msg = "confirmation email was already sent"
			}
			response.OK(c, gin.H{"success": msg, "email": o.Email})
			return
		}
		pages.ConfirmationSent(c, pages.ConfirmationSentData{
			Email:     o.Email,
			Host:      o.Host,
			ResendURL: h.resendURL(form),
			SiteKey:   h.svc.captcha.SiteKey(),
		})

	case OutcomeOverLimit:
		if info.WantsJSON {
			response.PaymentRequired(c, "this form is over its monthly submission quota")
			return
		}
		pages.Error(c, http.StatusPaymentRequired, "Over quota",
			"This form has received more submissions this month than its plan allows. It will start accepting again next month.")

	case OutcomeReplyToError:
		msg := fmt.Sprintf("the reply address %q (referred by %s) is not a valid email address", o.Email, o.Referrer)
		if info.WantsJSON {
			response.InternalError(c, errors.New(msg))
			return
		}
		pages.Error(c, http.StatusBadRequest, "Invalid reply address", msg)

	default:
		h.svc.log.Error("unhandled delivery outcome", zap.String("code", string(o.Code)))
		h.respondError(c, info, http.StatusInternalServerError, "Something went wrong", "Unexpected delivery outcome.")
	}
}

// resendURL is where the confirmation page's resend form posts, empty
// for dashboard-managed forms which cannot resend from the public side.
func (h *Handler) resendURL(form *models.FormModel) string {
	if form.Managed() {
		return ""
	}
	return "/resend/" + url.PathEscape(form.Email)
}

func (h *Handler) respondError(c *gin.Context, info *RequestInfo, status int, title, message string) {
	if info.WantsJSON {
		switch status {
		case http.StatusBadRequest:
			response.BadRequest(c, message)
		case http.StatusForbidden:
			response.Forbidden(c, message)
		case http.StatusPaymentRequired:
			response.PaymentRequired(c, message)
		default:
			response.InternalError(c, errors.New(message))
		}
		return
	}
	pages.Error(c, status, title, message)
}

// GET /thanks is the default landing page after a delivered submission.
func (h *Handler) thanks(c *gin.Context) {
	if next := c.Query("next"); next != "" {
		if _, err := url.Parse(next); err != nil {
			pages.Error(c, http.StatusBadRequest, "Invalid redirect", "The next parameter is not a URL.")
			return
		}
	}
	pages.Thanks(c)
}
