// Package dashboard is the owner-facing JSON API: managed forms,
// archived submissions, custom email templates and exports. Everything
// here sits behind session auth; the relay never calls into it.
package dashboard

import (
	"errors"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/TravisBrace/formspree/internal/config"
	"github.com/TravisBrace/formspree/internal/middleware"
	"github.com/TravisBrace/formspree/internal/models"
	"github.com/TravisBrace/formspree/internal/modules/relay"
	"github.com/TravisBrace/formspree/internal/pkg/hashid"
	"github.com/TravisBrace/formspree/internal/pkg/pagination"
	"github.com/TravisBrace/formspree/internal/pkg/response"
	"gorm.io/gorm"
)

type CreateFormDTO struct {
	Email    string `json:"email" binding:"required"`
	Host     string `json:"host"`
	Sitewide bool   `json:"sitewide"`
}

// UpdateFormDTO toggles form switches. Pointers so that absent fields
// stay untouched.
type UpdateFormDTO struct {
	Disabled        *bool   `json:"disabled"`
	DisableEmail    *bool   `json:"disable_email"`
	CaptchaDisabled *bool   `json:"captcha_disabled"`
	Sitewide        *bool   `json:"sitewide"`
	Host            *string `json:"host"`
}

type TemplateDTO struct {
	FromName string `json:"from_name"`
	Subject  string `json:"subject"`
	Style    string `json:"style"`
	Body     string `json:"body" binding:"required"`
}

type Service struct {
	db  *gorm.DB
	cfg *config.AppConfig
}

func NewService(db *gorm.DB, cfg *config.AppConfig) *Service {
	return &Service{db: db, cfg: cfg}
}

func (s *Service) listForms(ownerID string) ([]models.FormModel, error) {
	var forms []models.FormModel
	err := s.db.Where("owner_id = ?", ownerID).Order("id ASC").Find(&forms).Error
	return forms, err
}

func (s *Service) createForm(ownerID string, dto *CreateFormDTO) (*models.FormModel, error) {
	email := strings.ToLower(strings.TrimSpace(dto.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, errors.New("invalid email address")
	}
	host := normalizeHostInput(dto.Host)
	if dto.Sitewide && host == "" {
		return nil, errors.New("sitewide forms need a host")
	}

	form := &models.FormModel{
		Email:          email,
		Host:           host,
		Sitewide:       dto.Sitewide,
		OwnerID:        &ownerID,
		CounterResetAt: time.Date(time.Now().Year(), time.Now().Month(), 1, 0, 0, 0, 0, time.UTC),
	}
	return form, s.db.Create(form).Error
}

// loadOwned resolves a hashid to a form and checks it belongs to the
// caller. (nil, nil) means not found; gorm.ErrInvalidData stands in for
// "exists but not yours".
func (s *Service) loadOwned(ownerID, hid string) (*models.FormModel, error) {
	id, ok := hashid.Decode(hid)
	if !ok {
		return nil, nil
	}
	var form models.FormModel
	err := s.db.Preload("Template").First(&form, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if form.OwnerID == nil || *form.OwnerID != ownerID {
		return nil, gorm.ErrInvalidData
	}
	return &form, nil
}

func (s *Service) updateForm(form *models.FormModel, dto *UpdateFormDTO) error {
	updates := map[string]interface{}{}
	if dto.Disabled != nil {
		updates["disabled"] = *dto.Disabled
	}
	if dto.DisableEmail != nil {
		updates["disable_email"] = *dto.DisableEmail
	}
	if dto.CaptchaDisabled != nil {
		updates["captcha_disabled"] = *dto.CaptchaDisabled
	}
	if dto.Host != nil {
		updates["host"] = normalizeHostInput(*dto.Host)
	}
	if dto.Sitewide != nil {
		host := form.Host
		if dto.Host != nil {
			host = normalizeHostInput(*dto.Host)
		}
		if *dto.Sitewide && host == "" {
			return errors.New("sitewide forms need a host")
		}
		updates["sitewide"] = *dto.Sitewide
	}
	if len(updates) == 0 {
		return nil
	}
	if err := s.db.Model(form).Updates(updates).Error; err != nil {
		return err
	}
	return s.db.Preload("Template").First(form, "id = ?", form.ID).Error
}

// deleteForm drops the form together with its archive and template.
// Counters live on the form row itself, so nothing else to clean up.
func (s *Service) deleteForm(form *models.FormModel) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("form_id = ?", form.ID).Delete(&models.SubmissionModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("form_id = ?", form.ID).Delete(&models.EmailTemplateModel{}).Error; err != nil {
			return err
		}
		return tx.Delete(form).Error
	})
}

func (s *Service) submissions(form *models.FormModel, q pagination.Query) ([]models.SubmissionModel, response.Pagination, error) {
	tx := s.db.Model(&models.SubmissionModel{}).
		Where("form_id = ?", form.ID).
		Order("id DESC")
	var subs []models.SubmissionModel
	pag, err := pagination.Paginate(tx, q, &subs)
	return subs, pag, err
}

// putTemplate validates the body by rendering it once against sample
// data, then upserts the form's single template row.
func (s *Service) putTemplate(form *models.FormModel, dto *TemplateDTO) (*models.EmailTemplateModel, error) {
	candidate := models.EmailTemplateModel{
		FormID:   form.ID,
		FromName: strings.TrimSpace(dto.FromName),
		Subject:  strings.TrimSpace(dto.Subject),
		Style:    dto.Style,
		Body:     dto.Body,
	}
	if _, err := relay.RenderEmailTemplate(&candidate, sampleFields()); err != nil {
		return nil, err
	}

	var existing models.EmailTemplateModel
	err := s.db.First(&existing, "form_id = ?", form.ID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &candidate, s.db.Create(&candidate).Error
	case err != nil:
		return nil, err
	default:
		existing.FromName = candidate.FromName
		existing.Subject = candidate.Subject
		existing.Style = candidate.Style
		existing.Body = candidate.Body
		return &existing, s.db.Save(&existing).Error
	}
}

func (s *Service) getTemplate(form *models.FormModel) (*models.EmailTemplateModel, error) {
	var tpl models.EmailTemplateModel
	err := s.db.First(&tpl, "form_id = ?", form.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (s *Service) planUpgraded(ownerID string) (bool, error) {
	var user models.UserModel
	if err := s.db.First(&user, "id = ?", ownerID).Error; err != nil {
		return false, err
	}
	return user.Plan == s.cfg.Service.UpgradedPlan, nil
}

func sampleFields() models.FieldList {
	var f models.FieldList
	f.Set("name", "Jane Doe")
	f.Set("email", "jane@example.com")
	f.Set("message", "Hello! This is what a submission will look like.")
	return f
}

// normalizeHostInput accepts what owners paste into the host box: with
// or without a scheme, with or without a path.
func normalizeHostInput(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "://") {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			return strings.ToLower(u.Host) + u.Path
		}
	}
	return strings.ToLower(raw)
}

type formResponse struct {
	Hashid          string    `json:"hashid"`
	Email           string    `json:"email"`
	Host            string    `json:"host"`
	Sitewide        bool      `json:"sitewide"`
	Confirmed       bool      `json:"confirmed"`
	Disabled        bool      `json:"disabled"`
	DisableEmail    bool      `json:"disable_email"`
	CaptchaDisabled bool      `json:"captcha_disabled"`
	Counter         int       `json:"counter"`
	HasTemplate     bool      `json:"has_template"`
	Endpoint        string    `json:"endpoint"`
	Created         time.Time `json:"created"`
	Modified        time.Time `json:"modified"`
}

func (s *Service) toResponse(f *models.FormModel) formResponse {
	hid := hashid.Encode(f.ID)
	return formResponse{
		Hashid:          hid,
		Email:           f.Email,
		Host:            f.Host,
		Sitewide:        f.Sitewide,
		Confirmed:       f.Confirmed,
		Disabled:        f.Disabled,
		DisableEmail:    f.DisableEmail,
		CaptchaDisabled: f.CaptchaDisabled,
		Counter:         f.Counter,
		HasTemplate:     f.Template != nil,
		Endpoint:        strings.TrimRight(s.cfg.Service.URL, "/") + "/" + hid,
		Created:         f.CreatedAt,
		Modified:        f.UpdatedAt,
	}
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/forms", authMW)

	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:hashid", h.get)
	g.PATCH("/:hashid", h.update)
	g.DELETE("/:hashid", h.delete)
	g.GET("/:hashid/submissions", h.listSubmissions)
	g.GET("/:hashid/template", h.getTemplate)
	g.PUT("/:hashid/template", h.putTemplate)
	g.GET("/:hashid/export", h.export)
}

func (h *Handler) list(c *gin.Context) {
	forms, err := h.svc.listForms(middleware.CurrentUserID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	out := make([]formResponse, 0, len(forms))
	for i := range forms {
		out = append(out, h.svc.toResponse(&forms[i]))
	}
	response.OK(c, out)
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateFormDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	form, err := h.svc.createForm(middleware.CurrentUserID(c), &dto)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.Created(c, h.svc.toResponse(form))
}

// ownedForm resolves :hashid for the current user, writing the error
// response itself when the form cannot be used.
func (h *Handler) ownedForm(c *gin.Context) *models.FormModel {
	form, err := h.svc.loadOwned(middleware.CurrentUserID(c), c.Param("hashid"))
	if errors.Is(err, gorm.ErrInvalidData) {
		response.Unauthorized(c)
		return nil
	}
	if err != nil {
		response.InternalError(c, err)
		return nil
	}
	if form == nil {
		response.NotFound(c)
		return nil
	}
	return form
}

func (h *Handler) get(c *gin.Context) {
	form := h.ownedForm(c)
	if form == nil {
		return
	}
	response.OK(c, h.svc.toResponse(form))
}

func (h *Handler) update(c *gin.Context) {
	form := h.ownedForm(c)
	if form == nil {
		return
	}
	var dto UpdateFormDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.svc.updateForm(form, &dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.OK(c, h.svc.toResponse(form))
}

func (h *Handler) delete(c *gin.Context) {
	form := h.ownedForm(c)
	if form == nil {
		return
	}
	if err := h.svc.deleteForm(form); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) listSubmissions(c *gin.Context) {
	form := h.ownedForm(c)
	if form == nil {
		return
	}
	subs, pag, err := h.svc.submissions(form, pagination.FromContext(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, subs, pag)
}

func (h *Handler) getTemplate(c *gin.Context) {
	form := h.ownedForm(c)
	if form == nil {
		return
	}
	tpl, err := h.svc.getTemplate(form)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if tpl == nil {
		response.NotFound(c)
		return
	}

	preview, err := relay.RenderEmailTemplate(tpl, sampleFields())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{
		"from_name": tpl.FromName,
		"subject":   tpl.Subject,
		"style":     tpl.Style,
		"body":      tpl.Body,
		"preview":   preview,
		"modified":  tpl.UpdatedAt,
	})
}

func (h *Handler) putTemplate(c *gin.Context) {
	form := h.ownedForm(c)
	if form == nil {
		return
	}
	var dto TemplateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	tpl, err := h.svc.putTemplate(form, &dto)
	if err != nil {
		response.UnprocessableEntity(c, "template does not render: "+err.Error())
		return
	}
	response.OK(c, gin.H{
		"from_name": tpl.FromName,
		"subject":   tpl.Subject,
		"style":     tpl.Style,
		"body":      tpl.Body,
	})
}
