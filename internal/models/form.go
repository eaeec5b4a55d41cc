package models

import (
	"strings"
	"time"
)

// FormModel is one relay target: an email address bound (or about to be
// bound) to a website. Email-identified forms are created lazily on
// first submission and keyed by Hash; dashboard-created forms carry an
// owner and are addressed by the hashid of their integer ID.
type FormModel struct {
	ID        uint      `json:"id"       gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `json:"created"`
	UpdatedAt time.Time `json:"modified"`

	Hash  *string `json:"-"     gorm:"type:char(64);uniqueIndex"`
	Email string  `json:"email" gorm:"index;not null"`
	// Host keeps the path component ("example.com/contact"), never the
	// scheme or query. Empty until the first accepted submission binds it.
	Host     string `json:"host"`
	Sitewide bool   `json:"sitewide"`

	Confirmed   bool `json:"confirmed"`
	ConfirmSent bool `json:"confirm_sent"`

	Disabled        bool  `json:"disabled"`
	DisableEmail    bool  `json:"disable_email"`
	CaptchaDisabled bool  `json:"captcha_disabled"`
	UsesAjax        *bool `json:"uses_ajax"` // nil until latched by the first resolved request

	OwnerID *string `json:"-" gorm:"type:char(36);index"`

	Counter        int       `json:"counter"`
	CounterResetAt time.Time `json:"-"` // start of the month Counter belongs to

	Owner    *UserModel          `json:"-" gorm:"foreignKey:OwnerID"`
	Template *EmailTemplateModel `json:"-" gorm:"foreignKey:FormID"`
}

func (FormModel) TableName() string { return "forms" }

// Managed reports whether the form was created from the dashboard.
func (f *FormModel) Managed() bool { return f.OwnerID != nil }

// NormalizedHost is the stored host without a trailing slash, for
// exact-match trust checks.
func (f *FormModel) NormalizedHost() string {
	return strings.TrimRight(f.Host, "/")
}

// SubmissionModel is an archived submission. Only forms whose owner's
// plan retains an archive accumulate rows here.
type SubmissionModel struct {
	ID          uint      `json:"id"   gorm:"primaryKey;autoIncrement"`
	FormID      uint      `json:"-"    gorm:"index;not null"`
	SubmittedAt time.Time `json:"date"`
	Fields      FieldList `json:"fields" gorm:"type:longtext"`
}

func (SubmissionModel) TableName() string { return "submissions" }

// EmailTemplateModel customizes the notification email of one form.
// Body is Markdown with {{field}} placeholders.
type EmailTemplateModel struct {
	ID        uint      `json:"-" gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `json:"created"`
	UpdatedAt time.Time `json:"modified"`

	FormID   uint   `json:"-"         gorm:"uniqueIndex;not null"`
	FromName string `json:"from_name"`
	Subject  string `json:"subject"`
	Style    string `json:"style" gorm:"type:text"`
	Body     string `json:"body"  gorm:"type:longtext"`
}

func (EmailTemplateModel) TableName() string { return "email_templates" }
