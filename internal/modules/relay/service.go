package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/TravisBrace/formspree/internal/config"
	"github.com/TravisBrace/formspree/internal/models"
	"github.com/TravisBrace/formspree/internal/pkg/bounce"
	"github.com/TravisBrace/formspree/internal/pkg/hashid"
	mailpkg "github.com/TravisBrace/formspree/internal/pkg/mail"
	"github.com/TravisBrace/formspree/internal/pkg/tokens"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// errInvalidAddress: the target is neither a plausible email nor a
	// known hashid. The wording deliberately never reveals which.
	errInvalidAddress = errors.New("invalid email address")
	// errFormDisabled: the owner switched the form off.
	errFormDisabled = errors.New("this form is disabled")
	// errAjaxUnregistered: scripts may only talk to forms that already exist.
	errAjaxUnregistered = errors.New("unable to submit form. this endpoint has not been registered yet, submit it once from a regular page first")
	// errServiceHost: someone tried to bind a form to our own domain.
	errServiceHost = errors.New("forms cannot be created from this domain")
)

// hostMismatchError carries both sides of a failed trust check so the
// refusal can show the owner exactly what diverged.
type hostMismatchError struct {
	Stored  string
	Current string
}

func (e *hostMismatchError) Error() string {
	return fmt.Sprintf("this form was registered for %s and cannot accept submissions from %s", e.Stored, e.Current)
}

// Mailer is the slice of the mail sender the relay uses.
type Mailer interface {
	SendSubmission(m mailpkg.SubmissionEmail) error
	SendConfirmation(to string, d mailpkg.ConfirmationData) error
	SendUnconfirmRequest(to string, d mailpkg.UnconfirmRequestData) error
}

// CaptchaVerifier answers challenge checks and names the site key
// rendered into challenge pages.
type CaptchaVerifier interface {
	Verify(ctx context.Context, solution, remoteIP string) (bool, error)
	SiteKey() string
}

// BounceList is the address suppression list consulted before resends.
type BounceList interface {
	Lookup(ctx context.Context, email string) (*bounce.Entry, error)
	Delete(ctx context.Context, email string) error
}

// Stash is the expendable key-value store behind parked payloads and
// opt-out markers.
type Stash interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	GetDel(ctx context.Context, key string) (string, error)
}

// Service owns every relay decision that touches storage or an
// external system. Handlers stay thin on top of it.
type Service struct {
	db      *gorm.DB
	rdb     Stash
	sender  Mailer
	captcha CaptchaVerifier
	bounce  BounceList
	cfg     *config.AppConfig
	log     *zap.Logger
}

func NewService(db *gorm.DB, rdb Stash, sender Mailer, cap CaptchaVerifier, bnc BounceList, cfg *config.AppConfig, log *zap.Logger) *Service {
	return &Service{db: db, rdb: rdb, sender: sender, captcha: cap, bounce: bnc, cfg: cfg, log: log}
}

// resolveForm maps the URL target to a form row. Targets with an "@"
// are email addresses, everything else must decode as a hashid. The
// email side creates the form on first contact; the hashid side never
// does.
//
// info.WantsJSON may be rewritten here: hashid forms latch the caller
// style of their very first request and keep answering in it.
func (s *Service) resolveForm(target string, info *RequestInfo) (*models.FormModel, error) {
	if strings.Contains(target, "@") {
		return s.resolveByEmail(target, info)
	}
	if id, ok := hashid.Decode(target); ok {
		return s.resolveByHashid(id, info)
	}
	return nil, errInvalidAddress
}

func (s *Service) resolveByHashid(id uint, info *RequestInfo) (*models.FormModel, error) {
	form, err := s.loadForm(id)
	if err != nil {
		return nil, err
	}
	if form == nil {
		return nil, errInvalidAddress
	}

	if form.UsesAjax == nil {
		latched := info.WantsJSON
		form.UsesAjax = &latched
		if err := s.db.Model(form).Update("uses_ajax", latched).Error; err != nil {
			return nil, err
		}
	} else {
		info.WantsJSON = *form.UsesAjax
	}

	if form.Disabled {
		return nil, errFormDisabled
	}

	if form.Host == "" {
		form.Host = info.Host
		if err := s.db.Model(form).Update("host", info.Host).Error; err != nil {
			return nil, err
		}
	} else if !hostMatches(form.Host, info.Host, form.Sitewide) {
		return nil, &hostMismatchError{Stored: form.Host, Current: info.Host}
	}

	return form, nil
}

func (s *Service) resolveByEmail(target string, info *RequestInfo) (*models.FormModel, error) {
	email := strings.ToLower(strings.TrimSpace(target))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, errInvalidAddress
	}

	hash := tokens.FormHash(email, info.Host)
	form, err := s.findByHash(hash)
	if err != nil {
		return nil, err
	}

	if form == nil {
		if info.WantsJSON {
			return nil, errAjaxUnregistered
		}
		if s.isServiceHost(info.Host) {
			return nil, errServiceHost
		}
		form, err = s.createUnconfirmed(email, info.Host, hash)
		if err != nil {
			return nil, err
		}
	}

	if form.Disabled {
		return nil, errFormDisabled
	}
	return form, nil
}

// createUnconfirmed inserts the form row for a fresh (email, host)
// pair. Two first submissions racing for the same pair both pass the
// lookup; the unique hash column lets exactly one insert win and the
// loser reloads the winner's row.
func (s *Service) createUnconfirmed(email, host, hash string) (*models.FormModel, error) {
	form := &models.FormModel{
		Email:          email,
		Host:           host,
		Hash:           &hash,
		CounterResetAt: monthStart(time.Now()),
	}
	err := s.db.Create(form).Error
	if err == nil {
		return form, nil
	}
	if isDuplicateKey(err) {
		return s.findByHash(hash)
	}
	return nil, err
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}

func (s *Service) loadForm(id uint) (*models.FormModel, error) {
	var form models.FormModel
	err := s.db.Preload("Owner").Preload("Template").First(&form, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &form, nil
}

func (s *Service) findByHash(hash string) (*models.FormModel, error) {
	var form models.FormModel
	err := s.db.Preload("Owner").Preload("Template").First(&form, "hash = ?", hash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &form, nil
}

// isServiceHost reports whether host points at the service itself.
func (s *Service) isServiceHost(host string) bool {
	own := referrerHost(s.cfg.Service.URL)
	if own == "" {
		return false
	}
	return removeWWW(strings.TrimRight(host, "/")) == removeWWW(strings.TrimRight(own, "/"))
}

// capabilitiesFor resolves what the owning account's plan allows.
// Ownerless forms (lazily created from an email target) get none.
func (s *Service) capabilitiesFor(form *models.FormModel) Capabilities {
	if form.Owner == nil {
		return Capabilities{}
	}
	caps := Capabilities{Dashboard: true}
	if form.Owner.Plan == s.cfg.Service.UpgradedPlan {
		caps.Archive = true
		caps.ArchiveLimit = s.cfg.Limits.ArchivedSubmissions
		caps.UnlimitedSubmissions = true
		caps.CC = true
	}
	return caps
}

// incrementCounter rolls the counter over at month boundaries and then
// counts this submission. The read-modify-write is unguarded: two
// concurrent submissions may land on the same value and the quota can
// overshoot by a few, which costs an email or two, not money.
func (s *Service) incrementCounter(form *models.FormModel) (int, error) {
	start := monthStart(time.Now())
	if form.CounterResetAt.Before(start) {
		form.Counter = 0
		form.CounterResetAt = start
	}
	form.Counter++
	err := s.db.Model(form).Updates(map[string]interface{}{
		"counter":          form.Counter,
		"counter_reset_at": form.CounterResetAt,
	}).Error
	return form.Counter, err
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// archive stores a submission and prunes the archive down to the
// plan's retention window, oldest first.
func (s *Service) archive(form *models.FormModel, fields models.FieldList, limit int) error {
	sub := models.SubmissionModel{
		FormID:      form.ID,
		SubmittedAt: time.Now(),
		Fields:      fields,
	}
	if err := s.db.Create(&sub).Error; err != nil {
		return err
	}
	if limit <= 0 {
		return nil
	}

	// MySQL rejects LIMIT inside IN subqueries, so find the cutoff id
	// separately and delete everything older.
	var cutoff []uint
	err := s.db.Model(&models.SubmissionModel{}).
		Where("form_id = ?", form.ID).
		Order("id DESC").
		Offset(limit-1).Limit(1).
		Pluck("id", &cutoff).Error
	if err != nil || len(cutoff) == 0 {
		return err
	}
	return s.db.Where("form_id = ? AND id < ?", form.ID, cutoff[0]).
		Delete(&models.SubmissionModel{}).Error
}

func (s *Service) pendingKey(formID uint) string {
	return fmt.Sprintf("forms:pending:%d", formID)
}

// stashPayload parks a submission while its form awaits confirmation.
func (s *Service) stashPayload(ctx context.Context, formID uint, p *Payload) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	ttl := time.Duration(s.cfg.Limits.ConfirmNonceTTLHours) * time.Hour
	return s.rdb.Set(ctx, s.pendingKey(formID), raw, ttl)
}

// popPayload retrieves and clears the parked submission, if any.
func (s *Service) popPayload(ctx context.Context, formID uint) (*Payload, error) {
	raw, err := s.rdb.GetDel(ctx, s.pendingKey(formID))
	if err != nil || raw == "" {
		return nil, err
	}
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	return &p, nil
}
