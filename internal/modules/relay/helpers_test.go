package relay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/TravisBrace/formspree/internal/config"
	"github.com/TravisBrace/formspree/internal/models"
	"github.com/TravisBrace/formspree/internal/pkg/bounce"
	mailpkg "github.com/TravisBrace/formspree/internal/pkg/mail"
	"github.com/TravisBrace/formspree/internal/pkg/tokens"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// memStash is an in-process stand-in for the redis wrapper. Values
// arrive as []byte from payload stashing and as plain strings from
// marker creation.
type memStash struct {
	m       map[string]string
	failSet bool
}

func newMemStash() *memStash { return &memStash{m: map[string]string{}} }

func (s *memStash) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if s.failSet {
		return errors.New("stash down")
	}
	switch v := value.(type) {
	case []byte:
		s.m[key] = string(v)
	case string:
		s.m[key] = v
	default:
		s.m[key] = fmt.Sprint(v)
	}
	return nil
}

func (s *memStash) Get(_ context.Context, key string) (string, error) {
	return s.m[key], nil
}

func (s *memStash) GetDel(_ context.Context, key string) (string, error) {
	v := s.m[key]
	delete(s.m, key)
	return v, nil
}

type fakeMailer struct {
	submissions   []mailpkg.SubmissionEmail
	confirmations []mailpkg.ConfirmationData
	confirmTo     []string
	unconfirms    []mailpkg.UnconfirmRequestData
	fail          bool
}

func (f *fakeMailer) SendSubmission(m mailpkg.SubmissionEmail) error {
	if f.fail {
		return errors.New("mailer down")
	}
	f.submissions = append(f.submissions, m)
	return nil
}

func (f *fakeMailer) SendConfirmation(to string, d mailpkg.ConfirmationData) error {
	if f.fail {
		return errors.New("mailer down")
	}
	f.confirmTo = append(f.confirmTo, to)
	f.confirmations = append(f.confirmations, d)
	return nil
}

func (f *fakeMailer) SendUnconfirmRequest(to string, d mailpkg.UnconfirmRequestData) error {
	if f.fail {
		return errors.New("mailer down")
	}
	f.unconfirms = append(f.unconfirms, d)
	return nil
}

type fakeCaptcha struct {
	verified bool
	err      error
	calls    int
}

func (f *fakeCaptcha) Verify(context.Context, string, string) (bool, error) {
	f.calls++
	return f.verified, f.err
}

func (f *fakeCaptcha) SiteKey() string { return "test-site-key" }

type fakeBounce struct {
	entry   *bounce.Entry
	err     error
	deleted []string
}

func (f *fakeBounce) Lookup(context.Context, string) (*bounce.Entry, error) {
	return f.entry, f.err
}

func (f *fakeBounce) Delete(_ context.Context, email string) error {
	f.deleted = append(f.deleted, email)
	return nil
}

type serviceFixture struct {
	svc     *Service
	db      *gorm.DB
	stash   *memStash
	mailer  *fakeMailer
	captcha *fakeCaptcha
	bounce  *fakeBounce
	cfg     *config.AppConfig
}

func newTestService(t *testing.T) *serviceFixture {
	t.Helper()
	fx := &serviceFixture{
		db:      openTestDB(t),
		stash:   newMemStash(),
		mailer:  &fakeMailer{},
		captcha: &fakeCaptcha{verified: true},
		bounce:  &fakeBounce{},
		cfg:     testConfig(),
	}
	fx.svc = NewService(fx.db, fx.stash, fx.mailer, fx.captcha, fx.bounce, fx.cfg, zap.NewNop())
	return fx
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.UserModel{},
		&models.FormModel{},
		&models.SubmissionModel{},
		&models.EmailTemplateModel{},
	))
	return db
}

func testConfig() *config.AppConfig {
	cfg := &config.AppConfig{}
	cfg.Service.Name = "Forms"
	cfg.Service.URL = "http://forms.test"
	cfg.Service.UpgradedPlan = "gold"
	cfg.Limits.MonthlySubmissions = 1000
	cfg.Limits.ArchivedSubmissions = 1000
	cfg.Limits.RatePerMinute = 120
	cfg.Limits.HostNonceTTLHours = 4
	cfg.Limits.ConfirmNonceTTLHours = 72
	return cfg
}

func createForm(t *testing.T, db *gorm.DB, form *models.FormModel) *models.FormModel {
	t.Helper()
	if form.CounterResetAt.IsZero() {
		form.CounterResetAt = monthStart(time.Now())
	}
	require.NoError(t, db.Create(form).Error)
	return form
}

// createEmailForm inserts the row an email-targeted submission would
// have created, keyed by its hash.
func createEmailForm(t *testing.T, db *gorm.DB, email, host string, confirmed bool) *models.FormModel {
	t.Helper()
	hash := tokens.FormHash(email, host)
	return createForm(t, db, &models.FormModel{
		Email:     email,
		Host:      host,
		Hash:      &hash,
		Confirmed: confirmed,
	})
}

func createUser(t *testing.T, db *gorm.DB, plan string) *models.UserModel {
	t.Helper()
	u := &models.UserModel{
		Email:    fmt.Sprintf("owner-%s@example.com", uuid.NewString()[:8]),
		Password: "irrelevant",
		Plan:     plan,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func reloadForm(t *testing.T, db *gorm.DB, id uint) *models.FormModel {
	t.Helper()
	var form models.FormModel
	require.NoError(t, db.First(&form, "id = ?", id).Error)
	return &form
}
