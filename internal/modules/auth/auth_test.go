package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/TravisBrace/formspree/internal/middleware"
	"github.com/TravisBrace/formspree/internal/models"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func openAuthDB(t *testing.T) *gorm.DB {
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

func newAuthRouter(db *gorm.DB) *gin.Engine {
	r := gin.New()
	NewHandler(NewService(db)).RegisterRoutes(r.Group(""), middleware.Auth())
	return r
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.9:51234"
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterAndLogin(t *testing.T) {
	db := openAuthDB(t)
	svc := NewService(db)

	u, err := svc.Register(&RegisterDTO{Email: "  Owner@Example.COM ", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", u.Email)
	assert.Equal(t, "free", u.Plan)
	assert.NotEmpty(t, u.ID)
	assert.NotEqual(t, "hunter22", u.Password)

	token, logged, err := svc.Login("Owner@example.com", "hunter22", "203.0.113.9")
	require.NoError(t, err)
	require.NotNil(t, logged)
	uid, err := middleware.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, uid)

	var fresh models.UserModel
	require.NoError(t, db.First(&fresh, "id = ?", u.ID).Error)
	assert.NotNil(t, fresh.LastLoginTime)
	assert.Equal(t, "203.0.113.9", fresh.LastLoginIP)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	db := openAuthDB(t)
	svc := NewService(db)
	_, err := svc.Register(&RegisterDTO{Email: "owner@example.com", Password: "hunter22"})
	require.NoError(t, err)

	_, _, err = svc.Login("owner@example.com", "wrong-password", "")
	assert.Error(t, err)

	_, _, err = svc.Login("nobody@example.com", "hunter22", "")
	assert.Error(t, err)
}

func TestRegisterRejectsInvalidEmail(t *testing.T) {
	svc := NewService(openAuthDB(t))

	_, err := svc.Register(&RegisterDTO{Email: "not-an-address", Password: "hunter22"})
	assert.EqualError(t, err, "invalid email address")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := NewService(openAuthDB(t))

	_, err := svc.Register(&RegisterDTO{Email: "owner@example.com", Password: "hunter22"})
	require.NoError(t, err)

	_, err = svc.Register(&RegisterDTO{Email: "Owner@Example.com", Password: "other-pass"})
	assert.ErrorIs(t, err, errEmailTaken)
}

func TestRegisterEndpoint(t *testing.T) {
	db := openAuthDB(t)
	r := newAuthRouter(db)

	w := postJSON(r, "/auth/register", `{"email":"owner@example.com","password":"hunter22"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var out struct {
		Token string `json:"token"`
		User  struct {
			ID    string `json:"id"`
			Email string `json:"email"`
			Plan  string `json:"plan"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.NotEmpty(t, out.Token)
	assert.Equal(t, "owner@example.com", out.User.Email)
	assert.Equal(t, "free", out.User.Plan)

	// the password never leaves the server
	assert.NotContains(t, w.Body.String(), "hunter22")

	w = postJSON(r, "/auth/register", `{"email":"owner@example.com","password":"hunter22"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already exists")

	w = postJSON(r, "/auth/register", `{"email":"short@example.com","password":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// the session from register works on /me right away
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+out.Token)
	me := httptest.NewRecorder()
	r.ServeHTTP(me, req)
	assert.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), "owner@example.com")
}

func TestLoginEndpoint(t *testing.T) {
	db := openAuthDB(t)
	r := newAuthRouter(db)
	_, err := NewService(db).Register(&RegisterDTO{Email: "owner@example.com", Password: "hunter22"})
	require.NoError(t, err)

	w := postJSON(r, "/auth/login", `{"email":"owner@example.com","password":"hunter22"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"token"`)

	w = postJSON(r, "/auth/login", `{"email":"owner@example.com","password":"nope-nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":0`)
}

func TestMeRequiresSession(t *testing.T) {
	r := newAuthRouter(openAuthDB(t))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
