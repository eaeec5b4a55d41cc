package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type rawAppConfig struct {
	Port           int               `yaml:"port"`
	DSN            string            `yaml:"dsn"`
	DatabaseURL    string            `yaml:"database_url"`
	RedisURL       string            `yaml:"redis_url"`
	Database       rawDatabaseConfig `yaml:"database"`
	Redis          rawRedisConfig    `yaml:"redis"`
	Env            string            `yaml:"env"`
	Service        rawServiceConfig  `yaml:"service"`
	ServiceName    string            `yaml:"service_name"`
	ServiceURL     string            `yaml:"service_url"`
	ServerURL      string            `yaml:"server_url"`
	Mail           rawMailConfig     `yaml:"mail"`
	Captcha        rawCaptchaConfig  `yaml:"captcha"`
	Bounce         rawBounceConfig   `yaml:"bounce"`
	Limits         rawLimitConfig    `yaml:"limits"`
	AllowedOrigins []string          `yaml:"allowed_origins"`
	SecretKey      string            `yaml:"secret_key"`
	JWTSecret      string            `yaml:"jwt_secret"`
	NonceSecret    string            `yaml:"nonce_secret"`
	HashidsSalt    string            `yaml:"hashids_salt"`
	HashidSalt     string            `yaml:"hashid_salt"`
	Timezone       string            `yaml:"timezone"`
	TZ             string            `yaml:"tz"`
}

type rawDatabaseConfig struct {
	DSN       string            `yaml:"dsn"`
	URL       string            `yaml:"url"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Username  string            `yaml:"username"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	DBName    string            `yaml:"db_name"`
	Charset   string            `yaml:"charset"`
	ParseTime *bool             `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type rawRedisConfig struct {
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       *int              `yaml:"db"`
	TLS      *bool             `yaml:"tls"`
	Scheme   string            `yaml:"scheme"`
	Params   map[string]string `yaml:"params"`
}

type rawServiceConfig struct {
	Name          string `yaml:"name"`
	URL           string `yaml:"url"`
	SendingEmail  string `yaml:"sending_email"`
	DefaultSender string `yaml:"default_sender"`
	ContactEmail  string `yaml:"contact_email"`
	UpgradedPlan  string `yaml:"upgraded_plan"`
}

type rawMailConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Pass           string `yaml:"pass"`
	Password       string `yaml:"password"`
	UseResend      *bool  `yaml:"use_resend"`
	ResendKey      string `yaml:"resend_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type rawCaptchaConfig struct {
	SiteKey        string `yaml:"site_key"`
	Secret         string `yaml:"secret"`
	VerifyURL      string `yaml:"verify_url"`
	Disable        *bool  `yaml:"disable"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type rawBounceConfig struct {
	Enable         *bool  `yaml:"enable"`
	APIBase        string `yaml:"api_base"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type rawLimitConfig struct {
	MonthlySubmissions   int `yaml:"monthly_submissions"`
	ArchivedSubmissions  int `yaml:"archived_submissions"`
	RatePerMinute        int `yaml:"rate_per_minute"`
	HostNonceTTLHours    int `yaml:"host_nonce_ttl_hours"`
	ConfirmNonceTTLHours int `yaml:"confirm_nonce_ttl_hours"`
}

func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	cfg := defaultAppConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	raw := rawAppConfig{}
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}

	applyRawAppConfig(&cfg, raw)
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d in %q, expected 1-65535", cfg.Port, path)
	}
	if cfg.Database.Port < 1 || cfg.Database.Port > 65535 {
		return nil, fmt.Errorf("invalid database.port %d in %q, expected 1-65535", cfg.Database.Port, path)
	}
	if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
		return nil, fmt.Errorf("invalid redis.port %d in %q, expected 1-65535", cfg.Redis.Port, path)
	}
	if cfg.Redis.DB < 0 {
		return nil, fmt.Errorf("invalid redis.db %d in %q, expected >= 0", cfg.Redis.DB, path)
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("secret_key missing in %q", path)
	}
	if cfg.NonceSecret == "" {
		return nil, fmt.Errorf("nonce_secret missing in %q", path)
	}

	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Database: DatabaseRuntimeConfig{
			Host:      defaultDBHost,
			Port:      defaultDBPort,
			User:      defaultDBUser,
			Password:  defaultDBPassword,
			Name:      defaultDBName,
			Charset:   defaultDBCharset,
			ParseTime: true,
			Loc:       defaultDBLoc,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		Service: ServiceConfig{
			Name:         defaultServiceName,
			URL:          defaultServiceURL,
			UpgradedPlan: defaultUpgradedPlan,
		},
		Mail: MailRuntimeConfig{
			Port:           defaultSMTPPort,
			TimeoutSeconds: defaultMailTimeoutSec,
		},
		Captcha: CaptchaConfig{
			VerifyURL:      defaultCaptchaVerifyURL,
			TimeoutSeconds: defaultCaptchaTimeout,
		},
		Bounce: BounceConfig{
			APIBase:        defaultBounceAPIBase,
			TimeoutSeconds: defaultBounceTimeout,
		},
		Limits: LimitConfig{
			MonthlySubmissions:   defaultMonthlyLimit,
			ArchivedSubmissions:  defaultArchivedLimit,
			RatePerMinute:        defaultRatePerMinute,
			HostNonceTTLHours:    defaultHostNonceTTL,
			ConfirmNonceTTLHours: defaultConfirmNonceTTL,
		},
	}
	cfg.Database = normalizeDatabaseConfig(cfg.Database)
	cfg.Redis = normalizeRedisConfig(cfg.Redis)
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	return cfg
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	cfg.Database = applyRawDatabaseConfig(cfg.Database, raw)
	cfg.Redis = applyRawRedisConfig(cfg.Redis, raw)
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}

	if v := strings.TrimSpace(raw.Service.Name); v != "" {
		cfg.Service.Name = v
	}
	if v := strings.TrimSpace(raw.ServiceName); v != "" {
		cfg.Service.Name = v
	}
	if v := strings.TrimSpace(raw.Service.URL); v != "" {
		cfg.Service.URL = v
	}
	if v := strings.TrimSpace(raw.ServiceURL); v != "" {
		cfg.Service.URL = v
	}
	if v := strings.TrimSpace(raw.ServerURL); v != "" {
		cfg.Service.URL = v
	}
	if v := strings.TrimSpace(raw.Service.SendingEmail); v != "" {
		cfg.Service.SendingEmail = v
	}
	if v := strings.TrimSpace(raw.Service.DefaultSender); v != "" {
		cfg.Service.SendingEmail = v
	}
	if v := strings.TrimSpace(raw.Service.ContactEmail); v != "" {
		cfg.Service.ContactEmail = v
	}
	if v := strings.TrimSpace(raw.Service.UpgradedPlan); v != "" {
		cfg.Service.UpgradedPlan = v
	}

	cfg.Mail = applyRawMailConfig(cfg.Mail, raw.Mail)
	cfg.Captcha = applyRawCaptchaConfig(cfg.Captcha, raw.Captcha)
	cfg.Bounce = applyRawBounceConfig(cfg.Bounce, raw.Bounce)
	cfg.Limits = applyRawLimitConfig(cfg.Limits, raw.Limits)

	if raw.AllowedOrigins != nil {
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	}

	if v := strings.TrimSpace(raw.SecretKey); v != "" {
		cfg.SecretKey = v
	}
	if v := strings.TrimSpace(raw.JWTSecret); v != "" {
		cfg.SecretKey = v
	}
	if v := strings.TrimSpace(raw.NonceSecret); v != "" {
		cfg.NonceSecret = v
	}
	if v := strings.TrimSpace(raw.HashidsSalt); v != "" {
		cfg.HashidsSalt = v
	}
	if v := strings.TrimSpace(raw.HashidSalt); v != "" {
		cfg.HashidsSalt = v
	}
	if cfg.HashidsSalt == "" {
		cfg.HashidsSalt = cfg.NonceSecret
	}
	if v := strings.TrimSpace(raw.Timezone); v != "" {
		cfg.Timezone = v
	}
	if v := strings.TrimSpace(raw.TZ); v != "" {
		cfg.Timezone = v
	}

	// env overrides for secrets so they can stay out of the file
	if v := strings.TrimSpace(os.Getenv("SECRET_KEY")); v != "" {
		cfg.SecretKey = v
	}
	if v := strings.TrimSpace(os.Getenv("NONCE_SECRET")); v != "" {
		cfg.NonceSecret = v
	}

	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	cfg.Service.URL = strings.TrimRight(strings.TrimSpace(cfg.Service.URL), "/")
	cfg.Env = normalizeEnv(cfg.Env)
}

func applyRawDatabaseConfig(current DatabaseRuntimeConfig, raw rawAppConfig) DatabaseRuntimeConfig {
	cfg := current

	if v := strings.TrimSpace(raw.Database.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.Database.URL); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.DatabaseURL); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.Database.Host); v != "" {
		cfg.Host = v
	}
	if raw.Database.Port != 0 {
		cfg.Port = raw.Database.Port
	}
	if v := strings.TrimSpace(raw.Database.User); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(raw.Database.Username); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(raw.Database.Password); v != "" {
		cfg.Password = v
	}
	if v := strings.TrimSpace(raw.Database.Name); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(raw.Database.DBName); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(raw.Database.Charset); v != "" {
		cfg.Charset = v
	}
	if raw.Database.ParseTime != nil {
		cfg.ParseTime = *raw.Database.ParseTime
	}
	if v := strings.TrimSpace(raw.Database.Loc); v != "" {
		cfg.Loc = v
	}
	if raw.Database.Params != nil {
		cfg.Params = copyStringMap(raw.Database.Params)
	}

	return normalizeDatabaseConfig(cfg)
}

func applyRawRedisConfig(current RedisRuntimeConfig, raw rawAppConfig) RedisRuntimeConfig {
	cfg := current

	if v := strings.TrimSpace(raw.Redis.URL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.RedisURL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.Redis.Host); v != "" {
		cfg.Host = v
	}
	if raw.Redis.Port != 0 {
		cfg.Port = raw.Redis.Port
	}
	if v := strings.TrimSpace(raw.Redis.Username); v != "" {
		cfg.Username = v
	}
	if v := strings.TrimSpace(raw.Redis.Password); v != "" {
		cfg.Password = v
	}
	if raw.Redis.DB != nil {
		cfg.DB = *raw.Redis.DB
	}
	if raw.Redis.TLS != nil {
		cfg.TLS = *raw.Redis.TLS
	}
	if v := strings.TrimSpace(raw.Redis.Scheme); v != "" {
		cfg.Scheme = v
	}
	if raw.Redis.Params != nil {
		cfg.Params = copyStringMap(raw.Redis.Params)
	}

	return normalizeRedisConfig(cfg)
}

func applyRawMailConfig(current MailRuntimeConfig, raw rawMailConfig) MailRuntimeConfig {
	cfg := current

	if v := strings.TrimSpace(raw.Host); v != "" {
		cfg.Host = v
	}
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.User); v != "" {
		cfg.User = v
	}
	if v := raw.Pass; v != "" {
		cfg.Pass = v
	}
	if v := raw.Password; v != "" {
		cfg.Pass = v
	}
	if raw.UseResend != nil {
		cfg.UseResend = *raw.UseResend
	}
	if v := strings.TrimSpace(raw.ResendKey); v != "" {
		cfg.ResendKey = v
	}
	if raw.TimeoutSeconds > 0 {
		cfg.TimeoutSeconds = raw.TimeoutSeconds
	}
	return cfg
}

func applyRawCaptchaConfig(current CaptchaConfig, raw rawCaptchaConfig) CaptchaConfig {
	cfg := current

	if v := strings.TrimSpace(raw.SiteKey); v != "" {
		cfg.SiteKey = v
	}
	if v := strings.TrimSpace(raw.Secret); v != "" {
		cfg.Secret = v
	}
	if v := strings.TrimSpace(raw.VerifyURL); v != "" {
		cfg.VerifyURL = v
	}
	if raw.Disable != nil {
		cfg.Disable = *raw.Disable
	}
	if raw.TimeoutSeconds > 0 {
		cfg.TimeoutSeconds = raw.TimeoutSeconds
	}
	return cfg
}

func applyRawBounceConfig(current BounceConfig, raw rawBounceConfig) BounceConfig {
	cfg := current

	if raw.Enable != nil {
		cfg.Enable = *raw.Enable
	}
	if v := strings.TrimSpace(raw.APIBase); v != "" {
		cfg.APIBase = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(raw.APIKey); v != "" {
		cfg.APIKey = v
	}
	if raw.TimeoutSeconds > 0 {
		cfg.TimeoutSeconds = raw.TimeoutSeconds
	}
	return cfg
}

func applyRawLimitConfig(current LimitConfig, raw rawLimitConfig) LimitConfig {
	cfg := current

	if raw.MonthlySubmissions > 0 {
		cfg.MonthlySubmissions = raw.MonthlySubmissions
	}
	if raw.ArchivedSubmissions > 0 {
		cfg.ArchivedSubmissions = raw.ArchivedSubmissions
	}
	if raw.RatePerMinute > 0 {
		cfg.RatePerMinute = raw.RatePerMinute
	}
	if raw.HostNonceTTLHours > 0 {
		cfg.HostNonceTTLHours = raw.HostNonceTTLHours
	}
	if raw.ConfirmNonceTTLHours > 0 {
		cfg.ConfirmNonceTTLHours = raw.ConfirmNonceTTLHours
	}
	return cfg
}

func normalizeDatabaseConfig(cfg DatabaseRuntimeConfig) DatabaseRuntimeConfig {
	cfg.DSN = strings.TrimSpace(cfg.DSN)
	cfg.URL = strings.TrimSpace(cfg.URL)
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.User = strings.TrimSpace(cfg.User)
	cfg.Password = strings.TrimSpace(cfg.Password)
	cfg.Name = strings.TrimSpace(cfg.Name)
	cfg.Charset = strings.TrimSpace(cfg.Charset)
	cfg.Loc = strings.TrimSpace(cfg.Loc)

	if cfg.Host == "" {
		cfg.Host = defaultDBHost
	}
	if cfg.Port == 0 {
		cfg.Port = defaultDBPort
	}
	if cfg.User == "" {
		cfg.User = defaultDBUser
	}
	if cfg.Password == "" {
		cfg.Password = defaultDBPassword
	}
	if cfg.Name == "" {
		cfg.Name = defaultDBName
	}
	if cfg.Charset == "" {
		cfg.Charset = defaultDBCharset
	}
	if cfg.Loc == "" {
		cfg.Loc = defaultDBLoc
	}
	if cfg.Params != nil {
		cfg.Params = copyStringMap(cfg.Params)
	}
	return cfg
}

func normalizeRedisConfig(cfg RedisRuntimeConfig) RedisRuntimeConfig {
	cfg.URL = normalizeRedisRawURL(cfg.URL)
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.Username = strings.TrimSpace(cfg.Username)
	cfg.Password = strings.TrimSpace(cfg.Password)
	cfg.Scheme = strings.ToLower(strings.TrimSpace(cfg.Scheme))

	if cfg.Host == "" && cfg.URL == "" {
		cfg.Host = defaultRedisHost
	}
	if cfg.Port == 0 {
		cfg.Port = defaultRedisPort
	}
	if cfg.DB < 0 {
		cfg.DB = defaultRedisDB
	}
	if cfg.Scheme == "" {
		if cfg.TLS {
			cfg.Scheme = "rediss"
		} else {
			cfg.Scheme = "redis"
		}
	}
	if cfg.Params != nil {
		cfg.Params = copyStringMap(cfg.Params)
	}
	return cfg
}

func normalizeRedisRawURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "redis://") || strings.HasPrefix(trimmed, "rediss://") {
		return trimmed
	}
	return "redis://" + trimmed
}

func copyStringMap(input map[string]string) map[string]string {
	if input == nil {
		return nil
	}
	out := make(map[string]string, len(input))
	for key, value := range input {
		k := strings.TrimSpace(key)
		v := strings.TrimSpace(value)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(env string) string {
	trimmed := strings.ToLower(strings.TrimSpace(env))
	if trimmed == "" {
		return defaultEnv
	}
	return trimmed
}

func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(c.Env, defaultEnv)
}

// Testing reports whether captcha checks are bypassed outright.
func (c *AppConfig) Testing() bool {
	return c.Captcha.Disable
}
