package config

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int                   `yaml:"port"`
	DSN            string                `yaml:"dsn"` // MySQL DSN
	RedisURL       string                `yaml:"redis_url"`
	Database       DatabaseRuntimeConfig `yaml:"database"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	Env            string                `yaml:"env"` // "development" | "production"
	Service        ServiceConfig         `yaml:"service"`
	Mail           MailRuntimeConfig     `yaml:"mail"`
	Captcha        CaptchaConfig         `yaml:"captcha"`
	Bounce         BounceConfig          `yaml:"bounce"`
	Limits         LimitConfig           `yaml:"limits"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	SecretKey      string                `yaml:"secret_key"`   // signs owner sessions
	NonceSecret    string                `yaml:"nonce_secret"` // signs nonces, digests and the form hash
	HashidsSalt    string                `yaml:"hashids_salt"`
	Timezone       string                `yaml:"timezone"`
}

type DatabaseRuntimeConfig struct {
	DSN       string            `yaml:"dsn"`
	URL       string            `yaml:"url"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	Charset   string            `yaml:"charset"`
	ParseTime bool              `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type RedisRuntimeConfig struct {
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       int               `yaml:"db"`
	TLS      bool              `yaml:"tls"`
	Scheme   string            `yaml:"scheme"`
	Params   map[string]string `yaml:"params"`
}

// ServiceConfig names the public identity of this deployment: what the
// service calls itself in emails and pages, where it is reachable, and
// which address outgoing notifications claim to be sent from.
type ServiceConfig struct {
	Name         string `yaml:"name"`
	URL          string `yaml:"url"`
	SendingEmail string `yaml:"sending_email"` // From address on every outgoing mail
	ContactEmail string `yaml:"contact_email"` // shown on error pages
	UpgradedPlan string `yaml:"upgraded_plan"` // plan name granting dashboard/archive
}

type MailRuntimeConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Pass           string `yaml:"pass"`
	UseResend      bool   `yaml:"use_resend"`
	ResendKey      string `yaml:"resend_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type CaptchaConfig struct {
	SiteKey        string `yaml:"site_key"`
	Secret         string `yaml:"secret"`
	VerifyURL      string `yaml:"verify_url"`
	Disable        bool   `yaml:"disable"` // test/dev bypass: every submission passes
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// BounceConfig points at a SendGrid-compatible suppression API. When
// disabled the service behaves as if no address ever bounced.
type BounceConfig struct {
	Enable         bool   `yaml:"enable"`
	APIBase        string `yaml:"api_base"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type LimitConfig struct {
	MonthlySubmissions   int `yaml:"monthly_submissions"`  // free-plan allowance per calendar month
	ArchivedSubmissions  int `yaml:"archived_submissions"` // retained rows per upgraded form
	RatePerMinute        int `yaml:"rate_per_minute"`      // per-IP throttle on public endpoints
	HostNonceTTLHours    int `yaml:"host_nonce_ttl_hours"`
	ConfirmNonceTTLHours int `yaml:"confirm_nonce_ttl_hours"`
}
