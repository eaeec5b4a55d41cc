package config

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath       = "config.yml"
	defaultPort             = 8000
	defaultEnv              = "development"
	defaultDBHost           = "127.0.0.1"
	defaultDBPort           = 3306
	defaultDBUser           = "root"
	defaultDBPassword       = "password"
	defaultDBName           = "formspree"
	defaultDBCharset        = "utf8mb4"
	defaultDBLoc            = "Local"
	defaultRedisHost        = "localhost"
	defaultRedisPort        = 6379
	defaultRedisDB          = 0
	defaultServiceName      = "Forms"
	defaultServiceURL       = "http://localhost:8000"
	defaultUpgradedPlan     = "gold"
	defaultSMTPPort         = 587
	defaultMailTimeoutSec   = 15
	defaultCaptchaVerifyURL = "https://www.google.com/recaptcha/api/siteverify"
	defaultCaptchaTimeout   = 10
	defaultBounceAPIBase    = "https://api.sendgrid.com/v3"
	defaultBounceTimeout    = 10
	defaultMonthlyLimit     = 1000
	defaultArchivedLimit    = 1000
	defaultRatePerMinute    = 120
	defaultHostNonceTTL     = 4  // hours
	defaultConfirmNonceTTL  = 72 // hours
)
