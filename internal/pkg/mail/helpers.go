package mail

import (
	"time"

	"github.com/TravisBrace/formspree/internal/config"
)

// BuildConfig constructs a mail.Config from the application config so
// every caller builds the mailer consistently. Sending is enabled as
// soon as either transport is configured.
func BuildConfig(cfg *config.AppConfig) Config {
	if cfg == nil {
		return Config{}
	}
	mc := Config{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		User:     cfg.Mail.User,
		Pass:     cfg.Mail.Pass,
		From:     cfg.Service.SendingEmail,
		FromName: cfg.Service.Name,
	}
	if cfg.Mail.TimeoutSeconds > 0 {
		mc.Timeout = time.Duration(cfg.Mail.TimeoutSeconds) * time.Second
	}
	if cfg.Mail.UseResend && cfg.Mail.ResendKey != "" {
		mc.UseResend = true
		mc.ResendKey = cfg.Mail.ResendKey
	}
	mc.Enable = mc.Host != "" || mc.UseResend
	return mc
}
