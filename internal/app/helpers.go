package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/TravisBrace/formspree/internal/config"
	"github.com/TravisBrace/formspree/internal/pkg/hashid"
	"github.com/TravisBrace/formspree/internal/pkg/pages"
	"github.com/TravisBrace/formspree/internal/pkg/tokens"
)

func applyRuntimeSettings(cfg *config.AppConfig) error {
	tokens.SetSecret(cfg.SecretKey)
	tokens.SetNonceSecret(cfg.NonceSecret)
	if err := hashid.Configure(cfg.HashidsSalt); err != nil {
		return fmt.Errorf("hashid salt: %w", err)
	}
	pages.SetServiceName(cfg.Service.Name)

	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		return nil
	}
	loc, err := parseTimezoneLocation(tz)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	time.Local = loc
	_ = os.Setenv("TZ", tz)
	return nil
}

func parseTimezoneLocation(raw string) (*time.Location, error) {
	tz := strings.TrimSpace(raw)
	if tz == "" {
		return time.Local, nil
	}
	if loc, err := time.LoadLocation(tz); err == nil {
		return loc, nil
	}
	if len(tz) == 6 && (tz[0] == '+' || tz[0] == '-') && tz[3] == ':' {
		h, errH := strconv.Atoi(tz[1:3])
		m, errM := strconv.Atoi(tz[4:6])
		if errH == nil && errM == nil && h <= 23 && m <= 59 {
			offset := h*3600 + m*60
			if tz[0] == '-' {
				offset = -offset
			}
			return time.FixedZone(tz, offset), nil
		}
	}
	return nil, fmt.Errorf("expect IANA zone (e.g. America/New_York) or UTC offset (e.g. +08:00)")
}
