package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// MailConfig holds SMTP delivery settings.
//
// Unlike Config it is not loaded at startup: LoadMail reads the process
// environment on every send, so credentials can be rotated without a restart
// and a missing value fails the delivery rather than the server.
type MailConfig struct {
	Host     string `env:"EMAIL_HOST" required:"true"`
	Port     int    `env:"EMAIL_PORT" required:"true"`
	User     string `env:"EMAIL_USER" required:"true"`
	Password string `env:"EMAIL_PASSWORD" required:"true"`

	// From defaults to User
	From string `env:"EMAIL_FROM"`

	// Recipient is the fixed destination used by profiles with recipient: fixed
	Recipient string `env:"EMAIL_RECIPIENT"`

	// TLS is the STARTTLS policy: mandatory, opportunistic or none (default: mandatory)
	TLS string `env:"EMAIL_TLS" default:"mandatory"`

	// Timeout bounds dial and send (default: 30s)
	Timeout time.Duration `env:"EMAIL_TIMEOUT" default:"30s"`
}

// LoadMail reads mail settings from the environment.
func LoadMail() (*MailConfig, error) {
	cfg := &MailConfig{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("mail config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("mail config: %w", err)
	}

	return cfg, nil
}

// Sender returns the envelope sender address.
func (c *MailConfig) Sender() string {
	if c.From != "" {
		return c.From
	}
	return c.User
}

// Validate checks port range and TLS policy.
func (c *MailConfig) Validate() error {
	var errs []string

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("EMAIL_PORT (%d) must be 1-65535", c.Port))
	}

	switch strings.ToLower(c.TLS) {
	case "mandatory", "opportunistic", "none":
	default:
		errs = append(errs, fmt.Sprintf("EMAIL_TLS (%q) must be one of: mandatory, opportunistic, none", c.TLS))
	}

	if c.Timeout <= 0 {
		errs = append(errs, "EMAIL_TIMEOUT must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
