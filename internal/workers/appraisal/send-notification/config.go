package sendnotification

import (
	"time"

	"loan-appraiser/internal/common/config"
)

type Config struct {
	Enabled      bool
	EmailEnabled bool
	SMSEnabled   bool
	FromEmail    string
	OfficerPhone string
	Timeout      time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Timeout: 30 * time.Second,
	}
}

// FromAppConfig enables a channel only when both the notification switch and
// the matching AWS integration are on.
func FromAppConfig(cfg *config.Config) *Config {
	c := DefaultConfig()
	if wc, ok := cfg.Workers[TaskType]; ok {
		c.Enabled = wc.Enabled
		if wc.Timeout > 0 {
			c.Timeout = time.Duration(wc.Timeout) * time.Millisecond
		}
	}

	n, aws := cfg.Notifications, cfg.Integrations.AWS
	c.EmailEnabled = n.Email.Enabled && aws.SES.Enabled
	c.SMSEnabled = n.SMS.Enabled && aws.SNS.Enabled
	c.FromEmail = n.Email.FromEmail
	if c.FromEmail == "" {
		c.FromEmail = aws.SES.FromEmail
	}
	c.OfficerPhone = n.SMS.OfficerPhone
	return c
}
