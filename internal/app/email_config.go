package app

import (
	"fmt"
	"strings"

	"github.com/charlesng35/labmgr/internal/notify"
	"github.com/charlesng35/labmgr/pkg/mail"
)

// Supported email.provider values.
const (
	ProviderDisabled = "disabled"
	ProviderSMTP     = "smtp"
	ProviderSendGrid = "sendgrid"
)

// SMTPSettings converts EmailConfig to the mail package representation.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	return mail.SMTPSettings{
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.From,
		UseTLS:   c.SMTP.UseTLS,
		Timeout:  c.SMTP.Timeout,
	}
}

// SendGridSettings converts EmailConfig to the SendGrid transport settings.
func (c EmailConfig) SendGridSettings() mail.SendGridSettings {
	return mail.SendGridSettings{
		APIKey:   c.SendGrid.APIKey,
		From:     c.From,
		FromName: c.FromName,
	}
}

// NewMailer builds the transport selected by email.provider.
func (c EmailConfig) NewMailer() (mail.Mailer, error) {
	switch strings.ToLower(strings.TrimSpace(c.Provider)) {
	case "", ProviderDisabled:
		return mail.NewDisabledMailer(), nil
	case ProviderSMTP:
		return mail.NewSMTPMailer(c.SMTPSettings())
	case ProviderSendGrid:
		return mail.NewSendGridMailer(c.SendGridSettings())
	default:
		return nil, fmt.Errorf("email: unknown provider %q", c.Provider)
	}
}

// Site assembles the installation values rendered into every notification.
func (c *Config) Site() notify.Site {
	return notify.Site{
		Name:              c.Server.SiteName,
		BaseURL:           c.Server.BaseURL,
		From:              c.Email.From,
		OperationsMailbox: c.Email.OperationsMailbox,
		Location:          c.Server.Location(),
	}
}

// DispatcherOptions sizes the notification dispatcher.
func (c NotificationsConfig) DispatcherOptions() []notify.Option {
	var opts []notify.Option
	if c.Workers > 0 {
		opts = append(opts, notify.WithWorkers(c.Workers))
	}
	if c.QueueSize > 0 {
		opts = append(opts, notify.WithQueueSize(c.QueueSize))
	}
	if c.SendTimeout > 0 {
		opts = append(opts, notify.WithSendTimeout(c.SendTimeout))
	}
	return opts
}
