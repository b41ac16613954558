package mail

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridSettings configure the SendGrid HTTP API transport.
type SendGridSettings struct {
	APIKey   string
	From     string
	FromName string
}

type sendGridSendFunc func(ctx context.Context, msg *sgmail.SGMailV3) (status int, body string, err error)

type sendGridMailer struct {
	cfg  SendGridSettings
	send sendGridSendFunc
}

// NewSendGridMailer returns a Mailer that delivers through the SendGrid v3 API.
func NewSendGridMailer(cfg SendGridSettings) (Mailer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("sendgrid: api key is required")
	}

	client := sendgrid.NewSendClient(cfg.APIKey)
	return &sendGridMailer{
		cfg: cfg,
		send: func(ctx context.Context, msg *sgmail.SGMailV3) (int, string, error) {
			resp, err := client.SendWithContext(ctx, msg)
			if err != nil {
				return 0, "", err
			}
			return resp.StatusCode, resp.Body, nil
		},
	}, nil
}

func (m *sendGridMailer) Send(ctx context.Context, msg Message) error {
	env, err := prepare(msg, m.cfg.From)
	if err != nil {
		return err
	}

	status, body, err := m.send(ctx, buildSendGridMessage(env, m.cfg.FromName))
	if err != nil {
		return fmt.Errorf("sendgrid: send: %w", err)
	}
	if status >= 400 {
		return fmt.Errorf("sendgrid: status %d: %s", status, body)
	}
	return nil
}

func buildSendGridMessage(env envelope, fromName string) *sgmail.SGMailV3 {
	fromAddress := env.from
	if parsed, err := mail.ParseAddress(env.from); err == nil {
		fromAddress = parsed.Address
		if fromName == "" {
			fromName = parsed.Name
		}
	}

	message := sgmail.NewV3Mail()
	message.SetFrom(sgmail.NewEmail(fromName, fromAddress))
	message.Subject = env.subject

	personalization := sgmail.NewPersonalization()
	for _, rcpt := range env.recipients {
		name, address := "", rcpt
		if parsed, err := mail.ParseAddress(rcpt); err == nil {
			name, address = parsed.Name, parsed.Address
		}
		personalization.AddTos(sgmail.NewEmail(name, address))
	}
	message.AddPersonalizations(personalization)

	// SendGrid requires text/plain to precede text/html.
	message.AddContent(sgmail.NewContent("text/plain", env.text))
	if env.html != "" {
		message.AddContent(sgmail.NewContent("text/html", env.html))
	}
	return message
}
