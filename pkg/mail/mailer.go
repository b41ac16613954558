package mail

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// ErrDeliveryDisabled signals that outbound email is switched off via configuration.
var ErrDeliveryDisabled = errors.New("mail: delivery disabled")

// Message represents an outbound email. HTML is optional; Text is always sent.
type Message struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Mailer defines behaviour for sending email messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type disabledMailer struct{}

// NewDisabledMailer returns a Mailer that rejects every message with ErrDeliveryDisabled.
func NewDisabledMailer() Mailer {
	return disabledMailer{}
}

func (disabledMailer) Send(context.Context, Message) error {
	return ErrDeliveryDisabled
}

// envelope is a validated message ready for a transport.
type envelope struct {
	from       string
	recipients []string
	subject    string
	text       string
	html       string
}

func prepare(msg Message, defaultFrom string) (envelope, error) {
	recipients := uniqueAddresses(msg.To)
	if len(recipients) == 0 {
		return envelope{}, errors.New("mail: at least one recipient is required")
	}

	from := strings.TrimSpace(msg.From)
	if from == "" {
		from = strings.TrimSpace(defaultFrom)
	}
	if from == "" {
		return envelope{}, errors.New("mail: sender address is required")
	}
	if _, err := mail.ParseAddress(from); err != nil {
		return envelope{}, fmt.Errorf("mail: invalid from address: %w", err)
	}

	for _, rcpt := range recipients {
		if _, err := mail.ParseAddress(rcpt); err != nil {
			return envelope{}, fmt.Errorf("mail: invalid recipient address %q: %w", rcpt, err)
		}
	}

	return envelope{
		from:       from,
		recipients: recipients,
		subject:    escapeHeader(msg.Subject),
		text:       msg.Text,
		html:       msg.HTML,
	}, nil
}

func uniqueAddresses(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	var result []string
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		key := strings.ToLower(addr)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, addr)
	}
	return result
}

func escapeHeader(value string) string {
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	return value
}
