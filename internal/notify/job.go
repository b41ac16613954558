package notify

import "github.com/charlesng35/labmgr/pkg/mail"

// Kind names the domain event a notification was composed for.
type Kind string

const (
	KindWelcome         Kind = "welcome"
	KindEventSubmitted  Kind = "event_submitted"
	KindEventApproved   Kind = "event_approved"
	KindEventRejected   Kind = "event_rejected"
	KindInterestInquiry Kind = "interest_inquiry"
	KindPasswordReset   Kind = "password_reset"
	KindTest            Kind = "test"
)

// Job is one fire-and-forget email. It has no identity beyond a single delivery attempt.
type Job struct {
	Kind    Kind
	Subject string
	Text    string
	HTML    string
	From    string
	To      []string
}

func (j Job) clone() Job {
	j.To = append([]string(nil), j.To...)
	return j
}

func (j Job) message() mail.Message {
	return mail.Message{
		From:    j.From,
		To:      j.To,
		Subject: j.Subject,
		Text:    j.Text,
		HTML:    j.HTML,
	}
}
