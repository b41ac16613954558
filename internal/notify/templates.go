package notify

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/charlesng35/labmgr/internal/models"
)

// DateLayout is used for every timestamp rendered into a notification.
const DateLayout = "02/01/2006 15:04"

//go:embed templates/*.html
var templateFS embed.FS

// Site carries installation-wide values shared by every template.
type Site struct {
	Name              string
	BaseURL           string
	From              string
	OperationsMailbox string
	Location          *time.Location
}

// Templates composes notification jobs for domain events. Rendering has no side effects.
type Templates struct {
	site  Site
	html  *template.Template
	plain *plainTextRenderer
}

// NewTemplates parses the embedded templates.
func NewTemplates(site Site) (*Templates, error) {
	if strings.TrimSpace(site.Name) == "" {
		site.Name = "Lab Manager"
	}
	site.BaseURL = strings.TrimRight(site.BaseURL, "/")
	if site.Location == nil {
		site.Location = time.UTC
	}

	loc := site.Location
	funcs := template.FuncMap{
		"date": func(t time.Time) string {
			return t.In(loc).Format(DateLayout)
		},
	}

	tmpl, err := template.New("notify").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("notify: parse templates: %w", err)
	}

	return &Templates{site: site, html: tmpl, plain: newPlainTextRenderer()}, nil
}

// Site returns the resolved site settings.
func (t *Templates) Site() Site {
	return t.site
}

type accountView struct {
	Site    Site
	Account *models.Account
}

type eventView struct {
	Site      Site
	Event     *models.EventRequest
	Requester *models.Account
	Reason    string
}

type inquiryView struct {
	Site    Site
	Inquiry *models.InterestInquiry
	Service *models.LabService
}

type testView struct {
	Site   Site
	SentAt time.Time
}

type resetView struct {
	Site     Site
	Account  *models.Account
	Link     string
	ValidFor string
}

// Welcome greets a newly activated account.
func (t *Templates) Welcome(account *models.Account) (Job, error) {
	if account == nil {
		return Job{}, errors.New("notify: welcome requires an account")
	}
	subject := fmt.Sprintf("Welcome to %s, %s!", t.site.Name, account.FirstName)
	return t.compose(KindWelcome, "welcome", subject, accountView{Site: t.site, Account: account}, account.Email)
}

// EventSubmitted acknowledges a new event request.
func (t *Templates) EventSubmitted(event *models.EventRequest, requester *models.Account) (Job, error) {
	if err := checkEvent(event, requester); err != nil {
		return Job{}, err
	}
	subject := fmt.Sprintf("Request received: %s", event.Title)
	return t.compose(KindEventSubmitted, "event_submitted", subject, eventView{Site: t.site, Event: event, Requester: requester}, requester.Email)
}

// EventApproved tells the requester the event was accepted.
func (t *Templates) EventApproved(event *models.EventRequest, requester *models.Account) (Job, error) {
	if err := checkEvent(event, requester); err != nil {
		return Job{}, err
	}
	subject := fmt.Sprintf("Request approved: %s", event.Title)
	return t.compose(KindEventApproved, "event_approved", subject, eventView{Site: t.site, Event: event, Requester: requester}, requester.Email)
}

// EventRejected tells the requester the event was declined and why.
func (t *Templates) EventRejected(event *models.EventRequest, requester *models.Account, reason string) (Job, error) {
	if err := checkEvent(event, requester); err != nil {
		return Job{}, err
	}
	subject := fmt.Sprintf("Request not approved: %s", event.Title)
	view := eventView{Site: t.site, Event: event, Requester: requester, Reason: strings.TrimSpace(reason)}
	return t.compose(KindEventRejected, "event_rejected", subject, view, requester.Email)
}

// InterestInquiry forwards an inquiry to the operations mailbox, never to the inquirer.
func (t *Templates) InterestInquiry(inquiry *models.InterestInquiry, service *models.LabService) (Job, error) {
	if inquiry == nil || service == nil {
		return Job{}, errors.New("notify: interest inquiry requires inquiry and service")
	}
	if strings.TrimSpace(t.site.OperationsMailbox) == "" {
		return Job{}, errors.New("notify: operations mailbox is not configured")
	}
	subject := fmt.Sprintf("Interest in %s", service.Name)
	view := inquiryView{Site: t.site, Inquiry: inquiry, Service: service}
	return t.compose(KindInterestInquiry, "interest_inquiry", subject, view, t.site.OperationsMailbox)
}

// PasswordReset carries a single-use reset link.
func (t *Templates) PasswordReset(account *models.Account, link string, validFor time.Duration) (Job, error) {
	if account == nil {
		return Job{}, errors.New("notify: password reset requires an account")
	}
	if strings.TrimSpace(link) == "" {
		return Job{}, errors.New("notify: password reset link is required")
	}
	view := resetView{Site: t.site, Account: account, Link: link, ValidFor: humanDuration(validFor)}
	return t.compose(KindPasswordReset, "password_reset", "Password reset request", view, account.Email)
}

// Test composes a delivery check addressed to recipient.
func (t *Templates) Test(recipient string, sentAt time.Time) (Job, error) {
	subject := fmt.Sprintf("%s test message", t.site.Name)
	return t.compose(KindTest, "test", subject, testView{Site: t.site, SentAt: sentAt}, strings.TrimSpace(recipient))
}

func (t *Templates) compose(kind Kind, name, subject string, data any, recipient string) (Job, error) {
	if strings.TrimSpace(recipient) == "" {
		return Job{}, fmt.Errorf("notify: %s has no recipient", kind)
	}

	var buf bytes.Buffer
	if err := t.html.ExecuteTemplate(&buf, name, data); err != nil {
		return Job{}, fmt.Errorf("notify: render %s: %w", name, err)
	}
	rich := buf.String()

	text, err := t.plain.Render(rich)
	if err != nil {
		return Job{}, fmt.Errorf("notify: plain text %s: %w", name, err)
	}

	return Job{
		Kind:    kind,
		Subject: subject,
		Text:    text,
		HTML:    rich,
		From:    t.site.From,
		To:      []string{recipient},
	}, nil
}

func checkEvent(event *models.EventRequest, requester *models.Account) error {
	if event == nil || requester == nil {
		return errors.New("notify: event notifications require event and requester")
	}
	return nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "a short time"
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
