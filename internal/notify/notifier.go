// Package notify renders account lifecycle emails and hands them to the mail
// queue. Delivery happens in the worker process.
package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/hibiken/asynq"

	"github.com/teamdesk/identity/internal/auth"
	"github.com/teamdesk/identity/jobs"
)

//go:embed templates/*
var templateFS embed.FS

// Enqueuer puts a rendered email on the mail queue.
type Enqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error)
}

// Config controls link building and wording.
type Config struct {
	BaseURL      string
	Product      string
	SetupLinkTTL time.Duration
	ResetLinkTTL time.Duration
}

// QueueNotifier implements auth.Notifier on top of the asynq mail queue.
type QueueNotifier struct {
	queue    Enqueuer
	base     *url.URL
	product  string
	setupTTL time.Duration
	resetTTL time.Duration
	html     *htmltemplate.Template
	text     *texttemplate.Template
}

// NewQueueNotifier parses the templates and validates the base URL.
func NewQueueNotifier(queue Enqueuer, cfg Config) (*QueueNotifier, error) {
	if queue == nil {
		return nil, errors.New("notify: queue required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("notify: invalid base url %q", cfg.BaseURL)
	}
	html, err := htmltemplate.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("notify: parse html templates: %w", err)
	}
	text, err := texttemplate.ParseFS(templateFS, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("notify: parse text templates: %w", err)
	}
	product := cfg.Product
	if product == "" {
		product = "Identity"
	}
	return &QueueNotifier{
		queue:    queue,
		base:     base,
		product:  product,
		setupTTL: cfg.SetupLinkTTL,
		resetTTL: cfg.ResetLinkTTL,
		html:     html,
		text:     text,
	}, nil
}

type view struct {
	Name         string
	Product      string
	Link         string
	Expires      string
	Confirmation bool
}

// SendPasswordSetupEmail queues the invitation carrying the setup link.
func (n *QueueNotifier) SendPasswordSetupEmail(ctx context.Context, email, name, token string) error {
	return n.enqueue(ctx, "password_setup", email, "Set your "+n.product+" password", "setup", view{
		Name:    name,
		Product: n.product,
		Link:    n.link("set-password", token),
		Expires: humanize(n.setupTTL),
	})
}

// SendWelcomeEmail queues the welcome message, or the confirmation that a
// password was set.
func (n *QueueNotifier) SendWelcomeEmail(ctx context.Context, email, name string, isConfirmation bool) error {
	subject := "Welcome to " + n.product
	kind := "welcome"
	if isConfirmation {
		subject = "Your " + n.product + " password was set"
		kind = "password_confirmation"
	}
	return n.enqueue(ctx, kind, email, subject, "welcome", view{
		Name:         name,
		Product:      n.product,
		Link:         n.link("login", ""),
		Confirmation: isConfirmation,
	})
}

// SendForgotPasswordEmail queues the reset link.
func (n *QueueNotifier) SendForgotPasswordEmail(ctx context.Context, email, token string) error {
	return n.enqueue(ctx, "password_reset", email, "Reset your "+n.product+" password", "reset", view{
		Product: n.product,
		Link:    n.link("reset-password", token),
		Expires: humanize(n.resetTTL),
	})
}

func (n *QueueNotifier) enqueue(ctx context.Context, kind, to, subject, tmpl string, v view) error {
	var html, text bytes.Buffer
	if err := n.html.ExecuteTemplate(&html, tmpl+".html", v); err != nil {
		return fmt.Errorf("notify: render %s html: %w", tmpl, err)
	}
	if err := n.text.ExecuteTemplate(&text, tmpl+".txt", v); err != nil {
		return fmt.Errorf("notify: render %s text: %w", tmpl, err)
	}
	if _, err := n.queue.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
		Kind:     kind,
		To:       to,
		Subject:  subject,
		HTMLBody: html.String(),
		TextBody: text.String(),
	}); err != nil {
		return fmt.Errorf("notify: enqueue %s: %w", kind, err)
	}
	return nil
}

func (n *QueueNotifier) link(path, token string) string {
	u := n.base.JoinPath(path)
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func humanize(d time.Duration) string {
	switch {
	case d <= 0:
		return "a short while"
	case d%(24*time.Hour) == 0:
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "24 hours"
		}
		return fmt.Sprintf("%d days", days)
	case d%time.Hour == 0:
		hours := int(d / time.Hour)
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	default:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
}

var _ auth.Notifier = (*QueueNotifier)(nil)
