package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/teamdesk/identity/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	Kind     string `json:"kind"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
	TextBody string `json:"text_body"`
}

func (p SendEmailPayload) validate() error {
	if strings.TrimSpace(p.To) == "" {
		return fmt.Errorf("jobs: email recipient required")
	}
	if strings.TrimSpace(p.Subject) == "" {
		return fmt.Errorf("jobs: email subject required")
	}
	if p.HTMLBody == "" && p.TextBody == "" {
		return fmt.Errorf("jobs: email body required")
	}
	return nil
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	if err := payload.validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// Mailer delivers a rendered email.
type Mailer interface {
	Send(ctx context.Context, msg SendEmailPayload) error
}

// SendEmailJob processes TaskTypeSendEmail tasks.
type SendEmailJob struct {
	mailer  Mailer
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewSendEmailJob builds the mail delivery handler.
func NewSendEmailJob(mailer Mailer, metrics *jobmetrics.Metrics, logger *slog.Logger) *SendEmailJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SendEmailJob{mailer: mailer, metrics: metrics, logger: logger}
}

// Handle decodes the payload and hands it to the mailer. Undecodable
// payloads are not retried.
func (j *SendEmailJob) Handle(ctx context.Context, t *asynq.Task) error {
	delivery := j.metrics.Track()
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return delivery.Drop(jobmetrics.DropUndecodable, fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry))
	}
	delivery.For(payload.Kind)
	if err := payload.validate(); err != nil {
		return delivery.Drop(jobmetrics.DropInvalid, fmt.Errorf("%v: %w", err, asynq.SkipRetry))
	}
	if err := j.mailer.Send(ctx, payload); err != nil {
		j.logger.Warn("send email", slog.String("kind", payload.Kind), slog.String("to", payload.To), slog.Any("error", err))
		return delivery.End(err)
	}
	j.logger.Info("email sent", slog.String("kind", payload.Kind), slog.String("to", payload.To))
	return delivery.End(nil)
}
