package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamdesk/identity/jobs"
)

type captureQueue struct {
	payloads []jobs.SendEmailPayload
	err      error
}

func (q *captureQueue) EnqueueSendEmail(_ context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.payloads = append(q.payloads, payload)
	return &asynq.TaskInfo{Queue: jobs.QueueDefault}, nil
}

func newNotifier(t *testing.T, q Enqueuer) *QueueNotifier {
	t.Helper()
	n, err := NewQueueNotifier(q, Config{
		BaseURL:      "https://id.example.com/app/",
		Product:      "Acme",
		SetupLinkTTL: 24 * time.Hour,
		ResetLinkTTL: time.Hour,
	})
	require.NoError(t, err)
	return n
}

func TestSetupEmailCarriesLink(t *testing.T) {
	q := &captureQueue{}
	n := newNotifier(t, q)

	require.NoError(t, n.SendPasswordSetupEmail(context.Background(), "new@example.com", "Newcomer", "abc123"))
	require.Len(t, q.payloads, 1)
	p := q.payloads[0]
	assert.Equal(t, "password_setup", p.Kind)
	assert.Equal(t, "new@example.com", p.To)
	assert.Equal(t, "Set your Acme password", p.Subject)
	assert.Contains(t, p.TextBody, "https://id.example.com/app/set-password?token=abc123")
	assert.Contains(t, p.TextBody, "24 hours")
	assert.Contains(t, p.HTMLBody, "Hello Newcomer")
	assert.Contains(t, p.HTMLBody, "set-password?token=abc123")
}

func TestWelcomeAndConfirmationDiffer(t *testing.T) {
	q := &captureQueue{}
	n := newNotifier(t, q)
	ctx := context.Background()

	require.NoError(t, n.SendWelcomeEmail(ctx, "a@example.com", "Ana", false))
	require.NoError(t, n.SendWelcomeEmail(ctx, "a@example.com", "Ana", true))
	require.Len(t, q.payloads, 2)

	assert.Equal(t, "welcome", q.payloads[0].Kind)
	assert.Contains(t, q.payloads[0].TextBody, "Welcome to Acme")
	assert.Equal(t, "password_confirmation", q.payloads[1].Kind)
	assert.Contains(t, q.payloads[1].TextBody, "password has been set")
}

func TestResetEmail(t *testing.T) {
	q := &captureQueue{}
	n := newNotifier(t, q)

	require.NoError(t, n.SendForgotPasswordEmail(context.Background(), "a@example.com", "tok"))
	require.Len(t, q.payloads, 1)
	assert.Contains(t, q.payloads[0].TextBody, "/app/reset-password?token=tok")
	assert.Contains(t, q.payloads[0].TextBody, "1 hour")
}

func TestHTMLEscapesName(t *testing.T) {
	q := &captureQueue{}
	n := newNotifier(t, q)

	require.NoError(t, n.SendPasswordSetupEmail(context.Background(), "x@example.com", "<script>", "t"))
	assert.NotContains(t, q.payloads[0].HTMLBody, "<script>")
	assert.Contains(t, q.payloads[0].HTMLBody, "&lt;script&gt;")
}

func TestEnqueueFailureIsReturned(t *testing.T) {
	boom := errors.New("redis down")
	n := newNotifier(t, &captureQueue{err: boom})

	err := n.SendForgotPasswordEmail(context.Background(), "a@example.com", "tok")
	assert.ErrorIs(t, err, boom)
}

func TestNewQueueNotifierRejectsRelativeBase(t *testing.T) {
	_, err := NewQueueNotifier(&captureQueue{}, Config{BaseURL: "/relative"})
	assert.Error(t, err)
}

func TestHumanize(t *testing.T) {
	assert.Equal(t, "24 hours", humanize(24*time.Hour))
	assert.Equal(t, "3 days", humanize(72*time.Hour))
	assert.Equal(t, "2 hours", humanize(2*time.Hour))
	assert.Equal(t, "30 minutes", humanize(30*time.Minute))
	assert.Equal(t, "a short while", humanize(0))
}
