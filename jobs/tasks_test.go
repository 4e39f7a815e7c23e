package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/teamdesk/identity/internal/jobs"
)

type recordingMailer struct {
	sent []SendEmailPayload
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg SendEmailPayload) error {
	m.sent = append(m.sent, msg)
	return m.err
}

func samplePayload() SendEmailPayload {
	return SendEmailPayload{
		Kind:     "password_setup",
		To:       "new@example.com",
		Subject:  "Set your password",
		HTMLBody: "<p>hello</p>",
		TextBody: "hello",
	}
}

func TestSendEmailJobDelivers(t *testing.T) {
	mailer := &recordingMailer{}
	job := NewSendEmailJob(mailer, jobmetrics.NewMetrics(prometheus.NewRegistry()), nil)

	task, err := NewSendEmailTask(samplePayload())
	require.NoError(t, err)
	assert.Equal(t, TaskTypeSendEmail, task.Type())

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, samplePayload(), mailer.sent[0])
}

func TestSendEmailJobSkipsRetryOnBadPayload(t *testing.T) {
	job := NewSendEmailJob(&recordingMailer{}, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte(`{"to":"a@example.com"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSendEmailJobRetriesMailerFailure(t *testing.T) {
	boom := errors.New("relay refused")
	job := NewSendEmailJob(&recordingMailer{err: boom}, nil, nil)
	task, err := NewSendEmailTask(samplePayload())
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestNewSendEmailTaskValidates(t *testing.T) {
	_, err := NewSendEmailTask(SendEmailPayload{Subject: "x", TextBody: "y"})
	assert.Error(t, err)
}

func TestSMTPMailerBuildsMultipartMessage(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 2525, From: "noreply@example.com"})
	require.NoError(t, err)

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	mailer.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		assert.Nil(t, a)
		return nil
	}
	mailer.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	require.NoError(t, mailer.Send(context.Background(), samplePayload()))
	assert.Equal(t, "smtp.example.com:2525", gotAddr)
	assert.Equal(t, "noreply@example.com", gotFrom)
	assert.Equal(t, []string{"new@example.com"}, gotTo)

	body := string(gotMsg)
	assert.Contains(t, body, "Subject: Set your password\r\n")
	assert.Contains(t, body, "Content-Type: text/plain; charset=utf-8")
	assert.Contains(t, body, "Content-Type: text/html; charset=utf-8")
	assert.True(t, strings.HasSuffix(body, "--\r\n"))
}

func TestNewSMTPMailerRequiresHost(t *testing.T) {
	_, err := NewSMTPMailer(SMTPConfig{From: "noreply@example.com"})
	assert.Error(t, err)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func TestHealthHandler(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		body      string
	}{
		{"no queue", nil, http.StatusOK, `"pending":0`},
		{"queue info", stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3}}, http.StatusOK, `"pending":3`},
		{"queue down", stubInspector{err: errors.New("dial tcp")}, http.StatusServiceUnavailable, "not reachable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHandler(tc.inspector, nil).MountRoutes(r)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.body)
		})
	}
}

func TestSendEmailJobLabelsMetricsByKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	job := NewSendEmailJob(&recordingMailer{}, jobmetrics.NewMetrics(reg), nil)

	task, err := NewSendEmailTask(samplePayload())
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	_ = job.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("{not json")))

	expected := `
# HELP identity_mail_deliveries_total Mail send attempts by mail kind and status.
# TYPE identity_mail_deliveries_total counter
identity_mail_deliveries_total{kind="password_setup",status="sent"} 1
# HELP identity_mail_dropped_total Mail tasks discarded without retry by mail kind and reason.
# TYPE identity_mail_dropped_total counter
identity_mail_dropped_total{kind="other",reason="undecodable"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"identity_mail_deliveries_total", "identity_mail_dropped_total"))
}
