// Package fakes holds recording doubles for the service collaborators.
package fakes

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/teamdesk/identity/internal/audit"
	"github.com/teamdesk/identity/internal/shared"
)

// Email is one message captured by Notifier.
type Email struct {
	Kind           string
	To             string
	Name           string
	Token          string
	IsConfirmation bool
}

// Notifier records every send and fails all of them when Err is set.
type Notifier struct {
	mu   sync.Mutex
	sent []Email
	Err  error
}

func (n *Notifier) add(e Email) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, e)
	return n.Err
}

func (n *Notifier) SendPasswordSetupEmail(_ context.Context, email, name, token string) error {
	return n.add(Email{Kind: "setup", To: email, Name: name, Token: token})
}

func (n *Notifier) SendWelcomeEmail(_ context.Context, email, name string, isConfirmation bool) error {
	return n.add(Email{Kind: "welcome", To: email, Name: name, IsConfirmation: isConfirmation})
}

func (n *Notifier) SendForgotPasswordEmail(_ context.Context, email, token string) error {
	return n.add(Email{Kind: "reset", To: email, Token: token})
}

// Sent returns a copy of the captured messages.
func (n *Notifier) Sent() []Email {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Email, len(n.sent))
	copy(out, n.sent)
	return out
}

// Last returns the most recent message of kind.
func (n *Notifier) Last(kind string) (Email, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].Kind == kind {
			return n.sent[i], true
		}
	}
	return Email{}, false
}

// Audit records audit entries in memory.
type Audit struct {
	mu      sync.Mutex
	entries []shared.AuditLog
}

func (a *Audit) Record(_ context.Context, log shared.AuditLog) error {
	if log.Action == "" || log.Entity == "" {
		return errors.New("fakes: incomplete audit entry")
	}
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, log)
	return nil
}

// Actions lists the recorded actions in order.
func (a *Audit) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Action
	}
	return out
}

// Query serves the recorded entries newest first, like the audit_logs reader.
func (a *Audit) Query(_ context.Context, q audit.Query) ([]audit.TimelineRow, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []audit.TimelineRow
	for i := len(a.entries) - 1; i >= 0; i-- {
		e := a.entries[i]
		at := e.At
		switch {
		case !q.From.IsZero() && at.Before(q.From),
			!q.To.IsZero() && !at.Before(q.To),
			q.Actor != "" && e.ActorID != q.Actor,
			q.Entity != "" && e.Entity != q.Entity,
			q.EntityID != "" && e.EntityID != q.EntityID,
			q.Action != "" && e.Action != q.Action:
			continue
		}
		out = append(out, audit.TimelineRow{
			ID:       int64(i + 1),
			At:       at,
			ActorID:  e.ActorID,
			Action:   e.Action,
			Entity:   e.Entity,
			EntityID: e.EntityID,
			Meta:     e.Meta,
		})
	}
	if q.Offset >= len(out) {
		return nil, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Observer counts auth events and gate decisions.
type Observer struct {
	mu        sync.Mutex
	events    map[string]int
	decisions map[string]int
}

func (o *Observer) AuthEvent(event, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.events == nil {
		o.events = make(map[string]int)
	}
	o.events[event+":"+outcome]++
}

func (o *Observer) GateDecision(decision string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.decisions == nil {
		o.decisions = make(map[string]int)
	}
	o.decisions[decision]++
}

// Event returns how often event ended with outcome.
func (o *Observer) Event(event, outcome string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.events[event+":"+outcome]
}

// Decision returns how often the gate reached decision.
func (o *Observer) Decision(decision string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.decisions[decision]
}

var _ audit.Repository = (*Audit)(nil)
