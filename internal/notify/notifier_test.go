package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/smtp"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedMail struct {
	addr string
	from string
	to   []string
	raw  []byte
}

func newTestNotifier(send sendFunc) *SMTPNotifier {
	n := NewSMTPNotifier(SMTPConfig{Host: "smtp.example.com", Port: 2525, From: "alerts@example.com", FromName: "Tracker"})
	n.sendMail = send
	n.now = func() time.Time { return time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC) }
	return n
}

func TestSMTPNotifierComposesSingleMail(t *testing.T) {
	var got []capturedMail
	n := newTestNotifier(func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		got = append(got, capturedMail{addr: addr, from: from, to: to, raw: msg})
		return nil
	})

	err := n.Send(context.Background(), Message{
		To:      []string{"a@example.com", "b@example.com", "A@example.com", ""},
		Subject: "Issue Login crossed deadline",
		Body:    "Issue Login crossed deadline",
		ID:      "abc@tracker",
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "smtp.example.com:2525", got[0].addr)
	assert.Equal(t, "alerts@example.com", got[0].from)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, got[0].to)

	r, err := mail.CreateReader(bytes.NewReader(got[0].raw))
	require.NoError(t, err)
	subject, err := r.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Issue Login crossed deadline", subject)
	id, err := r.Header.MessageID()
	require.NoError(t, err)
	assert.Equal(t, "abc@tracker", id)
	to, err := r.Header.AddressList("To")
	require.NoError(t, err)
	assert.Len(t, to, 2)

	part, err := r.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(part.Body)
	require.NoError(t, err)
	assert.Equal(t, "Issue Login crossed deadline", string(body))
}

func TestSMTPNotifierNoRecipientsIsNoop(t *testing.T) {
	called := false
	n := newTestNotifier(func(string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	})
	require.NoError(t, n.Send(context.Background(), Message{Subject: "x"}))
	assert.False(t, called)
}

func TestSMTPNotifierReturnsTransportError(t *testing.T) {
	boom := errors.New("421 service not available")
	n := newTestNotifier(func(string, smtp.Auth, string, []string, []byte) error { return boom })
	err := n.Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "x"})
	assert.ErrorIs(t, err, boom)
}

func TestSMTPNotifierHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	n := newTestNotifier(func(string, smtp.Auth, string, []string, []byte) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := n.Send(ctx, Message{To: []string{"a@example.com"}, Subject: "stuck"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIssueOverdueMessageIDIsStable(t *testing.T) {
	e := IssueOverdueEvent{IssueID: 7, Title: "Login", Deadline: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Recipients: []string{"a@example.com"}}
	first := e.Message("tracker.local")
	second := e.Message("tracker.local")

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Issue Login crossed deadline", first.Subject)
	assert.Contains(t, first.Body, "Fri, 02 Jan 2026 03:04:05 UTC")

	other := IssueOverdueEvent{IssueID: 8, Title: "Login"}.Message("tracker.local")
	assert.NotEqual(t, first.ID, other.ID)
}
