package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/smtp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// Message is one mail addressed to every recipient in To.
type Message struct {
	To      []string
	Subject string
	Body    string
	// ID becomes the Message-ID header when set. Re-sending the same logical
	// notification with the same ID lets mail clients collapse duplicates.
	ID string
}

// Notifier delivers messages. Send must respect ctx cancellation.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// NoopNotifier is used when outbound mail is disabled.
type NoopNotifier struct{}

func (NoopNotifier) Send(_ context.Context, msg Message) error {
	log.Printf("[notify] mail disabled, dropping %q to %d recipients", msg.Subject, len(msg.To))
	return nil
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends plain-text mail through an SMTP relay.
type SMTPNotifier struct {
	cfg      SMTPConfig
	auth     smtp.Auth
	sendMail sendFunc
	now      func() time.Time
}

func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPNotifier{
		cfg:      cfg,
		auth:     auth,
		sendMail: smtp.SendMail,
		now:      time.Now,
	}
}

func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	to := uniqueNonEmpty(msg.To...)
	if len(to) == 0 {
		return nil
	}

	raw, err := n.compose(to, msg)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	done := make(chan error, 1)
	go func() {
		done <- n.sendMail(addr, n.auth, n.cfg.From, to, raw)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("smtp send %q: %w", msg.Subject, ctx.Err())
	case err := <-done:
		if err != nil {
			log.Printf("[notify] smtp send %q to %v failed: %v", msg.Subject, to, err)
			return fmt.Errorf("smtp send %q: %w", msg.Subject, err)
		}
		return nil
	}
}

func (n *SMTPNotifier) compose(to []string, msg Message) ([]byte, error) {
	if n.cfg.From == "" {
		return nil, errors.New("compose mail: sender address not configured")
	}

	var h mail.Header
	h.SetDate(n.now())
	h.SetAddressList("From", []*mail.Address{{Name: n.cfg.FromName, Address: n.cfg.From}})
	rcpts := make([]*mail.Address, 0, len(to))
	for _, addr := range to {
		rcpts = append(rcpts, &mail.Address{Address: addr})
	}
	h.SetAddressList("To", rcpts)
	h.SetSubject(msg.Subject)
	if msg.ID != "" {
		h.SetMessageID(msg.ID)
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("compose mail: %w", err)
	}
	if _, err := io.WriteString(w, msg.Body); err != nil {
		return nil, fmt.Errorf("compose mail: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compose mail: %w", err)
	}
	return buf.Bytes(), nil
}

func uniqueNonEmpty(addrs ...string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		key := strings.ToLower(a)
		if a != "" && !seen[key] {
			seen[key] = true
			result = append(result, a)
		}
	}
	return result
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

var (
	_ Notifier = (*SMTPNotifier)(nil)
	_ Notifier = NoopNotifier{}
)
