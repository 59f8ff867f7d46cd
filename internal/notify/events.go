package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

var messageIDSpace = uuid.MustParse("6f1c8f0e-5a3b-4d5e-9c1a-2b7d3e4f5a6b")

// IssueOverdueEvent is sent once an issue passes its deadline.
type IssueOverdueEvent struct {
	IssueID     uint
	Title       string
	ProjectName string
	Deadline    time.Time
	Recipients  []string
}

func (e IssueOverdueEvent) Message(domain string) Message {
	title := truncate(e.Title, 120)
	body := fmt.Sprintf("Issue %s crossed deadline on %s", title, e.Deadline.UTC().Format(time.RFC1123))
	if e.ProjectName != "" {
		body += fmt.Sprintf("\nProject: %s", e.ProjectName)
	}
	return Message{
		To:      e.Recipients,
		Subject: fmt.Sprintf("Issue %s crossed deadline", title),
		Body:    body,
		ID:      fmt.Sprintf("%s@%s", uuid.NewSHA1(messageIDSpace, []byte(fmt.Sprintf("issue-overdue/%d", e.IssueID))), domain),
	}
}

// PasswordResetEvent carries the one-time link for a password reset.
type PasswordResetEvent struct {
	Email string
	URL   string
	TTL   time.Duration
}

func (e PasswordResetEvent) Message() Message {
	return Message{
		To:      []string{e.Email},
		Subject: "Reset your password",
		Body: fmt.Sprintf("We received a request to reset your password.\n\n"+
			"Open the link below to choose a new one. It is valid for %d minutes and can be used once.\n\n%s\n\n"+
			"If you did not ask for this, ignore this mail; your password stays unchanged.",
			int(e.TTL.Minutes()), e.URL),
	}
}
