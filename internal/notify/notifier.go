package notify

import (
	"context"
	"fmt"
	"html"

	"github.com/wayfarer/backend/internal/models"
)

// Notifier composes the service's transactional emails on top of a Mailer.
type Notifier struct {
	Mailer     Mailer
	AdminEmail string
}

// Welcome greets an account that just signed in for the first time.
func (n Notifier) Welcome(ctx context.Context, email string) error {
	if n.Mailer == nil {
		return ErrMailerDisabled
	}
	return n.Mailer.Send(ctx, Message{
		To:      []string{email},
		Subject: "Welcome to Wayfarer",
		HTML:    "<p>Welcome aboard! Start saving the places, reels and guides that inspire your next trip.</p>",
		Text:    "Welcome aboard! Start saving the places, reels and guides that inspire your next trip.",
	})
}

// SourceSubmitted tells the admin inbox that a URL was submitted for ingestion.
func (n Notifier) SourceSubmitted(ctx context.Context, record models.SourceRecord) error {
	if n.Mailer == nil {
		return ErrMailerDisabled
	}
	if n.AdminEmail == "" {
		return nil
	}

	submitter := record.SubmittedBy
	if submitter == "" {
		submitter = "anonymous"
	}

	return n.Mailer.Send(ctx, Message{
		To:      []string{n.AdminEmail},
		Subject: fmt.Sprintf("New %s source submitted", record.Platform),
		HTML: fmt.Sprintf("<p>%s submitted <a href=\"%s\">%s</a> (source %s).</p>",
			html.EscapeString(submitter), html.EscapeString(record.URL), html.EscapeString(record.URL), html.EscapeString(record.ID)),
		Text: fmt.Sprintf("%s submitted %s (source %s).", submitter, record.URL, record.ID),
	})
}
