package driven

import "context"

// Mailer sends a plain-text message. A nil error means the server accepted it.
type Mailer interface {
	Send(ctx context.Context, recipient, subject, body string) error
}
