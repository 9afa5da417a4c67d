// Package mailer delivers outbound notification mail.
package mailer

import (
	"context"
	"errors"
)

// Message is a single plain-text mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a message. Implementations must give up when ctx is done.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ErrDisabled is returned by Disabled for every send.
var ErrDisabled = errors.New("mailer: smtp is not configured")

// Disabled is used when no SMTP server is configured. Every send fails, so
// callers roll back whatever depended on the mail going out.
type Disabled struct{}

func (Disabled) Send(context.Context, Message) error {
	return ErrDisabled
}
