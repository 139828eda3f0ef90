package testutil

import (
	"context"

	"github.com/amazona/backend/internal/model"
)

// Mailer records every message on a buffered channel and returns Err.
type Mailer struct {
	Sent chan model.MailMessage
	Err  error
}

func NewMailer() *Mailer {
	return &Mailer{Sent: make(chan model.MailMessage, 16)}
}

func (m *Mailer) Send(_ context.Context, msg model.MailMessage) error {
	m.Sent <- msg
	return m.Err
}
