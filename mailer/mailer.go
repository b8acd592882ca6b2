// Package mailer defines the outbound delivery contract for one-time
// codes. The engine treats delivery as fire-and-forget: a failed send is
// logged but never rolls back code issuance, since the resend flow covers
// lost mail.
package mailer

import (
	"context"

	"go.uber.org/zap"
)

// Message is one code delivery.
type Message struct {
	Recipient string
	Code      string
	Intent    string
}

// Mailer sends one-time codes to account holders.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Func adapts a plain function to the Mailer interface.
type Func func(ctx context.Context, msg Message) error

func (f Func) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// LogMailer writes deliveries to the structured log instead of sending
// them. It backs development and test environments.
type LogMailer struct {
	log *zap.Logger
}

func NewLogMailer(log *zap.Logger) *LogMailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.log.Info("otp delivery",
		zap.String("recipient", msg.Recipient),
		zap.String("intent", msg.Intent),
		zap.String("code", msg.Code),
	)
	return nil
}
