package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/everkeep/email-retry-system/internal/domain"
	"github.com/everkeep/email-retry-system/internal/engine"
	"github.com/everkeep/email-retry-system/internal/store"
)

// FailureRecorder is the store surface the mailer needs to open a failure
// record when an immediate send fails.
type FailureRecorder interface {
	InsertFailure(ctx context.Context, rec store.FailureRecord) (*domain.EmailFailure, error)
}

// Message is one outbound email.
type Message struct {
	Type    domain.EmailType
	To      string
	Subject string
	Body    string
}

// BodySource regenerates the body for a retried email. Failure records only
// keep the envelope (recipient and subject), not the rendered body, so the
// body has to be reproduced at retry time.
type BodySource interface {
	Body(f domain.EmailFailure) (string, error)
}

// StaticBodySource serves a fixed body per email type. Real deployments
// plug in their template renderer here.
type StaticBodySource map[domain.EmailType]string

func (s StaticBodySource) Body(f domain.EmailFailure) (string, error) {
	if body, ok := s[f.EmailType]; ok {
		return body, nil
	}
	return "", fmt.Errorf("no body template for email type %q", f.EmailType)
}

// Mailer is the outer email-sending facade. It attempts immediate delivery
// and opens a failure record when that attempt fails, which is how records
// enter the retry engine's domain.
type Mailer struct {
	sender   Sender
	recorder FailureRecorder
	bodies   BodySource
	logger   *slog.Logger
}

func New(sender Sender, recorder FailureRecorder, bodies BodySource, logger *slog.Logger) *Mailer {
	return &Mailer{
		sender:   sender,
		recorder: recorder,
		bodies:   bodies,
		logger:   logger,
	}
}

// Send attempts immediate delivery. On failure it records the failure for
// later retry and returns the send error; a failure of the recording itself
// takes precedence, since losing the record means the mail would silently
// never be retried.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	err := m.sender.Send(msg.To, msg.Subject, msg.Body)
	if err == nil {
		m.logger.Info("email sent",
			"email_type", msg.Type,
			"recipient", msg.To,
			"provider", m.sender.Name(),
		)
		return nil
	}

	m.logger.Warn("email send failed, recording for retry",
		"email_type", msg.Type,
		"recipient", msg.To,
		"provider", m.sender.Name(),
		"error", err,
	)

	_, recordErr := m.recorder.InsertFailure(ctx, store.FailureRecord{
		EmailType:    msg.Type,
		Provider:     m.sender.Name(),
		Recipient:    msg.To,
		Subject:      msg.Subject,
		ErrorMessage: err.Error(),
	})
	if recordErr != nil {
		return fmt.Errorf("recording email failure: %w", recordErr)
	}

	return err
}

// SendOperation builds the retry engine's send closure for one failure
// record, replaying the original envelope with a freshly generated body.
// It has the signature of an engine.SendFactory.
func (m *Mailer) SendOperation(f domain.EmailFailure) engine.SendFunc {
	return func() error {
		body, err := m.bodies.Body(f)
		if err != nil {
			return fmt.Errorf("regenerating email body: %w", err)
		}
		return m.sender.Send(f.Recipient, f.Subject, body)
	}
}
