package mailer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/everkeep/email-retry-system/internal/domain"
	"github.com/everkeep/email-retry-system/internal/store"
)

type fakeSender struct {
	err   error
	calls []sentMail
}

type sentMail struct {
	to, subject, body string
}

func (s *fakeSender) Send(to, subject, body string) error {
	s.calls = append(s.calls, sentMail{to, subject, body})
	return s.err
}

func (s *fakeSender) Name() string { return "fake" }

type fakeRecorder struct {
	err      error
	inserted []store.FailureRecord
}

func (r *fakeRecorder) InsertFailure(_ context.Context, rec store.FailureRecord) (*domain.EmailFailure, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.inserted = append(r.inserted, rec)
	return &domain.EmailFailure{ID: "new-id", EmailType: rec.EmailType}, nil
}

func newTestMailer(sender *fakeSender, recorder *fakeRecorder) *Mailer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	bodies := StaticBodySource{
		domain.TypeReminder: "time to check in",
	}
	return New(sender, recorder, bodies, logger)
}

func TestSend_SuccessRecordsNothing(t *testing.T) {
	sender := &fakeSender{}
	recorder := &fakeRecorder{}
	m := newTestMailer(sender, recorder)

	err := m.Send(context.Background(), Message{
		Type:    domain.TypeReminder,
		To:      "user@example.com",
		Subject: "Check-in reminder",
		Body:    "time to check in",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(recorder.inserted) != 0 {
		t.Errorf("recorded %d failures for successful send, want 0", len(recorder.inserted))
	}
	if len(sender.calls) != 1 {
		t.Errorf("sender invoked %d times, want 1", len(sender.calls))
	}
}

func TestSend_FailureOpensRecord(t *testing.T) {
	sender := &fakeSender{err: errors.New("503 service unavailable")}
	recorder := &fakeRecorder{}
	m := newTestMailer(sender, recorder)

	err := m.Send(context.Background(), Message{
		Type:    domain.TypeVerification,
		To:      "user@example.com",
		Subject: "Verify your address",
		Body:    "click the link",
	})
	if err == nil {
		t.Fatal("expected send error to be returned")
	}

	if len(recorder.inserted) != 1 {
		t.Fatalf("recorded %d failures, want 1", len(recorder.inserted))
	}

	rec := recorder.inserted[0]
	if rec.EmailType != domain.TypeVerification {
		t.Errorf("email type = %q, want %q", rec.EmailType, domain.TypeVerification)
	}
	if rec.Recipient != "user@example.com" {
		t.Errorf("recipient = %q, want original recipient", rec.Recipient)
	}
	if rec.Subject != "Verify your address" {
		t.Errorf("subject = %q, want original subject", rec.Subject)
	}
	if rec.Provider != "fake" {
		t.Errorf("provider = %q, want %q", rec.Provider, "fake")
	}
	if rec.ErrorMessage != "503 service unavailable" {
		t.Errorf("error message = %q, want raw provider error", rec.ErrorMessage)
	}
}

func TestSend_RecorderErrorTakesPrecedence(t *testing.T) {
	sender := &fakeSender{err: errors.New("timeout")}
	recorder := &fakeRecorder{err: errors.New("connection refused")}
	m := newTestMailer(sender, recorder)

	err := m.Send(context.Background(), Message{Type: domain.TypeReminder, To: "a@b.c"})
	if err == nil || !errors.Is(err, recorder.err) {
		t.Fatalf("expected recorder error, got %v", err)
	}
}

func TestSendOperation_ReplaysEnvelope(t *testing.T) {
	sender := &fakeSender{}
	m := newTestMailer(sender, &fakeRecorder{})

	f := domain.EmailFailure{
		ID:        "f1",
		EmailType: domain.TypeReminder,
		Recipient: "user@example.com",
		Subject:   "Check-in reminder",
	}

	if err := m.SendOperation(f)(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sender.calls) != 1 {
		t.Fatalf("sender invoked %d times, want 1", len(sender.calls))
	}
	call := sender.calls[0]
	if call.to != f.Recipient || call.subject != f.Subject {
		t.Errorf("replayed envelope = %+v, want original recipient and subject", call)
	}
	if call.body != "time to check in" {
		t.Errorf("body = %q, want regenerated body", call.body)
	}
}

func TestSendOperation_MissingBodyTemplate(t *testing.T) {
	sender := &fakeSender{}
	m := newTestMailer(sender, &fakeRecorder{})

	f := domain.EmailFailure{
		ID:        "f1",
		EmailType: domain.EmailType("newsletter"),
		Recipient: "user@example.com",
	}

	if err := m.SendOperation(f)(); err == nil {
		t.Fatal("expected error for missing body template")
	}
	if len(sender.calls) != 0 {
		t.Errorf("sender invoked %d times without a body, want 0", len(sender.calls))
	}
}
