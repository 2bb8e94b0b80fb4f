package mailer

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

// SMTPConfig holds the connection settings for the SMTP transport.
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	SenderName string
}

// SMTPSender delivers mail over SMTP via gomail. Each Send dials a fresh
// connection; the volume here is low enough that connection reuse is not
// worth the bookkeeping.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
	name   string
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		name:   cfg.SenderName,
	}
}

func (s *SMTPSender) Send(to, subject, body string) error {
	msg := gomail.NewMessage()
	if s.name != "" {
		msg.SetAddressHeader("From", s.from, s.name)
	} else {
		msg.SetHeader("From", s.from)
	}
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) Name() string {
	return "smtp"
}
