package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type smtpService struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPService(cfg SMTPConfig) Service {
	return &smtpService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *smtpService) SendInvitation(_ context.Context, to, organizationName, inviteURL string) error {
	subject := fmt.Sprintf("You've been invited to join %s", organizationName)
	body := fmt.Sprintf(
		"You have been invited to join %s on LeaveHub.\n\nAccept the invitation here: %s\n\nThe invitation expires in 7 days.",
		organizationName, inviteURL,
	)
	return s.send(to, subject, body)
}

func (s *smtpService) SendRemovalNotice(_ context.Context, to, organizationName string, effectiveDate string) error {
	subject := fmt.Sprintf("Your access to %s is scheduled to end", organizationName)
	body := fmt.Sprintf(
		"Your membership in %s has been scheduled for removal. You keep full access until %s.",
		organizationName, effectiveDate,
	)
	return s.send(to, subject, body)
}

func (s *smtpService) SendCustom(_ context.Context, to string, subject string, content string) error {
	return s.send(to, subject, content)
}

func (s *smtpService) send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
