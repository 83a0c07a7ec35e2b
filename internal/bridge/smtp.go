package bridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/mailbridge/ombx-bridge/internal/email"
	"github.com/mailbridge/ombx-bridge/internal/parser"
	"github.com/mailbridge/ombx-bridge/internal/webmail"
)

// SMTPBackend implements smtp.Backend; each connection gets a session that
// authenticates its own webmail client and submits mail through it.
type SMTPBackend struct {
	newClient ClientFactory
}

// NewSMTPBackend creates the backend around a webmail client factory.
func NewSMTPBackend(factory ClientFactory) *SMTPBackend {
	return &SMTPBackend{newClient: factory}
}

// NewSession starts a session for one SMTP connection.
func (b *SMTPBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{newClient: b.newClient}, nil
}

type smtpSession struct {
	newClient ClientFactory

	// set by a successful AUTH
	client   Client
	username string

	// current transaction envelope
	mailFrom string
	rcptTo   []string
}

var _ smtp.AuthSession = (*smtpSession)(nil)

func (s *smtpSession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

// Auth logs the PLAIN credentials into a fresh webmail session. The
// username must be a full name@domain address.
func (s *smtpSession) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(_, username, password string) error {
		name, domain, err := splitAddress(username)
		if err != nil {
			return err
		}

		client, err := s.newClient()
		if err != nil {
			return err
		}
		if err := client.Login(context.Background(), domain, name, password); err != nil {
			slog.Info("SMTP authentication failed",
				"user", username,
				"error", err,
			)
			if webmail.IsLoginFailure(err) {
				return &smtp.SMTPError{
					Code:         535,
					EnhancedCode: smtp.EnhancedCode{5, 7, 8},
					Message:      "Authentication failed",
				}
			}
			return err
		}

		s.client = client
		s.username = username
		return nil
	}), nil
}

// Mail only accepts the authenticated identity as envelope sender.
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	if s.client == nil || from != s.username {
		return &smtp.SMTPError{
			Code:         530,
			EnhancedCode: smtp.EnhancedCode{5, 7, 0},
			Message:      "Not allowed to send mail",
		}
	}
	s.mailFrom = from
	s.rcptTo = nil
	return nil
}

func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.rcptTo = append(s.rcptTo, to)
	return nil
}

// Data parses the submitted message, checks its declared addresses against
// the envelope, and hands it to the webmail send endpoint.
func (s *smtpSession) Data(r io.Reader) error {
	msg, err := parser.Parse(r)
	if err != nil {
		return &smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Failed to parse message",
		}
	}

	if err := s.checkEnvelope(msg.From, msg.To); err != nil {
		return err
	}

	out, err := webmail.NewOutgoingMessage(msg)
	if err != nil {
		return &smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{5, 6, 1},
			Message:      err.Error(),
		}
	}

	if err := s.client.Send(context.Background(), out); err != nil {
		slog.Error("webmail send failed",
			"user", s.username,
			"error", err,
		)
		if webmail.IsLoginRequired(err) {
			return &smtp.SMTPError{
				Code:         530,
				EnhancedCode: smtp.EnhancedCode{5, 7, 0},
				Message:      "Session expired, authenticate again",
			}
		}
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 0, 0},
			Message:      "Temporary failure, please try again later",
		}
	}

	return nil
}

// checkEnvelope requires the message's declared sender and recipients to
// match the protocol envelope exactly: one From equal to the envelope
// sender, and To equal to the recipient list address-for-address in order.
func (s *smtpSession) checkEnvelope(from, to []email.Address) error {
	if len(from) != 1 {
		return envelopeError(fmt.Sprintf("Unexpected number of 'From' addresses: %d", len(from)))
	}
	if from[0].Address != s.mailFrom {
		return envelopeError("Unexpected email address in 'From'")
	}
	if len(to) != len(s.rcptTo) {
		return envelopeError(fmt.Sprintf("Unexpected number of 'To' addresses: %d", len(to)))
	}
	for i, addr := range to {
		if addr.Address != s.rcptTo[i] {
			return envelopeError("Unexpected email address in 'To'")
		}
	}
	return nil
}

func envelopeError(message string) *smtp.SMTPError {
	return &smtp.SMTPError{
		Code:         550,
		EnhancedCode: smtp.EnhancedCode{5, 7, 0},
		Message:      message,
	}
}

func (s *smtpSession) Reset() {
	s.mailFrom = ""
	s.rcptTo = nil
}

func (s *smtpSession) Logout() error {
	if s.username == "" {
		slog.Debug("unauthenticated SMTP client disconnected")
	} else {
		slog.Debug("SMTP client disconnected", "user", s.username)
	}
	return nil
}
