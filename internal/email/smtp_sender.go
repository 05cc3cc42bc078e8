package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

// SMTPSender envia correos via SMTP usando gomail.
type SMTPSender struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
	appName  string
}

func NewSMTPSender(host string, port int, username, password, from, fromName, appName string, useTLS bool) (*SMTPSender, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("smtp from is required")
	}
	if port == 0 {
		port = 587
	}
	dialer := gomail.NewDialer(host, port, username, password)
	// SSL implicito (465); en otro caso gomail negocia STARTTLS si el server lo ofrece.
	dialer.SSL = useTLS
	if useTLS {
		dialer.TLSConfig = &tls.Config{ServerName: host}
	}
	return &SMTPSender{
		dialer:   dialer,
		from:     from,
		fromName: fromName,
		appName:  appName,
	}, nil
}

func (s *SMTPSender) SendVerificationCode(ctx context.Context, msg VerificationMessage) error {
	if strings.TrimSpace(msg.To) == "" {
		return ErrMissingRecipient
	}
	m, err := s.buildMessage(msg, time.Now())
	if err != nil {
		return err
	}

	// gomail no acepta context: se corta la espera, la conexion termina sola.
	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send verification email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SMTPSender) buildMessage(msg VerificationMessage, now time.Time) (*gomail.Message, error) {
	html, text, err := RenderVerification(s.appName, msg, now)
	if err != nil {
		return nil, err
	}
	m := gomail.NewMessage()
	if strings.TrimSpace(s.fromName) != "" {
		m.SetAddressHeader("From", s.from, s.fromName)
	} else {
		m.SetHeader("From", s.from)
	}
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", Subject(s.appName))
	m.SetBody("text/plain", text)
	m.AddAlternative("text/html", html)
	return m, nil
}
