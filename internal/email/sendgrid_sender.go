package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridSender envia correos con la API HTTP de SendGrid.
type SendGridSender struct {
	client   *sendgrid.Client
	from     string
	fromName string
	appName  string
}

func NewSendGridSender(apiKey, from, fromName, appName string) (*SendGridSender, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("sendgrid from is required")
	}
	return &SendGridSender{
		client:   sendgrid.NewSendClient(apiKey),
		from:     from,
		fromName: fromName,
		appName:  appName,
	}, nil
}

func (s *SendGridSender) SendVerificationCode(ctx context.Context, msg VerificationMessage) error {
	if strings.TrimSpace(msg.To) == "" {
		return ErrMissingRecipient
	}
	message, err := s.buildMessage(msg, time.Now())
	if err != nil {
		return err
	}
	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d", resp.StatusCode)
	}
	return nil
}

func (s *SendGridSender) buildMessage(msg VerificationMessage, now time.Time) (*mail.SGMailV3, error) {
	html, text, err := RenderVerification(s.appName, msg, now)
	if err != nil {
		return nil, err
	}
	from := mail.NewEmail(s.fromName, s.from)
	to := mail.NewEmail(msg.Name, msg.To)
	return mail.NewSingleEmail(from, Subject(s.appName), to, text, html), nil
}
