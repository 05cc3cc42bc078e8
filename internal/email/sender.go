package email

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// VerificationMessage contiene lo necesario para enviar un codigo de verificacion.
type VerificationMessage struct {
	To        string
	Name      string
	Code      string
	ExpiresAt time.Time
}

// Sender define la interfaz para envio de correos de verificacion.
type Sender interface {
	SendVerificationCode(ctx context.Context, msg VerificationMessage) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendVerificationCode(_ context.Context, _ VerificationMessage) error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}

// LogSender no envia nada: escribe el correo en el log. Solo para desarrollo.
type LogSender struct {
	logger  *zap.Logger
	appName string
}

func NewLogSender(logger *zap.Logger, appName string) *LogSender {
	return &LogSender{logger: logger, appName: appName}
}

func (s *LogSender) SendVerificationCode(ctx context.Context, msg VerificationMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.To == "" {
		return ErrMissingRecipient
	}
	s.logger.Info("verification email (dev mode, not sent)",
		zap.String("to", msg.To),
		zap.String("subject", Subject(s.appName)),
		zap.String("code", msg.Code),
		zap.Time("expires_at", msg.ExpiresAt),
	)
	return nil
}

// ErrMissingRecipient se devuelve cuando el mensaje no tiene destinatario.
var ErrMissingRecipient = errors.New("to email is required")
