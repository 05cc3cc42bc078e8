package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"math"
	texttemplate "text/template"
	"time"
)

// Subject arma el asunto del correo de verificacion.
func Subject(appName string) string {
	return fmt.Sprintf("%s - Email verification code", appName)
}

const htmlBody = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h1>{{.AppName}}</h1>
  <p>Hi {{.Name}},</p>
  <p>Thanks for signing up for {{.AppName}}. Your verification code is:</p>
  <p style="font-size: 32px; font-weight: bold; letter-spacing: 8px;">{{.Code}}</p>
  <p>This code expires in <strong>{{.Minutes}} minutes</strong>.</p>
  <p>If you did not create this account, you can ignore this email.</p>
  <p style="font-size: 12px; color: #999;">This message was sent automatically, please do not reply.</p>
</body>
</html>
`

const textBody = `Hi {{.Name}},

Your {{.AppName}} verification code is {{.Code}}.
It expires in {{.Minutes}} minutes ({{.ExpiresAt}} UTC).

If you did not create this account, you can ignore this email.
`

var (
	htmlTmpl = htmltemplate.Must(htmltemplate.New("verification_html").Parse(htmlBody))
	textTmpl = texttemplate.Must(texttemplate.New("verification_text").Parse(textBody))
)

type templateData struct {
	AppName   string
	Name      string
	Code      string
	Minutes   int
	ExpiresAt string
}

// RenderVerification devuelve el cuerpo HTML y el de texto plano del correo.
// now se usa para calcular los minutos restantes hasta la expiracion.
func RenderVerification(appName string, msg VerificationMessage, now time.Time) (string, string, error) {
	minutes := int(math.Ceil(msg.ExpiresAt.Sub(now).Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	name := msg.Name
	if name == "" {
		name = msg.To
	}
	data := templateData{
		AppName:   appName,
		Name:      name,
		Code:      msg.Code,
		Minutes:   minutes,
		ExpiresAt: msg.ExpiresAt.UTC().Format(time.RFC3339),
	}

	var html, text bytes.Buffer
	if err := htmlTmpl.Execute(&html, data); err != nil {
		return "", "", fmt.Errorf("render html: %w", err)
	}
	if err := textTmpl.Execute(&text, data); err != nil {
		return "", "", fmt.Errorf("render text: %w", err)
	}
	return html.String(), text.String(), nil
}
