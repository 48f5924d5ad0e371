package notify

import (
	"context"
	"fmt"
	"html"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	apperrors "pricewatch/internal/errors"
)

// EmailConfig holds SMTP delivery settings.
type EmailConfig struct {
	Server   string
	Port     int
	From     string
	Password string
	To       []string
}

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email sends alerts as HTML mail over SMTP with STARTTLS and PLAIN auth.
type Email struct {
	cfg      EmailConfig
	sendMail SendMailFunc
	log      *zap.SugaredLogger
}

// NewEmail creates an Email notifier. send may be nil to use smtp.SendMail.
func NewEmail(cfg EmailConfig, log *zap.SugaredLogger, send SendMailFunc) (*Email, error) {
	if cfg.Server == "" || cfg.From == "" || cfg.Password == "" || len(cfg.To) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidConfig,
			"email: SMTP_SERVER, EMAIL_FROM, EMAIL_PASSWORD and EMAIL_TO are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if send == nil {
		send = smtp.SendMail
	}
	return &Email{cfg: cfg, sendMail: send, log: log}, nil
}

// Notify implements Notifier. net/smtp has no context support, so ctx is
// only checked before sending.
func (e *Email) Notify(ctx context.Context, alert Alert) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.ErrNotification, err)
	}

	addr := net.JoinHostPort(e.cfg.Server, strconv.Itoa(e.cfg.Port))
	auth := smtp.PlainAuth("", e.cfg.From, e.cfg.Password, e.cfg.Server)
	if err := e.sendMail(addr, auth, e.cfg.From, e.cfg.To, EmailMessage(e.cfg.From, e.cfg.To, alert)); err != nil {
		return apperrors.Wrap(apperrors.ErrNotification, fmt.Errorf("email: send via %s: %w", addr, err))
	}

	e.log.Infow("Alert sent via email", "product", alert.ProductLabel, "to", e.cfg.To)
	return nil
}

// EmailMessage builds the RFC 5322 message for alert.
func EmailMessage(from string, to []string, alert Alert) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: Precio rebajado: %s\r\n", alert.ProductLabel)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")

	fmt.Fprintf(&b, "<h2>¡Precio Rebajado!</h2>\r\n")
	fmt.Fprintf(&b, "<p><strong>Producto:</strong> %s</p>\r\n", html.EscapeString(alert.ProductLabel))
	fmt.Fprintf(&b, "<p><strong>Precio anterior:</strong> <del>%s</del></p>\r\n", FormatMoney(alert.ReferencePrice))
	fmt.Fprintf(&b, "<p><strong>Precio actual:</strong> %s</p>\r\n", FormatMoney(alert.NewPrice))
	fmt.Fprintf(&b, "<p><strong>Descuento:</strong> %s</p>\r\n", percent(alert.DiscountPercent()))
	if alert.Reason != "" {
		fmt.Fprintf(&b, "<p>%s</p>\r\n", html.EscapeString(alert.Reason))
	}
	fmt.Fprintf(&b, "<p><a href=\"%s\">Ver Producto</a></p>\r\n", html.EscapeString(alert.URL))
	return []byte(b.String())
}
