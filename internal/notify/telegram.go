package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "pricewatch/internal/errors"
)

// DefaultTelegramAPI is the Bot API base URL.
const DefaultTelegramAPI = "https://api.telegram.org"

// Telegram sends alerts through the Telegram Bot API sendMessage method.
type Telegram struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	log     *zap.SugaredLogger
}

// TelegramOption configures a Telegram notifier.
type TelegramOption func(*Telegram)

// WithTelegramAPI overrides the Bot API base URL.
func WithTelegramAPI(baseURL string) TelegramOption {
	return func(t *Telegram) { t.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) TelegramOption {
	return func(t *Telegram) { t.client = c }
}

// NewTelegram creates a Telegram notifier for chatID.
func NewTelegram(token, chatID string, log *zap.SugaredLogger, opts ...TelegramOption) (*Telegram, error) {
	if token == "" || chatID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidConfig, "telegram: TG_TOKEN and TG_CHAT_ID are required")
	}
	t := &Telegram{
		token:   token,
		chatID:  chatID,
		baseURL: DefaultTelegramAPI,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Notify implements Notifier.
func (t *Telegram) Notify(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:    t.chatID,
		Text:      TelegramMessage(alert),
		ParseMode: "HTML",
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNotification, err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNotification, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The token is part of the URL; keep it out of the error.
		return apperrors.WithMessage(apperrors.ErrNotification, "telegram: request failed: "+redact(err.Error(), t.token))
	}
	defer resp.Body.Close()

	var out apiResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	_ = json.Unmarshal(raw, &out)
	if resp.StatusCode != http.StatusOK || !out.OK {
		return apperrors.WithMessage(apperrors.ErrNotification,
			fmt.Sprintf("telegram: sendMessage returned %d: %s", resp.StatusCode, out.Description))
	}

	t.log.Infow("Alert sent via Telegram", "product", alert.ProductLabel, "price", alert.NewPrice)
	return nil
}

// TelegramMessage renders alert as a Telegram HTML message.
func TelegramMessage(alert Alert) string {
	var b strings.Builder
	b.WriteString("🔥 <b>¡PRECIO REBAJADO!</b>\n\n")
	fmt.Fprintf(&b, "📦 <b>%s</b>\n", html.EscapeString(alert.ProductLabel))
	fmt.Fprintf(&b, "💰 Precio anterior: <s>%s</s>\n", FormatMoney(alert.ReferencePrice))
	fmt.Fprintf(&b, "🎯 Precio actual: <b>%s</b>\n", FormatMoney(alert.NewPrice))
	fmt.Fprintf(&b, "📉 Descuento: <b>%s</b>\n", percent(alert.DiscountPercent()))
	if alert.Reason != "" {
		fmt.Fprintf(&b, "ℹ️ %s\n", html.EscapeString(alert.Reason))
	}
	fmt.Fprintf(&b, "\n🛒 <a href=\"%s\">Ver producto</a>", html.EscapeString(alert.URL))
	return b.String()
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "***")
}
