package notify

import (
	"context"

	"go.uber.org/zap"
)

// Log writes alerts to the application log. It never fails.
type Log struct {
	log *zap.SugaredLogger
}

// NewLog creates a Log notifier.
func NewLog(log *zap.SugaredLogger) *Log {
	return &Log{log: log}
}

// Notify implements Notifier.
func (l *Log) Notify(_ context.Context, alert Alert) error {
	l.log.Infow("PRICE ALERT",
		"product", alert.ProductLabel,
		"reference_price", alert.ReferencePrice,
		"new_price", alert.NewPrice,
		"discount_pct", alert.DiscountPercent(),
		"reason", alert.Reason,
		"url", alert.URL,
	)
	return nil
}
