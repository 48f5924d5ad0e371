// Package notify delivers price alerts to people.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	apperrors "pricewatch/internal/errors"
)

// Alert is one price drop worth telling someone about.
type Alert struct {
	ProductLabel   string
	ReferencePrice float64
	NewPrice       float64
	URL            string
	Reason         string
}

// DiscountPercent is the drop from ReferencePrice to NewPrice in percent.
func (a Alert) DiscountPercent() float64 {
	if a.ReferencePrice <= 0 {
		return 0
	}
	return (a.ReferencePrice - a.NewPrice) / a.ReferencePrice * 100
}

// Notifier delivers an alert. Failures are reported, never retried here.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Func adapts a function to a Notifier.
type Func func(ctx context.Context, alert Alert) error

// Notify calls f.
func (f Func) Notify(ctx context.Context, alert Alert) error {
	return f(ctx, alert)
}

// Multi fans an alert out to every notifier. All are attempted; the
// returned error joins every failure.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrNotification, errors.Join(errs...))
}

// FormatMoney renders v rounded to whole units with comma grouping, e.g. "$45,000".
func FormatMoney(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	digits := strconv.FormatFloat(v, 'f', 0, 64)

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, c := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}
