// Package source extracts the displayed product name and prices from store
// pages. The tracker depends only on the Source interface.
package source

import (
	"context"
	"fmt"

	apperrors "pricewatch/internal/errors"
)

// Result is a normalized extraction. Discounted is nil when no promotional
// price is shown.
type Result struct {
	Name       string
	Official   float64
	Discounted *float64
}

// Effective is the price a buyer pays.
func (r Result) Effective() float64 {
	if r.Discounted != nil {
		return *r.Discounted
	}
	return r.Official
}

// Validate checks official > 0 and, when present, 0 < discounted < official.
func (r Result) Validate() error {
	if r.Official <= 0 {
		return apperrors.WithMessage(apperrors.ErrInvariantViolation, fmt.Sprintf("official price must be positive, got %v", r.Official))
	}
	if r.Discounted != nil && (*r.Discounted <= 0 || *r.Discounted >= r.Official) {
		return apperrors.WithMessage(apperrors.ErrInvariantViolation,
			fmt.Sprintf("discounted price %v must be positive and below official price %v", *r.Discounted, r.Official))
	}
	return nil
}

// Source fetches a product page and extracts its prices.
type Source interface {
	Extract(ctx context.Context, url string) (Result, error)
}

// ConcurrencySafe is implemented by sources that may be called from several
// goroutines at once. Sources that do not implement it are serialized.
type ConcurrencySafe interface {
	ConcurrencySafe() bool
}

// IsConcurrencySafe reports whether src declared itself safe for concurrent use.
func IsConcurrencySafe(src Source) bool {
	cs, ok := src.(ConcurrencySafe)
	return ok && cs.ConcurrencySafe()
}

// Func adapts a function to a Source. It is not concurrency safe.
type Func func(ctx context.Context, url string) (Result, error)

// Extract calls f.
func (f Func) Extract(ctx context.Context, url string) (Result, error) {
	return f(ctx, url)
}
