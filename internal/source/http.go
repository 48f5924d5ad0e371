package source

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	apperrors "pricewatch/internal/errors"
)

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// HTTPSource fetches pages with a colly collector and extracts prices with a
// selector profile. Each extraction runs on a clone of the base collector, so
// the source is safe for concurrent use.
type HTTPSource struct {
	base    *colly.Collector
	profile Profile
	log     *zap.SugaredLogger
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*httpOptions)

type httpOptions struct {
	userAgent string
	timeout   time.Duration
	log       *zap.SugaredLogger
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(o *httpOptions) {
		if ua != "" {
			o.userAgent = ua
		}
	}
}

// WithTimeout bounds each page request.
func WithTimeout(d time.Duration) HTTPOption {
	return func(o *httpOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(log *zap.SugaredLogger) HTTPOption {
	return func(o *httpOptions) {
		if log != nil {
			o.log = log
		}
	}
}

// NewHTTPSource creates an HTTPSource for pages laid out as profile.
func NewHTTPSource(profile Profile, opts ...HTTPOption) *HTTPSource {
	o := httpOptions{userAgent: DefaultUserAgent, timeout: 30 * time.Second, log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(&o)
	}

	c := colly.NewCollector(
		colly.UserAgent(o.userAgent),
		// The tracker retries the same URL, and every cycle revisits it.
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(o.timeout)

	return &HTTPSource{base: c, profile: profile, log: o.log}
}

// ConcurrencySafe implements ConcurrencySafe.
func (s *HTTPSource) ConcurrencySafe() bool { return true }

// Extract fetches url and applies the profile to the returned HTML.
func (s *HTTPSource) Extract(ctx context.Context, url string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	c := s.base.Clone()

	var (
		res      Result
		extErr   error
		parsed   bool
		httpCode int
	)
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		s.log.Debugw("Visiting", "url", r.URL.String(), "profile", s.profile.Name)
	})
	c.OnResponse(func(r *colly.Response) {
		httpCode = r.StatusCode
	})
	c.OnHTML("html", func(e *colly.HTMLElement) {
		parsed = true
		res, extErr = s.profile.Extract(e.DOM)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			httpCode = r.StatusCode
		}
	})

	if err := c.Visit(url); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, apperrors.Wrap(apperrors.ErrExtraction, fmt.Errorf("fetch %s (status %d): %w", url, httpCode, err))
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if !parsed {
		return Result{}, apperrors.WithMessage(apperrors.ErrExtraction, fmt.Sprintf("no HTML document at %s (status %d)", url, httpCode))
	}
	if extErr != nil {
		return Result{}, extErr
	}
	return res, nil
}
