package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	apperrors "pricewatch/internal/errors"
)

type route struct {
	suffix string
	src    Source
}

// Router dispatches each URL to the source registered for its host. A host
// matches a suffix when it equals it or ends with "." + suffix.
type Router struct {
	routes   []route
	fallback Source
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{}
}

// Handle registers src for hosts under suffix. Earlier registrations win.
func (r *Router) Handle(suffix string, src Source) *Router {
	r.routes = append(r.routes, route{suffix: strings.ToLower(strings.TrimPrefix(suffix, ".")), src: src})
	return r
}

// Fallback sets the source for hosts with no route. Without one those URLs
// fail to extract.
func (r *Router) Fallback(src Source) *Router {
	r.fallback = src
	return r
}

// Extract implements Source.
func (r *Router) Extract(ctx context.Context, rawURL string) (Result, error) {
	src, err := r.Lookup(rawURL)
	if err != nil {
		return Result{}, err
	}
	return src.Extract(ctx, rawURL)
}

// Lookup returns the source responsible for rawURL.
func (r *Router) Lookup(rawURL string) (Source, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return nil, apperrors.WithMessage(apperrors.ErrExtraction, fmt.Sprintf("invalid store url %q", rawURL))
	}
	host := strings.ToLower(u.Hostname())
	for _, rt := range r.routes {
		if host == rt.suffix || strings.HasSuffix(host, "."+rt.suffix) {
			return rt.src, nil
		}
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, apperrors.WithMessage(apperrors.ErrExtraction, fmt.Sprintf("no price source supports host %s", host))
}

// ConcurrencySafe reports true only when every routed source is.
func (r *Router) ConcurrencySafe() bool {
	for _, rt := range r.routes {
		if !IsConcurrencySafe(rt.src) {
			return false
		}
	}
	return r.fallback == nil || IsConcurrencySafe(r.fallback)
}
