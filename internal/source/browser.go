package source

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	apperrors "pricewatch/internal/errors"
)

// BrowserConfig configures a BrowserSource.
type BrowserConfig struct {
	// RemoteURL is the DevTools WebSocket URL of a running Chrome.
	// Empty launches a local headless Chrome on first use.
	RemoteURL string
	UserAgent string
	Timeout   time.Duration
	Logger    *zap.SugaredLogger
}

func (c *BrowserConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
}

// BrowserSource renders pages in headless Chrome for stores that build
// their prices with JavaScript. It keeps one browser for its lifetime and
// opens one tab per extraction. It is not safe for concurrent use.
type BrowserSource struct {
	cfg     BrowserConfig
	profile Profile

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewBrowserSource creates a BrowserSource. Chrome is started lazily.
func NewBrowserSource(profile Profile, cfg BrowserConfig) *BrowserSource {
	cfg.defaults()
	return &BrowserSource{cfg: cfg, profile: profile}
}

// Extract opens url in a new tab, waits for it to load and applies the
// profile to the rendered DOM.
func (s *BrowserSource) Extract(ctx context.Context, url string) (Result, error) {
	b, err := s.connect()
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.ErrExtraction, err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.ErrExtraction, fmt.Errorf("browser: create tab: %w", err))
	}
	defer page.Close()

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: s.cfg.UserAgent}); err != nil {
		s.cfg.Logger.Warnw("browser: set user agent failed", "error", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	p := page.Context(navCtx)

	if err := p.Navigate(url); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, apperrors.Wrap(apperrors.ErrExtraction, fmt.Errorf("browser: navigate %s: %w", url, err))
	}
	if err := p.WaitLoad(); err != nil {
		s.cfg.Logger.Warnw("browser: wait load timeout", "url", url, "error", err)
	}

	html, err := p.HTML()
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, apperrors.Wrap(apperrors.ErrExtraction, fmt.Errorf("browser: read DOM: %w", err))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.ErrExtraction, err)
	}
	return s.profile.Extract(doc.Selection)
}

// Close shuts the browser down.
func (s *BrowserSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	var err error
	if s.browser != nil {
		err = s.browser.Close()
		s.browser = nil
	}
	if s.lnch != nil {
		s.lnch.Kill()
		s.lnch = nil
	}
	return err
}

func (s *BrowserSource) connect() (*rod.Browser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("browser: source is closed")
	}
	if s.browser != nil {
		return s.browser, nil
	}

	wsURL := s.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(true).Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		s.lnch = l
		s.cfg.Logger.Infow("browser: launched local chrome", "url", wsURL)
	} else {
		s.cfg.Logger.Infow("browser: connecting to remote", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	s.browser = b
	return b, nil
}
