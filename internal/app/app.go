// Package app builds the application context once at process start: the
// logger, database, catalog, price source, notifiers, metrics and tracker.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"pricewatch/internal/config"
	"pricewatch/internal/database"
	apperrors "pricewatch/internal/errors"
	"pricewatch/internal/metrics"
	"pricewatch/internal/notify"
	"pricewatch/internal/retry"
	"pricewatch/internal/scheduler"
	"pricewatch/internal/services"
	"pricewatch/internal/source"
	"pricewatch/internal/tracker"
)

// Notifier names accepted in NOTIFIERS.
const (
	NotifierLog      = "log"
	NotifierTelegram = "telegram"
	NotifierEmail    = "email"
)

// App wires together all components.
type App struct {
	Config   *config.Config
	Log      *zap.SugaredLogger
	DB       *database.Manager
	Catalog  services.CatalogServicer
	Source   source.Source
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Tracker  *tracker.Tracker

	closers []func() error
}

// New opens the database, applies migrations and builds the pipeline.
func New(cfg *config.Config, dbCfg *database.Config, log *zap.SugaredLogger) (*App, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	db, err := database.NewManager(dbCfg, log)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	notifier, err := NewNotifier(cfg, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	src, closeSource := NewSource(cfg, log)

	a := &App{
		Config:   cfg,
		Log:      log,
		DB:       db,
		Catalog:  services.NewCatalogService(db.DB()),
		Source:   src,
		Notifier: notifier,
		Metrics:  metrics.New(),
		closers:  []func() error{closeSource, db.Close},
	}

	policy := retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     retry.Exponential(cfg.BackoffBase),
	}
	a.Tracker = tracker.New(a.Catalog, a.Source, a.Notifier, log.Named("tracker"), tracker.Options{
		Workers:    cfg.Workers,
		Policy:     &policy,
		StoreDelay: cfg.StoreDelay,
		Recorder:   a.Metrics,
	})

	return a, nil
}

// Seed loads the products file and applies it to the catalog.
func (a *App) Seed(ctx context.Context, path string) (*services.SeedResult, error) {
	if path == "" {
		path = a.Config.ProductsFile
	}
	f, err := config.LoadProducts(path)
	if err != nil {
		return nil, err
	}
	return a.Catalog.SeedHierarchy(ctx, f.Products)
}

// Reseed applies a reloaded products file. Failures are logged and the
// previous hierarchy stays in effect.
func (a *App) Reseed(ctx context.Context, f *config.ProductsFile) {
	res, err := a.Catalog.SeedHierarchy(ctx, f.Products)
	if err != nil {
		a.Log.Errorw("reseed failed", "error", err)
		return
	}
	a.Log.Infow("catalog reseeded", "products", res.Products, "presentations", res.Presentations, "stores", res.Stores)
}

// Scheduler builds a scheduler that runs the tracker on the configured interval.
func (a *App) Scheduler() *scheduler.Scheduler {
	return scheduler.New(a.Tracker, scheduler.Config{
		Interval: a.Config.RunInterval,
		Timeout:  a.Config.RunTimeout,
	}, a.Log.Named("scheduler"))
}

// Close releases the price source and the database.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewSource builds the price source for cfg.Source. Known retailers get their
// own page profile; every other host falls back to the generic profile.
// The returned func releases any browser the source started.
func NewSource(cfg *config.Config, log *zap.SugaredLogger) (source.Source, func() error) {
	if cfg.Source == config.SourceBrowser {
		build := func(p source.Profile) *source.BrowserSource {
			return source.NewBrowserSource(p, source.BrowserConfig{
				RemoteURL: cfg.BrowserURL,
				UserAgent: cfg.UserAgent,
				Timeout:   cfg.RequestTimeout,
				Logger:    log.Named("browser"),
			})
		}
		alkosto, generic := build(source.Alkosto), build(source.Generic)
		router := source.NewRouter().Handle("alkosto.com", alkosto).Fallback(generic)
		return router, func() error { return errors.Join(alkosto.Close(), generic.Close()) }
	}

	build := func(p source.Profile) *source.HTTPSource {
		return source.NewHTTPSource(p,
			source.WithUserAgent(cfg.UserAgent),
			source.WithTimeout(cfg.RequestTimeout),
			source.WithLogger(log.Named("http")),
		)
	}
	router := source.NewRouter().Handle("alkosto.com", build(source.Alkosto)).Fallback(build(source.Generic))
	return router, func() error { return nil }
}

// NewNotifier builds the notifier chain named in cfg.Notifiers. An empty list
// disables notifications.
func NewNotifier(cfg *config.Config, log *zap.SugaredLogger) (notify.Notifier, error) {
	var chain notify.Multi
	for _, name := range cfg.Notifiers {
		switch name {
		case NotifierLog:
			chain = append(chain, notify.NewLog(log.Named("alert")))
		case NotifierTelegram:
			tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, log.Named("telegram"))
			if err != nil {
				return nil, err
			}
			chain = append(chain, tg)
		case NotifierEmail:
			em, err := notify.NewEmail(notify.EmailConfig{
				Server:   cfg.SMTP.Server,
				Port:     cfg.SMTP.Port,
				From:     cfg.SMTP.From,
				Password: cfg.SMTP.Password,
				To:       cfg.SMTP.To,
			}, log.Named("email"), nil)
			if err != nil {
				return nil, err
			}
			chain = append(chain, em)
		default:
			return nil, apperrors.WithMessage(apperrors.ErrInvalidConfig, fmt.Sprintf("unknown notifier %q", name))
		}
	}

	switch len(chain) {
	case 0:
		return nil, nil
	case 1:
		return chain[0], nil
	}
	return chain, nil
}
