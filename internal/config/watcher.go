package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ProductsWatcher reloads the products file when it changes on disk.
// The parent directory is watched so editors that replace the file by
// rename are still observed.
type ProductsWatcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	log      *zap.SugaredLogger
}

// NewProductsWatcher creates a watcher for the products file at path.
func NewProductsWatcher(path string, debounce time.Duration, log *zap.SugaredLogger) (*ProductsWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = fsw.Close()
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &ProductsWatcher{path: abs, debounce: debounce, watcher: fsw, log: log}, nil
}

// Run blocks until ctx is done. After each burst of writes settles, the file
// is reloaded; a valid file is handed to onChange, an invalid one is logged
// and the previous hierarchy stays in effect.
func (w *ProductsWatcher) Run(ctx context.Context, onChange func(context.Context, *ProductsFile)) {
	defer func() { _ = w.watcher.Close() }()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.log.Debugw("products file change detected", "path", w.path, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Errorw("products watcher error", "error", err)

		case <-fire:
			fire = nil
			f, err := LoadProducts(w.path)
			if err != nil {
				w.log.Errorw("products file reload rejected", "path", w.path, "error", err)
				continue
			}
			w.log.Infow("products file reloaded", "path", w.path, "products", len(f.Products), "stores", f.StoreCount())
			onChange(ctx, f)
		}
	}
}
