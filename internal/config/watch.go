package config

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// CatalogWatcher polls gears.yaml and hands every successfully parsed revision
// to its callback. A broken revision is logged once and the previous catalog
// stays in effect until the file changes again.
type CatalogWatcher struct {
	path     string
	interval time.Duration
	logger   *zerolog.Logger

	seen    time.Time
	missing bool
}

func NewCatalogWatcher(path string, interval time.Duration, logger *zerolog.Logger) *CatalogWatcher {
	if path == "" {
		path = "configs/gears.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	w := &CatalogWatcher{path: path, interval: interval, logger: logger}
	if info, err := os.Stat(path); err == nil {
		w.seen = info.ModTime()
	} else {
		w.missing = true
	}
	return w
}

// Check stats the catalog once. It returns a catalog only when the file has a
// newer modification time than the last revision seen and that revision is valid.
func (w *CatalogWatcher) Check() *CatalogConfig {
	info, err := os.Stat(w.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if !w.missing {
				w.logger.Warn().Str("path", w.path).Msg("Gear catalog disappeared, keeping current gears")
			}
			w.missing = true
			return nil
		}
		w.logger.Error().Err(err).Str("path", w.path).Msg("Failed to stat gear catalog")
		return nil
	}
	w.missing = false

	if !info.ModTime().After(w.seen) {
		return nil
	}
	w.seen = info.ModTime()

	cat, err := LoadCatalog(w.path)
	if err != nil {
		w.logger.Error().Err(err).Str("path", w.path).Msg("Gear catalog update rejected, keeping current gears")
		return nil
	}
	return cat
}

// Run polls until ctx is cancelled.
func (w *CatalogWatcher) Run(ctx context.Context, onUpdate func(*CatalogConfig)) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Debug().Str("path", w.path).Dur("interval", w.interval).Msg("Watching gear catalog")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cat := w.Check(); cat != nil && onUpdate != nil {
				onUpdate(cat)
			}
		}
	}
}
