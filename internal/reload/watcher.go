package reload

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/blackwell-systems/edgeredirect/internal/config"
	"github.com/blackwell-systems/edgeredirect/internal/observability"
	"github.com/blackwell-systems/edgeredirect/internal/redirect"
)

const defaultDebounce = 250 * time.Millisecond

// Target receives each successfully built table.
type Target interface {
	SetTable(table *redirect.Table)
}

// Watcher rebuilds the redirect table when the config file changes. A config
// that fails to load or validate is logged and the current table stays.
type Watcher struct {
	path     string
	target   Target
	log      logrus.FieldLogger
	metrics  *observability.Metrics
	debounce time.Duration
}

func NewWatcher(path string, target Target, log logrus.FieldLogger) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	if target == nil {
		return nil, errors.New("reload target is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Watcher{
		path:     abs,
		target:   target,
		log:      log.WithField("component", "reload"),
		debounce: defaultDebounce,
	}, nil
}

func (w *Watcher) SetMetrics(metrics *observability.Metrics) {
	w.metrics = metrics
}

func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Reload loads, validates, and applies the config file once.
func (w *Watcher) Reload() (*redirect.Table, error) {
	table, err := w.build()
	if err != nil {
		w.metrics.ObserveReload(observability.ReloadFailed)
		return nil, err
	}
	w.target.SetTable(table)
	w.metrics.ObserveReload(observability.ReloadOK)
	return table, nil
}

func (w *Watcher) build() (*redirect.Table, error) {
	cfg, err := config.Load(w.path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			return nil, fmt.Errorf("%w: %v", err, verr.Problems)
		}
		return nil, err
	}
	// A config caught mid-write decodes as an empty document.
	if len(cfg.Rules) == 0 {
		return nil, errors.New("config has no rules")
	}
	return cfg.Table()
}

// Run watches the config file's directory until ctx is done. Editors that
// replace the file through a rename are handled because the directory, not
// the file, is watched.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.log.WithField("path", w.path).Info("watching config for changes")

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("config watcher error")
		case <-timer.C:
			table, err := w.Reload()
			if err != nil {
				w.log.WithError(err).Error("config reload rejected, keeping current rules")
				continue
			}
			w.log.WithFields(logrus.Fields{"rules": table.Len(), "hosts": table.Hosts()}).Info("rules reloaded")
		}
	}
}
