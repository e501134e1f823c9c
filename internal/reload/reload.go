// Package reload hot-reloads engine thresholds when the config file changes.
package reload

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ppiankov/aille/internal/config"
	"github.com/ppiankov/aille/internal/fusion"
)

// DefaultDebounce is how long the reloader waits after the last write.
const DefaultDebounce = 500 * time.Millisecond

// Target receives reloaded engine thresholds. *fusion.Engine satisfies it.
type Target interface {
	SetConfig(cfg fusion.Config) error
}

// Reloader watches a config file and pushes its engine section to a Target.
type Reloader struct {
	watcher  *fsnotify.Watcher
	path     string
	target   Target
	log      zerolog.Logger
	debounce time.Duration

	mu      sync.Mutex
	reloads int
}

// Option configures a Reloader.
type Option func(*Reloader)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(r *Reloader) { r.debounce = d }
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Reloader) { r.log = log.With().Str("component", "reload").Logger() }
}

// New watches path's directory so that editors which replace the file by
// rename are still seen.
func New(path string, target Target, opts ...Option) (*Reloader, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("reload: resolve %s: %w", path, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("reload: create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("reload: watch %q: %w", filepath.Dir(abs), err)
	}

	r := &Reloader{
		watcher:  watcher,
		path:     abs,
		target:   target,
		log:      zerolog.Nop(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Reload reads the file and applies its engine section. On error the target
// keeps its current thresholds.
func (r *Reloader) Reload() error {
	cfg, err := config.Load(r.path)
	if err != nil {
		return err
	}
	if err := r.target.SetConfig(cfg.Engine); err != nil {
		return fmt.Errorf("reload: apply engine config: %w", err)
	}
	r.mu.Lock()
	r.reloads++
	r.mu.Unlock()
	return nil
}

// Reloads returns the number of successful reloads.
func (r *Reloader) Reloads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reloads
}

// Run watches for changes until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(r.debounce, func() {
				if err := r.Reload(); err != nil {
					r.log.Error().Err(err).Str("path", r.path).Msg("hot-reload failed, keeping previous config")
					return
				}
				r.log.Info().Str("path", r.path).Msg("hot-reload: engine config reloaded")
			})

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Warn().Err(err).Msg("file watcher error")
		}
	}
}
