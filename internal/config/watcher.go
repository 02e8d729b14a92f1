package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/rcourtman/harborview/internal/logging"
)

const defaultDebounce = 100 * time.Millisecond

// Watcher reloads the configuration when harborview.yaml or .env in the data
// directory changes. Only the log level is applied live; other settings are
// handed to the reload callback.
type Watcher struct {
	dataDir  string
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu       sync.RWMutex
	current  *Config
	onReload func(*Config)
	started  bool

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewWatcher creates a watcher seeded with cfg. onReload may be nil.
func NewWatcher(cfg *Config, onReload func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		dataDir:  cfg.DataDir,
		watcher:  fw,
		debounce: defaultDebounce,
		current:  cfg,
		onReload: onReload,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching the data directory.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.dataDir); err != nil {
		w.watcher.Close()
		close(w.done)
		return err
	}
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
	go w.watchForChanges()
	log.Info().Str("dir", w.dataDir).Msg("Started watching config files for changes")
	return nil
}

// Stop stops the watcher and waits for its goroutine.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.watcher.Close()
		w.mu.RLock()
		started := w.started
		w.mu.RUnlock()
		if !started {
			select {
			case <-w.done:
			default:
				close(w.done)
			}
		}
	})
	<-w.done
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Reload re-reads the configuration immediately (e.g. from SIGHUP).
func (w *Watcher) Reload() {
	next, err := Load(w.dataDir)
	if err != nil {
		log.Error().Err(err).Msg("Failed to reload configuration; keeping previous settings")
		return
	}

	w.mu.Lock()
	prev := w.current
	w.current = next
	callback := w.onReload
	w.mu.Unlock()

	if prev == nil || prev.LogLevel != next.LogLevel {
		logging.SetGlobalLevel(next.LogLevel)
		log.Info().Str("level", next.LogLevel).Msg("Log level updated from configuration")
	}
	if callback != nil {
		callback(next)
	}
}

func (w *Watcher) relevant(name string) bool {
	base := filepath.Base(name)
	return base == FileName || base == ".env"
}

func (w *Watcher) watchForChanges() {
	defer close(w.done)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event.Name) || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			log.Debug().Str("file", event.Name).Str("event", event.Op.String()).Msg("Detected config file change")
			// Editors often write in several steps; coalesce them.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			w.Reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Config watcher error")

		case <-w.stopChan:
			return
		}
	}
}
