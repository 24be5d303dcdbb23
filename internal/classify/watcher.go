package classify

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads a rules file into a Classifier when the file changes.
// It watches the parent directory so editors that replace the file by
// rename are picked up too. A file that fails to parse leaves the current
// rules in place.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	classifier  *Classifier
	path        string
	debounceDur time.Duration
	logger      *zap.Logger
	running     bool
	doneCh      chan struct{}
	reloads     int
}

func NewWatcher(path string, classifier *Classifier, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve rules path: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		watcher:     fw,
		classifier:  classifier,
		path:        abs,
		debounceDur: 250 * time.Millisecond,
		logger:      logger.Named("rules-watcher"),
		doneCh:      make(chan struct{}),
	}, nil
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer close(w.doneCh)
	defer w.watcher.Close()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Info("watching rules file", zap.String("path", w.path))

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounceDur)
			} else {
				timer.Reset(w.debounceDur)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	rules, err := LoadRules(w.path)
	if err != nil {
		w.logger.Warn("ignoring invalid rules file", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.classifier.SetRules(rules)
	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()
	w.logger.Info("reloaded classification rules", zap.String("path", w.path))
}

// Reloads reports how many times the rules were swapped.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Done is closed once Run returns.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneCh
}
