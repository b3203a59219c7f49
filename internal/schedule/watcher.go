package schedule

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher calls a handler for each HTML report written into a directory,
// once the file has stopped changing for the debounce window.
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	handle   func(ctx context.Context, path string)
	logger   *zap.Logger
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]time.Time
}

func NewWatcher(dir string, logger *zap.Logger, handle func(ctx context.Context, path string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		dir:      dir,
		watcher:  fw,
		handle:   handle,
		logger:   logger,
		debounce: defaultDebounce,
		pending:  make(map[string]time.Time),
	}, nil
}

// Run blocks until ctx is done, then closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	w.logger.Info("watching for reports", zap.String("dir", w.dir))

	tick := time.NewTicker(w.debounce / 5)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.observe(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		case <-tick.C:
			for _, path := range w.settled(time.Now()) {
				w.handle(ctx, path)
			}
		}
	}
}

func (w *Watcher) observe(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !IsReportFile(event.Name) {
		return
	}
	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

// settled returns the paths quiet for at least the debounce window, sorted
// by name, and forgets them.
func (w *Watcher) settled(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for path, seen := range w.pending {
		if now.Sub(seen) >= w.debounce {
			out = append(out, path)
			delete(w.pending, path)
		}
	}
	sort.Strings(out)
	return out
}

// IsReportFile reports whether name looks like an HTML report.
func IsReportFile(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".html", ".htm":
		return true
	}
	return false
}
