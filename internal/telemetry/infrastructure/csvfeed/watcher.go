package csvfeed

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher calls a trigger when a new or rewritten CSV lands in a feed folder.
// Bursts of events inside the debounce window collapse into one call.
type Watcher struct {
	feeds    []FeedConfig
	debounce time.Duration
	trigger  func(ctx context.Context)
	logger   *zap.Logger
}

// NewWatcher constructs a watcher over the feeds' folders.
func NewWatcher(feeds []FeedConfig, debounce time.Duration, trigger func(ctx context.Context), logger *zap.Logger) (*Watcher, error) {
	if len(feeds) == 0 {
		return nil, errors.New("csvfeed watcher: no feeds")
	}
	if trigger == nil {
		return nil, errors.New("csvfeed watcher: nil trigger")
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		feeds:    feeds,
		debounce: debounce,
		trigger:  trigger,
		logger:   logger.With(zap.String("component", "csvfeed-watcher")),
	}, nil
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("csvfeed watcher: nil")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	patterns := make(map[string][]string)
	for _, feed := range w.feeds {
		dir := filepath.Clean(feed.Dir)
		if _, seen := patterns[dir]; !seen {
			if err := fsw.Add(dir); err != nil {
				return err
			}
		}
		patterns[dir] = append(patterns[dir], feed.pattern())
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()
	schedule := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, func() {
			if ctx.Err() == nil {
				w.trigger(ctx)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !matches(patterns[filepath.Dir(event.Name)], filepath.Base(event.Name)) {
				continue
			}
			w.logger.Debug("feed file changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			schedule()
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func matches(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
