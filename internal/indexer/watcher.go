package indexer

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/digitarald/vscode-session-trace/internal/logging"
)

var watchLog = logging.ForComponent(logging.CompWatch)

// WatchOptions tunes the filesystem watcher.
type WatchOptions struct {
	Debounce         time.Duration // quiet period before a change triggers a pass
	ReindexPerMinute int           // rate cap on triggered passes
}

// Watcher observes the session log roots and triggers incremental reindex
// passes when logs change. Rapid bursts of writes coalesce into one pass.
type Watcher struct {
	ix        *Indexer
	fs        *fsnotify.Watcher
	opts      WatchOptions
	limiter   *rate.Limiter
	dirty     chan struct{}
	mu        sync.Mutex
	lastEvent time.Time
}

// NewWatcher creates a watcher bound to the indexer's base directory.
func NewWatcher(ix *Indexer, opts WatchOptions) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	if opts.ReindexPerMinute <= 0 {
		opts.ReindexPerMinute = 12
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		ix:      ix,
		fs:      fs,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(float64(opts.ReindexPerMinute)/60.0), 1),
		dirty:   make(chan struct{}, 1),
	}, nil
}

// Run watches until the context is cancelled. It adds the storage roots
// that exist at startup and picks up new workspace directories as they
// appear under workspaceStorage.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	w.addRoots()

	go w.eventLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.dirty:
			if err := w.limiter.Wait(ctx); err != nil {
				return err
			}
			stats, err := w.ix.Reindex(ctx, false, nil)
			if err != nil {
				watchLog.Warn("reindex_failed", slog.String("error", err.Error()))
				continue
			}
			watchLog.Info("reindexed",
				slog.Int("indexed", stats.Indexed),
				slog.Int("pruned", stats.Pruned))
		}
	}
}

// addRoots registers the storage roots and every existing per-workspace
// chatSessions directory.
func (w *Watcher) addRoots() {
	base := w.ix.opts.BaseDir

	wsRoot := filepath.Join(base, "workspaceStorage")
	w.add(wsRoot) // catches new workspace directories appearing
	if entries, err := os.ReadDir(wsRoot); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			dir := filepath.Join(wsRoot, e.Name(), "chatSessions")
			if _, err := os.Stat(dir); err == nil {
				w.add(dir)
			}
		}
	}

	w.add(filepath.Join(base, "emptyWindowChatSessions"))
	w.add(filepath.Join(base, "transferredChatSessions"))
}

func (w *Watcher) add(dir string) {
	if err := w.fs.Add(dir); err != nil {
		watchLog.Debug("watch_add_failed", slog.String("dir", dir), slog.String("error", err.Error()))
	}
}

// eventLoop debounces raw filesystem events into dirty signals.
func (w *Watcher) eventLoop(ctx context.Context) {
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}

			w.mu.Lock()
			w.lastEvent = time.Now()
			w.mu.Unlock()

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.opts.Debounce, func() {
				w.mu.Lock()
				settled := time.Since(w.lastEvent) >= w.opts.Debounce
				w.mu.Unlock()
				if !settled {
					return
				}
				select {
				case w.dirty <- struct{}{}:
				default: // a pass is already pending
				}
			})

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			watchLog.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}

// relevant filters events down to session log changes, and registers
// chatSessions directories for workspaces created after startup.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			dir := filepath.Join(event.Name, "chatSessions")
			if _, err := os.Stat(dir); err == nil {
				w.add(dir)
			}
			return false
		}
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return strings.HasSuffix(event.Name, ".json")
}
