package contracts

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 100 * time.Millisecond

// Watcher reloads an AddressBook whenever its file changes on disk and fans
// the new map out to subscribers.
type Watcher struct {
	book    *AddressBook
	path    string
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}

	mu          sync.Mutex
	subscribers []chan map[string]string
	timer       *time.Timer
}

// Watch starts watching the directory holding book's file.
func Watch(book *AddressBook, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	absPath, err := filepath.Abs(book.Path())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(absPath)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		book:    book,
		path:    absPath,
		logger:  logger,
		watcher: fw,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go w.watchLoop(ctx)
	return w, nil
}

// Subscribe returns a channel receiving the address map after every reload.
// The current map is delivered immediately.
func (w *Watcher) Subscribe() <-chan map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(chan map[string]string, 1)
	ch <- w.book.Addresses()
	w.subscribers = append(w.subscribers, ch)
	return ch
}

// Close stops watching and waits for the loop to exit.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	<-w.done

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return err
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.schedule(ctx)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("address map watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, func() {
		if ctx.Err() != nil {
			return
		}
		w.reload()
	})
}

func (w *Watcher) reload() {
	if err := w.book.Reload(); err != nil {
		w.logger.Warn("address map reload failed", "path", w.path, "error", err)
		return
	}
	addrs := w.book.Addresses()
	w.logger.Info("address map reloaded", "path", w.path, "contracts", len(addrs))

	w.mu.Lock()
	subscribers := make([]chan map[string]string, len(w.subscribers))
	copy(subscribers, w.subscribers)
	w.mu.Unlock()

	for _, ch := range subscribers {
		// Replace a stale undelivered map with the latest one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- addrs:
		default:
		}
	}
}
