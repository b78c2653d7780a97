package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settled is a file whose size and mtime stopped changing.
type settled struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// pendingFile tracks a file that may still be changing.
type pendingFile struct {
	size    int64
	modTime time.Time
	timer   *time.Timer
}

// watcher reports files under a directory tree once writes to them settle.
type watcher struct {
	logger      *slog.Logger
	fsw         *fsnotify.Watcher
	settleDelay time.Duration

	mu      sync.Mutex // protects pending
	pending map[string]*pendingFile

	files  chan settled
	done   chan struct{}
	wg     sync.WaitGroup
	closed sync.Once
}

func newWatcher(logger *slog.Logger, settleDelay time.Duration) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &watcher{
		logger:      logger,
		fsw:         fsw,
		settleDelay: settleDelay,
		pending:     make(map[string]*pendingFile),
		files:       make(chan settled, 100),
		done:        make(chan struct{}),
	}, nil
}

// isHidden reports whether any element of path starts with a dot.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.Clean(path), string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

// watchTree adds root and every non-hidden directory below it.
func (w *watcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("failed to access path", "path", p, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		w.logger.Debug("added watch", "path", p)
		return nil
	})
}

// start forwards fsnotify events until ctx ends or close is called.
func (w *watcher) start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

func (w *watcher) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", "error", err)
		}
	}
}

func (w *watcher) handle(event fsnotify.Event) {
	if isHidden(filepath.Base(event.Name)) {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watchTree(event.Name); err != nil {
				w.logger.Error("failed to watch new directory", "path", event.Name, "error", err)
			}
			// Files copied in with the directory produce no events of their own.
			w.settleExisting(event.Name)
			return
		}
	}

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.cancel(event.Name)
	case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
		w.settle(event.Name)
	}
}

// settleExisting starts settling every regular file under dir.
func (w *watcher) settleExisting(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != dir && isHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !isHidden(d.Name()) {
			w.settle(p)
		}
		return nil
	})
}

// settle (re)starts the settle timer of path.
func (w *watcher) settle(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		w.cancel(path)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
	}
	w.pending[path] = &pendingFile{
		size:    info.Size(),
		modTime: info.ModTime(),
		timer:   time.AfterFunc(w.settleDelay, func() { w.check(path) }),
	}
}

// check emits path if it did not change during the settle delay.
func (w *watcher) check(path string) {
	w.mu.Lock()
	p, ok := w.pending[path]
	if !ok {
		w.mu.Unlock()
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		delete(w.pending, path)
		w.mu.Unlock()
		return
	}
	if info.Size() != p.size || !info.ModTime().Equal(p.modTime) {
		p.size, p.modTime = info.Size(), info.ModTime()
		p.timer = time.AfterFunc(w.settleDelay, func() { w.check(path) })
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	w.mu.Unlock()

	select {
	case w.files <- settled{Path: path, Size: info.Size(), ModTime: info.ModTime()}:
	case <-w.done:
	}
}

func (w *watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
		delete(w.pending, path)
	}
}

// close stops timers and releases the fsnotify handle.
func (w *watcher) close() error {
	var err error
	w.closed.Do(func() {
		close(w.done)

		w.mu.Lock()
		for _, p := range w.pending {
			p.timer.Stop()
		}
		clear(w.pending)
		w.mu.Unlock()

		err = w.fsw.Close()
		w.wg.Wait()
	})
	return err
}
