// Package inbox archives files dropped into a watched directory.
//
// A file's tags are the names of the directories between the inbox root and
// the file: inbox/cat/outdoor/x.png is archived with tags cat and outdoor.
// Archived files are removed; files the archive refuses are moved under
// .rejected/ with the same relative path. Files that failed for transient
// reasons stay in place and are retried on the next start.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	domainerrors "github.com/buruapp/buru-server/internal/errors"
	"github.com/buruapp/buru-server/internal/id"
	"github.com/buruapp/buru-server/internal/service"
)

// RejectedDir is the directory, relative to the inbox root, that receives
// refused files.
const RejectedDir = ".rejected"

// DefaultSettleDelay is how long a file must stay unchanged before it is archived.
const DefaultSettleDelay = 2 * time.Second

// Archiver archives a file from disk.
type Archiver interface {
	ArchiveFile(ctx context.Context, path string, tags []string, source string) (*service.ArchiveResult, error)
}

// Options configures an Inbox.
type Options struct {
	Root        string
	SettleDelay time.Duration
}

// Inbox watches a directory and archives what lands in it.
type Inbox struct {
	root        string
	settleDelay time.Duration
	archiver    Archiver
	logger      *slog.Logger
}

// New creates an inbox rooted at opts.Root, creating the directory if needed.
func New(opts Options, archiver Archiver, logger *slog.Logger) (*Inbox, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("inbox root cannot be empty")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve inbox root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create inbox root: %w", err)
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	return &Inbox{root: root, settleDelay: opts.SettleDelay, archiver: archiver, logger: logger}, nil
}

// Root returns the watched directory.
func (in *Inbox) Root() string {
	return in.root
}

// Run archives files already present, then watches for new ones until ctx
// is canceled.
func (in *Inbox) Run(ctx context.Context) error {
	w, err := newWatcher(in.logger, in.settleDelay)
	if err != nil {
		return err
	}
	defer w.close()

	// Watch before scanning so nothing written in between is missed.
	if err := w.watchTree(in.root); err != nil {
		return err
	}
	w.start(ctx)

	n := in.Scan(ctx)
	in.logger.Info("inbox watching", "root", in.root, "existing_files", n)

	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-w.files:
			in.Process(ctx, f.Path)
		}
	}
}

// Scan processes every file currently in the inbox and returns how many it saw.
func (in *Inbox) Scan(ctx context.Context) int {
	var paths []string
	_ = filepath.WalkDir(in.root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			in.logger.Warn("failed to access path", "path", p, "error", err)
			return nil
		}
		if d.IsDir() {
			if p != in.root && isHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && !isHidden(d.Name()) {
			paths = append(paths, p)
		}
		return nil
	})

	for _, p := range paths {
		if ctx.Err() != nil {
			break
		}
		in.Process(ctx, p)
	}
	return len(paths)
}

// Process archives one file and disposes of it according to the outcome.
func (in *Inbox) Process(ctx context.Context, path string) {
	op := id.MustOperation("inb")
	rel, err := filepath.Rel(in.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		in.logger.Warn("ignoring file outside inbox", "op", op, "path", path)
		return
	}
	tags := TagsFor(rel)

	res, err := in.archiver.ArchiveFile(ctx, path, tags, "")
	switch {
	case err == nil:
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			in.logger.Error("failed to remove archived file", "op", op, "path", rel, "error", err)
		}
		in.logger.Info("inbox file archived",
			"op", op,
			"path", rel,
			"hash", string(res.Media.Hash),
			"created", res.Created,
			"tags", tags,
		)
	case domainerrors.Is(err, domainerrors.ErrNotFound):
		// Picked up by both the scan and the watcher.
		in.logger.Debug("inbox file already handled", "op", op, "path", rel)
	case isRefusal(err):
		dest, mvErr := in.reject(rel)
		if mvErr != nil {
			in.logger.Error("failed to move rejected file", "op", op, "path", rel, "error", mvErr)
			return
		}
		in.logger.Warn("inbox file rejected", "op", op, "path", rel, "moved_to", dest, "error", err)
	default:
		in.logger.Error("inbox file not archived, will retry on restart", "op", op, "path", rel, "error", err)
	}
}

// isRefusal reports whether err means the file will never be accepted as is.
func isRefusal(err error) bool {
	switch domainerrors.CodeOf(err) {
	case domainerrors.CodeUnsupportedMedia, domainerrors.CodeValidation, domainerrors.CodeInvalidArgument:
		return true
	}
	return false
}

// reject moves rel into the rejected directory and returns the new path.
func (in *Inbox) reject(rel string) (string, error) {
	dest := filepath.Join(in.root, RejectedDir, rel)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}
	if _, err := os.Stat(dest); err == nil {
		suffix, err := id.Suffix(6)
		if err != nil {
			return "", err
		}
		dest += "." + suffix
	}
	if err := os.Rename(filepath.Join(in.root, rel), dest); err != nil {
		return "", err
	}
	return dest, nil
}

// TagsFor returns the tags implied by a path relative to the inbox root:
// one per directory element, in order.
func TagsFor(rel string) []string {
	dir := filepath.Dir(filepath.Clean(rel))
	if dir == "." {
		return nil
	}
	return strings.Split(filepath.ToSlash(dir), "/")
}
