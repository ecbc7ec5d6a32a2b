// Package fileindex keeps a list of the files under a directory for @mention
// completion.
package fileindex

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// State is the lifecycle of an Index.
type State int

const (
	StateBuilding State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	// DefaultLimit caps the number of indexed files.
	DefaultLimit = 10000

	// DefaultDebounce delays a rebuild after a burst of filesystem events.
	DefaultDebounce = 250 * time.Millisecond
)

// DefaultIgnore lists doublestar patterns, relative to the root, that are
// never indexed.
var DefaultIgnore = []string{
	"**/.git",
	"**/.hg",
	"**/.svn",
	"**/node_modules",
	"**/.venv",
	"**/__pycache__",
	"**/.idea",
	"**/.vscode",
	"**/.DS_Store",
}

var errLimit = errors.New("file limit reached")

// Options configures an Index.
type Options struct {
	// Ignore replaces DefaultIgnore when non-nil.
	Ignore   []string
	Limit    int
	Debounce time.Duration

	// OnChange is called after every completed build, successful or not.
	OnChange func()

	Logger *zap.Logger
}

// Index is a snapshot of the regular files below a root directory. Paths are
// relative to the root and use forward slashes.
type Index struct {
	root     string
	ignore   []string
	limit    int
	debounce time.Duration
	onChange func()
	logger   *zap.Logger

	mu        sync.RWMutex
	state     State
	err       error
	files     []string
	dirs      []string
	truncated bool
}

// New creates an Index in the building state. Call Build to populate it.
func New(root string, opts Options) *Index {
	ignore := opts.Ignore
	if ignore == nil {
		ignore = DefaultIgnore
	}
	valid := make([]string, 0, len(ignore))
	for _, p := range ignore {
		if doublestar.ValidatePattern(p) {
			valid = append(valid, p)
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Index{
		root:     root,
		ignore:   valid,
		limit:    limit,
		debounce: debounce,
		onChange: opts.OnChange,
		logger:   logger.Named("fileindex"),
	}
}

// Root returns the indexed directory.
func (ix *Index) Root() string {
	return ix.root
}

// Snapshot returns the current state, the indexed files and the build error,
// if any. The returned slice must not be modified.
func (ix *Index) Snapshot() (State, []string, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.state, ix.files, ix.err
}

// Truncated reports whether the last build stopped at the file limit.
func (ix *Index) Truncated() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.truncated
}

func (ix *Index) ignored(rel string) bool {
	for _, pattern := range ix.ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// Build walks the root and replaces the snapshot. Unreadable entries below
// the root are skipped; only a failure on the root itself fails the build.
func (ix *Index) Build(ctx context.Context) error {
	start := time.Now()
	var files, dirs []string
	truncated := false

	err := filepath.WalkDir(ix.root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == ix.root {
				return err
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(ix.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && ix.ignored(rel) {
				return filepath.SkipDir
			}
			dirs = append(dirs, path)
			return nil
		}
		if !d.Type().IsRegular() || ix.ignored(rel) {
			return nil
		}

		files = append(files, rel)
		if len(files) >= ix.limit {
			truncated = true
			return errLimit
		}
		return nil
	})
	if errors.Is(err, errLimit) {
		err = nil
	}

	ix.mu.Lock()
	if err != nil {
		ix.state = StateFailed
		ix.err = fmt.Errorf("failed to index %s: %w", ix.root, err)
		err = ix.err
	} else {
		sort.Strings(files)
		ix.state = StateReady
		ix.err = nil
		ix.files = files
		ix.dirs = dirs
		ix.truncated = truncated
	}
	ix.mu.Unlock()

	if err != nil {
		ix.logger.Warn("index build failed", zap.Error(err))
	} else {
		ix.logger.Debug("index built",
			zap.Int("files", len(files)),
			zap.Bool("truncated", truncated),
			zap.Duration("elapsed", time.Since(start)))
	}

	if ix.onChange != nil {
		ix.onChange()
	}
	return err
}

// Watch rebuilds the index whenever files are created, removed or renamed
// below the root. It blocks until ctx is done.
func (ix *Index) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	ix.addWatches(watcher)

	var rebuild <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if rel, err := filepath.Rel(ix.root, event.Name); err == nil && ix.ignored(filepath.ToSlash(rel)) {
				continue
			}
			rebuild = time.After(ix.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			ix.logger.Warn("file watcher error", zap.Error(err))

		case <-rebuild:
			rebuild = nil
			if err := ix.Build(ctx); err == nil {
				ix.addWatches(watcher)
			}
		}
	}
}

func (ix *Index) addWatches(watcher *fsnotify.Watcher) {
	ix.mu.RLock()
	dirs := ix.dirs
	ix.mu.RUnlock()

	if len(dirs) == 0 {
		dirs = []string{ix.root}
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			ix.logger.Debug("failed to watch directory", zap.String("dir", dir), zap.Error(err))
		}
	}
}
