// Package watch compiles instruction files as they change. A Watcher emits
// debounced, hash-filtered change events for files matching glob patterns;
// a Service compiles each changed file and writes the result next to it.
package watch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// eventChannelBuffer is the size of the watch event channel.
const eventChannelBuffer = 500

// Config configures a Watcher.
type Config struct {
	// Debounce is how long to collect changes before emitting them.
	Debounce time.Duration

	// Patterns are doublestar globs, relative to the root, selecting
	// instruction files.
	Patterns []string

	// ExcludeDirs lists directory names never watched.
	ExcludeDirs []string
}

// DefaultConfig returns the default watch configuration.
func DefaultConfig() Config {
	return Config{
		Debounce:    500 * time.Millisecond,
		Patterns:    []string{"**/*.txt", "**/*.rule"},
		ExcludeDirs: []string{".git", "node_modules", "vendor"},
	}
}

// Op is the kind of change an Event reports.
type Op string

// Change kinds.
const (
	OpCreate Op = "create"
	OpModify Op = "modify"
	OpDelete Op = "delete"
)

// Event is a debounced change to one instruction file.
type Event struct {
	// Path is relative to the watched root, slash-separated.
	Path string

	// AbsPath is the absolute file path.
	AbsPath string

	Op Op
}

// Watcher watches a directory tree for instruction file changes.
type Watcher struct {
	config   Config
	root     string
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	excludes map[string]bool

	// Debouncing: collect changes before processing
	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op

	// Hash-based change detection, keyed by relative path
	hashMu sync.RWMutex
	hashes map[string]string

	events chan Event

	droppedEvents atomic.Int64
}

// NewWatcher creates a watcher over root. Zero config fields take their
// defaults.
func NewWatcher(config Config, root string, logger *slog.Logger) (*Watcher, error) {
	defaults := DefaultConfig()
	if config.Debounce <= 0 {
		config.Debounce = defaults.Debounce
	}
	if len(config.Patterns) == 0 {
		config.Patterns = defaults.Patterns
	}
	if config.ExcludeDirs == nil {
		config.ExcludeDirs = defaults.ExcludeDirs
	}
	for _, p := range config.Patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid watch pattern %q", p)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	excludes := make(map[string]bool, len(config.ExcludeDirs))
	for _, dir := range config.ExcludeDirs {
		excludes[dir] = true
	}

	return &Watcher{
		config:   config,
		root:     abs,
		watcher:  fsw,
		logger:   logger,
		excludes: excludes,
		pending:  make(map[string]fsnotify.Op),
		hashes:   make(map[string]string),
		events:   make(chan Event, eventChannelBuffer),
	}, nil
}

// Root returns the absolute watched directory.
func (w *Watcher) Root() string {
	return w.root
}

// Events returns the channel of change events. It is closed when the
// watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start adds watches for the whole tree and begins emitting events.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addWatchesRecursive(w.root); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("Instruction watcher started",
		"root", w.root,
		"debounce", w.config.Debounce,
		"patterns", w.config.Patterns)
	return nil
}

// Stop stops the watcher. The events channel is closed by processEvents
// when it exits.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// Matches reports whether the slash-separated relative path selects an
// instruction file.
func (w *Watcher) Matches(rel string) bool {
	for _, p := range w.config.Patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// SetHash records the content hash of a file, e.g. after an initial scan.
func (w *Watcher) SetHash(rel, hash string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	w.hashes[rel] = hash
}

// GetHash returns the recorded content hash of a file.
func (w *Watcher) GetHash(rel string) (string, bool) {
	w.hashMu.RLock()
	defer w.hashMu.RUnlock()
	hash, ok := w.hashes[rel]
	return hash, ok
}

// ContentHash is the hex SHA-256 of content.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// DroppedEvents returns the number of events dropped on a full channel.
func (w *Watcher) DroppedEvents() int64 {
	return w.droppedEvents.Load()
}

func (w *Watcher) excluded(dir string) bool {
	base := filepath.Base(dir)
	return w.excludes[base] || (strings.HasPrefix(base, ".") && dir != w.root)
}

func (w *Watcher) relPath(abs string) string {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.excluded(path) {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory", "path", path, "error", err)
		} else {
			w.logger.Debug("Watching directory", "path", path)
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.events)
	ticker := time.NewTicker(w.config.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !w.excluded(path) {
				if err := w.addWatchesRecursive(path); err != nil {
					w.logger.Warn("Failed to watch new directory", "path", path, "error", err)
				}
			}
			return
		}
	}

	rel := w.relPath(path)
	for _, part := range strings.Split(rel, "/") {
		if w.excludes[part] {
			return
		}
	}
	if !w.Matches(rel) {
		return
	}

	w.pendingMu.Lock()
	w.pending[path] |= event.Op
	w.pendingMu.Unlock()

	w.logger.Debug("Instruction change detected", "path", rel, "op", event.Op.String())
}

func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	toProcess := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	for path := range toProcess {
		if ctx.Err() != nil {
			return
		}

		rel := w.relPath(path)
		event := Event{Path: rel, AbsPath: path}

		content, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			w.hashMu.Lock()
			_, tracked := w.hashes[rel]
			delete(w.hashes, rel)
			w.hashMu.Unlock()
			if tracked {
				event.Op = OpDelete
				w.sendEvent(event)
			}
			continue
		}
		if err != nil {
			w.logger.Warn("Failed to read instruction file", "path", rel, "error", err)
			continue
		}

		newHash := ContentHash(content)
		oldHash, hadHash := w.GetHash(rel)
		if hadHash && oldHash == newHash {
			continue
		}
		w.SetHash(rel, newHash)

		event.Op = OpModify
		if !hadHash {
			event.Op = OpCreate
		}
		w.sendEvent(event)
	}
}

func (w *Watcher) sendEvent(event Event) {
	select {
	case w.events <- event:
		w.logger.Debug("Sent watch event", "path", event.Path, "op", event.Op)
	default:
		dropped := w.droppedEvents.Add(1)
		w.logger.Warn("Event channel full, dropping event",
			"path", event.Path,
			"total_dropped", dropped)
	}
}
