// Package watch re-validates visual contract artifacts when asset
// files change on disk. It watches the assets directory with fsnotify,
// debounces per-document bursts, and runs the visual validator once a
// document's files settle.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fieldscope/manualqa/internal/visual"
)

// ResultFunc receives the validation outcome for one document.
type ResultFunc func(docID string, result *visual.ValidationResult)

// Options configure a Watcher.
type Options struct {
	// DebounceWindow is how long a document must be quiet before it is
	// re-validated. Defaults to 500ms.
	DebounceWindow time.Duration

	// Strict promotes missing artifact files to errors.
	Strict bool
}

// WithDefaults fills unset options.
func (o Options) WithDefaults() Options {
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = 500 * time.Millisecond
	}
	return o
}

// Watcher re-validates per-document visual artifacts on change.
type Watcher struct {
	assetsDir string
	opts      Options
	onResult  ResultFunc
	logger    *slog.Logger

	fs        *fsnotify.Watcher
	debouncer *Debouncer

	mu      sync.Mutex
	watched map[string]bool
	stopped bool
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher over the given assets directory.
func NewWatcher(assetsDir string, opts Options, onResult ResultFunc, logger *slog.Logger) (*Watcher, error) {
	opts = opts.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		assetsDir: assetsDir,
		opts:      opts,
		onResult:  onResult,
		logger:    logger,
		fs:        fs,
		debouncer: NewDebouncer(opts.DebounceWindow),
		watched:   make(map[string]bool),
	}, nil
}

// Start begins watching. It returns after launching the event loops;
// call Stop or cancel the context to shut down.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.fs.Add(w.assetsDir); err != nil {
		return err
	}

	// Watch per-document directories that already exist.
	entries, err := os.ReadDir(w.assetsDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			w.watchDocDir(filepath.Join(w.assetsDir, entry.Name()))
		}
	}

	w.wg.Add(2)
	go w.eventLoop(ctx)
	go w.validateLoop(ctx)

	w.logger.Info("asset watcher started",
		slog.String("assets_dir", w.assetsDir),
		slog.Duration("debounce", w.opts.DebounceWindow))
	return nil
}

// Stop shuts the watcher down and waits for in-flight validation.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	w.mu.Unlock()

	err := w.fs.Close()
	w.debouncer.Stop()
	w.wg.Wait()
	return err
}

func (w *Watcher) watchDocDir(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watched[dir] {
		return
	}
	if err := w.fs.Add(dir); err != nil {
		w.logger.Warn("watch doc dir failed", slog.String("dir", dir), slog.String("error", err.Error()))
		return
	}
	w.watched[dir] = true
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(w.assetsDir, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}

	// A new directory directly under assetsDir is a new document.
	if filepath.Dir(rel) == "." {
		if event.Op.Has(fsnotify.Create) {
			if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
				w.watchDocDir(event.Name)
				w.debouncer.Add(rel)
			}
		}
		return
	}

	docID := docIDForPath(rel)
	if docID == "" || !isArtifactFile(filepath.Base(rel)) {
		return
	}
	w.debouncer.Add(docID)
}

func (w *Watcher) validateLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case docIDs, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			for _, docID := range docIDs {
				w.validate(docID)
			}
		}
	}
}

func (w *Watcher) validate(docID string) {
	result := visual.ValidateDoc(filepath.Join(w.assetsDir, docID), w.opts.Strict)

	if result.OK() {
		w.logger.Info("visual contracts re-validated",
			slog.String("doc_id", docID),
			slog.Int("warnings", len(result.Warnings)))
	} else {
		w.logger.Warn("visual contracts broken",
			slog.String("doc_id", docID),
			slog.Int("errors", len(result.Errors)),
			slog.Int("warnings", len(result.Warnings)))
	}

	if w.onResult != nil {
		w.onResult(docID, result)
	}
}

// docIDForPath extracts the top-level document id from a path relative
// to the assets directory.
func docIDForPath(rel string) string {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[0]
}

func isArtifactFile(name string) bool {
	return strings.HasSuffix(name, ".jsonl") || strings.HasSuffix(name, ".json")
}
