// Package watch uploads files dropped into a local directory to the intake
// bucket.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/logger"
)

// DefaultDebounce is how long a file must stay quiet before upload.
const DefaultDebounce = 500 * time.Millisecond

// Uploader writes objects to the blob store.
type Uploader interface {
	Put(ctx context.Context, obj domain.Object, data []byte, contentType string) error
}

// Ingester processes an uploaded intake object.
type Ingester interface {
	Ingest(ctx context.Context, obj domain.Object) (*domain.IngestResult, error)
}

// Config configures a Watcher.
type Config struct {
	Dir      string
	Bucket   string
	Prefix   string
	Debounce time.Duration
	// RemoveAfterUpload deletes the local file once it is uploaded.
	RemoveAfterUpload bool
}

// Watcher mirrors created and written files into the intake bucket. When an
// Ingester is set each upload is processed in place; otherwise the store's
// own notifications are expected to reach a worker.
type Watcher struct {
	blob   Uploader
	ingest Ingester
	cfg    Config

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

// New creates a watcher. ingest may be nil.
func New(blob Uploader, ingest Ingester, cfg Config) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Watcher{
		blob:    blob,
		ingest:  ingest,
		cfg:     cfg,
		pending: make(map[string]*time.Timer),
	}
}

// Run uploads the files already present, then watches the directory tree
// until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.cfg.Dir)
	if err != nil {
		return fmt.Errorf("%w: watch directory: %v", domain.ErrValidation, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", domain.ErrValidation, w.cfg.Dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	err = filepath.WalkDir(w.cfg.Dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != w.cfg.Dir && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return fw.Add(p)
		}
		w.schedule(ctx, p)
		return nil
	})
	if err != nil {
		return fmt.Errorf("watching %s: %w", w.cfg.Dir, err)
	}
	logger.Info("Watching %s for new documents", w.cfg.Dir)

	defer w.drain()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if p, isDir := w.handleFsEvent(ev); p != "" {
				if isDir {
					if err := fw.Add(p); err != nil {
						logger.Warn("watch: cannot watch %s: %v", p, err)
					}
					continue
				}
				w.schedule(ctx, p)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch: %v", err)
		}
	}
}

// handleFsEvent returns the path to act on, or "" for events that carry no
// new content. Removals need nothing: indexed documents outlive their file.
func (w *Watcher) handleFsEvent(ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return "", false
	}
	if rel, err := filepath.Rel(w.cfg.Dir, ev.Name); err != nil || isHidden(rel) {
		return "", false
	}
	info, err := os.Stat(ev.Name)
	if err != nil {
		return "", false
	}
	return ev.Name, info.IsDir()
}

// schedule restarts the quiet timer for p so a file being written is
// uploaded once.
func (w *Watcher) schedule(ctx context.Context, p string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[p]; ok && t.Stop() {
		t.Reset(w.cfg.Debounce)
		return
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.cfg.Debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[p] == t {
			delete(w.pending, p)
		}
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if _, err := w.UploadFile(ctx, p); err != nil {
			logger.Error("watch: %s: %v", p, err)
		}
	})
	w.pending[p] = t
}

// drain cancels timers that have not fired and waits for running uploads.
func (w *Watcher) drain() {
	w.mu.Lock()
	for p, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, p)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// UploadFile puts one file into the intake bucket and, with an Ingester,
// processes it. The result is nil without an Ingester.
func (w *Watcher) UploadFile(ctx context.Context, p string) (*domain.IngestResult, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}
	obj, err := w.objectFor(p)
	if err != nil {
		return nil, err
	}
	if err := w.blob.Put(ctx, obj, data, detectMIMEType(p)); err != nil {
		return nil, fmt.Errorf("uploading %s: %w", obj, err)
	}
	logger.Info("Uploaded %s to %s", p, obj)

	var res *domain.IngestResult
	if w.ingest != nil {
		if res, err = w.ingest.Ingest(ctx, obj); err != nil {
			return nil, err
		}
	}
	if w.cfg.RemoveAfterUpload {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("watch: removing %s: %v", p, err)
		}
	}
	return res, nil
}

// objectFor keys a file by its slash-separated path below the watched
// directory.
func (w *Watcher) objectFor(p string) (domain.Object, error) {
	rel, err := filepath.Rel(w.cfg.Dir, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return domain.Object{}, fmt.Errorf("%w: %s is outside %s", domain.ErrValidation, p, w.cfg.Dir)
	}
	return domain.Object{Bucket: w.cfg.Bucket, Key: path.Join(w.cfg.Prefix, filepath.ToSlash(rel))}, nil
}

func isHidden(p string) bool {
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if len(part) > 1 && strings.HasPrefix(part, ".") && part != ".." {
			return true
		}
	}
	return false
}

var fallbackTypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".csv":      "text/csv",
	".yaml":     "text/yaml",
	".yml":      "text/yaml",
	".toml":     "text/toml",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// detectMIMEType guesses a content type from the extension, without
// parameters. Files without an extension are plain text.
func detectMIMEType(p string) string {
	ext := strings.ToLower(filepath.Ext(p))
	if ext == "" {
		return "text/plain"
	}
	if t, ok := fallbackTypes[ext]; ok {
		return t
	}
	t := mime.TypeByExtension(ext)
	if t == "" {
		return "application/octet-stream"
	}
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}
