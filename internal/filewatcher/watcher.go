// Package filewatcher observes configured directories for new or changed
// files, de-duplicates by content hash, and uploads survivors through the
// document ingestion pipeline (C3).
package filewatcher

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/connexus-ai/smartrag-orchestrator/internal/apperr"
	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
	"github.com/connexus-ai/smartrag-orchestrator/internal/repository"
	"github.com/connexus-ai/smartrag-orchestrator/internal/service"
)

// defaultExtensions is the fallback allow-list applied to a folder that
// declares no AllowedExtensions of its own.
var defaultExtensions = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// Config carries the knobs shared by every watched folder.
type Config struct {
	// BaseDir confines every relative WatchedFolder.Path. Required.
	BaseDir string
	// HomeDir confines every absolute WatchedFolder.Path. Defaults to
	// os.UserHomeDir() when empty.
	HomeDir string

	Debounce         time.Duration
	MaxRetryAttempts int
	RetryLinearDelay time.Duration
}

// folder is a WatchedFolder resolved to an absolute, confined path.
type folder struct {
	cfg        model.WatchedFolder
	resolved   string
	extensions map[string]string
}

// Watcher watches one or more directories and ingests new/changed files.
// The debounce map is the one dictionary guarded by the instance itself,
// mutated under mu by the event loop, the debounce timer callbacks and
// Stop — grounded on the
// teacher's cache.EmbeddingCache shape (entries map + stopCh), repurposed
// from TTL expiry to per-path debounce coalescing.
type Watcher struct {
	cfg     Config
	folders []folder
	docs    repository.DocumentRepository
	ingest  *service.IngestService

	fs *fsnotify.Watcher

	mu     sync.Mutex
	timers map[string]*time.Timer
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New validates and resolves every configured folder. It does not start
// watching; call Start for that.
func New(cfg Config, folders []model.WatchedFolder, docs repository.DocumentRepository, ingest *service.IngestService) (*Watcher, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("filewatcher.New: BaseDir is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 750 * time.Millisecond
	}
	if cfg.MaxRetryAttempts <= 0 {
		cfg.MaxRetryAttempts = 3
	}
	if cfg.RetryLinearDelay <= 0 {
		cfg.RetryLinearDelay = time.Second
	}
	if cfg.HomeDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.HomeDir = home
		}
	}

	resolved := make([]folder, 0, len(folders))
	for _, f := range folders {
		abs, err := resolvePath(cfg.BaseDir, cfg.HomeDir, f.Path)
		if err != nil {
			return nil, fmt.Errorf("filewatcher.New: folder %s: %w", f.FolderID, err)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("filewatcher.New: create folder %s: %w", f.FolderID, err)
		}
		resolved = append(resolved, folder{cfg: f, resolved: abs, extensions: extensionsFor(f)})
	}

	return &Watcher{
		cfg:     cfg,
		folders: resolved,
		docs:    docs,
		ingest:  ingest,
		timers:  make(map[string]*time.Timer),
		stopCh:  make(chan struct{}),
	}, nil
}

// resolvePath confines path to baseDir (relative form) or homeDir
// (absolute form), rejecting any ".." segment regardless of form.
func resolvePath(baseDir, homeDir, path string) (string, error) {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return "", fmt.Errorf("path %q contains a traversal segment", path)
		}
	}

	var root, abs string
	if filepath.IsAbs(path) {
		if homeDir == "" {
			return "", fmt.Errorf("absolute path %q requires a resolvable home directory", path)
		}
		root = homeDir
		abs = path
	} else {
		root = baseDir
		abs = filepath.Join(baseDir, path)
	}

	root = filepath.Clean(root)
	abs = filepath.Clean(abs)
	if abs != root && !strings.HasPrefix(abs, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes its confinement root %q", path, root)
	}
	return abs, nil
}

func extensionsFor(f model.WatchedFolder) map[string]string {
	if len(f.AllowedExtensions) == 0 {
		return defaultExtensions
	}
	allowed := make(map[string]string, len(f.AllowedExtensions))
	for _, ext := range f.AllowedExtensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if ct, ok := defaultExtensions[ext]; ok {
			allowed[ext] = ct
		} else {
			allowed[ext] = "application/octet-stream"
		}
	}
	return allowed
}

// Start arms fsnotify watches on every folder, scans every folder once for
// pre-existing files (same de-duplication as live events), and only then
// begins the debounced event loop, so events queued during the scan are
// handled after it. Start must be called at most once.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("filewatcher.Start: %w", err)
	}
	w.fs = fsw

	for _, f := range w.folders {
		if err := w.armFolder(f); err != nil {
			fsw.Close()
			return fmt.Errorf("filewatcher.Start: arm folder %s: %w", f.cfg.FolderID, err)
		}
	}

	for _, f := range w.folders {
		w.scanExisting(ctx, f)
	}

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

func (w *Watcher) armFolder(f folder) error {
	dirs := []string{f.resolved}
	if f.cfg.Subdirectories {
		filepath.WalkDir(f.resolved, func(p string, d os.DirEntry, err error) error {
			if err == nil && d.IsDir() && p != f.resolved {
				dirs = append(dirs, p)
			}
			return nil
		})
	}
	for _, dir := range dirs {
		if err := w.fs.Add(dir); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) scanExisting(ctx context.Context, f folder) {
	filepath.WalkDir(f.resolved, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !f.cfg.Subdirectories && filepath.Dir(p) != f.resolved {
			return filepath.SkipDir
		}
		w.processFile(ctx, f, p)
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.debounce(ctx, event.Name)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			slog.Warn("filewatcher watch error", "error", err)
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// debounce coalesces repeated events for the same path into one ingest
// attempt fired Debounce after the last event.
func (w *Watcher) debounce(ctx context.Context, path string) {
	f, ok := w.folderFor(path)
	if !ok {
		return
	}

	w.mu.Lock()
	if t, exists := w.timers[path]; exists {
		t.Reset(w.cfg.Debounce)
		w.mu.Unlock()
		return
	}
	w.timers[path] = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.processFile(ctx, f, path)
	})
	w.mu.Unlock()
}

func (w *Watcher) folderFor(path string) (folder, bool) {
	for _, f := range w.folders {
		if strings.HasPrefix(path, f.resolved) {
			return f, true
		}
	}
	return folder{}, false
}

func (w *Watcher) processFile(ctx context.Context, f folder, path string) {
	ext := strings.ToLower(filepath.Ext(path))
	contentType, allowed := f.extensions[ext]
	if !allowed {
		return
	}

	hash, err := hashFile(path)
	if err != nil {
		slog.Warn("filewatcher hash failed", "path", path, "error", err)
		return
	}

	if existing, err := w.docs.FindByFileHash(ctx, hash); err == nil && existing != nil {
		slog.Info("filewatcher skip duplicate", "path", path, "file_hash", hash, "document_id", existing.ID)
		return
	}

	w.ingestWithRetry(ctx, f, path, contentType, hash)
}

func (w *Watcher) ingestWithRetry(ctx context.Context, f folder, path, contentType, hash string) {
	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxRetryAttempts; attempt++ {
		if err := w.ingestOnce(ctx, f, path, contentType, hash); err != nil {
			if apperr.IsDocumentSkipped(err) {
				slog.Info("filewatcher document skipped, not retried", "path", path, "error", err)
				return
			}
			lastErr = err
			slog.Warn("filewatcher ingest attempt failed", "path", path, "attempt", attempt, "error", err)
			time.Sleep(time.Duration(attempt) * w.cfg.RetryLinearDelay)
			continue
		}
		return
	}
	slog.Error("filewatcher ingest exhausted retries", "path", path, "attempts", w.cfg.MaxRetryAttempts, "error", lastErr)
}

func (w *Watcher) ingestOnce(ctx context.Context, f folder, path, contentType, hash string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("filewatcher.ingestOnce: read: %w", err)
	}
	text := strings.TrimSpace(string(content))
	if text == "" {
		return apperr.New(apperr.KindDocumentSkipped, fmt.Sprintf("%s has no indexable content", filepath.Base(path)))
	}

	metadata := map[string]string{
		model.MetaFileHash: hash,
		model.MetaFilePath: path,
	}
	_, err = w.ingest.Ingest(ctx, filepath.Base(path), contentType, "filewatcher", text, int64(len(content)), metadata)
	if err != nil {
		return fmt.Errorf("filewatcher.ingestOnce: %w", err)
	}
	return nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	buf := make([]byte, 4096)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Stop releases the fsnotify handle and waits for the event loop to exit.
// Stop is idempotent.
func (w *Watcher) Stop() error {
	select {
	case <-w.stopCh:
		return nil
	default:
		close(w.stopCh)
	}
	w.mu.Lock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	var err error
	if w.fs != nil {
		err = w.fs.Close()
	}
	w.wg.Wait()
	return err
}
