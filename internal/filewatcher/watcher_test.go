package filewatcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/connexus-ai/smartrag-orchestrator/internal/model"
	"github.com/connexus-ai/smartrag-orchestrator/internal/repository"
	"github.com/connexus-ai/smartrag-orchestrator/internal/service"
)

type fakeEmbeddingProvider struct{}

func (fakeEmbeddingProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func (fakeEmbeddingProvider) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func newTestIngest() (*service.IngestService, repository.DocumentRepository) {
	docs := repository.NewInMemoryDocumentRepository()
	chunker := service.NewChunkerService(service.ChunkerConfig{})
	embedder := service.NewEmbedderService(fakeEmbeddingProvider{}, 10, nil)
	return service.NewIngestService(docs, chunker, embedder), docs
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestResolvePath_RejectsTraversal(t *testing.T) {
	if _, err := resolvePath("/base", "/home", "../etc/passwd"); err == nil {
		t.Error("expected traversal segment to be rejected")
	}
}

func TestResolvePath_ConfinesRelativeToBaseDir(t *testing.T) {
	abs, err := resolvePath("/base", "/home", "docs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if abs != "/base/docs" {
		t.Errorf("expected /base/docs, got %s", abs)
	}
}

func TestResolvePath_AbsolutePathMustStayUnderHome(t *testing.T) {
	if _, err := resolvePath("/base", "/home/alice", "/etc/passwd"); err == nil {
		t.Error("expected absolute path outside home to be rejected")
	}
	abs, err := resolvePath("/base", "/home/alice", "/home/alice/docs")
	if err != nil || abs != "/home/alice/docs" {
		t.Errorf("expected absolute path under home to resolve, got %s, %v", abs, err)
	}
}

func TestWatcher_IngestsNewFileAndSkipsExactDuplicate(t *testing.T) {
	base := t.TempDir()
	ingest, docs := newTestIngest()

	w, err := New(Config{BaseDir: base, Debounce: 50 * time.Millisecond, MaxRetryAttempts: 2, RetryLinearDelay: time.Millisecond},
		[]model.WatchedFolder{{FolderID: "f1", Path: "."}}, docs, ingest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(base, "a.txt"), []byte("hello world, this is content"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		n, _ := docs.Count(context.Background())
		return n == 1
	})

	if err := os.WriteFile(filepath.Join(base, "b.txt"), []byte("hello world, this is content"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	time.Sleep(300 * time.Millisecond)
	n, _ := docs.Count(context.Background())
	if n != 1 {
		t.Errorf("expected duplicate content to be skipped, got %d documents", n)
	}
}

func TestWatcher_IgnoresDisallowedExtension(t *testing.T) {
	base := t.TempDir()
	ingest, docs := newTestIngest()

	w, err := New(Config{BaseDir: base, Debounce: 20 * time.Millisecond},
		[]model.WatchedFolder{{FolderID: "f1", Path: ".", AllowedExtensions: []string{".txt"}}}, docs, ingest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(base, "a.exe"), []byte("binary"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	n, _ := docs.Count(context.Background())
	if n != 0 {
		t.Errorf("expected disallowed extension to be ignored, got %d documents", n)
	}
}

func TestWatcher_StartupScanIndexesPreExistingFiles(t *testing.T) {
	base := t.TempDir()
	if err := os.WriteFile(filepath.Join(base, "existing.txt"), []byte("pre-existing content here"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	ingest, docs := newTestIngest()
	w, err := New(Config{BaseDir: base, Debounce: 20 * time.Millisecond},
		[]model.WatchedFolder{{FolderID: "f1", Path: "."}}, docs, ingest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	waitFor(t, 2*time.Second, func() bool {
		n, _ := docs.Count(context.Background())
		return n == 1
	})
}

func TestWatcher_EmptyFileIsSkippedNotRetried(t *testing.T) {
	base := t.TempDir()
	ingest, docs := newTestIngest()
	w, err := New(Config{BaseDir: base, Debounce: 20 * time.Millisecond, MaxRetryAttempts: 3, RetryLinearDelay: time.Millisecond},
		[]model.WatchedFolder{{FolderID: "f1", Path: "."}}, docs, ingest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(base, "empty.txt"), []byte("   "), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	n, _ := docs.Count(context.Background())
	if n != 0 {
		t.Errorf("expected empty file to be skipped, got %d documents", n)
	}
}
