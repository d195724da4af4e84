package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sagerenn/gdengine/internal/config"
)

func TestWatcherDebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	indexDir := filepath.Join(dir, "index")
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		t.Fatal(err)
	}
	var calls atomic.Int64
	fired := make(chan struct{}, 8)
	w := New([]config.SourcePath{{Path: dir, Depth: 1}}, func() {
		calls.Add(1)
		fired <- struct{}{}
	}, WithDebounce(100*time.Millisecond), WithIgnore(indexDir))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// Index writes never trigger a rescan.
	if err := os.WriteFile(filepath.Join(indexDir, "0123456789abcdef0123456789abcdef"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-fired:
		t.Fatal("index directory change triggered a callback")
	case <-time.After(300 * time.Millisecond):
	}

	for i := 0; i < 3; i++ {
		if err := os.WriteFile(filepath.Join(dir, "a.tsv"), []byte("cat\tfeline\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("no callback after a change")
	}
	time.Sleep(300 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected one debounced call, got %d", n)
	}
}
