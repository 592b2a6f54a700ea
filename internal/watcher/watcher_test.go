package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) record(path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func startWatcher(t *testing.T, files []string, rec *recorder) *Watcher {
	t.Helper()
	w := NewWatcher(files, rec.record, WithDebounce(100*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_DebouncesBurstOfWrites(t *testing.T) {
	dir := t.TempDir()
	dump := filepath.Join(dir, "product_details.sql")
	if err := writeFile(dump, "-- empty\n"); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	startWatcher(t, []string{dump}, rec)

	for i := 0; i < 5; i++ {
		if err := writeFile(dump, "INSERT INTO `products` (`id`) VALUES (1);\n"); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)

	calls := rec.calls()
	if len(calls) != 1 {
		t.Fatalf("expected one debounced callback, got %d (%v)", len(calls), calls)
	}
	if calls[0] != dump {
		t.Errorf("callback path = %s, want %s", calls[0], dump)
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	dump := filepath.Join(dir, "product_details.sql")
	rec := &recorder{}
	startWatcher(t, []string{dump}, rec)

	if err := writeFile(filepath.Join(dir, "notes.txt"), "hello"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(400 * time.Millisecond)
	if calls := rec.calls(); len(calls) != 0 {
		t.Errorf("unexpected callbacks: %v", calls)
	}
}

func TestWatcher_SeesFileReplacedByRename(t *testing.T) {
	dir := t.TempDir()
	xlsx := filepath.Join(dir, "products.xlsx")
	rec := &recorder{}
	startWatcher(t, []string{xlsx}, rec)

	tmp := filepath.Join(dir, ".products.xlsx.tmp")
	if err := writeFile(tmp, "sheet"); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, xlsx); err != nil {
		t.Fatal(err)
	}
	time.Sleep(500 * time.Millisecond)
	if calls := rec.calls(); len(calls) != 1 {
		t.Errorf("expected one callback after rename, got %v", calls)
	}
}

func TestWatcher_Start_createsMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "not", "yet")
	rec := &recorder{}
	startWatcher(t, []string{filepath.Join(dir, "product_details.sql")}, rec)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("watched directory should be created: %v", err)
	}
}

func TestWatcher_StopCancelsPendingCallback(t *testing.T) {
	dir := t.TempDir()
	dump := filepath.Join(dir, "product_details.sql")
	rec := &recorder{}
	w := NewWatcher([]string{dump}, rec.record, WithDebounce(300*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(dump, "x"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	w.Stop()
	w.Stop()
	time.Sleep(400 * time.Millisecond)
	if calls := rec.calls(); len(calls) != 0 {
		t.Errorf("callback ran after Stop: %v", calls)
	}
}

func TestNewWatcher_ignoresEmptyPathsAndSharesDirectories(t *testing.T) {
	dir := t.TempDir()
	w := NewWatcher([]string{"", filepath.Join(dir, "a.sql"), filepath.Join(dir, "b.xlsx")}, nil)
	if n := len(w.Files()); n != 2 {
		t.Errorf("files: got %d, want 2", n)
	}
	if len(w.dirs) != 1 {
		t.Errorf("dirs: got %v, want one shared directory", w.dirs)
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}
