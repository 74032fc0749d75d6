package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu      sync.Mutex
	changed []string
	removed []string
}

func (r *recorder) FileChanged(path string) {
	r.mu.Lock()
	r.changed = append(r.changed, path)
	r.mu.Unlock()
}

func (r *recorder) FileRemoved(path string) {
	r.mu.Lock()
	r.removed = append(r.removed, path)
	r.mu.Unlock()
}

func (r *recorder) snapshot() (changed, removed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.changed...), append([]string(nil), r.removed...)
}

func hasSuffix(paths []string, suffix string) bool {
	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

var imagePatterns = []string{"**/*.{jpg,jpeg,png,gif}"}

func startWatcher(t *testing.T, roots []string, rec *recorder) *Watcher {
	t.Helper()
	w := New(roots, imagePatterns, true, rec, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_AddRemoveDirectories(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, nil, &recorder{})

	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	dirs := w.Directories()
	if len(dirs) != 1 || dirs[0] != filepath.Clean(dir) {
		t.Errorf("Directories() = %v", dirs)
	}
	if err := w.RemoveDirectory(dir); err != nil {
		t.Fatal(err)
	}
	if len(w.Directories()) != 0 {
		t.Errorf("after remove: %v", w.Directories())
	}
}

func TestWatcher_ReportsMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	startWatcher(t, []string{dir}, rec)

	if err := os.WriteFile(filepath.Join(sub, "beach.jpg"), []byte("jpg"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "notes.txt"), []byte("txt"), 0600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		changed, _ := rec.snapshot()
		return hasSuffix(changed, "beach.jpg")
	})
	time.Sleep(150 * time.Millisecond)
	changed, _ := rec.snapshot()
	if hasSuffix(changed, "notes.txt") {
		t.Errorf("non-image reported: %v", changed)
	}
}

func TestWatcher_DebounceCollapsesWrites(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := New([]string{dir}, imagePatterns, true, rec, WithDebounce(200*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "burst.png")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte{byte(i)}, 0600); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	waitFor(t, func() bool {
		changed, _ := rec.snapshot()
		return len(changed) > 0
	})
	time.Sleep(300 * time.Millisecond)
	changed, _ := rec.snapshot()
	if len(changed) != 1 {
		t.Errorf("changed = %v, want one debounced call", changed)
	}
}

func TestWatcher_ReportsRemoval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.gif")
	if err := os.WriteFile(path, []byte("gif"), 0600); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	startWatcher(t, []string{dir}, rec)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		_, removed := rec.snapshot()
		return hasSuffix(removed, "gone.gif")
	})
}

func TestWatcher_RenameReportsOldPathRemoved(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "before.png")
	if err := os.WriteFile(oldPath, []byte("png"), 0600); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	startWatcher(t, []string{dir}, rec)

	if err := os.Rename(oldPath, filepath.Join(dir, "after.png")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		changed, removed := rec.snapshot()
		return hasSuffix(removed, "before.png") && hasSuffix(changed, "after.png")
	})
}

func TestWatcher_NewDirectoryIsScanned(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, rec)

	nested := filepath.Join(dir, "trip", "day1")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(nested, "deep.jpeg"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		changed, _ := rec.snapshot()
		return hasSuffix(changed, "deep.jpeg")
	})
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.JPG", "skip.xyz"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0600); err != nil {
			t.Fatal(err)
		}
	}
	rec := &recorder{}
	w := startWatcher(t, []string{dir}, rec)
	w.SyncExistingFiles()

	changed, _ := rec.snapshot()
	if len(changed) != 2 || !hasSuffix(changed, "a.png") || !hasSuffix(changed, "b.JPG") {
		t.Errorf("changed = %v", changed)
	}
}

func TestWatcher_StartCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watch", "me")
	startWatcher(t, []string{root}, &recorder{})
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root not created: %v", err)
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w := New([]string{t.TempDir()}, nil, false, HandlerFuncs{})
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}

func TestMatchPatterns(t *testing.T) {
	tests := []struct {
		patterns []string
		rel      string
		want     bool
	}{
		{imagePatterns, "a.jpg", true},
		{imagePatterns, "x/y/z.png", true},
		{imagePatterns, "IMG_1.JPG", true},
		{imagePatterns, "doc.txt", false},
		{[]string{"*.png"}, "sub/a.png", false},
		{nil, "anything", true},
	}
	for _, tt := range tests {
		if got := matchPatterns(tt.patterns, tt.rel); got != tt.want {
			t.Errorf("matchPatterns(%v, %q) = %v, want %v", tt.patterns, tt.rel, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir, path string
		want      bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.png", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

func TestHandlerFuncs_NilSafe(t *testing.T) {
	var h HandlerFuncs
	h.FileChanged("x")
	h.FileRemoved("x")
}
