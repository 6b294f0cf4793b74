package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recordingProcessor struct {
	mu        sync.Mutex
	processed []string
	removed   []string
}

func (r *recordingProcessor) ProcessSingleFile(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed = append(r.processed, path)
	return nil
}

func (r *recordingProcessor) RemoveFile(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, path)
	return nil
}

func (r *recordingProcessor) processedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.processed)
}

func (r *recordingProcessor) removedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.removed)
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestWatcher_CreatedFileTriggersProcessSingleFile(t *testing.T) {
	dir := t.TempDir()
	proc := &recordingProcessor{}
	w := New([]string{dir}, []string{"txt"}, proc, Options{Debounce: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitUntil(t, 2*time.Second, func() bool { return proc.processedCount() > 0 })
}

func TestWatcher_DeletedFileTriggersRemoveFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	proc := &recordingProcessor{}
	w := New([]string{dir}, []string{"txt"}, proc, Options{Debounce: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	waitUntil(t, 2*time.Second, func() bool { return proc.removedCount() > 0 })
}

func TestWatcher_IgnoresNonMatchingExtension(t *testing.T) {
	dir := t.TempDir()
	proc := &recordingProcessor{}
	w := New([]string{dir}, []string{"txt"}, proc, Options{Debounce: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "image.png")
	if err := os.WriteFile(path, []byte("binary"), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(200 * time.Millisecond)
	if proc.processedCount() != 0 {
		t.Errorf("expected non-matching extension to be ignored, got %d processed", proc.processedCount())
	}
}

func TestWatcher_DropsEventsWhenQueueFull(t *testing.T) {
	dir := t.TempDir()
	// Built directly rather than via New so no worker goroutines drain
	// the queue concurrently, keeping the overflow deterministic.
	w := &Watcher{queue: make(chan string, 1)}

	for i := 0; i < 5; i++ {
		w.enqueue(filepath.Join(dir, "a.txt"))
	}
	if w.DroppedCount() == 0 {
		t.Error("expected some events to be dropped once the queue filled up")
	}
}
