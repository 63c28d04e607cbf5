package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu    sync.Mutex
	paths []string
}

func (c *collector) add(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, path)
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func start(t *testing.T, w *Watcher) (cancel func(), done <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Watch(ctx) }()
	return cancel, errc
}

// touch rewrites path until cond holds, tolerating the watcher starting late
func touch(t *testing.T, path string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, os.WriteFile(path, []byte(time.Now().String()), 0644))
		time.Sleep(100 * time.Millisecond)
		if cond() {
			return
		}
	}
	t.Fatalf("no change reported for %s", path)
}

func TestWatchReportsChangedFile(t *testing.T) {
	dir := t.TempDir()
	var got collector

	w := New(dir, got.add, WithDebounce(20*time.Millisecond))
	cancel, done := start(t, w)
	defer cancel()

	target := filepath.Join(dir, "note.json")
	touch(t, target, func() bool { return len(got.snapshot()) > 0 })

	want, err := filepath.Abs(target)
	require.NoError(t, err)
	assert.Equal(t, want, got.snapshot()[0])

	cancel()
	assert.True(t, errors.Is(<-done, context.Canceled))
}

func TestWatchFilter(t *testing.T) {
	dir := t.TempDir()
	var got collector

	w := New(dir, got.add,
		WithDebounce(20*time.Millisecond),
		WithFilter(func(path string) bool { return strings.HasSuffix(path, ".json") }),
	)
	cancel, _ := start(t, w)
	defer cancel()

	ignored := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(ignored, []byte("x"), 0644))

	touch(t, filepath.Join(dir, "kept.json"), func() bool { return len(got.snapshot()) > 0 })
	for _, path := range got.snapshot() {
		assert.True(t, strings.HasSuffix(path, "kept.json"), path)
	}
}

func TestWatchMissingDir(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "absent"), func(string) {})
	err := w.Watch(context.Background())
	assert.Error(t, err)
}
