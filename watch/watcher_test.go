package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWatcher(t *testing.T, dir string) *Watcher {
	t.Helper()
	w, err := NewWatcher(Config{Debounce: 50 * time.Millisecond}, dir, nil)
	require.NoError(t, err)
	return w
}

// writeFile writes content atomically so the watcher never sees a partial
// file.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o644))
	require.NoError(t, os.Rename(tmp, path))
}

// nextEvent waits up to a second for an event.
func nextEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for watch event")
		return Event{}
	}
}

func TestNewWatcher_Defaults(t *testing.T) {
	w, err := NewWatcher(Config{}, t.TempDir(), nil)
	require.NoError(t, err)
	defer w.Stop()

	assert.Equal(t, 500*time.Millisecond, w.config.Debounce)
	assert.Equal(t, []string{"**/*.txt", "**/*.rule"}, w.config.Patterns)
	assert.True(t, w.excludes[".git"])
	assert.True(t, filepath.IsAbs(w.Root()))
}

func TestNewWatcher_InvalidPattern(t *testing.T) {
	_, err := NewWatcher(Config{Patterns: []string{"[unclosed"}}, t.TempDir(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid watch pattern")
}

func TestWatcher_Matches(t *testing.T) {
	w := testWatcher(t, t.TempDir())
	defer w.Stop()

	tests := []struct {
		path string
		want bool
	}{
		{"fan.txt", true},
		{"rules/kitchen/lights.rule", true},
		{"fan.plan.json", false},
		{"notes.md", false},
		{"txt", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, w.Matches(tt.path))
		})
	}
}

func TestContentHash(t *testing.T) {
	a := ContentHash([]byte("turn on the fan"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, ContentHash([]byte("turn on the fan")))
	assert.NotEqual(t, a, ContentHash([]byte("turn off the fan")))
}

func TestWatcher_Lifecycle(t *testing.T) {
	dir := t.TempDir()
	w := testWatcher(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.Start(ctx))
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "fan.txt")
	writeFile(t, path, "if temp > 30 turn on fan")

	ev := nextEvent(t, w)
	assert.Equal(t, "fan.txt", ev.Path)
	assert.Equal(t, OpCreate, ev.Op)
	assert.Equal(t, path, ev.AbsPath)

	writeFile(t, path, "if temp > 35 turn on fan")
	ev = nextEvent(t, w)
	assert.Equal(t, OpModify, ev.Op)

	require.NoError(t, os.Remove(path))
	ev = nextEvent(t, w)
	assert.Equal(t, OpDelete, ev.Op)

	require.NoError(t, w.Stop())
	// Events closes once processing stops.
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-w.Events():
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestWatcher_SkipsUnchangedContent(t *testing.T) {
	dir := t.TempDir()
	w := testWatcher(t, dir)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.Start(ctx))
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "fan.txt")
	writeFile(t, path, "turn on fan")
	assert.Equal(t, OpCreate, nextEvent(t, w).Op)

	// Same bytes again: touched but not changed.
	writeFile(t, path, "turn on fan")

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event for unchanged content: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_IgnoresNonMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	w := testWatcher(t, dir)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.Start(ctx))
	time.Sleep(100 * time.Millisecond)

	writeFile(t, filepath.Join(dir, "notes.md"), "x")

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	w := testWatcher(t, dir)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.Start(ctx))
	time.Sleep(100 * time.Millisecond)

	sub := filepath.Join(dir, "kitchen")
	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(100 * time.Millisecond)

	writeFile(t, filepath.Join(sub, "lights.rule"), "when motion turn on lights")

	ev := nextEvent(t, w)
	assert.Equal(t, "kitchen/lights.rule", ev.Path)
	assert.Equal(t, OpCreate, ev.Op)
}

func TestWatcher_ExcludedDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))

	w := testWatcher(t, dir)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.Start(ctx))
	time.Sleep(100 * time.Millisecond)

	writeFile(t, filepath.Join(dir, ".git", "msg.txt"), "x")

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event from excluded dir: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_DeleteOfUntrackedFileIsSilent(t *testing.T) {
	dir := t.TempDir()
	w := testWatcher(t, dir)
	defer w.Stop()

	w.pending[filepath.Join(dir, "gone.txt")] = 0
	w.flushPending(context.Background())

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event: %+v", ev)
	default:
	}
}

func TestWatcher_DroppedEvents(t *testing.T) {
	w := testWatcher(t, t.TempDir())
	defer w.Stop()

	for i := 0; i < eventChannelBuffer+3; i++ {
		w.sendEvent(Event{Path: "x.txt", Op: OpModify})
	}
	assert.Equal(t, int64(3), w.DroppedEvents())
}
