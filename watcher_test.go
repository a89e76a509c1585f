//go:build linux

package tuxdrive

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// pollOnce runs one poll cycle and collects every event it emits. The
// event channel is buffered, so once poll() has returned, every event
// it sent is either already received here or still in the buffer; the
// buffer is drained before returning, so no event of the cycle is lost.
func pollOnce(t *testing.T, w *Watcher, events <-chan Event) []Event {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- w.poll() }()

	var got []Event
	for {
		select {
		case e := <-events:
			got = append(got, e)
		case err := <-errCh:
			if err != nil {
				t.Fatalf("poll: %v", err)
			}
			for {
				select {
				case e := <-events:
					got = append(got, e)
				default:
					return got
				}
			}
		}
	}
}

func newTestWatcher(t *testing.T) (*Watcher, <-chan Event) {
	t.Helper()
	w, events, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return w, events
}

// TestInitialSnapshotIsSilent is the "initial silence" invariant: the
// very first pass over a freshly registered, already-populated
// directory must produce zero events.
func TestInitialSnapshotIsSilent(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, filepath.Join(dir, "existing.txt"), "x")

	w, events := newTestWatcher(t)
	if err := w.AddDirectory(dir, true); err != nil {
		t.Fatalf("AddDirectory: %v", err)
	}

	got := pollOnce(t, w, events)
	if len(got) != 0 {
		t.Fatalf("expected no events on first poll after AddDirectory, got %v", got)
	}
}

// TestCreateEmitsOnlyCreate is scenario S1: a file created after
// registration produces exactly one Create event, never an
// accompanying Written for the same node in the same pass.
func TestCreateEmitsOnlyCreate(t *testing.T) {
	dir := t.TempDir()
	w, events := newTestWatcher(t)
	if err := w.AddDirectory(dir, true); err != nil {
		t.Fatalf("AddDirectory: %v", err)
	}

	target := filepath.Join(dir, "a.txt")
	mustWriteFile(t, target, "hello")

	got := pollOnce(t, w, events)
	if len(got) != 1 {
		t.Fatalf("expected exactly one event, got %v", got)
	}
	if got[0].Kind != EventCreate || got[0].Path != target {
		t.Fatalf("expected Create(%s), got %v", target, got[0])
	}

	// The node exists now but has not had its first real visit; the
	// next poll should be silent unless the file changes again.
	got = pollOnce(t, w, events)
	if len(got) != 0 {
		t.Fatalf("expected silence on the poll right after Create, got %v", got)
	}
}

// TestWriteEmitsOnlyWritten is scenario S2: a content change to an
// already-known file produces Written, not Chmod, when only mtime
// moved.
func TestWriteEmitsOnlyWritten(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.txt")
	mustWriteFile(t, target, "hello")

	w, events := newTestWatcher(t)
	if err := w.AddDirectory(dir, true); err != nil {
		t.Fatalf("AddDirectory: %v", err)
	}

	future := time.Now().Add(2 * time.Second)
	mustWriteFile(t, target, "hello again")
	if err := os.Chtimes(target, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	got := pollOnce(t, w, events)
	if len(got) != 1 {
		t.Fatalf("expected exactly one event, got %v", got)
	}
	if got[0].Kind != EventWritten || got[0].Path != target {
		t.Fatalf("expected Written(%s), got %v", target, got[0])
	}
}

// TestChmodEmitsOnlyChmod checks that a permission-only change (ctime
// moves, mtime does not) is reported as Chmod, using changed_since
// rather than modified_since.
func TestChmodEmitsOnlyChmod(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.txt")
	mustWriteFile(t, target, "hello")

	w, events := newTestWatcher(t)
	if err := w.AddDirectory(dir, true); err != nil {
		t.Fatalf("AddDirectory: %v", err)
	}

	// ctime has whole-second resolution here; cross a second boundary
	// so the chmod is guaranteed to register as an advance.
	time.Sleep(1100 * time.Millisecond)
	if err := os.Chmod(target, 0o600); err != nil {
		t.Fatalf("Chmod: %v", err)
	}

	got := pollOnce(t, w, events)
	if len(got) != 1 {
		t.Fatalf("expected exactly one event, got %v", got)
	}
	if got[0].Kind != EventChmod || got[0].Path != target {
		t.Fatalf("expected Chmod(%s), got %v", target, got[0])
	}
}

// TestDeleteEmitsDelete is scenario S4: removing a watched file
// produces a Delete event and the node disappears from the forest.
func TestDeleteEmitsDelete(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.txt")
	mustWriteFile(t, target, "hello")

	w, events := newTestWatcher(t)
	if err := w.AddDirectory(dir, true); err != nil {
		t.Fatalf("AddDirectory: %v", err)
	}

	if err := os.Remove(target); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	got := pollOnce(t, w, events)
	if len(got) != 1 {
		t.Fatalf("expected exactly one event, got %v", got)
	}
	if got[0].Kind != EventDelete || got[0].Path != target {
		t.Fatalf("expected Delete(%s), got %v", target, got[0])
	}

	got = pollOnce(t, w, events)
	if len(got) != 0 {
		t.Fatalf("expected silence once the node is gone from the forest, got %v", got)
	}
}

// TestTypeSwapEmitsDelete covers the truth-table row where a path
// changes kind (file replaced by a directory of the same name):
// the stale node is deleted rather than reinterpreted in place.
func TestTypeSwapEmitsDelete(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a")
	mustWriteFile(t, target, "hello")

	w, events := newTestWatcher(t)
	if err := w.AddDirectory(dir, true); err != nil {
		t.Fatalf("AddDirectory: %v", err)
	}

	if err := os.Remove(target); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	got := pollOnce(t, w, events)
	if len(got) != 1 || got[0].Kind != EventDelete {
		t.Fatalf("expected a single Delete event for the type swap, got %v", got)
	}
}

// TestSymlinkSwapEmitsDelete covers the truth-table row where a
// regular file is replaced by a symlink of the same name: lstat (not
// stat) sees neither a regular file nor a directory, so the stale node
// is deleted rather than silently followed.
func TestSymlinkSwapEmitsDelete(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a")
	mustWriteFile(t, target, "hello")
	elsewhere := filepath.Join(dir, "elsewhere.txt")
	mustWriteFile(t, elsewhere, "x")

	w, events := newTestWatcher(t)
	if err := w.AddDirectory(dir, true); err != nil {
		t.Fatalf("AddDirectory: %v", err)
	}

	if err := os.Remove(target); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := os.Symlink(elsewhere, target); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	got := pollOnce(t, w, events)
	var sawDelete bool
	for _, e := range got {
		if e.Path == target {
			if e.Kind != EventDelete {
				t.Fatalf("expected Delete(%s) for the symlink swap, got %v", target, e)
			}
			sawDelete = true
		}
	}
	if !sawDelete {
		t.Fatalf("expected a Delete event for %s, got %v", target, got)
	}
}

// TestAddDirectoryNonRecursiveIgnoresSubdirectoryContent checks that
// AddDirectory(path, recursive=false) only tracks dir's immediate
// children: a new file inside a subdirectory is invisible, but a new
// file directly in dir is still caught (the root node itself is
// always polled as a directory).
func TestAddDirectoryNonRecursiveIgnoresSubdirectoryContent(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	mustMkdirAll(t, sub)

	w, events := newTestWatcher(t)
	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatalf("AddDirectory: %v", err)
	}

	got := pollOnce(t, w, events)
	if len(got) != 0 {
		t.Fatalf("expected no events on first poll after non-recursive AddDirectory, got %v", got)
	}

	mustWriteFile(t, filepath.Join(sub, "nested.txt"), "x")
	got = pollOnce(t, w, events)
	if len(got) != 0 {
		t.Fatalf("non-recursive watch must not descend into subdirectories, got %v", got)
	}

	topLevel := filepath.Join(dir, "top.txt")
	mustWriteFile(t, topLevel, "x")
	got = pollOnce(t, w, events)
	if len(got) != 1 || got[0].Kind != EventCreate || got[0].Path != topLevel {
		t.Fatalf("expected exactly one Create(%s), got %v", topLevel, got)
	}
}

// TestEventIDsAreMonotonic checks the event-id monotonicity invariant
// across multiple poll cycles.
func TestEventIDsAreMonotonic(t *testing.T) {
	dir := t.TempDir()
	w, events := newTestWatcher(t)
	if err := w.AddDirectory(dir, true); err != nil {
		t.Fatalf("AddDirectory: %v", err)
	}

	var all []Event
	for i := 0; i < 3; i++ {
		mustWriteFile(t, filepath.Join(dir, filepath.Base(t.TempDir())+".txt"), "x")
		all = append(all, pollOnce(t, w, events)...)
	}

	var last uint32
	for _, e := range all {
		if e.ID <= last {
			t.Fatalf("event ids not strictly increasing: %v", all)
		}
		last = e.ID
	}
}

// TestAddDirectoryRejectsNonDirectory checks the NotDirectoryError path.
func TestAddDirectoryRejectsNonDirectory(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.txt")
	mustWriteFile(t, target, "hello")

	w, _ := newTestWatcher(t)
	err := w.AddDirectory(target, true)
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := err.(*NotDirectoryError); !ok {
		t.Fatalf("expected *NotDirectoryError, got %T: %v", err, err)
	}
}
