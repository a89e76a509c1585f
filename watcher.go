//go:build linux

package tuxdrive

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// EventKind is the kind of change an Event reports.
type EventKind int

const (
	// EventCreate is emitted the first time a path is observed under
	// an already-watched directory.
	EventCreate EventKind = iota
	// EventDelete is emitted when a previously observed path is no
	// longer present, no longer accessible, or changed type (file↔dir,
	// or became a socket/symlink/fifo).
	EventDelete
	// EventWritten is emitted for a file whose mtime advanced since
	// the last poll.
	EventWritten
	// EventChmod is emitted for a file whose ctime advanced (and
	// mtime did not) since the last poll.
	EventChmod
)

func (k EventKind) String() string {
	switch k {
	case EventCreate:
		return "Create"
	case EventDelete:
		return "Delete"
	case EventWritten:
		return "Written"
	case EventChmod:
		return "Chmod"
	default:
		return "Unknown"
	}
}

// Event is one filesystem change the watcher has detected. Path is
// always absolute and canonical; ID is strictly increasing within a
// process and unique.
type Event struct {
	Path string
	Kind EventKind
	ID   uint32
}

func (e Event) String() string {
	return fmt.Sprintf("%s %q (id=%d)", e.Kind, e.Path, e.ID)
}

// Watcher owns the path forest and drives the poll loop. It is not safe
// to register new roots (AddDirectory) after StartPolling has begun —
// registration is a setup-time operation, done once before polling
// starts.
type Watcher struct {
	forest  *PathForest[TimestampSnapshot]
	ids     *IDGenerator
	events  chan Event
	workers int
	treesMu sync.Mutex // guards deletion of whole-root trees discovered mid-poll
}

// eventBufferSize is the capacity of the event channel NewWatcher
// creates. Go has no true unbounded channel; a large fixed buffer is
// the usual stand-in, sized generously enough that a downstream
// consumer falling behind for a while fills memory before it ever
// blocks a poll cycle.
const eventBufferSize = 4096

// NewWatcher creates a watcher and returns it paired with the receive
// end of its event channel, buffered to eventBufferSize so a slow
// consumer causes the channel to fill rather than stalling poll()
// immediately. The error return is reserved for a future worker-pool
// construction failure; nothing can actually fail to construct today,
// since the poll barrier is an errgroup.Group with no separate build
// step.
func NewWatcher() (*Watcher, <-chan Event, error) {
	w := &Watcher{
		forest:  NewPathForest[TimestampSnapshot](),
		ids:     NewIDGenerator(),
		events:  make(chan Event, eventBufferSize),
		workers: numWorkers(),
	}
	return w, w.events, nil
}

func numWorkers() int {
	return max(runtime.NumCPU(), 4)
}

// AddDirectory registers path as a new root, recursive or not. path
// must already exist and be a directory. The initial population of
// the tree is timestamped but produces no events — see
// updateTimesVisitor.
func (w *Watcher) AddDirectory(path string, recursive bool) error {
	canon, err := canonicalize(path)
	if err != nil {
		if isNotExist(err) {
			return &NotDirectoryError{Path: path}
		}
		return err
	}
	info, err := os.Stat(canon)
	if err != nil || !info.IsDir() {
		return &NotDirectoryError{Path: path}
	}
	if recursive {
		if err := w.forest.AddDirRecursively(canon, NewDirectoryAddOptions()); err != nil {
			return err
		}
	} else {
		if err := w.forest.AddDirNonRecursively(canon); err != nil {
			return err
		}
	}
	return w.updateTimes(canon)
}

// canonicalize makes path absolute and resolves symlinks, so that
// every path this watcher stores or emits is canonical, not just some
// of them.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// updateTimes runs the silent, no-event visitor over root's tree to
// capture its initial mtime/ctime snapshot.
func (w *Watcher) updateTimes(root string) error {
	tree := w.forest.Tree(root)
	if tree == nil {
		return nil
	}
	deleted, err := tree.dfsMut(updateTimesVisitor)
	if err != nil {
		return err
	}
	if deleted {
		w.forest.DeleteTree(root)
	}
	return nil
}

// updateTimesVisitor refreshes the mtime/ctime payload of every node
// without comparing it against the prior (zero) snapshot and without
// ever sending an event — which is what makes it safe to run over a
// tree that was just populated with default payloads (every file has a
// positive mtime, so a normal visitor would misread that as "just
// written").
func updateTimesVisitor(path string, view *NodeView[TimestampSnapshot]) (DFSDirective, error) {
	snap, deleted, err := lstatSnapshot(path)
	if err != nil {
		return DFSDirective{}, err
	}
	if deleted {
		return Delete(), nil
	}
	*view.Payload() = snap
	if view.IsDir() {
		return Continue(), nil
	}
	return Stop(), nil
}

// lstatSnapshot lstat's path (not following symlinks, so a path that
// has turned into a symlink is correctly seen as "no longer a regular
// file or directory") and returns its timestamp snapshot. deleted is
// true, with a nil error, for the NotFound/PermissionDenied case,
// which must never propagate as an error.
func lstatSnapshot(path string) (snap TimestampSnapshot, deleted bool, err error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		if isNotExist(err) || isPermission(err) {
			return TimestampSnapshot{}, true, nil
		}
		return TimestampSnapshot{}, false, fmt.Errorf("%w: lstat %s: %w", ErrPlatform, path, err)
	}
	return TimestampSnapshot{ModTime: int64(st.Mtim.Sec), ChangeTime: int64(st.Ctim.Sec)}, false, nil
}

func lstatKind(path string) (isRegular, isDir, deleted bool, err error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		if isNotExist(err) || isPermission(err) {
			return false, false, true, nil
		}
		return false, false, false, fmt.Errorf("%w: lstat %s: %w", ErrPlatform, path, err)
	}
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFREG:
		return true, false, false, nil
	case unix.S_IFDIR:
		return false, true, false, nil
	default:
		return false, false, false, nil
	}
}

// StartPolling runs poll() then sleeps interval, forever. It returns
// only on a non-deletable error, at which point the caller (typically
// running this on a dedicated goroutine) decides what to do — there is
// no automatic retry.
func (w *Watcher) StartPolling(interval time.Duration) error {
	for {
		trace("poll cycle starting")
		if err := w.poll(); err != nil {
			return err
		}
		trace("poll cycle done, sleeping %s", interval)
		time.Sleep(interval)
	}
}

// poll walks every tree in the forest, in parallel across trees on a
// pool bounded to numWorkers(), single-threaded within each tree, and
// blocks until every tree's walk has completed.
func (w *Watcher) poll() error {
	var g errgroup.Group
	g.SetLimit(w.workers)

	var toDelete []string
	trees := w.forest.Trees()
	for root, tree := range trees {
		root, tree := root, tree
		g.Go(func() error {
			deleted, err := tree.dfsMut(func(path string, view *NodeView[TimestampSnapshot]) (DFSDirective, error) {
				return w.pollVisitor(path, view, path == root || tree.recursive)
			})
			if err != nil {
				return err
			}
			if deleted {
				w.treesMu.Lock()
				toDelete = append(toDelete, root)
				w.treesMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, root := range toDelete {
		w.forest.DeleteTree(root)
	}
	return nil
}

// pollVisitor implements the per-node classification and event rules:
// a path that is gone, no longer a regular file or directory, or of the
// other type than recorded is deleted with a Delete event; a directory
// is enumerated by pollDirectory; a file is compared by pollFile.
// descend is false for a
// directory node below the root of a non-recursive tree: such a node
// is still checked for deletion/type changes, but its contents are
// never enumerated, so a non-recursive watch stays non-recursive on
// every poll, not just the first one.
func (w *Watcher) pollVisitor(path string, view *NodeView[TimestampSnapshot], descend bool) (DFSDirective, error) {
	isRegular, isDir, deleted, err := lstatKind(path)
	if err != nil {
		return DFSDirective{}, err
	}
	if deleted {
		w.emit(path, EventDelete)
		return Delete(), nil
	}
	if !isRegular && !isDir {
		w.emit(path, EventDelete)
		return Delete(), nil
	}
	if isDir != view.IsDir() {
		w.emit(path, EventDelete)
		return Delete(), nil
	}

	snap, deleted, err := lstatSnapshot(path)
	if err != nil {
		return DFSDirective{}, err
	}
	if deleted {
		w.emit(path, EventDelete)
		return Delete(), nil
	}
	prior := *view.Payload()
	*view.Payload() = snap

	if isDir {
		if !descend {
			return Stop(), nil
		}
		return w.pollDirectory(path, view)
	}
	return w.pollFile(path, prior, snap), nil
}

// pollDirectory always recurses: gating descent on directory mtime is
// unreliable across editors that rename-in-place and filesystems that
// don't reliably bump a parent's mtime. The extra stat per extant path
// per poll is the accepted cost.
func (w *Watcher) pollDirectory(path string, view *NodeView[TimestampSnapshot]) (DFSDirective, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if isNotExist(err) || isPermission(err) {
			w.emit(path, EventDelete)
			return Delete(), nil
		}
		return DFSDirective{}, fmt.Errorf("%w: read_dir %s: %w", ErrPlatform, path, err)
	}

	existing := make(map[string]struct{}, len(view.ChildPaths()))
	for _, p := range view.ChildPaths() {
		existing[p] = struct{}{}
	}

	var newChildren []NewChild
	for _, entry := range entries {
		isChildDir, ok, err := entryKind(entry)
		if err != nil {
			if isNotExist(err) || isPermission(err) {
				continue
			}
			return DFSDirective{}, fmt.Errorf("%w: stat %s: %w", ErrPlatform, entry.Name(), err)
		}
		if !ok {
			continue
		}
		childPath := filepath.Join(path, entry.Name())
		if _, seen := existing[childPath]; seen {
			continue
		}
		w.emit(childPath, EventCreate)
		newChildren = append(newChildren, NewChild{Name: entry.Name(), IsDir: isChildDir})
	}
	return AddAndContinue(newChildren), nil
}

func (w *Watcher) pollFile(path string, prior, snap TimestampSnapshot) DFSDirective {
	if prior == (TimestampSnapshot{}) {
		// First visit of a node grafted by an earlier poll: its Create
		// was already emitted, so this visit only records timestamps.
		return Stop()
	}
	if snap.ModifiedSince(prior) {
		w.emit(path, EventWritten)
	} else if snap.ChangedSince(prior) {
		w.emit(path, EventChmod)
	}
	return Stop()
}

func (w *Watcher) emit(path string, kind EventKind) {
	id := w.ids.Next()
	trace("emit %s %q (id=%d)", kind, path, id)
	w.events <- Event{Path: path, Kind: kind, ID: id}
}
