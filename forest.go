//go:build linux

package tuxdrive

import (
	"os"
	"path/filepath"
	"strings"
)

// pathNode is one entry in a path tree: either a directory with
// children, or a leaf. The forest exclusively owns every node; it is
// created when a path is first observed and destroyed when a DFS pass
// reports it absent or a parent returns DFSDelete for it.
type pathNode[T any] struct {
	name     string
	isDir    bool
	payload  T
	children map[string]*pathNode[T]
}

func newPathNode[T any](name string, isDir bool) *pathNode[T] {
	return &pathNode[T]{name: name, isDir: isDir, children: make(map[string]*pathNode[T])}
}

// pathTree mirrors one registered root's directory hierarchy.
// recursive records how the root was registered: a non-recursive tree
// still tracks its root's immediate children (so Create/Delete on them
// is visible) but never enumerates the contents of any directory below
// the root — see Watcher.poll, which is the only place this flag is
// consulted after registration.
type pathTree[T any] struct {
	rootPath  string
	root      *pathNode[T]
	recursive bool
}

func newPathTree[T any](rootPath string) *pathTree[T] {
	return &pathTree[T]{rootPath: rootPath, root: newPathNode[T](filepath.Base(rootPath), true), recursive: true}
}

// residualComponents splits path into the components that lie strictly
// below rootPath. path is assumed to be a descendant of (or equal to)
// rootPath — both canonical and absolute, per the forest's invariant.
func residualComponents(rootPath, path string) []string {
	if path == rootPath {
		return nil
	}
	rel, err := filepath.Rel(rootPath, path)
	if err != nil || rel == "." {
		return nil
	}
	return strings.Split(rel, string(filepath.Separator))
}

// PathForest is a mapping from root path to its mirror tree. It is
// generic over the per-node payload (T); the Watcher instantiates it
// with TimestampSnapshot. Go's zero value always exists for any T, so
// interior directory nodes created implicitly never need an explicit
// default constructor.
type PathForest[T any] struct {
	trees map[string]*pathTree[T]
}

// NewPathForest returns an empty forest.
func NewPathForest[T any]() *PathForest[T] {
	return &PathForest[T]{trees: make(map[string]*pathTree[T])}
}

// DirectoryAddOptions controls how AddDirRecursively tolerates
// directories that disappear or become unreadable mid-walk.
type DirectoryAddOptions struct {
	IgnoreNotFound bool
	IgnoreNoAccess bool
}

// NewDirectoryAddOptions returns the default, maximally tolerant
// options: a subtree that vanishes or denies access during the walk is
// simply pruned rather than failing the whole call.
func NewDirectoryAddOptions() DirectoryAddOptions {
	return DirectoryAddOptions{IgnoreNotFound: true, IgnoreNoAccess: true}
}

func (o DirectoryAddOptions) tolerate(err error) bool {
	if isNotExist(err) {
		return o.IgnoreNotFound
	}
	if isPermission(err) {
		return o.IgnoreNoAccess
	}
	return false
}

// AddPath inserts payload at path under root, creating root's tree if
// this is the first path added to it, and creating default-payload
// directory nodes for any missing intermediate components. If path
// already has a node, its payload and isDir are overwritten — AddPath
// is idempotent at the structural level only.
func (f *PathForest[T]) AddPath(root, path string, payload T, isDir bool) {
	tree, ok := f.trees[root]
	if !ok {
		tree = newPathTree[T](root)
		f.trees[root] = tree
	}
	tree.addPath(path, payload, isDir)
}

// RemovePath removes the subtree rooted at path (which must belong to
// root's tree) and reports whether anything was removed.
func (f *PathForest[T]) RemovePath(root, path string) bool {
	tree, ok := f.trees[root]
	if !ok {
		return false
	}
	return tree.removePath(path)
}

// Trees exposes every root's tree for the watcher's per-tree poll
// fan-out. Registration of new roots only happens during setup, before
// polling starts, so handing out these pointers for concurrent,
// disjoint use by poll() is safe without further locking.
func (f *PathForest[T]) Trees() map[string]*pathTree[T] {
	return f.trees
}

// Tree returns root's tree, or nil if root hasn't been registered.
func (f *PathForest[T]) Tree(root string) *pathTree[T] {
	return f.trees[root]
}

// DeleteTree drops root's tree entirely.
func (f *PathForest[T]) DeleteTree(root string) {
	delete(f.trees, root)
}

// AddDirRecursively registers dir as a new root and walks its subtree
// depth-first, inserting every regular file and directory it finds
// with the zero value of T as payload. A subtree that disappears or
// becomes unreadable mid-walk is pruned per options rather than
// failing the call; every other error propagates.
func (f *PathForest[T]) AddDirRecursively(dir string, options DirectoryAddOptions) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		panic("tuxdrive: AddDirRecursively requires an existing directory")
	}
	var zero T
	f.AddPath(dir, dir, zero, true)
	deleted, err := f.addDirRecIntern(dir, dir, options)
	if err != nil {
		return err
	}
	if deleted {
		f.RemovePath(dir, dir)
	}
	return nil
}

func (f *PathForest[T]) addDirRecIntern(root, dir string, options DirectoryAddOptions) (deleted bool, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if options.tolerate(err) {
			return true, nil
		}
		return false, err
	}
	var zero T
	for _, entry := range entries {
		isDir, ok, err := entryKind(entry)
		if err != nil {
			if options.tolerate(err) {
				continue
			}
			return false, err
		}
		if !ok {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		f.AddPath(root, path, zero, isDir)
		if isDir {
			childDeleted, err := f.addDirRecIntern(root, path, options)
			if err != nil {
				return false, err
			}
			if childDeleted {
				f.RemovePath(root, path)
			}
		}
	}
	return false, nil
}

// AddDirNonRecursively registers dir as a new root and inserts only
// its immediate children.
func (f *PathForest[T]) AddDirNonRecursively(dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		panic("tuxdrive: AddDirNonRecursively requires an existing directory")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if isNotExist(err) || isPermission(err) {
			return nil
		}
		return err
	}
	var zero T
	f.AddPath(dir, dir, zero, true)
	if tree := f.Tree(dir); tree != nil {
		tree.recursive = false
	}
	for _, entry := range entries {
		isDir, ok, err := entryKind(entry)
		if err != nil {
			if isNotExist(err) || isPermission(err) {
				continue
			}
			return err
		}
		if !ok {
			continue
		}
		f.AddPath(dir, filepath.Join(dir, entry.Name()), zero, isDir)
	}
	return nil
}

// entryKind reports whether entry is a regular file or directory
// (ok=false for anything else — sockets, symlinks, fifos, devices,
// which are silently skipped), tolerating the entry having vanished
// between ReadDir listing it and us stat-ing its type.
func entryKind(entry os.DirEntry) (isDir bool, ok bool, err error) {
	typ := entry.Type()
	if typ.IsRegular() {
		return false, true, nil
	}
	if typ.IsDir() {
		return true, true, nil
	}
	if typ&os.ModeSymlink == 0 && typ != 0 {
		// Some other special file type (device, socket, fifo): not
		// regular, not a dir, and not something that needs an Info()
		// probe, so no chance of a stray error here.
		return false, false, nil
	}
	info, err := entry.Info()
	if err != nil {
		return false, false, err
	}
	if info.Mode().IsRegular() {
		return false, true, nil
	}
	if info.IsDir() {
		return true, true, nil
	}
	return false, false, nil
}

func (t *pathTree[T]) addPath(path string, payload T, isDir bool) {
	comps := residualComponents(t.rootPath, path)
	if len(comps) == 0 {
		t.root.payload = payload
		t.root.isDir = isDir
		return
	}
	t.root.addNodeRec(comps, payload, isDir)
}

func (t *pathTree[T]) removePath(path string) bool {
	comps := residualComponents(t.rootPath, path)
	if len(comps) == 0 {
		// Removing the root itself isn't a child removal; the caller
		// (forest) drops the whole tree entry instead.
		return false
	}
	return t.root.removeNodeRec(comps)
}

func (n *pathNode[T]) addNodeRec(comps []string, payload T, isDir bool) {
	name := comps[0]
	if len(comps) == 1 {
		if child, ok := n.children[name]; ok {
			child.payload = payload
			child.isDir = isDir
		} else {
			child := newPathNode[T](name, isDir)
			child.payload = payload
			n.children[name] = child
		}
		return
	}
	child, ok := n.children[name]
	if !ok {
		child = newPathNode[T](name, true)
		n.children[name] = child
	}
	child.addNodeRec(comps[1:], payload, isDir)
}

func (n *pathNode[T]) removeNodeRec(comps []string) bool {
	name := comps[0]
	if len(comps) == 1 {
		if _, ok := n.children[name]; ok {
			delete(n.children, name)
			return true
		}
		return false
	}
	child, ok := n.children[name]
	if !ok {
		return false
	}
	return child.removeNodeRec(comps[1:])
}
