//go:build linux

package tuxdrive

import "path/filepath"

// DFSAction is the directive a DFSVisitor returns for the node it was
// just called with. The five actions fuse traversal control, subtree
// pruning, on-the-fly child augmentation and payload mutation into one
// pass deliberately — splitting them would double the syscalls a poll
// needs and split the state machine across two traversals.
type DFSAction int

const (
	// DFSContinue recurses into the node's existing children.
	DFSContinue DFSAction = iota
	// DFSStop keeps the node but does not recurse into its children.
	DFSStop
	// DFSDelete removes the node (and its subtree) from the forest and
	// does not recurse.
	DFSDelete
	// DFSAddAndContinue adds NewChildren as children of this node,
	// then recurses into the children the node had before the add;
	// the new children are first visited on the next DFSMut pass.
	DFSAddAndContinue
	// DFSAddAndStop adds NewChildren as children of this node but does
	// not recurse further.
	DFSAddAndStop
)

// NewChild describes a child to graft onto a node in response to
// DFSAddAndContinue/DFSAddAndStop. Name is the final path component;
// IsDir reflects what the caller already observed on disk.
type NewChild struct {
	Name  string
	IsDir bool
}

// DFSDirective is what a DFSVisitor returns.
type DFSDirective struct {
	Action      DFSAction
	NewChildren []NewChild
}

// Continue is the zero-value directive: recurse into existing children.
func Continue() DFSDirective { return DFSDirective{Action: DFSContinue} }

// Stop keeps the node without recursing.
func Stop() DFSDirective { return DFSDirective{Action: DFSStop} }

// Delete removes the node and its subtree.
func Delete() DFSDirective { return DFSDirective{Action: DFSDelete} }

// AddAndContinue grafts children then recurses into the children that
// existed before the graft.
func AddAndContinue(children []NewChild) DFSDirective {
	return DFSDirective{Action: DFSAddAndContinue, NewChildren: children}
}

// AddAndStop grafts children without recursing further.
func AddAndStop(children []NewChild) DFSDirective {
	return DFSDirective{Action: DFSAddAndStop, NewChildren: children}
}

// NodeView is the mutable handle a DFSVisitor gets for the node it was
// called on: the set of its current children's absolute paths, a
// pointer into its payload, and its recorded isDir. Visitation order
// among siblings is unspecified; a correct visitor never depends on it.
type NodeView[T any] struct {
	node *pathNode[T]
	path string
}

// ChildPaths returns the absolute paths of this node's current
// children. "Current" means as of before any DFSAddAndContinue/
// DFSAddAndStop from this same call is applied.
func (v *NodeView[T]) ChildPaths() []string {
	paths := make([]string, 0, len(v.node.children))
	for name := range v.node.children {
		paths = append(paths, filepath.Join(v.path, name))
	}
	return paths
}

// Payload returns a pointer to this node's payload, for in-place
// mutation by the visitor.
func (v *NodeView[T]) Payload() *T { return &v.node.payload }

// IsDir reports whether this node represents a directory.
func (v *NodeView[T]) IsDir() bool { return v.node.isDir }

// DFSVisitor is called once per node of a path tree, in an order
// consistent with preorder. Its directive controls recursion, subtree
// pruning, and whether new children are grafted onto the node before
// recursion happens.
type DFSVisitor[T any] func(path string, view *NodeView[T]) (DFSDirective, error)

// DFSMut runs visitor over every tree in the forest. Trees are
// independent and may be walked concurrently by the caller (the
// forest itself does not parallelize — see Watcher.poll, which fans
// out one goroutine per tree via errgroup).
func (f *PathForest[T]) DFSMut(visitor DFSVisitor[T]) error {
	for root, tree := range f.trees {
		deleted, err := tree.dfsMut(visitor)
		if err != nil {
			return err
		}
		if deleted {
			delete(f.trees, root)
		}
	}
	return nil
}

func (t *pathTree[T]) dfsMut(visitor DFSVisitor[T]) (deleted bool, err error) {
	return dfsMutNode(t.root, t.rootPath, visitor)
}

func dfsMutNode[T any](node *pathNode[T], path string, visitor DFSVisitor[T]) (deleted bool, err error) {
	view := &NodeView[T]{node: node, path: path}
	directive, err := visitor(path, view)
	if err != nil {
		return false, err
	}
	switch directive.Action {
	case DFSStop:
		return false, nil
	case DFSDelete:
		return true, nil
	case DFSContinue:
		return false, recurseChildren(node, path, visitor)
	case DFSAddAndContinue:
		// Snapshot the names that existed before grafting: a node
		// just created this pass has no stat history yet (its payload
		// is T's zero value), so visiting it immediately would read as
		// a spurious Written/Chmod on top of the Create already
		// emitted for it this same cycle. It gets its first real visit
		// next poll instead.
		existing := childNames(node)
		addChildren(node, directive.NewChildren)
		return false, recurseNamedChildren(node, path, existing, visitor)
	case DFSAddAndStop:
		addChildren(node, directive.NewChildren)
		return false, nil
	default:
		panic("tuxdrive: unknown DFSAction")
	}
}

func childNames[T any](node *pathNode[T]) []string {
	names := make([]string, 0, len(node.children))
	for name := range node.children {
		names = append(names, name)
	}
	return names
}

func recurseChildren[T any](node *pathNode[T], path string, visitor DFSVisitor[T]) error {
	return recurseNamedChildren(node, path, childNames(node), visitor)
}

func recurseNamedChildren[T any](node *pathNode[T], path string, names []string, visitor DFSVisitor[T]) error {
	for _, name := range names {
		child, ok := node.children[name]
		if !ok {
			continue
		}
		childPath := filepath.Join(path, name)
		deleted, err := dfsMutNode(child, childPath, visitor)
		if err != nil {
			return err
		}
		if deleted {
			delete(node.children, name)
		}
	}
	return nil
}

func addChildren[T any](node *pathNode[T], children []NewChild) {
	for _, c := range children {
		node.children[c.Name] = newPathNode[T](c.Name, c.IsDir)
	}
}
