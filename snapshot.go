package tuxdrive

// TimestampSnapshot is the payload the Watcher stores at every node of
// its path forest: the last-observed mtime and ctime of that path, in
// whole seconds. The zero value (0, 0) is the default used for nodes
// that haven't been stat'd yet. Real files have positive mtimes, so
// comparing a first stat against zero would falsely report every
// pre-existing file as just-written; the initial-snapshot pass (see
// Watcher.AddDirectory) therefore only records timestamps and emits
// nothing.
type TimestampSnapshot struct {
	ModTime    int64
	ChangeTime int64
}

// ModifiedSince reports whether this snapshot's mtime is strictly
// greater than prior's.
func (s TimestampSnapshot) ModifiedSince(prior TimestampSnapshot) bool {
	return s.ModTime > prior.ModTime
}

// ChangedSince reports whether this snapshot's ctime is strictly
// greater than prior's. This is the predicate the file-node poll
// visitor uses to decide Chmod, not ModifiedSince: mtime alone misses
// permission/ownership changes that don't touch file content.
func (s TimestampSnapshot) ChangedSince(prior TimestampSnapshot) bool {
	return s.ChangeTime > prior.ChangeTime
}

// UpdatedSince reports whether either mtime or ctime advanced.
func (s TimestampSnapshot) UpdatedSince(prior TimestampSnapshot) bool {
	return s.ModifiedSince(prior) || s.ChangedSince(prior)
}
