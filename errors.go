package tuxdrive

import (
	"errors"
	"fmt"
)

// ErrPlatform wraps a syscall failure that isn't classified as a
// deletion or a permission denial (those are handled internally and
// never surface as errors). Any stat/read_dir/open/read failure with
// some other errno propagates wrapped in this. Check against it with
// errors.Is rather than comparing values directly, since it's always
// wrapped with call-specific context on the way out.
var ErrPlatform = errors.New("tuxdrive: platform error")

// NotDirectoryError is returned by Watcher.AddDirectory when the given
// path exists but is not a directory, or doesn't exist at all.
type NotDirectoryError struct {
	Path string
}

func (e *NotDirectoryError) Error() string {
	return fmt.Sprintf("%s is not a directory", e.Path)
}

// isDeletable reports whether err represents a "this path is no
// longer observable" condition — not-found or permission-denied —
// which the watcher and reader both treat as an implicit deletion
// rather than a hard error. Every other error is propagated.
func isDeletable(err error) bool {
	return errors.Is(err, errNotExist) || errors.Is(err, errPermission)
}
