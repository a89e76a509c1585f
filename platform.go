//go:build linux

package tuxdrive

import (
	"errors"
	"io/fs"
)

// tuxdrive is Linux-only by design. Every file in this package that
// touches the filesystem directly is build-tagged linux (the raw
// unix.Stat_t field layout it reads isn't portable even across other
// POSIX platforms); there is deliberately no fallback implementation
// for other platforms, so a build for e.g. windows, darwin, or plan9
// fails at compile time rather than silently degrading.
var (
	errNotExist   = fs.ErrNotExist
	errPermission = fs.ErrPermission
)

func isNotExist(err error) bool   { return errors.Is(err, errNotExist) }
func isPermission(err error) bool { return errors.Is(err, errPermission) }
