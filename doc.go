// Package tuxdrive provides a recursive, polling filesystem-change
// observer and a bounded worker pool that reads back the files it
// reports as changed.
//
// The watcher maintains an in-memory mirror of every watched directory
// tree (the "path forest"). Each poll cycle walks the forest, compares
// it against the real filesystem, emits Create/Delete/Written/Chmod
// events on a channel, and updates the forest to match reality. There
// is no kernel-level change notification involved; polling is the only
// mechanism this package uses, at the cost of a poll interval's worth
// of latency. The package builds on Linux only.
//
// The reader consumes the kind of commands a consumer of the event
// channel would naturally want to issue back at the watched paths —
// "read this file's bytes" or "stat this path's permission bits" — on
// a small worker pool, tolerating the target having been deleted
// between the event firing and the read happening.
package tuxdrive
