//go:build linux

package tuxdrive

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// ReadCommandKind selects what a ReadCommand asks the reader to fetch.
type ReadCommandKind int

const (
	// ReadKindContent asks for the file's full byte content.
	ReadKindContent ReadCommandKind = iota
	// ReadKindPermission asks for the file's decoded mode bits.
	ReadKindPermission
)

// ReadCommand is one unit of work submitted to the Reader, produced by
// whatever is translating Watcher events (typically cmd/tuxdrive: a
// Written event becomes ReadKindContent, a Chmod event becomes
// ReadKindPermission).
type ReadCommand struct {
	Path    string
	Kind    ReadCommandKind
	EventID uint32
}

// ReadResultKind tags which field of ReadData is populated.
type ReadResultKind int

const (
	// ReadResultContent means Content holds the file's bytes.
	ReadResultContent ReadResultKind = iota
	// ReadResultPermission means Permission holds the decoded mode.
	ReadResultPermission
	// ReadResultDeleted means the path was gone or unreadable by the
	// time the reader got to it; Content and Permission are unset.
	ReadResultDeleted
)

// ReadData is the outcome of one ReadCommand, carrying forward its
// EventID so the caller can correlate results back to the event that
// triggered them — results may complete out of submission order, since
// they run across a worker pool.
type ReadData struct {
	Kind       ReadResultKind
	Content    []byte
	Permission Permission
	EventID    uint32
}

// Reader is a bounded worker pool that turns ReadCommands into
// ReadData, performing the actual file I/O off the watcher's poll
// path so a slow read never stalls a poll cycle.
type Reader struct {
	commands chan ReadCommand
	results  chan ReadData
	workers  int
}

// commandBufferSize and resultBufferSize bound the command and result
// channels NewReader creates, for the same reason eventBufferSize
// bounds the watcher's event channel: a large fixed buffer standing
// in for Go's lack of a genuinely unbounded channel.
const (
	commandBufferSize = 4096
	resultBufferSize  = 4096
)

// NewReader creates a reader and returns the send end of its command
// channel and the receive end of its result channel, both buffered,
// alongside the reader itself (whose StartReader method must be run,
// typically on its own goroutine, to actually drain commands). As
// with NewWatcher, the error return is kept for parity with the
// documented external contract; this implementation has no failure
// mode at construction.
func NewReader() (*Reader, chan<- ReadCommand, <-chan ReadData, error) {
	r := &Reader{
		commands: make(chan ReadCommand, commandBufferSize),
		results:  make(chan ReadData, resultBufferSize),
		workers:  numWorkers(),
	}
	return r, r.commands, r.results, nil
}

// StartReader drains the command channel across a fixed pool of
// workers until it is closed, then waits for every in-flight command
// to finish before returning. A non-deletable read error aborts every
// worker and is returned; deletable conditions (not-found, permission
// denied, or the path having turned into a directory) never reach
// here — process reinterprets those as ReadResultDeleted.
func (r *Reader) StartReader() error {
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < r.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case cmd, ok := <-r.commands:
					if !ok {
						return nil
					}
					data, err := process(cmd)
					if err != nil {
						return err
					}
					r.results <- data
				}
			}
		})
	}
	return g.Wait()
}

func process(cmd ReadCommand) (ReadData, error) {
	trace("read command %+v", cmd)
	switch cmd.Kind {
	case ReadKindContent:
		return readContent(cmd)
	case ReadKindPermission:
		return readPermission(cmd)
	default:
		panic("tuxdrive: unknown ReadCommandKind")
	}
}

func readContent(cmd ReadCommand) (ReadData, error) {
	fd, err := unix.Open(cmd.Path, unix.O_RDONLY, 0)
	if err != nil {
		if isDeletable(err) {
			return ReadData{Kind: ReadResultDeleted, EventID: cmd.EventID}, nil
		}
		return ReadData{}, fmt.Errorf("%w: open %s: %w", ErrPlatform, cmd.Path, err)
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		if isDeletable(err) {
			return ReadData{Kind: ReadResultDeleted, EventID: cmd.EventID}, nil
		}
		return ReadData{}, fmt.Errorf("%w: fstat %s: %w", ErrPlatform, cmd.Path, err)
	}
	if st.Mode&unix.S_IFMT == unix.S_IFDIR {
		return ReadData{Kind: ReadResultDeleted, EventID: cmd.EventID}, nil
	}

	buf := make([]byte, 0, st.Size)
	chunk := make([]byte, 64*1024)
	for {
		n, err := unix.Read(fd, chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			if isDeletable(err) {
				return ReadData{Kind: ReadResultDeleted, EventID: cmd.EventID}, nil
			}
			return ReadData{}, fmt.Errorf("%w: read %s: %w", ErrPlatform, cmd.Path, err)
		}
		if n == 0 {
			break
		}
	}
	return ReadData{Kind: ReadResultContent, Content: buf, EventID: cmd.EventID}, nil
}

func readPermission(cmd ReadCommand) (ReadData, error) {
	var st unix.Stat_t
	if err := unix.Stat(cmd.Path, &st); err != nil {
		if isDeletable(err) {
			return ReadData{Kind: ReadResultDeleted, EventID: cmd.EventID}, nil
		}
		return ReadData{}, fmt.Errorf("%w: stat %s: %w", ErrPlatform, cmd.Path, err)
	}
	perm := DecodePermission(uint16(st.Mode & 0o7777))
	return ReadData{Kind: ReadResultPermission, Permission: perm, EventID: cmd.EventID}, nil
}
