package tuxdrive

import (
	"fmt"
	"os"
	"time"
)

// traceEnabled gates the diagnostic tracing below. Set TUXDRIVE_TRACE to
// any non-empty value to turn it on; it is off by default and adds no
// overhead to the hot poll/read paths beyond this one check.
var traceEnabled = os.Getenv("TUXDRIVE_TRACE") != ""

// trace writes a timestamped diagnostic line to stderr when tracing is
// enabled. It is never a hard dependency for correctness — nothing in
// the watcher or reader behaves differently whether or not a line
// actually gets printed.
func trace(format string, args ...any) {
	if !traceEnabled {
		return
	}
	fmt.Fprintf(os.Stderr, "%s tuxdrive: %s\n", time.Now().Format("15:04:05.000"), fmt.Sprintf(format, args...))
}
