package tuxdrive

import "testing"

func TestTraceIsSilentByDefault(t *testing.T) {
	if traceEnabled {
		t.Skip("TUXDRIVE_TRACE is set in this environment")
	}
	// trace must be safe to call with tracing off; nothing to assert on
	// stderr here, just that it doesn't panic or format-crash.
	trace("unit test: %d %s", 1, "x")
}
