package executor

import (
	"bytes"
	"fmt"
)

// limitedWriter buffers at most max bytes and counts what it drops
type limitedWriter struct {
	buf       bytes.Buffer
	max       int
	truncated bool
	discarded int64
}

func newLimitedWriter(max int) *limitedWriter {
	return &limitedWriter{max: max}
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	remaining := lw.max - lw.buf.Len()
	if remaining <= 0 {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil
	}
	if n > remaining {
		lw.truncated = true
		lw.discarded += int64(n - remaining)
		lw.buf.Write(p[:remaining])
		// report the full length so the copier does not fail with a short write
		return n, nil
	}

	lw.buf.Write(p)
	return n, nil
}

// String returns the captured output with a marker when bytes were dropped
func (lw *limitedWriter) String() string {
	if !lw.truncated {
		return lw.buf.String()
	}
	return lw.buf.String() + fmt.Sprintf("\n... [output truncated, %d bytes discarded]", lw.discarded)
}
