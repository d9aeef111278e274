// Package testlogger adapts an io.Writer onto testing.T.Log, so that
// server-side diagnostic output (e.g. rsyncd.WithStderr) is attributed to
// the test that triggered it instead of leaking to the process's real
// stderr, where go test would otherwise attach it to the wrong test or
// print it after the run has already reported a result.
package testlogger

import (
	"strings"
	"testing"
)

type writer struct {
	t *testing.T
}

// New returns an io.Writer that logs each write via t.Log, trimming a
// single trailing newline (the common case for line-oriented loggers).
func New(t *testing.T) *writer {
	return &writer{t: t}
}

func (w *writer) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
