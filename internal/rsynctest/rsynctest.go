// Package rsynctest spins up an in-process oc-rsync daemon for use by
// integration tests, and provides a handful of fixture helpers (large
// data files, device-file round-tripping) that those tests need.
// Grounded on the daemon wiring in internal/maincmd/maincmd.go's
// --daemon branch: build a rsyncd.Server from a module list, bind a
// TCP listener, and run Server.Serve in the background for the
// lifetime of the test.
package rsynctest

import (
	"context"
	"net"
	"os/exec"
	"strings"
	"testing"

	"github.com/oferchen/oc-rsync/internal/rsyncdconfig"
	"github.com/oferchen/oc-rsync/rsyncd"
)

// Server is a running daemon bound to localhost, torn down automatically
// when the test that created it finishes.
type Server struct {
	// Port is the TCP port the daemon is listening on, as a string
	// suitable for direct concatenation into an "rsync://host:port/..."
	// URL or a "-p" ssh argument.
	Port string
}

type config struct {
	modules   []rsyncd.Module
	listeners []rsyncdconfig.Listener
}

// Option configures the daemon started by New.
type Option func(*config)

// InteropModule registers a module named "interop" serving path, matching
// the module name every rsynctest caller connects to
// ("rsync://localhost:PORT/interop/").
func InteropModule(path string) Option {
	return func(c *config) {
		c.modules = append(c.modules, rsyncd.Module{Name: "interop", Path: path})
	}
}

// Listeners overrides the default "bind an ephemeral TCP port" behavior
// with an explicit rsyncd.conf-style listener list.
func Listeners(ls []rsyncdconfig.Listener) Option {
	return func(c *config) { c.listeners = ls }
}

// New starts a daemon in the background and arranges for it to be
// stopped when t finishes.
func New(t *testing.T, opts ...Option) *Server {
	t.Helper()

	var cfg config
	for _, o := range opts {
		o(&cfg)
	}

	listenAddr := "127.0.0.1:0"
	if len(cfg.listeners) > 0 {
		l := cfg.listeners[0]
		switch {
		case l.Rsyncd != "":
			listenAddr = l.Rsyncd
		case l.AnonSSH != "":
			t.Skip("rsynctest: anonymous-SSH daemon transport is not implemented; this build only serves the rsync:// wire protocol directly")
		default:
			t.Fatal("rsynctest: Listeners given an entry with neither Rsyncd nor AnonSSH set")
		}
	}

	srv, err := rsyncd.NewServer(cfg.modules, rsyncd.WithStderr(testWriter{t}))
	if err != nil {
		t.Fatalf("rsyncd.NewServer: %v", err)
	}

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ctx, ln); err != nil {
			t.Logf("rsyncd.Serve: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	_, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort(%s): %v", ln.Addr(), err)
	}

	return &Server{Port: port}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

// AnyRsync locates a system rsync binary to drive as a protocol peer in
// interop tests, skipping the test when none is installed.
func AnyRsync(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"rsync", "openrsync"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("rsynctest: no system rsync or openrsync binary found in PATH")
	return ""
}
