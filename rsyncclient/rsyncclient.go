// Package rsyncclient exposes the rsync client protocol as a library,
// letting a caller supply its own io.ReadWriter to an already-established
// connection (a subprocess's stdio, a pipe to an in-process server, a
// network socket already past the daemon handshake) rather than going
// through the rsync command-line entry point. Generalizes the client half
// of internal/maincmd/clientmaincmd.go's clientRun into a public,
// reusable type.
package rsyncclient

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/oferchen/oc-rsync/internal/bwlimit"
	"github.com/oferchen/oc-rsync/internal/log"
	"github.com/oferchen/oc-rsync/internal/receiver"
	"github.com/oferchen/oc-rsync/internal/rsyncopts"
	"github.com/oferchen/oc-rsync/internal/rsyncos"
	"github.com/oferchen/oc-rsync/internal/rsyncwire"
	"github.com/oferchen/oc-rsync/internal/sender"
	"github.com/oferchen/oc-rsync/internal/version"
)

// Client runs one side (sender or receiver) of the rsync wire protocol
// against a caller-supplied connection.
type Client struct {
	opts   *rsyncopts.Options
	stderr io.Writer
}

// Option configures a Client at construction time.
type Option func(*config)

type config struct {
	sender bool
	stderr io.Writer
}

// WithSender configures the client to run as the sending side of the
// transfer (the default is to receive).
func WithSender() Option {
	return func(c *config) { c.sender = true }
}

// WithStderr redirects diagnostic logging emitted while the transfer runs.
// Defaults to os.Stderr.
func WithStderr(w io.Writer) Option {
	return func(c *config) { c.stderr = w }
}

// New parses args as an rsync(1) command line (the part after "rsync"
// itself, e.g. {"-av", "--delete"}) and returns a Client configured
// accordingly.
func New(args []string, opts ...Option) (*Client, error) {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.stderr == nil {
		cfg.stderr = os.Stderr
	}

	pc, err := rsyncopts.ParseArguments(&rsyncos.Env{Stderr: cfg.stderr}, args)
	if err != nil {
		return nil, fmt.Errorf("rsyncclient: parsing arguments: %w", err)
	}
	if cfg.sender {
		pc.Options.SetSender()
	}

	return &Client{opts: pc.Options, stderr: cfg.stderr}, nil
}

// readWriter combines a separate Reader and Writer into one io.ReadWriter,
// used to splice --bwlimit-throttled halves back together.
type readWriter struct {
	io.Reader
	io.Writer
}

// Run negotiates the protocol on conn and transfers paths, acting as
// sender or receiver depending on how the Client was constructed.
// Exactly one path is currently supported, matching upstream's
// single-source invariant for a direct (non-daemon) client connection.
func (cl *Client) Run(ctx context.Context, conn io.ReadWriter, paths []string) error {
	if len(paths) != 1 {
		return fmt.Errorf("rsyncclient: expected exactly one path, got %q", paths)
	}

	var rw io.ReadWriter = conn
	if bps := cl.opts.BwLimitBytesPerSec(); bps > 0 {
		lim := bwlimit.New(bps)
		rw = &readWriter{
			Reader: bwlimit.NewReader(ctx, conn, lim),
			Writer: bwlimit.NewWriter(ctx, conn, lim),
		}
	}

	crd := &rsyncwire.CountingReader{R: rw}
	cwr := &rsyncwire.CountingWriter{W: rw}
	c := &rsyncwire.Conn{
		Reader: crd,
		Writer: cwr,
	}

	if err := c.WriteInt32(version.ProtocolVersion); err != nil {
		return err
	}
	if _, err := c.ReadInt32(); err != nil {
		return fmt.Errorf("rsyncclient: reading remote protocol version: %w", err)
	}

	seed, err := c.ReadInt32()
	if err != nil {
		return fmt.Errorf("rsyncclient: reading checksum seed: %w", err)
	}

	mrd := &rsyncwire.MultiplexReader{Reader: rw}
	// TODO: rearchitect such that our buffer can be smaller than the
	// largest rsync message size.
	c.Reader = bufio.NewReaderSize(mrd, 256*1024)

	if cl.opts.Sender() {
		return cl.runSender(c, crd, cwr, seed, paths[0])
	}
	return cl.runReceiver(c, seed, paths[0])
}

func (cl *Client) runSender(c *rsyncwire.Conn, crd *rsyncwire.CountingReader, cwr *rsyncwire.CountingWriter, seed int32, src string) error {
	st := &sender.Transfer{
		Logger: log.New(cl.stderr),
		Opts:   cl.opts,
		Conn:   c,
		Seed:   seed,
	}

	exclusionList, err := sender.RecvFilterList(c)
	if err != nil {
		return err
	}

	root := filepath.Dir(filepath.Clean(src))
	name := filepath.Base(filepath.Clean(src))
	_, err = st.Do(crd, cwr, root, []string{name}, exclusionList)
	return err
}

func (cl *Client) runReceiver(c *rsyncwire.Conn, seed int32, dest string) error {
	opts := cl.opts
	rt := &receiver.Transfer{
		Logger: log.New(cl.stderr),
		Opts: &receiver.TransferOpts{
			Verbose: opts.Verbose(),
			DryRun:  opts.DryRun(),

			DeleteMode:       opts.DeleteMode(),
			PreserveGid:      opts.PreserveGid(),
			PreserveUid:      opts.PreserveUid(),
			PreserveLinks:    opts.PreserveLinks(),
			PreservePerms:    opts.PreservePerms(),
			PreserveDevices:  opts.PreserveDevices(),
			PreserveSpecials: opts.PreserveSpecials(),
			PreserveTimes:    opts.PreserveMTimes(),
			Protocol:         int(version.ProtocolVersion),
		},
		Dest: dest,
		Env:  rsyncos.Std{Stderr: cl.stderr},
		Conn: c,
		Seed: seed,
	}

	// The client always sends an (empty, for now) exclusion list; the
	// server always receives one.
	const exclusionListEnd = 0
	if err := c.WriteInt32(exclusionListEnd); err != nil {
		return err
	}

	fileList, err := rt.ReceiveFileList()
	if err != nil {
		return err
	}

	_, err = rt.Do(c, fileList, false)
	return err
}
