// Package receiver implements the receiving side of a transfer: receiving
// the file list, running the generator (signature generation against the
// destination's existing files) and the receiver (token-stream
// reconstruction) concurrently, and applying preserved metadata once a
// file's data has landed (spec §4, C7/C3/C9 consumer). Generalizes the
// teacher's do.go/receiver.go/generator*.go sketches, which referenced a
// Transfer/File/TransferOpts contract that was never defined in the
// retrieved slice, onto the internal/flist, internal/delta and
// internal/metadata packages built for this implementation.
package receiver

import (
	"os"

	"github.com/oferchen/oc-rsync/internal/flist"
	"github.com/oferchen/oc-rsync/internal/idmap"
	"github.com/oferchen/oc-rsync/internal/log"
	"github.com/oferchen/oc-rsync/internal/metadata"
	"github.com/oferchen/oc-rsync/internal/rsyncos"
	"github.com/oferchen/oc-rsync/internal/rsyncwire"
)

// File is one entry of the negotiated file list, as consumed by the
// generator and receiver loops.
type File = flist.Entry

// TransferOpts selects which behaviors and attributes this transfer
// applies, mirroring the subset of internal/rsyncopts.Options that
// handleConnReceiver/handleConnSender plumb through today.
type TransferOpts struct {
	DryRun  bool
	Server  bool
	Verbose bool

	DeleteMode       bool
	PreserveUid      bool
	PreserveGid      bool
	PreserveLinks    bool
	PreservePerms    bool
	PreserveDevices  bool
	PreserveSpecials bool
	PreserveTimes    bool
	PreserveExec     bool
	NumericIds       bool

	Protocol int

	ChmodModifiers []metadata.ChmodModifier
	UIDMap         *idmap.Map
	GIDMap         *idmap.Map
}

// Transfer holds the state shared by the generator and receiver goroutines
// for one connection's worth of work.
type Transfer struct {
	Logger log.Logger
	Opts   *TransferOpts
	Dest   string
	Env    rsyncos.Std
	Conn   *rsyncwire.Conn
	Seed   int32

	// IOErrors counts non-fatal I/O errors encountered so far; a non-zero
	// count suppresses file deletion (spec §4.9 "never delete after a
	// partial failure").
	IOErrors int

	// destRoot is created lazily against Dest the first time a file is
	// looked up, mirroring the teacher's intended os.Root-scoped access
	// (not yet stable in the Go standard library at the time this was
	// written; falls back to plain path joins rooted at Dest).
	destRoot *destRoot
}

func (rt *Transfer) root() *destRoot {
	if rt.destRoot == nil {
		rt.destRoot = &destRoot{base: rt.Dest}
	}
	return rt.destRoot
}

// destRoot scopes file access under Dest, the way os.Root will once it is
// available on every platform this targets.
type destRoot struct {
	base string
}

func (d *destRoot) join(name string) string {
	if name == "." || name == "" {
		return d.base
	}
	return d.base + string(os.PathSeparator) + name
}

func (d *destRoot) Open(name string) (*os.File, error) {
	return os.Open(d.join(name))
}

func (d *destRoot) Lstat(name string) (os.FileInfo, error) {
	return os.Lstat(d.join(name))
}
