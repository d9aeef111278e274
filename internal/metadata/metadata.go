// Package metadata applies preserved attributes from a file-list entry
// to a destination path after a successful data write (spec §4.9, C9).
// Generalizes teacher's internal/receiver/generatoruid.go (setUid,
// amRoot/inGroup privilege checks) into ownership, permission, and
// time application plus an ACL/xattr capability seam.
package metadata

import (
	"fmt"
	"os"

	"github.com/oferchen/oc-rsync/internal/flist"
	"github.com/oferchen/oc-rsync/internal/idmap"
)

// Options selects which attributes to apply, mirroring the
// internal/rsyncopts flags that gate each step (spec §4.9).
type Options struct {
	PreservePerms  bool
	PreserveTimes  bool
	PreserveOwner  bool
	PreserveGroup  bool
	PreserveExec   bool // --executability when --perms is not set
	NumericIDs     bool
	ChmodModifiers []ChmodModifier
	UIDMap         *idmap.Map
	GIDMap         *idmap.Map
	OverrideUID    *int64
	OverrideGID    *int64
}

// AclXattrBackend is the thin collaborator interface for platform ACL
// and extended-attribute support (spec §6). A platform lacking support
// returns ErrUnsupported, which Apply skips without reporting it; the
// capability is not checked at session start.
type AclXattrBackend interface {
	ApplyACL(path string, entry *flist.Entry) error
	ApplyXattrs(path string, entry *flist.Entry) error
}

// ErrUnsupported is returned by an AclXattrBackend when the platform
// cannot provide the requested capability.
var ErrUnsupported = fmt.Errorf("metadata: ACL/xattr support unavailable on this platform")

// Error wraps a per-step failure with the attribute and path involved,
// matching spec §7's "action verb + path + underlying error" shape.
// Errors here are never fatal to the overall transfer (spec §4.9
// "Ownership").
type Error struct {
	Action string
	Path   string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Action, e.Path, e.Err)
}
func (e *Error) Unwrap() error { return e.Err }

// Apply applies every configured attribute from entry to path, in the
// order ownership, permissions, times, ACL, xattrs (spec §4.9 order:
// chown/chmod before time so a mode change doesn't revert after
// ApplyACL trims bits on some platforms). followSymlink is false for
// symlink entries, whose ownership/time changes must not follow the
// link.
func Apply(opts Options, path string, entry *flist.Entry, followSymlink bool, backend AclXattrBackend) []error {
	var errs []error

	st, statErr := os.Lstat(path)
	if statErr != nil {
		return []error{&Error{Action: "stat", Path: path, Err: statErr}}
	}

	if opts.PreserveOwner || opts.PreserveGroup || opts.OverrideUID != nil || opts.OverrideGID != nil {
		if err := applyOwnership(opts, path, entry, st); err != nil {
			errs = append(errs, err)
		}
	}

	if opts.PreservePerms || len(opts.ChmodModifiers) > 0 || opts.PreserveExec {
		if err := applyPerms(opts, path, entry, st); err != nil {
			errs = append(errs, err)
		}
	}

	if opts.PreserveTimes {
		if err := applyTimes(path, entry, followSymlink); err != nil {
			errs = append(errs, err)
		}
	}

	if backend != nil {
		if err := backend.ApplyACL(path, entry); err != nil && err != ErrUnsupported {
			errs = append(errs, &Error{Action: "apply ACL", Path: path, Err: err})
		}
		if err := backend.ApplyXattrs(path, entry); err != nil && err != ErrUnsupported {
			errs = append(errs, &Error{Action: "apply xattrs", Path: path, Err: err})
		}
	}

	return errs
}

func applyPerms(opts Options, path string, entry *flist.Entry, st os.FileInfo) error {
	var base os.FileMode
	if opts.PreservePerms {
		base = os.FileMode(entry.Mode & 0o7777)
	} else {
		base = st.Mode()
		if opts.PreserveExec && st.Mode().IsRegular() {
			srcExec := os.FileMode(entry.Mode&0o7777) & 0o111
			base = (base &^ 0o111) | srcExec
		}
	}

	if len(opts.ChmodModifiers) > 0 {
		base = ApplyChmod(base, opts.ChmodModifiers, st.IsDir())
	}

	if err := os.Chmod(path, base.Perm()); err != nil {
		return &Error{Action: "set permissions", Path: path, Err: err}
	}
	return nil
}
