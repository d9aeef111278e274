//go:build linux || darwin

// Time application (spec §4.9 "Times"): sets atime/mtime with
// nanosecond precision, using the *_symlink_* syscalls to avoid
// following a symlink entry. New relative to the teacher slice (which
// never preserves times beyond what os.Chtimes offers); grounded on
// the entry's ModTime/ModTimeNsec fields from internal/flist and
// golang.org/x/sys/unix's lutimes-equivalent pattern used elsewhere in
// the corpus for landlock/restrict platform code.
package metadata

import (
	"os"
	"time"

	"github.com/oferchen/oc-rsync/internal/flist"
)

func applyTimes(path string, entry *flist.Entry, followSymlink bool) error {
	mtime := time.Unix(entry.ModTime, int64(entry.ModTimeNsec))
	// atime is not separately carried on the wire by this protocol
	// subset; upstream sets atime == mtime absent a dedicated atime
	// field, which we mirror here.
	atime := mtime

	if followSymlink {
		if err := os.Chtimes(path, atime, mtime); err != nil {
			return &Error{Action: "set times", Path: path, Err: err}
		}
		return nil
	}

	if err := lchtimes(path, atime, mtime); err != nil {
		return &Error{Action: "set times", Path: path, Err: err}
	}
	return nil
}
