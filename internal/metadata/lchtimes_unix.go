//go:build linux || darwin

package metadata

import (
	"time"

	"golang.org/x/sys/unix"
)

// lchtimes sets atime/mtime on path without following a trailing
// symlink, via UtimesNanoAt(AT_FDCWD, path, ..., AT_SYMLINK_NOFOLLOW) —
// the symlink-safe equivalent of os.Chtimes, which only exposes the
// follow-symlink syscall on these platforms (spec §4.9 "Symlink times
// use the *_symlink_* syscalls").
func lchtimes(path string, atime, mtime time.Time) error {
	ts := []unix.Timespec{
		unix.NsecToTimespec(atime.UnixNano()),
		unix.NsecToTimespec(mtime.UnixNano()),
	}
	return unix.UtimesNanoAt(unix.AT_FDCWD, path, ts, unix.AT_SYMLINK_NOFOLLOW)
}
