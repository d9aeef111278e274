//go:build linux || darwin

package receiver

import (
	"io/fs"
	"os"
	"syscall"

	"github.com/oferchen/oc-rsync/internal/idmap"
)

var amRoot = idmap.AmRoot()
var inGroup = idmap.CurrentGroups()

// maybeAdjustOwnership brings a basis file's ownership in line with f before it is used
// as a reconstruction source, matching upstream's generator-side
// pre-adjustment of ownership so unmodified files need not be re-sent
// purely because uid/gid differ. Final, authoritative ownership
// application for the written file happens afterward via setPerms
// (internal/metadata.Apply).
func (rt *Transfer) maybeAdjustOwnership(f *File, local string, st fs.FileInfo) (fs.FileInfo, error) {
	stt := st.Sys().(*syscall.Stat_t)

	changeUid := rt.Opts.PreserveUid &&
		amRoot &&
		int64(stt.Uid) != int64(f.UID)

	changeGid := rt.Opts.PreserveGid &&
		(amRoot || inGroup[int64(f.GID)]) &&
		int64(stt.Gid) != int64(f.GID)

	if !changeUid && !changeGid {
		return st, nil
	}

	uid := stt.Uid
	if changeUid {
		uid = uint32(f.UID)
	}
	gid := stt.Gid
	if changeGid {
		gid = uint32(f.GID)
	}
	if err := os.Lchown(local, int(uid), int(gid)); err != nil {
		return nil, err
	}
	return os.Lstat(local)
}
