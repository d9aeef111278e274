//go:build linux || darwin

package localcopy

import (
	"os"
	"syscall"
)

func ownerIDs(info os.FileInfo) (uid, gid int32, ok bool) {
	st, isStatT := info.Sys().(*syscall.Stat_t)
	if !isStatT {
		return 0, 0, false
	}
	return int32(st.Uid), int32(st.Gid), true
}
