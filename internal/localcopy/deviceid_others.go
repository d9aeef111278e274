//go:build !linux && !darwin

package localcopy

import "os"

func deviceID(info os.FileInfo) (uint64, bool) {
	return 0, false
}
