//go:build !linux && !darwin

package receiver

import "io/fs"

func (rt *Transfer) maybeAdjustOwnership(f *File, local string, st fs.FileInfo) (fs.FileInfo, error) {
	return st, nil
}
