//go:build linux || darwin

// Ownership application for unix-like platforms, generalizing teacher's
// internal/receiver/generatoruid.go setUid (amRoot/inGroup gating,
// os.Lchown) to use internal/idmap's range-mapping and numeric-ids
// short-circuit (spec §4.9 "Ownership").
package metadata

import (
	"os"
	"syscall"

	"github.com/oferchen/oc-rsync/internal/flist"
	"github.com/oferchen/oc-rsync/internal/idmap"
)

func applyOwnership(opts Options, path string, entry *flist.Entry, st os.FileInfo) error {
	stt, ok := st.Sys().(*syscall.Stat_t)
	if !ok {
		return &Error{Action: "change ownership", Path: path, Err: errNoStatT}
	}

	wantUID := int64(entry.UID)
	wantGID := int64(entry.GID)
	if !opts.NumericIDs {
		if opts.UIDMap != nil {
			wantUID = opts.UIDMap.Apply(wantUID, idmap.KindUID)
		}
		if opts.GIDMap != nil {
			wantGID = opts.GIDMap.Apply(wantGID, idmap.KindGID)
		}
	}
	if opts.OverrideUID != nil {
		wantUID = *opts.OverrideUID
	}
	if opts.OverrideGID != nil {
		wantGID = *opts.OverrideGID
	}

	amRoot := idmap.AmRoot()
	groups := idmap.CurrentGroups()

	changeUID := opts.PreserveOwner && idmap.CanChown(amRoot, int64(stt.Uid), wantUID)
	changeGID := opts.PreserveGroup && idmap.CanChgrp(amRoot, groups, int64(stt.Gid), wantGID)
	if opts.OverrideUID != nil {
		changeUID = int64(stt.Uid) != wantUID
	}
	if opts.OverrideGID != nil {
		changeGID = int64(stt.Gid) != wantGID
	}

	if !changeUID && !changeGID {
		return nil
	}

	uid := int64(stt.Uid)
	if changeUID {
		uid = wantUID
	}
	gid := int64(stt.Gid)
	if changeGID {
		gid = wantGID
	}
	if err := os.Lchown(path, int(uid), int(gid)); err != nil {
		return &Error{Action: "change ownership", Path: path, Err: err}
	}
	return nil
}

type errNoStatTType struct{}

func (errNoStatTType) Error() string { return "metadata: os.FileInfo.Sys() is not *syscall.Stat_t" }

var errNoStatT = errNoStatTType{}
