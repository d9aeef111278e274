//go:build linux || darwin

// Privilege helpers deciding whether an ownership change is permitted,
// lifted from teacher's internal/receiver/generatoruid.go (amRoot,
// inGroup) and generalized into a reusable capability check used by
// internal/metadata.
package idmap

import (
	"os"
	"os/user"
	"strconv"
)

// AmRoot reports whether the current process is running as uid 0,
// mirroring generatoruid.go's amRoot package var but exposed as a
// function so it can be recomputed in tests.
func AmRoot() bool { return os.Getuid() == 0 }

// CurrentGroups returns the set of gids the current process belongs
// to, used to decide whether an unprivileged chgrp to one of our own
// groups is permitted (spec §4.9 "Ownership").
func CurrentGroups() map[int64]bool {
	m := make(map[int64]bool)
	u, err := user.Current()
	if err != nil {
		return m
	}
	gids, err := u.GroupIds()
	if err != nil {
		return m
	}
	for _, s := range gids {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			m[v] = true
		}
	}
	return m
}

// CanChown reports whether changing a file's uid to newUID is
// permitted: only root may change ownership to an arbitrary uid.
func CanChown(amRoot bool, currentUID, newUID int64) bool {
	return amRoot && currentUID != newUID
}

// CanChgrp reports whether changing a file's gid to newGID is
// permitted: root may set any gid; an unprivileged user may only set a
// gid they themselves belong to.
func CanChgrp(amRoot bool, inGroups map[int64]bool, currentGID, newGID int64) bool {
	if currentGID == newGID {
		return false
	}
	return amRoot || inGroups[newGID]
}
