//go:build !linux && !darwin

package maincmd

import "github.com/oferchen/oc-rsync/internal/rsyncos"

func dropPrivileges(osenv *rsyncos.Env) error {
	return nil
}
