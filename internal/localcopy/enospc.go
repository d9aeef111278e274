package localcopy

import (
	"errors"
	"syscall"
)

func isENOSPC(err error) bool {
	return errors.Is(err, syscall.ENOSPC)
}
