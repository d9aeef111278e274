// NoopBackend is the default AclXattrBackend: it reports ErrUnsupported
// for both capabilities. Apply drops ErrUnsupported, so with this backend
// ACLs and xattrs are silently not applied; no check for the capability
// is made at session start. Platform-specific backends (e.g. a Linux
// xattr/posix-ACL implementation) replace this.
package metadata

import "github.com/oferchen/oc-rsync/internal/flist"

type NoopBackend struct{}

func (NoopBackend) ApplyACL(path string, entry *flist.Entry) error    { return ErrUnsupported }
func (NoopBackend) ApplyXattrs(path string, entry *flist.Entry) error { return ErrUnsupported }
