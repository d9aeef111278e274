package receiver

import (
	"github.com/oferchen/oc-rsync/internal/metadata"
)

// setPerms applies the attributes carried by f to its destination path,
// replacing the teacher's planned (never retrieved) per-attribute
// setUid/setPerms/setTimes sequence with a single internal/metadata.Apply
// call (spec §4.9, C9).
func (rt *Transfer) setPerms(f *File) error {
	opts := metadata.Options{
		PreservePerms: rt.Opts.PreservePerms,
		PreserveTimes: rt.Opts.PreserveTimes,
		PreserveOwner: rt.Opts.PreserveUid,
		PreserveGroup: rt.Opts.PreserveGid,
		PreserveExec:  rt.Opts.PreserveExec,
		NumericIDs:    rt.Opts.NumericIds,
		ChmodModifiers: rt.Opts.ChmodModifiers,
		UIDMap:        rt.Opts.UIDMap,
		GIDMap:        rt.Opts.GIDMap,
	}
	local := rt.root().join(f.Name)
	followSymlink := f.Mode&0o170000 != 0o120000 // not a symlink entry
	errs := metadata.Apply(opts, local, f, followSymlink, nil)
	if len(errs) > 0 {
		// Attribute application failures are reported but not fatal to
		// the overall transfer (spec §4.9 "Ownership").
		for _, err := range errs {
			rt.Logger.Printf("setPerms %s: %v", f.Name, err)
		}
	}
	return nil
}
