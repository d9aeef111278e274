package receiver

import (
	"github.com/oferchen/oc-rsync/internal/flist"
)

// ReceiveFileList reads the negotiated file list off the wire (spec §4.7,
// C7), replacing the ad hoc byte-level sketch in the historical
// internal/rsyncd/rsyncd.go prototype with internal/flist's bit-flag delta
// codec.
func (rt *Transfer) ReceiveFileList() ([]*File, error) {
	codec := flist.NewCodec(rt.Opts.Protocol, rt.Opts.PreserveUid, rt.Opts.PreserveGid)
	return codec.DecodeList(rt.Conn)
}
