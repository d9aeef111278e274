// Package flist implements the file-list codec (spec §4.7, C7): classic
// (protocol < 30, sent up-front) and incremental (>= 30, interleaved)
// modes, encoding each entry as a bit-flag byte describing which fields
// changed relative to the previous entry. Grounded on the byte-level
// sketch in the historical internal/rsyncd/rsyncd.go (sendFileList) and
// the File fields implied by internal/receiver/receiver.go's consumers
// (recvFile1, setPerms, generatoruid.go).
package flist

import (
	"fmt"
	"strings"

	"github.com/oferchen/oc-rsync/internal/rsyncwire"
)

// Entry flag bits, matching upstream's XMIT_* constants (spec §3 "File
// entry", §4.7 bit-flag byte).
const (
	FlagTopLevel        = 1 << 0
	FlagSameMode        = 1 << 1
	FlagExtendedFlags   = 1 << 2
	FlagSameUID         = 1 << 3
	FlagSameGID         = 1 << 4
	FlagSameName        = 1 << 5 // common prefix reused from previous entry
	FlagLongName        = 1 << 6
	FlagSameTime        = 1 << 7

	// Extended flags (second byte, protocol >= 28), used when
	// FlagExtendedFlags is set.
	FlagHardlinked  = 1 << 0
	FlagHasDevice   = 1 << 1
	FlagHasLinkTarget = 1 << 2
	FlagHasNsec     = 1 << 3
)

// modeIFDIR / modeIFREG / modeIFLNK mirror the historical prototype's
// inline S_IF* constants (bits/stat.h), needed because Go's os.FileMode
// bits don't match POSIX mode_t on the wire.
const (
	modeIFDIR = 0o040000
	modeIFREG = 0o100000
	modeIFLNK = 0o120000
)

// Entry is one file-list record (spec §3 "File entry").
type Entry struct {
	Name       string // relative path, "." for the transfer root
	Mode       uint32 // POSIX mode_t, including S_IF* type bits
	Size       int64
	ModTime    int64  // seconds
	ModTimeNsec uint32 // only meaningful when protocol carries nanoseconds
	UID        int32
	GID        int32
	LinkTarget string // symlinks only
	DevMajor   uint32 // device files only
	DevMinor   uint32
	HardlinkGroup int64 // -1 if not part of a hardlink group

	TopLevel bool
}

func (e *Entry) isDir() bool  { return e.Mode&0o170000 == modeIFDIR }
func (e *Entry) isLink() bool { return e.Mode&0o170000 == modeIFLNK }
func (e *Entry) hasDevice() bool {
	return e.Mode&0o170000 == 0o020000 || e.Mode&0o170000 == 0o060000 // char/block device
}

// Codec encodes/decodes a sequence of entries against a transport,
// tracking the previous entry for delta (name-prefix, mode, uid/gid,
// time) reuse.
type Codec struct {
	Protocol    int
	HasNsec     bool // compat flag: nanosecond timestamps present
	PreserveUID bool
	PreserveGID bool

	prevName string
	prevMode uint32
	prevUID  int32
	prevGID  int32
	prevTime int64
	havePrev bool
}

// NewCodec constructs a Codec for the given negotiated protocol.
func NewCodec(protocol int, preserveUID, preserveGID bool) *Codec {
	return &Codec{Protocol: protocol, PreserveUID: preserveUID, PreserveGID: preserveGID}
}

// EncodeEntry writes one entry's bit-flag byte and changed fields.
func (c *Codec) EncodeEntry(w *rsyncwire.Conn, e *Entry) error {
	var flags byte
	flags |= FlagLongName // this codec only ever emits long names

	if e.TopLevel {
		flags |= FlagTopLevel
	}
	sameMode := c.havePrev && e.Mode == c.prevMode
	if sameMode {
		flags |= FlagSameMode
	}
	sameUID := c.havePrev && c.PreserveUID && e.UID == c.prevUID
	if sameUID {
		flags |= FlagSameUID
	}
	sameGID := c.havePrev && c.PreserveGID && e.GID == c.prevGID
	if sameGID {
		flags |= FlagSameGID
	}
	sameTime := c.havePrev && e.ModTime == c.prevTime
	if sameTime {
		flags |= FlagSameTime
	}

	commonLen := 0
	if c.havePrev {
		commonLen = commonPrefixLen(c.prevName, e.Name)
		if commonLen > 255 {
			commonLen = 255
		}
		if commonLen > 0 {
			flags |= FlagSameName
		}
	}

	extended := byte(0)
	if e.HardlinkGroup >= 0 {
		extended |= FlagHardlinked
	}
	if e.hasDevice() {
		extended |= FlagHasDevice
	}
	if e.isLink() {
		extended |= FlagHasLinkTarget
	}
	if c.HasNsec && e.ModTimeNsec != 0 {
		extended |= FlagHasNsec
	}
	if extended != 0 {
		flags |= FlagExtendedFlags
	}

	if err := w.WriteByte(flags); err != nil {
		return err
	}
	if flags&FlagExtendedFlags != 0 {
		if err := w.WriteByte(extended); err != nil {
			return err
		}
	}

	suffix := e.Name
	if flags&FlagSameName != 0 {
		if err := w.WriteByte(byte(commonLen)); err != nil {
			return err
		}
		suffix = e.Name[commonLen:]
	}
	if err := w.WriteInt32(int32(len(suffix))); err != nil {
		return err
	}
	if _, err := w.Writer.Write([]byte(suffix)); err != nil {
		return err
	}

	if err := w.WriteInt64(e.Size); err != nil {
		return err
	}
	if flags&FlagSameTime == 0 {
		if err := w.WriteInt64(e.ModTime); err != nil {
			return err
		}
	}
	if extended&FlagHasNsec != 0 {
		if err := w.WriteInt32(int32(e.ModTimeNsec)); err != nil {
			return err
		}
	}
	if flags&FlagSameMode == 0 {
		if err := w.WriteInt32(int32(e.Mode)); err != nil {
			return err
		}
	}
	if c.PreserveUID && flags&FlagSameUID == 0 {
		if err := w.WriteInt32(e.UID); err != nil {
			return err
		}
	}
	if c.PreserveGID && flags&FlagSameGID == 0 {
		if err := w.WriteInt32(e.GID); err != nil {
			return err
		}
	}
	if extended&FlagHasDevice != 0 {
		if err := w.WriteInt32(int32(e.DevMajor)); err != nil {
			return err
		}
		if err := w.WriteInt32(int32(e.DevMinor)); err != nil {
			return err
		}
	}
	if extended&FlagHasLinkTarget != 0 {
		if err := w.WriteInt32(int32(len(e.LinkTarget))); err != nil {
			return err
		}
		if _, err := w.Writer.Write([]byte(e.LinkTarget)); err != nil {
			return err
		}
	}
	if extended&FlagHardlinked != 0 {
		if err := w.WriteInt64(e.HardlinkGroup); err != nil {
			return err
		}
	}

	c.prevName = e.Name
	c.prevMode = e.Mode
	c.prevUID = e.UID
	c.prevGID = e.GID
	c.prevTime = e.ModTime
	c.havePrev = true
	return nil
}

// DecodeEntry reads one entry. A leading zero byte signals end-of-list
// and is reported via ok == false.
func (c *Codec) DecodeEntry(r *rsyncwire.Conn) (e *Entry, ok bool, err error) {
	flags, err := r.ReadByte()
	if err != nil {
		return nil, false, err
	}
	if flags == 0 {
		return nil, false, nil
	}

	var extended byte
	if flags&FlagExtendedFlags != 0 {
		extended, err = r.ReadByte()
		if err != nil {
			return nil, false, err
		}
	}

	name := c.prevName
	commonLen := 0
	if flags&FlagSameName != 0 {
		b, err := r.ReadByte()
		if err != nil {
			return nil, false, err
		}
		commonLen = int(b)
	}
	suffixLen, err := r.ReadInt32()
	if err != nil {
		return nil, false, err
	}
	suffixBuf := make([]byte, suffixLen)
	if suffixLen > 0 {
		if _, err := readFull(r, suffixBuf); err != nil {
			return nil, false, err
		}
	}
	if commonLen > len(name) {
		return nil, false, fmt.Errorf("flist: common prefix length %d exceeds previous name length %d", commonLen, len(name))
	}
	fullName := name[:commonLen] + string(suffixBuf)

	e = &Entry{Name: fullName, TopLevel: flags&FlagTopLevel != 0, HardlinkGroup: -1}

	size, err := r.ReadInt64()
	if err != nil {
		return nil, false, err
	}
	e.Size = size

	if flags&FlagSameTime != 0 {
		e.ModTime = c.prevTime
	} else {
		t, err := r.ReadInt64()
		if err != nil {
			return nil, false, err
		}
		e.ModTime = t
	}
	if extended&FlagHasNsec != 0 {
		nsec, err := r.ReadInt32()
		if err != nil {
			return nil, false, err
		}
		e.ModTimeNsec = uint32(nsec)
	}

	if flags&FlagSameMode != 0 {
		e.Mode = c.prevMode
	} else {
		m, err := r.ReadInt32()
		if err != nil {
			return nil, false, err
		}
		e.Mode = uint32(m)
	}

	if c.PreserveUID {
		if flags&FlagSameUID != 0 {
			e.UID = c.prevUID
		} else {
			uid, err := r.ReadInt32()
			if err != nil {
				return nil, false, err
			}
			e.UID = uid
		}
	}
	if c.PreserveGID {
		if flags&FlagSameGID != 0 {
			e.GID = c.prevGID
		} else {
			gid, err := r.ReadInt32()
			if err != nil {
				return nil, false, err
			}
			e.GID = gid
		}
	}

	if extended&FlagHasDevice != 0 {
		major, err := r.ReadInt32()
		if err != nil {
			return nil, false, err
		}
		minor, err := r.ReadInt32()
		if err != nil {
			return nil, false, err
		}
		e.DevMajor, e.DevMinor = uint32(major), uint32(minor)
	}
	if extended&FlagHasLinkTarget != 0 {
		linkLen, err := r.ReadInt32()
		if err != nil {
			return nil, false, err
		}
		linkBuf := make([]byte, linkLen)
		if linkLen > 0 {
			if _, err := readFull(r, linkBuf); err != nil {
				return nil, false, err
			}
		}
		e.LinkTarget = string(linkBuf)
	}
	if extended&FlagHardlinked != 0 {
		g, err := r.ReadInt64()
		if err != nil {
			return nil, false, err
		}
		e.HardlinkGroup = g
	}

	c.prevName = e.Name
	c.prevMode = e.Mode
	c.prevUID = e.UID
	c.prevGID = e.GID
	c.prevTime = e.ModTime
	c.havePrev = true
	return e, true, nil
}

// EncodeList writes every entry in order followed by the end-of-list
// sentinel (classic-mode usage; incremental mode calls EncodeEntry
// directly per batch and omits the sentinel until the final batch).
func (c *Codec) EncodeList(w *rsyncwire.Conn, entries []*Entry) error {
	for _, e := range entries {
		if err := c.EncodeEntry(w, e); err != nil {
			return err
		}
	}
	return w.WriteByte(0)
}

// DecodeList reads entries until the end-of-list sentinel.
func (c *Codec) DecodeList(r *rsyncwire.Conn) ([]*Entry, error) {
	var out []*Entry
	for {
		e, ok, err := c.DecodeEntry(r)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, e)
	}
}

func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func readFull(r *rsyncwire.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		b, err := r.ReadByte()
		if err != nil {
			return total, err
		}
		buf[total] = b
		total++
	}
	return total, nil
}

// TrimRoot strips a root prefix from an absolute path the way the
// historical prototype did ("." for the root itself, otherwise
// root+"/"-relative), used by the tree walker building entries for
// EncodeList.
func TrimRoot(root, path string) (name string, topLevel bool) {
	if path == root {
		return ".", true
	}
	return strings.TrimPrefix(path, root+"/"), false
}
