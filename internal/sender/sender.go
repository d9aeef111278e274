// Package sender implements the sending side of a transfer: walking the
// requested paths into a file list, applying the exclusion filters the
// receiver sent first, transmitting that list, then for each regular file
// reading the generator's signature and replying with a delta (spec §4,
// C3/C7 producer side). New relative to the teacher slice, which never
// retrieved a sender package despite rsyncd.go and clientmaincmd.go
// constructing and calling sender.Transfer throughout; built from that
// call-site contract plus internal/delta, internal/flist and
// internal/filter.
package sender

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oferchen/oc-rsync/internal/delta"
	"github.com/oferchen/oc-rsync/internal/filter"
	"github.com/oferchen/oc-rsync/internal/flist"
	"github.com/oferchen/oc-rsync/internal/hashing"
	"github.com/oferchen/oc-rsync/internal/log"
	"github.com/oferchen/oc-rsync/internal/rsyncopts"
	"github.com/oferchen/oc-rsync/internal/rsyncstats"
	"github.com/oferchen/oc-rsync/internal/rsyncwire"
	"github.com/oferchen/oc-rsync/internal/version"
)

// FilterList is the set of filter rules the receiver transmits before the
// sender starts walking (spec §4.6, "receiver-supplied exclusion list").
// openrsync and plain receivers with no filters configured send an empty
// list.
type FilterList struct {
	Filters []string
}

// RecvFilterList reads a sequence of length-prefixed filter rule strings
// terminated by a zero-length entry, rsync's wire convention for
// transmitting the --filter/--exclude rule set from receiver to sender.
func RecvFilterList(c *rsyncwire.Conn) (*FilterList, error) {
	var fl FilterList
	for {
		n, err := c.ReadInt32()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(c.Reader, buf); err != nil {
			return nil, err
		}
		fl.Filters = append(fl.Filters, string(buf))
	}
	return &fl, nil
}

// program compiles the receiver-supplied rule strings into a
// internal/filter.Program, one rule per line using the textual grammar.
func (fl *FilterList) program() (*filter.Program, error) {
	if fl == nil || len(fl.Filters) == 0 {
		return filter.New(nil), nil
	}
	rules, err := filter.ParseRules(strings.NewReader(strings.Join(fl.Filters, "\n")), filter.SideSender)
	if err != nil {
		return nil, err
	}
	return filter.New(rules), nil
}

// Transfer holds the state needed to walk, list, and serve one
// connection's worth of source paths.
type Transfer struct {
	Logger log.Logger
	Opts   *rsyncopts.Options
	Conn   *rsyncwire.Conn
	Seed   int32
}

func (st *Transfer) newStrongDigest() func() hashing.Digester {
	name := hashing.ForProtocol(version.ProtocolVersion)
	if ctor := hashing.ByName(name); ctor != nil {
		return ctor
	}
	return hashing.NewMD4
}

// Do walks root/paths into a file list, sends it, then answers each
// regular file's generator signature with a delta (spec §4.3/§4.7).
func (st *Transfer) Do(crd *rsyncwire.CountingReader, cwr *rsyncwire.CountingWriter, root string, paths []string, excl *FilterList) (*rsyncstats.TransferStats, error) {
	prog, err := excl.program()
	if err != nil {
		return nil, err
	}

	entries, absPaths, err := st.buildFileList(root, paths, prog)
	if err != nil {
		return nil, err
	}

	codec := flist.NewCodec(version.ProtocolVersion, st.Opts.PreserveUid(), st.Opts.PreserveGid())
	if err := codec.EncodeList(st.Conn, entries); err != nil {
		return nil, err
	}

	stats := &rsyncstats.TransferStats{FilesTotal: len(entries)}

	for i, e := range entries {
		if e.Mode&modeTypeMask != 0o100000 { // not a regular file
			continue
		}
		if err := st.Conn.WriteInt32(int32(i)); err != nil {
			return nil, err
		}
		sig, err := delta.ReadSignature(st.Conn)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(absPaths[i])
		if err != nil {
			return nil, err
		}
		st2, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, err
		}
		err = delta.SendDelta(st.Conn, f, st2.Size(), sig, st.newStrongDigest(), uint32(st.Seed))
		f.Close()
		if err != nil {
			return nil, err
		}
		stats.FilesTransferred++
		stats.Size += st2.Size()
	}

	// Two phase-terminator markers: receiver.RecvFiles treats the first
	// -1 as an end-of-phase marker and the second as end-of-stream.
	if err := st.Conn.WriteInt32(-1); err != nil {
		return nil, err
	}
	if err := st.Conn.WriteInt32(-1); err != nil {
		return nil, err
	}

	if err := st.Conn.WriteInt64(crd.Counter); err != nil {
		return nil, err
	}
	if err := st.Conn.WriteInt64(cwr.Counter); err != nil {
		return nil, err
	}
	if err := st.Conn.WriteInt64(stats.Size); err != nil {
		return nil, err
	}

	return stats, nil
}

const modeTypeMask = 0o170000

// buildFileList walks every requested path under root, applying prog to
// decide inclusion, and returns the encoded entries alongside their
// absolute filesystem paths (index-aligned).
func (st *Transfer) buildFileList(root string, paths []string, prog *filter.Program) ([]*flist.Entry, []string, error) {
	var entries []*flist.Entry
	var abs []string

	for _, p := range paths {
		base := filepath.Join(root, p)
		err := filepath.Walk(base, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if rel == "." {
				rel = "."
			}

			if prog.Match(rel, info.IsDir(), filter.SideSender) == filter.DecisionExclude {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			e := &flist.Entry{
				Name:    rel,
				Mode:    uint32(info.Mode().Perm()),
				Size:    info.Size(),
				ModTime: info.ModTime().Unix(),
			}
			switch {
			case info.IsDir():
				e.Mode |= 0o040000
			case info.Mode()&os.ModeSymlink != 0:
				e.Mode |= 0o120000
				target, err := os.Readlink(path)
				if err != nil {
					return err
				}
				e.LinkTarget = target
			default:
				e.Mode |= 0o100000
			}

			entries = append(entries, e)
			abs = append(abs, path)
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
	}

	return entries, abs, nil
}
