package receiver

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/oferchen/oc-rsync/internal/delta"
	"github.com/oferchen/oc-rsync/internal/hashing"
)

// rsync/receiver.c:recv_files
func (rt *Transfer) RecvFiles(fileList []*File) error {
	phase := 0
	for {
		idx, err := rt.Conn.ReadInt32()
		if err != nil {
			return err
		}
		if idx == -1 {
			if phase == 0 {
				phase++
				if rt.Opts.Verbose { // TODO: DebugGTE(RECV, 1)
					rt.Logger.Printf("recvFiles phase=%d", phase)
				}
				continue
			}
			break
		}
		if rt.Opts.Verbose { // TODO: DebugGTE(RECV, 1)
			rt.Logger.Printf("receiving file idx=%d: %+v", idx, fileList[idx])
		}
		if err := rt.recvFile1(fileList[idx]); err != nil {
			return err
		}
	}
	if rt.Opts.Verbose { // TODO: DebugGTE(RECV, 1)
		rt.Logger.Printf("recvFiles finished")
	}
	return nil
}

func (rt *Transfer) recvFile1(f *File) error {
	if rt.Opts.DryRun {
		if !rt.Opts.Server {
			fmt.Fprintln(rt.Env.Stdout, f.Name)
		}
		return nil
	}

	localFile, err := rt.openLocalFile(f)
	if err != nil && !os.IsNotExist(err) {
		rt.Logger.Printf("opening local file failed, continuing: %v", err)
	}
	if localFile != nil {
		defer localFile.Close()
	}
	if err := rt.receiveData(f, localFile); err != nil {
		return err
	}
	return nil
}

func (rt *Transfer) openLocalFile(f *File) (*os.File, error) {
	in, err := rt.root().Open(f.Name)
	if err != nil {
		return nil, err
	}

	st, err := in.Stat()
	if err != nil {
		in.Close()
		return nil, err
	}

	if st.IsDir() {
		in.Close()
		return nil, fmt.Errorf("%s is a directory", filepath.Join(rt.Dest, f.Name))
	}

	if !st.Mode().IsRegular() {
		in.Close()
		return nil, nil
	}

	if !rt.Opts.PreservePerms {
		// If the file exists already and we are not preserving permissions,
		// then act as though the remote sent us the existing permissions:
		f.Mode = uint32(st.Mode().Perm())
	}

	return in, nil
}

// newStrongDigest picks the strong-checksum constructor for the
// negotiated protocol, matching hashing.ForProtocol's MD4/MD5 split.
func (rt *Transfer) newStrongDigest() func() hashing.Digester {
	name := hashing.ForProtocol(rt.Opts.Protocol)
	if ctor := hashing.ByName(name); ctor != nil {
		return ctor
	}
	return hashing.NewMD4
}

// rsync/receiver.c:receive_data
func (rt *Transfer) receiveData(f *File, localFile *os.File) error {
	header, err := delta.ReadSignature(rt.Conn)
	if err != nil {
		return err
	}

	local := filepath.Join(rt.Dest, f.Name)
	rt.Logger.Printf("creating %s", local)
	out, err := newPendingFile(local)
	if err != nil {
		return err
	}
	defer out.Cleanup()

	var basis io.ReaderAt
	if localFile != nil {
		basis = localFile
	}

	if err := delta.Reconstruct(rt.Conn, basis, out, header.Header, rt.newStrongDigest(), uint32(rt.Seed), f.Name); err != nil {
		return err
	}

	if err := out.CloseAtomicallyReplace(); err != nil {
		return err
	}

	if err := rt.setPerms(f); err != nil {
		return err
	}

	return nil
}
