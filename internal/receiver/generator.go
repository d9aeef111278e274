package receiver

import (
	"os"

	"github.com/oferchen/oc-rsync/internal/blocksize"
	"github.com/oferchen/oc-rsync/internal/delta"
)

const (
	modeTypeMask = 0o170000
	modeDir      = 0o040000
	modeSymlink  = 0o120000
)

// GenerateFiles is the generator half of a receiving transfer: for every
// regular file in fileList it builds a block signature against whatever
// already exists at the destination (or an empty one, if nothing does)
// and writes it to the sender, which replies with the token stream that
// RecvFiles/receiveData consumes concurrently (spec §4.3 "Receiver →
// Sender", C3). Directories and symlinks are materialized directly here,
// since they carry no file data to reconstruct.
func (rt *Transfer) GenerateFiles(fileList []*File) error {
	for _, f := range fileList {
		if err := rt.generateFile(f); err != nil {
			rt.IOErrors++
			rt.Logger.Printf("generating %s: %v", f.Name, err)
		}
	}
	return nil
}

func (rt *Transfer) generateFile(f *File) error {
	local := rt.root().join(f.Name)

	switch f.Mode & modeTypeMask {
	case modeDir:
		if rt.Opts.DryRun {
			return nil
		}
		return os.MkdirAll(local, os.FileMode(f.Mode&0o7777|0o700))
	case modeSymlink:
		if rt.Opts.DryRun || !rt.Opts.PreserveLinks {
			return nil
		}
		os.Remove(local)
		return symlink(f.LinkTarget, local)
	}

	return rt.generateRegularFile(f, local)
}

func (rt *Transfer) generateRegularFile(f *File, local string) error {
	basis, err := os.Open(local)
	var size int64
	if err == nil {
		defer basis.Close()
		if st, statErr := basis.Stat(); statErr == nil {
			size = st.Size()
			if st2, adjErr := rt.maybeAdjustOwnership(f, local, st); adjErr == nil {
				size = st2.Size()
			}
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	blockLength, checksumLength, _ := blocksize.Calculate(size, rt.Opts.Protocol, 0, 0)

	var sig *delta.FileSignature
	if basis != nil {
		sig, err = delta.GenerateSignature(basis, size, blockLength, checksumLength, rt.newStrongDigest())
		if err != nil {
			return err
		}
	} else {
		sig = &delta.FileSignature{Header: delta.SignatureHeader{BlockLength: uint32(blockLength)}}
	}

	return delta.WriteSignature(rt.Conn, sig)
}
