// Package delta implements the signature and delta codec (spec §4.3,
// C3): receiver-side block signature generation, sender-side token
// generation against a rolling-checksum index, and receiver-side
// reconstruction against a basis file. Generalized from
// internal/receiver/receiver.go's receiveData (token sign convention,
// md4-seeded whole-file digest, basis-file ReadAt pattern) to also cover
// the sender side, which the retrieved teacher slice never implements.
package delta

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/oferchen/oc-rsync/internal/checksum"
	"github.com/oferchen/oc-rsync/internal/hashing"
	"github.com/oferchen/oc-rsync/internal/rsyncwire"
)

// SignatureHeader is the per-file signature preamble (spec §3 "Signature
// header"). A file absent at the receiver sends BlockCount 0 with
// ChecksumLength 0 and Remainder 0, but BlockLength still carries the
// block length the sender should use.
type SignatureHeader struct {
	BlockCount     uint32
	BlockLength    uint32
	ChecksumLength uint32
	Remainder      uint32
}

// BlockSignature is one block's (rolling, strong) pair plus its 0-based
// index within the file.
type BlockSignature struct {
	Index   uint32
	Rolling uint32
	Strong  []byte
}

// FileSignature is a header plus its block signatures.
type FileSignature struct {
	Header SignatureHeader
	Blocks []BlockSignature
}

// GenerateSignature computes block signatures for a basis file of the
// given size, using blockLength-byte blocks and checksumLength-byte
// strong digests (spec §4.2 supplies both via blocksize.Calculate).
func GenerateSignature(r io.ReaderAt, size int64, blockLength, checksumLength int64, newDigest func() hashing.Digester) (*FileSignature, error) {
	if blockLength <= 0 {
		return nil, fmt.Errorf("delta: blockLength must be positive, got %d", blockLength)
	}
	var blockCount uint32
	var remainder uint32
	if size > 0 {
		blockCount = uint32((size + blockLength - 1) / blockLength)
		if size%blockLength != 0 {
			remainder = uint32(size % blockLength)
		}
	}

	sig := &FileSignature{
		Header: SignatureHeader{
			BlockCount:     blockCount,
			BlockLength:    uint32(blockLength),
			ChecksumLength: uint32(checksumLength),
			Remainder:      remainder,
		},
	}
	if blockCount == 0 {
		return sig, nil
	}

	buf := make([]byte, blockLength)
	sig.Blocks = make([]BlockSignature, 0, blockCount)
	for i := uint32(0); i < blockCount; i++ {
		n := int(blockLength)
		if i == blockCount-1 && remainder != 0 {
			n = int(remainder)
		}
		window := buf[:n]
		if _, err := r.ReadAt(window, int64(i)*blockLength); err != nil && err != io.EOF {
			return nil, err
		}
		rolling := checksum.Sum(window)
		d := newDigest()
		d.Update(window)
		strong := d.Finalize()[:checksumLength]
		sig.Blocks = append(sig.Blocks, BlockSignature{
			Index:   i,
			Rolling: rolling,
			Strong:  append([]byte(nil), strong...),
		})
	}
	return sig, nil
}

// WriteSignature writes a FileSignature to the wire (spec §4.3
// "Receiver → Sender").
func WriteSignature(w *rsyncwire.Conn, sig *FileSignature) error {
	if err := w.WriteInt32(int32(sig.Header.BlockCount)); err != nil {
		return err
	}
	if err := w.WriteInt32(int32(sig.Header.BlockLength)); err != nil {
		return err
	}
	if err := w.WriteInt32(int32(sig.Header.ChecksumLength)); err != nil {
		return err
	}
	if err := w.WriteInt32(int32(sig.Header.Remainder)); err != nil {
		return err
	}
	for _, b := range sig.Blocks {
		if err := w.WriteInt32(int32(b.Rolling)); err != nil {
			return err
		}
		if _, err := w.Writer.Write(b.Strong); err != nil {
			return err
		}
	}
	return nil
}

// ReadSignature reads a FileSignature from the wire.
func ReadSignature(r *rsyncwire.Conn) (*FileSignature, error) {
	bc, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	bl, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	cl, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	rem, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	sig := &FileSignature{Header: SignatureHeader{
		BlockCount:     uint32(bc),
		BlockLength:    uint32(bl),
		ChecksumLength: uint32(cl),
		Remainder:      uint32(rem),
	}}
	sig.Blocks = make([]BlockSignature, 0, bc)
	for i := int32(0); i < bc; i++ {
		rolling, err := r.ReadInt32()
		if err != nil {
			return nil, err
		}
		strong := make([]byte, cl)
		if cl > 0 {
			if _, err := io.ReadFull(r.Reader, strong); err != nil {
				return nil, err
			}
		}
		sig.Blocks = append(sig.Blocks, BlockSignature{
			Index:   uint32(i),
			Rolling: uint32(rolling),
			Strong:  strong,
		})
	}
	return sig, nil
}

// index maps a rolling checksum to the (usually single-element) list of
// candidate blocks sharing it, so a rolling hit still requires a strong
// verification before being accepted (spec §4.3 edge case).
type index map[uint32][]BlockSignature

func buildIndex(sig *FileSignature) index {
	idx := make(index, len(sig.Blocks))
	for _, b := range sig.Blocks {
		idx[b.Rolling] = append(idx[b.Rolling], b)
	}
	return idx
}

// SendDelta walks src against sig's block index, emitting a token stream
// to w: literal runs, block references, and a terminator, followed by
// the whole-file strong digest seeded the same way the receiver seeds
// its verification digest (spec §4.3 "Sender → Receiver").
func SendDelta(w *rsyncwire.Conn, src io.ReaderAt, srcSize int64, sig *FileSignature, newDigest func() hashing.Digester, seed uint32) error {
	blockLength := int64(sig.Header.BlockLength)
	if blockLength <= 0 {
		blockLength = 1
	}
	idx := buildIndex(sig)

	whole := newDigest()
	writeLELength(whole, seed)

	emitLiteral := func(buf []byte) error {
		if len(buf) == 0 {
			return nil
		}
		if err := w.WriteInt32(int32(len(buf))); err != nil {
			return err
		}
		if _, err := w.Writer.Write(buf); err != nil {
			return err
		}
		whole.Update(buf)
		return nil
	}
	emitBlockRef := func(blockIndex uint32) error {
		// upstream's wire convention: token = -(index+1), decoded by the
		// receiver as block_index = -(token+1).
		wireVal := -(int32(blockIndex) + 1)
		if err := w.WriteInt32(wireVal); err != nil {
			return err
		}
		start := int64(blockIndex) * blockLength
		n := blockLength
		if blockIndex == sig.Header.BlockCount-1 && sig.Header.Remainder != 0 {
			n = int64(sig.Header.Remainder)
		}
		buf := make([]byte, n)
		if _, err := src.ReadAt(buf, start); err != nil && err != io.EOF {
			return err
		}
		whole.Update(buf)
		return nil
	}

	if srcSize == 0 || len(sig.Blocks) == 0 {
		buf := make([]byte, srcSize)
		if srcSize > 0 {
			if _, err := src.ReadAt(buf, 0); err != nil && err != io.EOF {
				return err
			}
		}
		if err := emitLiteral(buf); err != nil {
			return err
		}
		if err := w.WriteInt32(0); err != nil {
			return err
		}
		return writeWholeDigest(w, whole)
	}

	readAt := func(off, n int64) ([]byte, error) {
		buf := make([]byte, n)
		if n > 0 {
			if _, err := src.ReadAt(buf, off); err != nil && err != io.EOF {
				return nil, err
			}
		}
		return buf, nil
	}

	var literal []byte
	var pos int64

	windowLen := minInt64(blockLength, srcSize-pos)
	window, err := readAt(pos, windowLen)
	if err != nil {
		return err
	}
	roll := checksum.New().Update(window)

	for pos < srcSize {
		if int64(len(window)) < blockLength {
			// Tail shorter than a full block: never matched mid-stream,
			// always flushed as a literal (spec §4.3 edge case).
			literal = append(literal, window...)
			break
		}

		var matched *BlockSignature
		if candidates, ok := idx[roll.Value()]; ok {
			digest := newDigest()
			digest.Update(window)
			strong := digest.Finalize()
			for i := range candidates {
				c := &candidates[i]
				if bytes.Equal(strong[:len(c.Strong)], c.Strong) {
					matched = c
					break
				}
			}
		}

		if matched != nil {
			if err := emitLiteral(literal); err != nil {
				return err
			}
			literal = nil
			if err := emitBlockRef(matched.Index); err != nil {
				return err
			}
			pos += int64(len(window))
			windowLen = minInt64(blockLength, srcSize-pos)
			window, err = readAt(pos, windowLen)
			if err != nil {
				return err
			}
			roll = checksum.New().Update(window)
			continue
		}

		// Miss: append the window's leading byte to the pending literal
		// run, then roll the window forward by one byte.
		literal = append(literal, window[0])
		pos++
		if pos+int64(len(window)) > srcSize {
			// Fewer than blockLength bytes remain; shrink the window and
			// let the top-of-loop tail check flush it as a literal.
			window = window[1:]
			continue
		}
		nextByte, err := readAt(pos+int64(len(window))-1, 1)
		if err != nil {
			return err
		}
		if err := roll.Roll(window[0], nextByte[0]); err != nil {
			return err
		}
		shifted := make([]byte, len(window))
		copy(shifted, window[1:])
		shifted[len(shifted)-1] = nextByte[0]
		window = shifted
	}

	if err := emitLiteral(literal); err != nil {
		return err
	}
	if err := w.WriteInt32(0); err != nil {
		return err
	}
	return writeWholeDigest(w, whole)
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func writeLELength(d hashing.Digester, seed uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], seed)
	d.Update(buf[:])
}

func writeWholeDigest(w *rsyncwire.Conn, whole hashing.Digester) error {
	_, err := w.Writer.Write(whole.Finalize())
	return err
}

// ErrChecksumMismatch is returned by Reconstruct when the sender's
// whole-file digest does not match what the receiver assembled.
type ErrChecksumMismatch struct {
	Name string
}

func (e *ErrChecksumMismatch) Error() string {
	return fmt.Sprintf("delta: checksum mismatch reconstructing %s", e.Name)
}

// Reconstruct reads a token stream from r and writes the reconstructed
// file to dest, copying block references from basis (spec §4.3 "Receiver
// reconstruction"). name is used only for error messages. seed primes
// the whole-file digest the same way the sender's does.
func Reconstruct(r *rsyncwire.Conn, basis io.ReaderAt, dest io.Writer, header SignatureHeader, newDigest func() hashing.Digester, seed uint32, name string) error {
	whole := newDigest()
	writeLELength(whole, seed)
	wr := io.MultiWriter(dest, digesterWriter{whole})

	blockLength := int64(header.BlockLength)

	for {
		tokenVal, err := r.ReadInt32()
		if err != nil {
			return err
		}
		if tokenVal == 0 {
			break
		}
		if tokenVal > 0 {
			buf := make([]byte, tokenVal)
			if _, err := io.ReadFull(r.Reader, buf); err != nil {
				return err
			}
			if _, err := wr.Write(buf); err != nil {
				return err
			}
			continue
		}
		if basis == nil {
			return fmt.Errorf("delta: block reference but no basis file for %s", name)
		}
		blockIndex := -(tokenVal + 1)
		offset := int64(blockIndex) * blockLength
		n := blockLength
		if uint32(blockIndex) == header.BlockCount-1 && header.Remainder != 0 {
			n = int64(header.Remainder)
		}
		buf := make([]byte, n)
		if _, err := basis.ReadAt(buf, offset); err != nil && err != io.EOF {
			return err
		}
		if _, err := wr.Write(buf); err != nil {
			return err
		}
	}

	localSum := whole.Finalize()
	remoteSum := make([]byte, len(localSum))
	if _, err := io.ReadFull(r.Reader, remoteSum); err != nil {
		return err
	}
	if !bytes.Equal(localSum, remoteSum) {
		return &ErrChecksumMismatch{Name: name}
	}
	return nil
}

type digesterWriter struct{ d hashing.Digester }

func (w digesterWriter) Write(p []byte) (int, error) {
	w.d.Update(p)
	return len(p), nil
}
