// Package rsyncwire implements the multiplex envelope (spec §4.4, C4) and
// the little/big-endian integer helpers every higher layer reads and
// writes through. It is kept and expanded from oc-rsync's
// internal/rsyncwire, whose MultiplexWriter and Conn helper types are
// referenced (but only partially defined) throughout the teacher's
// rsyncd.go, clientmaincmd.go and receiver/do.go.
package rsyncwire

import (
	"encoding/binary"
	"errors"
	"io"
)

// MsgCode identifies the kind of a multiplexed frame (spec §3 "Multiplex
// frame"). Values match upstream rsync's MSG_* constants.
type MsgCode int

const (
	MsgData       MsgCode = 0
	MsgErrorXfer  MsgCode = 1
	MsgInfo       MsgCode = 2
	MsgError      MsgCode = 3
	MsgWarning    MsgCode = 4
	MsgErrorSocket MsgCode = 5
	MsgLog        MsgCode = 6
	MsgClient     MsgCode = 7
	MsgErrorUtf8  MsgCode = 8
	MsgRedo       MsgCode = 9
	MsgStats      MsgCode = 10
	MsgIoError    MsgCode = 22
	MsgIoTimeout  MsgCode = 33
	MsgNoSend     MsgCode = 102
	MsgSuccess    MsgCode = 100
	MsgDeleted    MsgCode = 101
	MsgNoop       MsgCode = 42
	MsgFlist      MsgCode = 20
	MsgFlistEof   MsgCode = 21
	MsgFlistError MsgCode = MsgIoError
)

// mplexBase is added to a message code to form the wire tag byte (spec
// §4.4: "tag_byte = message_code + 7").
const mplexBase = 7

// MaxPayloadLength is the largest payload a single multiplex frame may
// carry (2^24 - 1, a 24-bit length field).
const MaxPayloadLength = 1<<24 - 1

// dataChunkSize is the conventional cap on Data frames (spec §3).
const dataChunkSize = 8 * 1024

var (
	// ErrPayloadTooLarge is returned by WriteMsg when payload exceeds
	// MaxPayloadLength.
	ErrPayloadTooLarge = errors.New("rsyncwire: payload exceeds MAX_PAYLOAD_LENGTH")
	// ErrUnexpectedEOF is returned by Recv when the transport closes in
	// the middle of a frame.
	ErrUnexpectedEOF = errors.New("rsyncwire: unexpected EOF inside multiplex frame")
)

// CountingReader wraps an io.Reader, tallying bytes read for statistics
// (spec §3 "Transfer statistics").
type CountingReader struct {
	R       io.Reader
	Counter int64
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	c.Counter += int64(n)
	return n, err
}

// CountingWriter wraps an io.Writer, tallying bytes written.
type CountingWriter struct {
	W       io.Writer
	Counter int64
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.W.Write(p)
	c.Counter += int64(n)
	return n, err
}

// CounterPair wraps a reader and writer pair in CountingReader/CountingWriter,
// as used by every connection entry point (daemon, client, local server).
func CounterPair(r io.Reader, w io.Writer) (*CountingReader, *CountingWriter) {
	return &CountingReader{R: r}, &CountingWriter{W: w}
}

// Conn bundles a Reader and Writer for the length-prefixed integer helpers
// used during handshakes and file-list/delta exchange.
type Conn struct {
	Reader io.Reader
	Writer io.Writer
}

func (c *Conn) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(c.Reader, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (c *Conn) WriteByte(b byte) error {
	_, err := c.Writer.Write([]byte{b})
	return err
}

func (c *Conn) ReadInt32() (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(c.Reader, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

func (c *Conn) WriteInt32(v int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	_, err := c.Writer.Write(buf[:])
	return err
}

// ReadInt64 follows rsync's varint64 convention: a plain int32 unless it is
// exactly -1, in which case a full int64 follows.
func (c *Conn) ReadInt64() (int64, error) {
	v, err := c.ReadInt32()
	if err != nil {
		return 0, err
	}
	if v != -1 {
		return int64(v), nil
	}
	var buf [8]byte
	if _, err := io.ReadFull(c.Reader, buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

func (c *Conn) WriteInt64(v int64) error {
	if v >= 0 && v <= 0x7fffffff {
		return c.WriteInt32(int32(v))
	}
	if err := c.WriteInt32(-1); err != nil {
		return err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	_, err := c.Writer.Write(buf[:])
	return err
}

// BigEndianUint32 and friends are used only for the binary negotiation
// handshake (spec §4.6), which is big-endian unlike every other integer on
// the wire (spec §9 "Endianness").
func ReadBigEndianUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func WriteBigEndianUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// MultiplexWriter implements the writer half of C4: buffering writes and
// splitting them into ≤8KiB Data frames, with write_message draining any
// buffered data first to preserve ordering (spec §5).
type MultiplexWriter struct {
	Writer io.Writer

	buf []byte
}

// Write buffers bytes; call Flush to emit them as Data frames.
func (w *MultiplexWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// Flush drains any buffered bytes as one or more ≤8KiB Data frames.
func (w *MultiplexWriter) Flush() error {
	for len(w.buf) > 0 {
		n := len(w.buf)
		if n > dataChunkSize {
			n = dataChunkSize
		}
		if err := w.writeFrame(MsgData, w.buf[:n]); err != nil {
			return err
		}
		w.buf = w.buf[n:]
	}
	w.buf = w.buf[:0]
	return nil
}

// WriteMsg drains buffered data (preserving ordering) then emits a single
// frame with the given code and payload.
func (w *MultiplexWriter) WriteMsg(code MsgCode, payload []byte) error {
	if err := w.Flush(); err != nil {
		return err
	}
	return w.writeFrame(code, payload)
}

// WriteRaw drains buffered data, then writes bytes without any framing —
// used for handshake exchanges that predate multiplexing.
func (w *MultiplexWriter) WriteRaw(p []byte) error {
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := w.Writer.Write(p)
	return err
}

func (w *MultiplexWriter) writeFrame(code MsgCode, payload []byte) error {
	if len(payload) > MaxPayloadLength {
		return ErrPayloadTooLarge
	}
	var hdr [4]byte
	hdr[0] = byte(int(code) + mplexBase)
	length := uint32(len(payload))
	hdr[1] = byte(length)
	hdr[2] = byte(length >> 8)
	hdr[3] = byte(length >> 16)
	if _, err := w.Writer.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Writer.Write(payload)
	return err
}

// MultiplexReader implements the reader half of C4: demultiplexing tagged
// frames from the underlying transport.
type MultiplexReader struct {
	Reader io.Reader

	pending []byte
}

// Recv returns one (code, payload) frame. EOF on a frame boundary is
// reported as plain io.EOF (the clean-close signal); EOF inside a frame is
// reported as ErrUnexpectedEOF.
func (r *MultiplexReader) Recv() (MsgCode, []byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r.Reader, hdr[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return 0, nil, ErrUnexpectedEOF
		}
		return 0, nil, err
	}
	code := MsgCode(int(hdr[0]) - mplexBase)
	length := uint32(hdr[1]) | uint32(hdr[2])<<8 | uint32(hdr[3])<<16
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r.Reader, payload); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return 0, nil, ErrUnexpectedEOF
			}
			return 0, nil, err
		}
	}
	return code, payload, nil
}

// Read implements io.Reader by returning only MsgData payloads, routing
// every other code to the onSideband callback (or discarding it if nil).
// This lets a MultiplexReader be wrapped in a bufio.Reader and handed to
// code that just wants the data channel, exactly like
// clientmaincmd.go wraps MultiplexReader before constructing its Conn.
func (r *MultiplexReader) Read(p []byte) (int, error) {
	return r.ReadFiltered(p, nil)
}

// SidebandFunc handles a non-Data frame encountered while reading the Data
// channel (errors, warnings, progress, …).
type SidebandFunc func(code MsgCode, payload []byte) error

func (r *MultiplexReader) ReadFiltered(p []byte, onSideband SidebandFunc) (int, error) {
	for len(r.pending) == 0 {
		code, payload, err := r.Recv()
		if err != nil {
			return 0, err
		}
		if code == MsgData {
			r.pending = payload
			break
		}
		if onSideband != nil {
			if err := onSideband(code, payload); err != nil {
				return 0, err
			}
		}
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
