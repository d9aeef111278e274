package rsyncwire

import (
	"bytes"
	"io"
	"testing"
)

func TestMultiplexIdempotence(t *testing.T) {
	var buf bytes.Buffer
	w := &MultiplexWriter{Writer: &buf}

	chunks := [][]byte{[]byte("hello, "), []byte("world"), []byte("!")}
	for _, c := range chunks {
		if _, err := w.Write(c); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	r := &MultiplexReader{Reader: &buf}
	var got []byte
	for {
		code, payload, err := r.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if code != MsgData {
			t.Fatalf("unexpected code %v", code)
		}
		got = append(got, payload...)
	}

	want := bytes.Join(chunks, nil)
	if !bytes.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWriteMsgDrainsBufferedDataFirst(t *testing.T) {
	var buf bytes.Buffer
	w := &MultiplexWriter{Writer: &buf}
	w.Write([]byte("pending data"))
	if err := w.WriteMsg(MsgError, []byte("boom")); err != nil {
		t.Fatalf("WriteMsg: %v", err)
	}

	r := &MultiplexReader{Reader: &buf}
	code, payload, err := r.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if code != MsgData || string(payload) != "pending data" {
		t.Fatalf("first frame = (%v, %q), want (MsgData, %q)", code, payload, "pending data")
	}

	code, payload, err = r.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if code != MsgError || string(payload) != "boom" {
		t.Fatalf("second frame = (%v, %q), want (MsgError, %q)", code, payload, "boom")
	}
}

func TestLargeWriteSplitsIntoMultipleDataFrames(t *testing.T) {
	var buf bytes.Buffer
	w := &MultiplexWriter{Writer: &buf}
	payload := bytes.Repeat([]byte{'x'}, dataChunkSize*3+17)
	w.Write(payload)
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	r := &MultiplexReader{Reader: &buf}
	var frames int
	var got []byte
	for {
		code, p, err := r.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if len(p) > dataChunkSize {
			t.Errorf("frame %d payload length %d exceeds %d", frames, len(p), dataChunkSize)
		}
		if code != MsgData {
			t.Fatalf("unexpected code %v", code)
		}
		got = append(got, p...)
		frames++
	}
	if frames < 4 {
		t.Errorf("got %d frames, want at least 4 for a %d-byte payload", frames, len(payload))
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("reassembled payload does not match original")
	}
}

func TestRecvUnexpectedEOFInsideFrame(t *testing.T) {
	buf := bytes.NewBuffer([]byte{byte(int(MsgData) + mplexBase), 10, 0, 0, 'a', 'b'})
	r := &MultiplexReader{Reader: buf}
	_, _, err := r.Recv()
	if err != ErrUnexpectedEOF {
		t.Fatalf("got %v, want ErrUnexpectedEOF", err)
	}
}

func TestConnInt64RoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 1 << 20, 0x7fffffff, 0x80000000, 1 << 40, -5}
	var buf bytes.Buffer
	c := &Conn{Reader: &buf, Writer: &buf}
	for _, v := range values {
		if err := c.WriteInt64(v); err != nil {
			t.Fatalf("WriteInt64(%d): %v", v, err)
		}
	}
	for _, want := range values {
		got, err := c.ReadInt64()
		if err != nil {
			t.Fatalf("ReadInt64: %v", err)
		}
		if got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}
}
