package delta

import (
	"bytes"
	"testing"

	"github.com/oferchen/oc-rsync/internal/hashing"
	"github.com/oferchen/oc-rsync/internal/rsyncwire"
)

func md5Digester() hashing.Digester { return hashing.NewMD5() }

func TestSignatureRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefgh"), 100) // 800 bytes
	basis := bytes.NewReader(data)
	sig, err := GenerateSignature(basis, int64(len(data)), 64, 8, md5Digester)
	if err != nil {
		t.Fatalf("GenerateSignature: %v", err)
	}
	if sig.Header.BlockCount != 13 { // ceil(800/64)
		t.Errorf("BlockCount = %d, want 13", sig.Header.BlockCount)
	}

	var buf bytes.Buffer
	w := &rsyncwire.Conn{Writer: &buf}
	if err := WriteSignature(w, sig); err != nil {
		t.Fatalf("WriteSignature: %v", err)
	}
	r := &rsyncwire.Conn{Reader: &buf}
	got, err := ReadSignature(r)
	if err != nil {
		t.Fatalf("ReadSignature: %v", err)
	}
	if got.Header != sig.Header {
		t.Errorf("header mismatch: got %+v, want %+v", got.Header, sig.Header)
	}
	if len(got.Blocks) != len(sig.Blocks) {
		t.Fatalf("got %d blocks, want %d", len(got.Blocks), len(sig.Blocks))
	}
	for i := range sig.Blocks {
		if got.Blocks[i].Rolling != sig.Blocks[i].Rolling {
			t.Errorf("block %d rolling = %d, want %d", i, got.Blocks[i].Rolling, sig.Blocks[i].Rolling)
		}
		if !bytes.Equal(got.Blocks[i].Strong, sig.Blocks[i].Strong) {
			t.Errorf("block %d strong mismatch", i)
		}
	}
}

func readerAt(b []byte) *bytes.Reader { return bytes.NewReader(b) }

func TestIdenticalFilesProduceAllBlockReferences(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, 700*3+10)
	sig, err := GenerateSignature(readerAt(data), int64(len(data)), 700, 16, md5Digester)
	if err != nil {
		t.Fatalf("GenerateSignature: %v", err)
	}

	var buf bytes.Buffer
	w := &rsyncwire.Conn{Writer: &buf}
	if err := SendDelta(w, readerAt(data), int64(len(data)), sig, md5Digester, 12345); err != nil {
		t.Fatalf("SendDelta: %v", err)
	}

	var dest bytes.Buffer
	r := &rsyncwire.Conn{Reader: &buf}
	if err := Reconstruct(r, readerAt(data), &dest, sig.Header, md5Digester, 12345, "test"); err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if !bytes.Equal(dest.Bytes(), data) {
		t.Errorf("reconstructed data does not match original: got %d bytes, want %d", dest.Len(), len(data))
	}
}

func TestCompletelyDifferentFileIsAllLiteral(t *testing.T) {
	basis := bytes.Repeat([]byte{0xAA}, 2048)
	newData := bytes.Repeat([]byte{0xBB}, 2048)

	sig, err := GenerateSignature(readerAt(basis), int64(len(basis)), 256, 16, md5Digester)
	if err != nil {
		t.Fatalf("GenerateSignature: %v", err)
	}

	var buf bytes.Buffer
	w := &rsyncwire.Conn{Writer: &buf}
	if err := SendDelta(w, readerAt(newData), int64(len(newData)), sig, md5Digester, 1); err != nil {
		t.Fatalf("SendDelta: %v", err)
	}

	var dest bytes.Buffer
	r := &rsyncwire.Conn{Reader: &buf}
	if err := Reconstruct(r, readerAt(basis), &dest, sig.Header, md5Digester, 1, "test"); err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if !bytes.Equal(dest.Bytes(), newData) {
		t.Errorf("reconstructed data does not match expected new data")
	}
}

func TestEmptyBasisAndEmptySourceProduceValidTransfer(t *testing.T) {
	sig, err := GenerateSignature(readerAt(nil), 0, 700, 16, md5Digester)
	if err != nil {
		t.Fatalf("GenerateSignature: %v", err)
	}
	if sig.Header.BlockCount != 0 {
		t.Fatalf("BlockCount = %d, want 0 for empty basis", sig.Header.BlockCount)
	}

	var buf bytes.Buffer
	w := &rsyncwire.Conn{Writer: &buf}
	if err := SendDelta(w, readerAt(nil), 0, sig, md5Digester, 7); err != nil {
		t.Fatalf("SendDelta: %v", err)
	}

	var dest bytes.Buffer
	r := &rsyncwire.Conn{Reader: &buf}
	if err := Reconstruct(r, readerAt(nil), &dest, sig.Header, md5Digester, 7, "empty"); err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if dest.Len() != 0 {
		t.Errorf("reconstructed %d bytes, want 0", dest.Len())
	}
}

func TestMismatchedWholeDigestFails(t *testing.T) {
	data := bytes.Repeat([]byte{1, 2, 3, 4}, 50)
	sig, err := GenerateSignature(readerAt(data), int64(len(data)), 40, 16, md5Digester)
	if err != nil {
		t.Fatalf("GenerateSignature: %v", err)
	}
	var buf bytes.Buffer
	w := &rsyncwire.Conn{Writer: &buf}
	if err := SendDelta(w, readerAt(data), int64(len(data)), sig, md5Digester, 1); err != nil {
		t.Fatalf("SendDelta: %v", err)
	}
	// Corrupt the trailing whole-file digest.
	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xFF

	var dest bytes.Buffer
	r := &rsyncwire.Conn{Reader: bytes.NewReader(corrupted)}
	err = Reconstruct(r, readerAt(data), &dest, sig.Header, md5Digester, 1, "corrupt")
	if _, ok := err.(*ErrChecksumMismatch); !ok {
		t.Fatalf("got %v, want *ErrChecksumMismatch", err)
	}
}

func TestTailShorterThanBlockLengthIsLiteral(t *testing.T) {
	basis := bytes.Repeat([]byte{9}, 100)
	newData := append(bytes.Repeat([]byte{9}, 100), []byte{1, 2, 3}...)

	sig, err := GenerateSignature(readerAt(basis), int64(len(basis)), 100, 16, md5Digester)
	if err != nil {
		t.Fatalf("GenerateSignature: %v", err)
	}
	var buf bytes.Buffer
	w := &rsyncwire.Conn{Writer: &buf}
	if err := SendDelta(w, readerAt(newData), int64(len(newData)), sig, md5Digester, 1); err != nil {
		t.Fatalf("SendDelta: %v", err)
	}
	var dest bytes.Buffer
	r := &rsyncwire.Conn{Reader: &buf}
	if err := Reconstruct(r, readerAt(basis), &dest, sig.Header, md5Digester, 1, "tail"); err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if !bytes.Equal(dest.Bytes(), newData) {
		t.Errorf("reconstructed data mismatch for tail-literal case")
	}
}
