package rsynctest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// Large data file layout: a small distinctive head and tail surrounding a
// multi-megabyte body, so a test can flip only the body pattern and assert
// that an incremental sync retransmits far less than the whole file.
const (
	headSize = 64 * 1024
	bodySize = 3 * 1024 * 1024
	tailSize = 64 * 1024
)

// WriteLargeDataFile (re)writes dir/large-data-file with head/body/end each
// repeated to fill their zone, creating dir if necessary.
func WriteLargeDataFile(t *testing.T, dir string, head, body, end []byte) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll(%s): %v", dir, err)
	}

	f, err := os.Create(filepath.Join(dir, "large-data-file"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()

	if err := writeRepeated(f, head, headSize); err != nil {
		t.Fatalf("writing head: %v", err)
	}
	if err := writeRepeated(f, body, bodySize); err != nil {
		t.Fatalf("writing body: %v", err)
	}
	if err := writeRepeated(f, end, tailSize); err != nil {
		t.Fatalf("writing tail: %v", err)
	}
}

func writeRepeated(f *os.File, pattern []byte, zoneSize int) error {
	if len(pattern) == 0 {
		pattern = []byte{0}
	}
	buf := bytes.Repeat(pattern, (zoneSize/len(pattern))+1)[:zoneSize]
	_, err := f.Write(buf)
	return err
}

// DataFileMatches verifies that path has the head/body/end zone layout
// WriteLargeDataFile produces.
func DataFileMatches(path string, head, body, end []byte) error {
	got, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if want := headSize + bodySize + tailSize; len(got) != want {
		return fmt.Errorf("unexpected file size: got %d, want %d", len(got), want)
	}

	zones := []struct {
		name    string
		data    []byte
		pattern []byte
	}{
		{"head", got[:headSize], head},
		{"body", got[headSize : headSize+bodySize], body},
		{"end", got[headSize+bodySize:], end},
	}
	for _, z := range zones {
		want := bytes.Repeat(z.pattern, (len(z.data)/len(z.pattern))+1)[:len(z.data)]
		if !bytes.Equal(z.data, want) {
			return fmt.Errorf("%s zone does not match expected pattern %x", z.name, z.pattern)
		}
	}
	return nil
}
