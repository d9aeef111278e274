//go:build linux

package rsynctest

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

// dummyDevices describes the fixture device nodes created and verified by
// CreateDummyDeviceFiles / VerifyDummyDeviceFiles. Matches real /dev majors
// so a failure to preserve them is obvious from the numbers alone.
var dummyDevices = []struct {
	name  string
	mode  uint32
	major uint32
	minor uint32
}{
	{"null", unix.S_IFCHR, 1, 3},
	{"zero", unix.S_IFCHR, 1, 5},
	{"loop0", unix.S_IFBLK, 7, 0},
}

// CreateDummyDeviceFiles populates dir with character and block device
// nodes, to exercise --devices/--specials preservation. Requires root.
func CreateDummyDeviceFiles(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll(%s): %v", dir, err)
	}
	for _, d := range dummyDevices {
		dev := unix.Mkdev(d.major, d.minor)
		path := filepath.Join(dir, d.name)
		if err := unix.Mknod(path, d.mode|0o644, int(dev)); err != nil {
			t.Fatalf("Mknod(%s): %v", path, err)
		}
	}
}

// VerifyDummyDeviceFiles asserts that destDir contains device nodes with
// the same major/minor numbers as those CreateDummyDeviceFiles wrote to
// srcDir.
func VerifyDummyDeviceFiles(t *testing.T, srcDir, destDir string) {
	t.Helper()
	for _, d := range dummyDevices {
		path := filepath.Join(destDir, d.name)
		st, err := os.Stat(path)
		if err != nil {
			t.Errorf("Stat(%s): %v", path, err)
			continue
		}
		stt, ok := st.Sys().(*unix.Stat_t)
		if !ok {
			t.Errorf("%s: Sys() did not return *unix.Stat_t", path)
			continue
		}
		gotMajor := unix.Major(stt.Rdev)
		gotMinor := unix.Minor(stt.Rdev)
		if gotMajor != d.major || gotMinor != d.minor {
			t.Errorf("%s: device number = (%d,%d), want (%d,%d)", path, gotMajor, gotMinor, d.major, d.minor)
		}
	}
}
