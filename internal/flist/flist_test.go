package flist

import (
	"bytes"
	"testing"

	"github.com/oferchen/oc-rsync/internal/rsyncwire"
)

func roundTrip(t *testing.T, entries []*Entry, preserveUID, preserveGID bool) []*Entry {
	t.Helper()
	var buf bytes.Buffer
	enc := NewCodec(32, preserveUID, preserveGID)
	w := &rsyncwire.Conn{Writer: &buf}
	if err := enc.EncodeList(w, entries); err != nil {
		t.Fatalf("EncodeList: %v", err)
	}

	dec := NewCodec(32, preserveUID, preserveGID)
	r := &rsyncwire.Conn{Reader: &buf}
	got, err := dec.DecodeList(r)
	if err != nil {
		t.Fatalf("DecodeList: %v", err)
	}
	return got
}

func TestRoundTripBasicEntries(t *testing.T) {
	entries := []*Entry{
		{Name: ".", Mode: modeIFDIR | 0o755, TopLevel: true, HardlinkGroup: -1},
		{Name: "a.txt", Mode: modeIFREG | 0o644, Size: 123, ModTime: 1700000000, HardlinkGroup: -1},
		{Name: "subdir", Mode: modeIFDIR | 0o755, HardlinkGroup: -1},
		{Name: "subdir/b.txt", Mode: modeIFREG | 0o644, Size: 9999, ModTime: 1700000001, HardlinkGroup: -1},
	}
	got := roundTrip(t, entries, false, false)
	if len(got) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(got), len(entries))
	}
	for i, e := range entries {
		if got[i].Name != e.Name {
			t.Errorf("entry %d name = %q, want %q", i, got[i].Name, e.Name)
		}
		if got[i].Size != e.Size {
			t.Errorf("entry %d size = %d, want %d", i, got[i].Size, e.Size)
		}
		if got[i].Mode != e.Mode {
			t.Errorf("entry %d mode = %o, want %o", i, got[i].Mode, e.Mode)
		}
	}
}

func TestRoundTripPreservesUIDGIDWithReuse(t *testing.T) {
	entries := []*Entry{
		{Name: "a", Mode: modeIFREG | 0o644, UID: 1000, GID: 1000, HardlinkGroup: -1},
		{Name: "b", Mode: modeIFREG | 0o644, UID: 1000, GID: 1000, HardlinkGroup: -1}, // same uid/gid as prev
		{Name: "c", Mode: modeIFREG | 0o644, UID: 2000, GID: 3000, HardlinkGroup: -1},
	}
	got := roundTrip(t, entries, true, true)
	for i, e := range entries {
		if got[i].UID != e.UID || got[i].GID != e.GID {
			t.Errorf("entry %d uid/gid = %d/%d, want %d/%d", i, got[i].UID, got[i].GID, e.UID, e.GID)
		}
	}
}

func TestRoundTripSymlinkCarriesTarget(t *testing.T) {
	entries := []*Entry{
		{Name: "link", Mode: modeIFLNK | 0o777, LinkTarget: "../target", HardlinkGroup: -1},
	}
	got := roundTrip(t, entries, false, false)
	if got[0].LinkTarget != "../target" {
		t.Errorf("LinkTarget = %q, want %q", got[0].LinkTarget, "../target")
	}
}

func TestRoundTripHardlinkGroup(t *testing.T) {
	entries := []*Entry{
		{Name: "a", Mode: modeIFREG | 0o644, HardlinkGroup: 5},
		{Name: "b", Mode: modeIFREG | 0o644, HardlinkGroup: 5},
	}
	got := roundTrip(t, entries, false, false)
	if got[0].HardlinkGroup != 5 || got[1].HardlinkGroup != 5 {
		t.Errorf("hardlink groups = %d, %d, want 5, 5", got[0].HardlinkGroup, got[1].HardlinkGroup)
	}
}

func TestNamePrefixReuseRoundTrips(t *testing.T) {
	entries := []*Entry{
		{Name: "dir/one", Mode: modeIFREG | 0o644, HardlinkGroup: -1},
		{Name: "dir/two", Mode: modeIFREG | 0o644, HardlinkGroup: -1},
		{Name: "dir/three/nested", Mode: modeIFREG | 0o644, HardlinkGroup: -1},
	}
	got := roundTrip(t, entries, false, false)
	for i, e := range entries {
		if got[i].Name != e.Name {
			t.Errorf("entry %d name = %q, want %q", i, got[i].Name, e.Name)
		}
	}
}

func TestTrimRootTopLevel(t *testing.T) {
	name, top := TrimRoot("/srv/repo", "/srv/repo")
	if name != "." || !top {
		t.Errorf("TrimRoot(root, root) = (%q, %v), want (\".\", true)", name, top)
	}
	name, top = TrimRoot("/srv/repo", "/srv/repo/sub/file")
	if name != "sub/file" || top {
		t.Errorf("TrimRoot = (%q, %v), want (\"sub/file\", false)", name, top)
	}
}

func TestEmptyListRoundTrips(t *testing.T) {
	got := roundTrip(t, nil, false, false)
	if len(got) != 0 {
		t.Errorf("got %d entries, want 0", len(got))
	}
}
