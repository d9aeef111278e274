package localcopy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/oferchen/oc-rsync/internal/hashing"
	"github.com/oferchen/oc-rsync/internal/rsyncerr"
)

func TestEngineCopyBasic(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	mustWriteFile(t, filepath.Join(src, "a.txt"), "hello")
	if err := os.Mkdir(filepath.Join(src, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	mustWriteFile(t, filepath.Join(src, "sub", "b.txt"), "world")

	eng := &Engine{}
	if err := eng.Copy(context.Background(), src, dst); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("a.txt = %q, want %q", got, "hello")
	}
	got, err = os.ReadFile(filepath.Join(dst, "sub", "b.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "world" {
		t.Errorf("sub/b.txt = %q, want %q", got, "world")
	}
}

func TestEngineCopyIsIdempotent(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	mustWriteFile(t, filepath.Join(src, "a.txt"), "hello")

	eng := &Engine{}
	if err := eng.Copy(context.Background(), src, dst); err != nil {
		t.Fatal(err)
	}
	if err := eng.Copy(context.Background(), src, dst); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("a.txt = %q, want %q", got, "hello")
	}
}

func TestEngineCopySymlink(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	mustWriteFile(t, filepath.Join(src, "target.txt"), "x")
	if err := os.Symlink("target.txt", filepath.Join(src, "link")); err != nil {
		t.Fatal(err)
	}

	eng := &Engine{}
	if err := eng.Copy(context.Background(), src, dst); err != nil {
		t.Fatal(err)
	}

	got, err := os.Readlink(filepath.Join(dst, "link"))
	if err != nil {
		t.Fatal(err)
	}
	if got != "target.txt" {
		t.Errorf("link target = %q, want %q", got, "target.txt")
	}
}

func TestEngineLinkDest(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	basisDir := t.TempDir()

	mustWriteFile(t, filepath.Join(src, "a.txt"), "same")
	mustWriteFile(t, filepath.Join(basisDir, "a.txt"), "same")

	eng := &Engine{Opts: Options{LinkDirs: []string{basisDir}, NewDigest: hashing.NewMD5}}
	if err := eng.Copy(context.Background(), src, dst); err != nil {
		t.Fatal(err)
	}

	srcInfo, err := os.Stat(filepath.Join(basisDir, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	dstInfo, err := os.Stat(filepath.Join(dst, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !os.SameFile(srcInfo, dstInfo) {
		t.Error("expected destination to be hardlinked to the link-dest basis")
	}
}

func TestEngineCompareDestSkipsIdenticalFile(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	basisDir := t.TempDir()

	mustWriteFile(t, filepath.Join(src, "a.txt"), "same")
	mustWriteFile(t, filepath.Join(basisDir, "a.txt"), "same")

	eng := &Engine{Opts: Options{CompareDirs: []string{basisDir}, NewDigest: hashing.NewMD5}}
	if err := eng.Copy(context.Background(), src, dst); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dst, "a.txt")); !os.IsNotExist(err) {
		t.Errorf("expected no file written for an identical --compare-dest match, stat err = %v", err)
	}
}

func TestEngineMaxDeleteGating(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	mustWriteFile(t, filepath.Join(src, "keep.txt"), "k")
	mustWriteFile(t, filepath.Join(dst, "keep.txt"), "k")
	mustWriteFile(t, filepath.Join(dst, "stale1.txt"), "s")
	mustWriteFile(t, filepath.Join(dst, "stale2.txt"), "s")

	eng := &Engine{Opts: Options{Delete: true, MaxDelete: 1}}
	err := eng.Copy(context.Background(), src, dst)
	if err == nil {
		t.Fatal("expected an error when deletions exceed --max-delete")
	}
	rerr, ok := err.(*rsyncerr.Error)
	if !ok || rerr.Code != rsyncerr.RerrDelLimit {
		t.Errorf("err = %v, want a RerrDelLimit error", err)
	}

	if _, err := os.Stat(filepath.Join(dst, "stale1.txt")); err != nil {
		t.Error("expected stale1.txt to survive a gated deletion pass")
	}
	if _, err := os.Stat(filepath.Join(dst, "stale2.txt")); err != nil {
		t.Error("expected stale2.txt to survive a gated deletion pass")
	}
}

func TestEngineDeletesExtraneousFiles(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	mustWriteFile(t, filepath.Join(src, "keep.txt"), "k")
	mustWriteFile(t, filepath.Join(dst, "keep.txt"), "k")
	mustWriteFile(t, filepath.Join(dst, "stale.txt"), "s")

	eng := &Engine{Opts: Options{Delete: true}}
	if err := eng.Copy(context.Background(), src, dst); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dst, "stale.txt")); !os.IsNotExist(err) {
		t.Errorf("expected stale.txt to be removed, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "keep.txt")); err != nil {
		t.Errorf("expected keep.txt to remain: %v", err)
	}
}

func TestEnginePartialKeepInPlaceOnWriteFailure(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	mustWriteFile(t, filepath.Join(src, "a.txt"), "content")

	// A read-only destination directory forces the staging MkdirAll/open
	// calls for a new subdirectory to fail, but here we only verify the
	// guard plumbing directly since simulating ENOSPC isn't portable.
	mode := PartialMode{Kind: KeepInPlace}
	g, err := Begin(dst, "a.txt", mode)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Write([]byte("partial-content")); err != nil {
		t.Fatal(err)
	}
	if err := g.Abort(); err != nil {
		t.Fatal(err)
	}

	if _, ok := PartialBasisPath(dst, "a.txt", mode); !ok {
		t.Error("expected a retained partial basis after Abort in KeepInPlace mode")
	}
}

func TestEngineDryRunWritesNothing(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	mustWriteFile(t, filepath.Join(src, "a.txt"), "hello")

	eng := &Engine{Opts: Options{DryRun: true}}
	if err := eng.Copy(context.Background(), src, dst); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("dry-run copy left %d entries in dst, want 0", len(entries))
	}
}
