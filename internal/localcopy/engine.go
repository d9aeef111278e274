package localcopy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/oferchen/oc-rsync/internal/filter"
	"github.com/oferchen/oc-rsync/internal/flist"
	"github.com/oferchen/oc-rsync/internal/hashing"
	"github.com/oferchen/oc-rsync/internal/metadata"
	"github.com/oferchen/oc-rsync/internal/rsyncerr"
)

// Options configures one Engine.Copy run (spec §4.8).
type Options struct {
	Filter         *filter.Program
	OneFileSystem  bool
	PartialMode    PartialMode
	Metadata       metadata.Options
	AclXattr       metadata.AclXattrBackend
	DryRun         bool
	MaxDelete      int // 0 means unlimited
	Delete         bool
	NewDigest      func() hashing.Digester
	BlockLength    int64
	ChecksumLength int64
	// CompareDirs are searched, in order, for a same-named identical
	// file; when one is found the destination file is not written at all
	// (--compare-dest). LinkDirs hardlink an identical match instead of
	// copying (--link-dest). CopyDirs (--copy-dest) are not consulted:
	// the file is copied from the source as usual.
	CompareDirs []string
	CopyDirs    []string
	LinkDirs    []string
}

// Engine drives a same-host source->destination copy honoring the same
// contract as a remote transfer (spec §4.8).
type Engine struct {
	Opts Options
	Errs rsyncerr.Accumulator

	ParallelBytes int64
	ParallelCount int
	DirectBytes   int64
	DirectCount   int
}

// Copy walks src and reproduces its tree under dst, applying the
// configured filter program, staging policy, and metadata.
func (e *Engine) Copy(ctx context.Context, src, dst string) error {
	w := &Walker{Root: src, Filter: e.Opts.Filter, OneFileSystem: e.Opts.OneFileSystem}

	var fileJobs []CopyJob
	var dirRel []string

	err := w.Walk(func(ev VisitEvent) error {
		switch ev.Kind {
		case EnterDir:
			if ev.RelPath == "." {
				if err := os.MkdirAll(dst, 0o755); err != nil {
					return err
				}
			} else {
				if err := os.MkdirAll(filepath.Join(dst, ev.RelPath), 0o755); err != nil {
					return err
				}
			}
			dirRel = append(dirRel, ev.RelPath)
			return nil

		case File:
			rel := ev.RelPath
			size := ev.Info.Size()
			fileJobs = append(fileJobs, CopyJob{
				Size: size,
				Run: func(ctx context.Context) error {
					return e.copyFile(filepath.Join(src, rel), dst, rel)
				},
			})
			return nil

		case Symlink:
			return e.copySymlink(src, dst, ev.RelPath)

		case Device:
			// Device nodes require privileged mknod; surfaced as a
			// per-file metadata error rather than aborting the batch.
			e.Errs.Add(rsyncerr.New(rsyncerr.RerrUnsupported, "create special file", filepath.Join(dst, ev.RelPath),
				fmt.Errorf("device nodes are not supported by localcopy")))
			return nil

		case LeaveDir, SkippedByFilter, SkippedMountPoint:
			return nil
		}
		return nil
	})
	if err != nil {
		return err
	}

	stats, err := DispatchBatch(ctx, fileJobs)
	e.ParallelBytes += stats.ParallelBytes
	e.ParallelCount += stats.ParallelCount
	e.DirectBytes += stats.DirectBytes
	e.DirectCount += stats.DirectCount
	if err != nil {
		return err
	}

	if e.Opts.Delete {
		if err := e.deleteExtraneous(src, dst); err != nil {
			return err
		}
	}

	// Directory metadata is applied last, after every descendant write,
	// so a read-only mode on an ancestor can't block its own contents.
	for i := len(dirRel) - 1; i >= 0; i-- {
		rel := dirRel[i]
		srcDir := src
		destDir := dst
		if rel != "." {
			srcDir = filepath.Join(src, rel)
			destDir = filepath.Join(dst, rel)
		}
		e.applyMetadata(srcDir, destDir, rel, false)
	}

	if e.Errs.HasErrors() {
		return fmt.Errorf("localcopy: %d file(s) failed, worst error %s", len(e.Errs.Errors()), e.Errs.ExitCode())
	}
	return nil
}

func (e *Engine) copySymlink(src, dst, rel string) error {
	if e.Opts.DryRun {
		return nil
	}
	target, err := os.Readlink(filepath.Join(src, rel))
	if err != nil {
		e.Errs.Add(rsyncerr.New(rsyncerr.RerrFileIO, "readlink", filepath.Join(src, rel), err))
		return nil
	}
	destPath := filepath.Join(dst, rel)
	_ = os.Remove(destPath)
	if err := os.Symlink(target, destPath); err != nil {
		e.Errs.Add(rsyncerr.New(rsyncerr.RerrFileIO, "symlink", destPath, err))
		return nil
	}
	e.applyMetadata(filepath.Join(src, rel), destPath, rel, false)
	return nil
}

// copyFile reproduces one regular file at dstDir/rel, reusing a basis
// from --compare-dest/--copy-dest/--link-dest when one matches, and
// otherwise staging a full copy through a DestinationWriteGuard.
func (e *Engine) copyFile(srcPath, dstDir, rel string) error {
	if e.Opts.DryRun {
		return nil
	}

	if basis, linkOnly, ok := e.findAlternateBasis(srcPath, rel); ok {
		if linkOnly {
			destPath := filepath.Join(dstDir, rel)
			if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
				return err
			}
			_ = os.Remove(destPath)
			if err := os.Link(basis, destPath); err == nil {
				e.applyMetadata(srcPath, destPath, rel, true)
				return nil
			}
			// Fall through to a full copy if hardlinking failed
			// (e.g. cross-device).
		} else {
			// --compare-dest/--copy-dest: an identical basis means
			// nothing needs to be written at all.
			return nil
		}
	}

	in, err := os.Open(srcPath)
	if err != nil {
		e.Errs.Add(rsyncerr.New(rsyncerr.RerrFileIO, "open", srcPath, err))
		return nil
	}
	defer in.Close()

	guard, err := Begin(dstDir, rel, e.Opts.PartialMode)
	if err != nil {
		e.Errs.Add(rsyncerr.New(rsyncerr.RerrPartial, "stage", filepath.Join(dstDir, rel), err))
		return nil
	}

	if _, err := io.Copy(guard, in); err != nil {
		_ = guard.Abort()
		if isStorageFull(err) {
			e.Errs.Add(rsyncerr.New(rsyncerr.RerrPartial, "write", guard.FinalPath(), err))
		} else {
			e.Errs.Add(rsyncerr.New(rsyncerr.RerrFileIO, "write", guard.FinalPath(), err))
		}
		return nil
	}

	if err := guard.Commit(); err != nil {
		e.Errs.Add(rsyncerr.New(rsyncerr.RerrFileIO, "commit", guard.FinalPath(), err))
		return nil
	}
	e.applyMetadata(srcPath, guard.FinalPath(), rel, true)
	return nil
}

// findAlternateBasis checks LinkDirs then CompareDirs, in order, for a
// same-named file whose content is verified identical to srcPath (spec
// §4.8 "--compare-dest", "--link-dest"). linkOnly reports whether the
// caller should attempt a hardlink (LinkDirs) rather than skip the
// write entirely (CompareDirs). --copy-dest is intentionally not given
// a skip-write fast path here: since this engine only runs for
// same-host transfers, copying its basis costs the same local I/O as
// copying src, so an identical-content match simply falls through to
// the ordinary full copy below.
func (e *Engine) findAlternateBasis(srcPath, rel string) (path string, linkOnly bool, ok bool) {
	for _, dir := range e.Opts.LinkDirs {
		p := filepath.Join(dir, rel)
		if e.identical(srcPath, p) {
			return p, true, true
		}
	}
	for _, dir := range e.Opts.CompareDirs {
		p := filepath.Join(dir, rel)
		if e.identical(srcPath, p) {
			return p, false, true
		}
	}
	return "", false, false
}

// identical reports whether a and b have the same size and checksum.
func (e *Engine) identical(a, b string) bool {
	sa, err := os.Stat(a)
	if err != nil {
		return false
	}
	sb, err := os.Stat(b)
	if err != nil || sb.Size() != sa.Size() {
		return false
	}
	if e.Opts.NewDigest == nil {
		// No digest configured: fall back to size+mtime, matching
		// upstream's default (non-checksum) quick-check.
		return sb.ModTime().Equal(sa.ModTime())
	}
	ha, err := fileDigest(a, e.Opts.NewDigest)
	if err != nil {
		return false
	}
	hb, err := fileDigest(b, e.Opts.NewDigest)
	if err != nil {
		return false
	}
	return bytes.Equal(ha, hb)
}

func fileDigest(path string, newDigest func() hashing.Digester) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d := newDigest()
	buf := make([]byte, 64*1024)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			d.Update(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return d.Finalize(), nil
}

// deleteExtraneous removes files present in dst but not in src,
// honoring MaxDelete (spec §4.8 "A deletion pass is gated by a
// max_delete counter; exceeding it fails the whole run before any
// deletion commits").
func (e *Engine) deleteExtraneous(src, dst string) error {
	var toDelete []string
	err := filepath.Walk(dst, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == dst {
			return nil
		}
		rel, err := filepath.Rel(dst, path)
		if err != nil {
			return err
		}
		if _, err := os.Lstat(filepath.Join(src, rel)); os.IsNotExist(err) {
			toDelete = append(toDelete, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if e.Opts.MaxDelete > 0 && len(toDelete) > e.Opts.MaxDelete {
		return rsyncerr.New(rsyncerr.RerrDelLimit, "delete",
			dst, fmt.Errorf("%d deletions exceeds --max-delete=%d", len(toDelete), e.Opts.MaxDelete))
	}

	if e.Opts.DryRun {
		return nil
	}

	// Remove deepest paths first so directories empty out before their
	// own removal is attempted.
	for i := len(toDelete) - 1; i >= 0; i-- {
		if err := os.RemoveAll(toDelete[i]); err != nil && !os.IsNotExist(err) {
			e.Errs.Add(rsyncerr.New(rsyncerr.RerrFileIO, "delete", toDelete[i], err))
		}
	}
	return nil
}

func isStorageFull(err error) bool {
	return err != nil && isENOSPC(err)
}

// applyMetadata stats srcPath and applies the configured attributes to
// destPath (spec §4.9, C9). Failures are recorded as per-file errors
// rather than aborting the copy.
func (e *Engine) applyMetadata(srcPath, destPath, rel string, followSymlink bool) {
	info, err := os.Lstat(srcPath)
	if err != nil {
		e.Errs.Add(rsyncerr.New(rsyncerr.RerrFileIO, "stat", srcPath, err))
		return
	}

	entry := &flist.Entry{
		Name:    rel,
		Mode:    uint32(info.Mode().Perm()),
		Size:    info.Size(),
		ModTime: info.ModTime().Unix(),
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		entry.Mode |= 0o120000
	case info.IsDir():
		entry.Mode |= 0o040000
	default:
		entry.Mode |= 0o100000
	}
	if uid, gid, ok := ownerIDs(info); ok {
		entry.UID, entry.GID = uid, gid
	}

	for _, err := range metadata.Apply(e.Opts.Metadata, destPath, entry, followSymlink, e.Opts.AclXattr) {
		e.Errs.Add(rsyncerr.New(rsyncerr.RerrFileIO, "apply metadata", destPath, err))
	}
}
