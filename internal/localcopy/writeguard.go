package localcopy

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// PartialModeKind selects how a DestinationWriteGuard names, locates,
// and retains its staging file (spec §4.8 "Staging and partial mode").
type PartialModeKind int

const (
	// Discard stages writes in the destination directory and unlinks
	// the staging file on any failure.
	Discard PartialModeKind = iota
	// KeepInPlace retains a failed attempt's data as a
	// ".rsync-partial-<name>" sibling of the destination, as a resumable
	// basis.
	KeepInPlace
	// KeepInDir retains a failed attempt's data under a separate
	// directory (relative to the destination directory, or absolute).
	KeepInDir
)

// PartialMode selects a DestinationWriteGuard's staging/retention
// policy. Dir is only meaningful for KeepInDir.
type PartialMode struct {
	Kind PartialModeKind
	Dir  string
}

// DestinationWriteGuard mediates one destination file write: it stages
// data in a temporary location and, on Commit, atomically renames it
// into place; on Abort it either unlinks the staging file or keeps it as
// a resumable basis, depending on the configured PartialMode. Cleanup
// without a prior Commit or Abort always unlinks the staging file.
type DestinationWriteGuard struct {
	mode       PartialMode
	destDir    string
	name       string
	stagePath  string
	pending    *renameio.PendingFile
	committed  bool
	kept       bool
}

// Begin opens a new DestinationWriteGuard for a file named name inside
// destDir. The renameio.PendingFile is always rooted at FinalPath: a
// successful Commit must land the data under its real name regardless
// of PartialMode, which only governs where a failed attempt's data is
// retained (see stagingPath, Keep).
func Begin(destDir, name string, mode PartialMode) (*DestinationWriteGuard, error) {
	stagePath, err := stagingPath(destDir, name, mode)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(stagePath), 0o755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}

	finalPath := filepath.Join(destDir, name)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating destination directory: %w", err)
	}
	pending, err := renameio.NewPendingFile(finalPath)
	if err != nil {
		return nil, fmt.Errorf("opening staging file for %s: %w", finalPath, err)
	}

	return &DestinationWriteGuard{
		mode:      mode,
		destDir:   destDir,
		name:      name,
		stagePath: stagePath,
		pending:   pending,
	}, nil
}

// stagingPath returns the name a failed attempt's data is retained
// under for the given PartialMode — never the renameio commit target
// (that is always FinalPath; see Begin). Discard's name is only ever
// used as a label, since Discard's Abort unlinks the temp file outright
// rather than calling Keep.
func stagingPath(destDir, name string, mode PartialMode) (string, error) {
	switch mode.Kind {
	case KeepInPlace:
		return filepath.Join(destDir, ".rsync-partial-"+name), nil
	case KeepInDir:
		dir := mode.Dir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(destDir, dir)
		}
		return filepath.Join(dir, name), nil
	case Discard:
		return filepath.Join(destDir, fmt.Sprintf(".rsync-tmp-%s.%d", name, os.Getpid())), nil
	default:
		return "", fmt.Errorf("localcopy: unknown PartialModeKind %d", mode.Kind)
	}
}

// FinalPath returns the path Commit will rename the staged file to.
func (g *DestinationWriteGuard) FinalPath() string {
	return filepath.Join(g.destDir, g.name)
}

// PartialBasisPath returns the path an earlier, failed attempt would
// have left its resumable basis at, for the given mode — used to look
// for a basis file to resume from before starting a fresh transfer.
func PartialBasisPath(destDir, name string, mode PartialMode) (string, bool) {
	if mode.Kind == Discard {
		return "", false
	}
	path, err := stagingPath(destDir, name, mode)
	if err != nil {
		return "", false
	}
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

func (g *DestinationWriteGuard) Write(p []byte) (int, error) {
	return g.pending.Write(p)
}

// Commit finalizes the staged file, atomically renaming it onto
// FinalPath().
func (g *DestinationWriteGuard) Commit() error {
	if err := g.pending.CloseAtomicallyReplace(); err != nil {
		return err
	}
	g.committed = true
	return nil
}

// Keep finalizes the staged file at its staging location rather than
// FinalPath, leaving it as a resumable basis (used by KeepInPlace and
// KeepInDir on failure). The underlying renameio.PendingFile was opened
// against FinalPath, so CloseAtomicallyReplace can't be used here (it
// would commit the partial data under the real name); instead the
// temp file is closed and moved to stagePath directly.
func (g *DestinationWriteGuard) Keep() error {
	g.kept = true
	tmpName := g.pending.Name()
	if err := g.pending.Close(); err != nil {
		return fmt.Errorf("closing staged file: %w", err)
	}
	if err := os.Rename(tmpName, g.stagePath); err != nil {
		return fmt.Errorf("retaining partial file at %s: %w", g.stagePath, err)
	}
	return nil
}

// Abort cleans up after a failed write: in Discard mode the staging
// file is unlinked; in KeepInPlace/KeepInDir modes it is retained via
// Keep so a later run can resume from it.
func (g *DestinationWriteGuard) Abort() error {
	if g.committed || g.kept {
		return nil
	}
	if g.mode.Kind != Discard {
		return g.Keep()
	}
	return g.pending.Cleanup()
}

// Cleanup releases any resources still held if neither Commit nor Abort
// was called (e.g. after a panic during the write). Safe to call after
// Commit or Abort.
func (g *DestinationWriteGuard) Cleanup() error {
	if g.committed || g.kept {
		return nil
	}
	return g.pending.Cleanup()
}
