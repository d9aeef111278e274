// Package localcopy drives a same-host source->destination copy without
// a wire protocol, reusing internal/filter for rule evaluation and
// internal/metadata for attribute application so a local transfer
// honors the same contract as a remote one.
package localcopy

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/oferchen/oc-rsync/internal/filter"
)

// Kind identifies what a VisitEvent reports.
type Kind int

const (
	EnterDir Kind = iota
	File
	Symlink
	Device
	LeaveDir
	SkippedByFilter
	SkippedMountPoint
)

func (k Kind) String() string {
	switch k {
	case EnterDir:
		return "EnterDir"
	case File:
		return "File"
	case Symlink:
		return "Symlink"
	case Device:
		return "Device"
	case LeaveDir:
		return "LeaveDir"
	case SkippedByFilter:
		return "SkippedByFilter"
	case SkippedMountPoint:
		return "SkippedMountPoint"
	default:
		return "Unknown"
	}
}

// VisitEvent is one step of a Walker's traversal.
type VisitEvent struct {
	Kind    Kind
	RelPath string // relative to the traversal root, "." for the root itself
	Info    os.FileInfo
}

// Walker performs a recursive traversal of one source tree, consulting a
// filter.Program and optionally enforcing --one-file-system semantics.
type Walker struct {
	Root           string
	Filter         *filter.Program
	OneFileSystem bool

	rootDev uint64
	haveDev bool
}

// Walk visits Root and all its descendants in depth-first, lexical
// order, calling visit for each VisitEvent. A non-nil error from visit
// aborts the walk and is returned as-is.
func (w *Walker) Walk(visit func(VisitEvent) error) error {
	info, err := os.Lstat(w.Root)
	if err != nil {
		return err
	}
	if w.OneFileSystem {
		if dev, ok := deviceID(info); ok {
			w.rootDev = dev
			w.haveDev = true
		}
	}
	return w.walk(".", info, visit)
}

func (w *Walker) walk(rel string, info os.FileInfo, visit func(VisitEvent) error) error {
	abs := filepath.Join(w.Root, rel)

	isDir := info.IsDir()
	if w.Filter != nil && rel != "." {
		decision := w.Filter.Match(rel, isDir, filter.SideSender)
		if decision == filter.DecisionExclude {
			return visit(VisitEvent{Kind: SkippedByFilter, RelPath: rel, Info: info})
		}
	}

	switch {
	case isDir:
		if w.OneFileSystem && w.haveDev {
			if dev, ok := deviceID(info); ok && dev != w.rootDev {
				return visit(VisitEvent{Kind: SkippedMountPoint, RelPath: rel, Info: info})
			}
		}
		if err := visit(VisitEvent{Kind: EnterDir, RelPath: rel, Info: info}); err != nil {
			return err
		}
		entries, err := os.ReadDir(abs)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		sort.Strings(names)
		for _, name := range names {
			childRel := name
			if rel != "." {
				childRel = filepath.Join(rel, name)
			}
			childInfo, err := os.Lstat(filepath.Join(w.Root, childRel))
			if err != nil {
				return err
			}
			if err := w.walk(childRel, childInfo, visit); err != nil {
				return err
			}
		}
		return visit(VisitEvent{Kind: LeaveDir, RelPath: rel, Info: info})

	case info.Mode()&os.ModeSymlink != 0:
		return visit(VisitEvent{Kind: Symlink, RelPath: rel, Info: info})

	case info.Mode()&(os.ModeDevice|os.ModeCharDevice) != 0:
		return visit(VisitEvent{Kind: Device, RelPath: rel, Info: info})

	default:
		return visit(VisitEvent{Kind: File, RelPath: rel, Info: info})
	}
}
