// Chmod symbolic-modifier grammar (spec §4.9 "Permissions"), filling in
// the gap left by internal/rsyncopts/rsyncopts.go's OPT_CHMOD case
// (errNotYetImplemented), generalized from rsyncopts.go's unicode-aware
// token-scanning style to the standard [ugoa][+-=][rwxXst] grammar.
package metadata

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ChmodModifier is one comma-separated clause of a --chmod argument,
// e.g. "Dg+s" or "u+rwx" or "755".
type ChmodModifier struct {
	// Classes this clause applies to: any combination of 'u','g','o','a'.
	// Empty means "a" (all), matching the grammar's default.
	Classes string
	// DirOnly/FileOnly restrict the clause to directories or regular
	// files (leading 'D'/'F' per upstream's extension).
	DirOnly  bool
	FileOnly bool
	Op       byte // '+', '-', or '='
	// Read through Sticky are the rwxXst bits this clause manipulates;
	// CondExecute requests the conditional-execute behavior ('X': only
	// if already a directory or already executable for someone).
	Read, Write, Execute, CondExecute, SetUID, SetGID, Sticky bool

	// Octal, when non-negative, is an absolute octal mode replacing the
	// entire permission bits (a bare numeric clause like "755").
	Octal int
}

// ParseChmod parses a full --chmod argument (comma-separated clauses).
func ParseChmod(spec string) ([]ChmodModifier, error) {
	var mods []ChmodModifier
	for _, clause := range strings.Split(spec, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		m, err := parseChmodClause(clause)
		if err != nil {
			return nil, err
		}
		mods = append(mods, m)
	}
	return mods, nil
}

func parseChmodClause(clause string) (ChmodModifier, error) {
	if v, err := strconv.ParseUint(clause, 8, 32); err == nil {
		return ChmodModifier{Octal: int(v)}, nil
	}

	var m ChmodModifier
	m.Octal = -1
	i := 0
	for i < len(clause) && (clause[i] == 'D' || clause[i] == 'F') {
		if clause[i] == 'D' {
			m.DirOnly = true
		} else {
			m.FileOnly = true
		}
		i++
	}

	classStart := i
	for i < len(clause) && strings.ContainsRune("ugoa", rune(clause[i])) {
		i++
	}
	m.Classes = clause[classStart:i]

	if i >= len(clause) || !strings.ContainsRune("+-=", rune(clause[i])) {
		return m, fmt.Errorf("metadata: invalid chmod clause %q: missing operator", clause)
	}
	m.Op = clause[i]
	i++

	for ; i < len(clause); i++ {
		switch clause[i] {
		case 'r':
			m.Read = true
		case 'w':
			m.Write = true
		case 'x':
			m.Execute = true
		case 'X':
			m.CondExecute = true
		case 's':
			if strings.Contains(m.Classes, "g") || m.Classes == "" || strings.Contains(m.Classes, "a") {
				m.SetGID = true
			}
			if strings.Contains(m.Classes, "u") || m.Classes == "" || strings.Contains(m.Classes, "a") {
				m.SetUID = true
			}
		case 't':
			m.Sticky = true
		default:
			return m, fmt.Errorf("metadata: invalid chmod clause %q: unknown flag %q", clause, clause[i])
		}
	}
	return m, nil
}

// ApplyChmod applies a sequence of parsed modifiers to mode, in order,
// the way upstream folds multiple --chmod clauses (spec §4.9
// "Permissions"). isDir, and whether mode already has any execute bit,
// tell a conditional-X clause whether to set the execute bits.
func ApplyChmod(mode os.FileMode, mods []ChmodModifier, isDir bool) os.FileMode {
	perm := uint32(mode.Perm())
	hasAnyExec := perm&0o111 != 0

	for _, m := range mods {
		if m.DirOnly && !isDir {
			continue
		}
		if m.FileOnly && isDir {
			continue
		}
		if m.Octal >= 0 {
			perm = uint32(m.Octal) & 0o7777
			continue
		}

		classes := m.Classes
		if classes == "" {
			classes = "a"
		}
		var rwxMask, clearMask uint32
		for _, c := range classes {
			var shifts []uint
			switch c {
			case 'u':
				shifts = []uint{6}
			case 'g':
				shifts = []uint{3}
			case 'o':
				shifts = []uint{0}
			case 'a':
				shifts = []uint{6, 3, 0}
			}
			for _, s := range shifts {
				rwxMask |= classMask(m, isDir, hasAnyExec, s)
				clearMask |= 0o7 << s
			}
		}
		special := specialMask(m)

		switch m.Op {
		case '+':
			perm |= rwxMask | special
		case '-':
			perm &^= rwxMask | special
		case '=':
			perm &^= clearMask
			perm |= rwxMask
			perm |= special
		}
	}
	return os.FileMode(perm&0o7777) | mode.Type()
}

func classMask(m ChmodModifier, isDir, hasAnyExec bool, shift uint) uint32 {
	var bits uint32
	if m.Read {
		bits |= 0o4
	}
	if m.Write {
		bits |= 0o2
	}
	if m.Execute || (m.CondExecute && (isDir || hasAnyExec)) {
		bits |= 0o1
	}
	return bits << shift
}

func specialMask(m ChmodModifier) uint32 {
	var bits uint32
	if m.SetUID {
		bits |= 0o4000
	}
	if m.SetGID {
		bits |= 0o2000
	}
	if m.Sticky {
		bits |= 0o1000
	}
	return bits
}
