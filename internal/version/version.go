// Package version carries the protocol-version constants and the build
// version string printed by --version.
package version

import "fmt"

// ProtocolVersion is the highest wire protocol version this implementation
// speaks natively.
const ProtocolVersion = 32

// MinProtocolVersion is the oldest wire protocol version a peer may
// negotiate down to.
const MinProtocolVersion = 27

// NanosecondsCompatFlag, IncrementalFlistCompatFlag and SymlinkTimesCompatFlag
// are bits of the compatibility-flags byte exchanged after the protocol
// version in binary handshakes (protocol >= 30). Bits 0-4 match upstream
// rsync's compat.c; upstream assigns bits 5 and 6 to its checksum-seed fix
// and inplace-partial-dir flags, which is not what the names
// Fix64BitErrorsCompatFlag and NanosecondsCompatFlag say.
const (
	IncrementalFlistCompatFlag = 1 << 0
	SymlinkTimesCompatFlag     = 1 << 1
	SymlinkIconvCompatFlag     = 1 << 2
	SafeFlistCompatFlag        = 1 << 3
	AvoidXattrOptimCompatFlag  = 1 << 4
	Fix64BitErrorsCompatFlag   = 1 << 5
	NanosecondsCompatFlag      = 1 << 6
)

// gitDescribe is set via -ldflags by release builds; it stays empty in
// development builds.
var gitDescribe string

// Read returns a human-readable version banner, mirroring oc-rsync's
// internal/version package.
func Read() string {
	v := gitDescribe
	if v == "" {
		v = "devel"
	}
	return fmt.Sprintf("oc-rsync %s (protocol %d)", v, ProtocolVersion)
}
