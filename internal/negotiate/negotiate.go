// Package negotiate drives the handshake that agrees on a protocol
// version, compatibility flags, and (for the legacy path) daemon
// greeting/auth exchange, producing a SessionHandshake that carries the
// sniffer's replay stream forward (spec §4.6, C6). It combines
// internal/sniffer, internal/rsyncwire's big-endian helpers, and the
// ad hoc version exchange duplicated across the teacher's
// rsyncd/rsyncd.go (HandleDaemonConn), clientmaincmd.go, and the
// historical internal/rsyncd/rsyncd.go prototype.
package negotiate

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/oferchen/oc-rsync/internal/rsyncwire"
	"github.com/oferchen/oc-rsync/internal/sniffer"
	"github.com/oferchen/oc-rsync/internal/version"
)

// Variant records which handshake path produced a SessionHandshake.
type Variant int

const (
	VariantLegacyAscii Variant = iota
	VariantBinary
)

func (v Variant) String() string {
	if v == VariantLegacyAscii {
		return "legacy-ascii"
	}
	return "binary"
}

// UnsupportedVersion describes a peer protocol version outside
// [MinProtocolVersion, ProtocolVersion] (spec §4.6). The handshake
// functions in this package clamp such versions and never return it.
type UnsupportedVersion struct {
	Version int
}

func (e *UnsupportedVersion) Error() string {
	return fmt.Sprintf("negotiate: unsupported protocol version %d", e.Version)
}

// MalformedLegacyGreeting is returned when the "@RSYNCD:" ASCII banner
// cannot be parsed.
type MalformedLegacyGreeting struct {
	Text string
}

func (e *MalformedLegacyGreeting) Error() string {
	return fmt.Sprintf("negotiate: malformed legacy greeting: %q", e.Text)
}

// DaemonReply is the server's response after the legacy version
// exchange: OK, AUTHREQD <module>, or EXIT.
type DaemonReply int

const (
	ReplyNone DaemonReply = iota
	ReplyOK
	ReplyAuthRequired
	ReplyExit
)

// SessionHandshake is the outcome of either negotiation path.
type SessionHandshake struct {
	Variant Variant

	RemoteAdvertised int // raw value the peer sent, unclamped
	RemoteProtocol   int // clamped into [Min, Max]
	LocalAdvertised  int
	Negotiated       int
	Clamped          bool

	// LocalCapped reports whether Negotiated was reduced below
	// RemoteProtocol by our own LocalAdvertised cap, distinct from
	// Clamped (which only records that the peer's raw advertisement fell
	// outside [Min, Max]). A peer advertising a higher version than we
	// support sets this even when the peer's own advertisement needed no
	// clamping.
	LocalCapped bool

	CompatFlags byte // binary path only
	HasCompat   bool

	AuthModule string // set when DaemonReply == ReplyAuthRequired

	// ReplayStream yields any buffered sniffer bytes first, then reads
	// through to the underlying transport.
	ReplayStream io.Reader
}

func (h *SessionHandshake) RemoteAdvertisedProtocol() int { return h.RemoteAdvertised }

// clampVersion clamps v into [version.MinProtocolVersion,
// version.ProtocolVersion], reporting whether clamping occurred. Every
// out-of-range value saturates to the nearer bound; no version is
// rejected here (see DESIGN.md's Open Question note).
func clampVersion(v int) (clamped int, wasClamped bool) {
	out := v
	if out < version.MinProtocolVersion {
		out = version.MinProtocolVersion
	}
	if out > version.ProtocolVersion {
		out = version.ProtocolVersion
	}
	return out, out != v
}

// NegotiateBinary performs the binary handshake path: both peers write
// their protocol version as big-endian u32, read the peer's, then
// exchange a single compatibility-flag byte.
func NegotiateBinary(rw io.ReadWriter, localCap int, localCompatFlags byte) (*SessionHandshake, error) {
	if err := rsyncwire.WriteBigEndianUint32(rw, uint32(localCap)); err != nil {
		return nil, err
	}
	peerRaw, err := rsyncwire.ReadBigEndianUint32(rw)
	if err != nil {
		return nil, err
	}

	remote := int(peerRaw)
	clampedRemote, wasClamped := clampVersion(remote)

	negotiated := clampedRemote
	localCapped := false
	if localCap < negotiated {
		negotiated = localCap
		localCapped = true
	}

	var flagBuf [1]byte
	flagBuf[0] = localCompatFlags
	if _, err := rw.Write(flagBuf[:]); err != nil {
		return nil, err
	}
	var peerFlag [1]byte
	if _, err := io.ReadFull(rw, peerFlag[:]); err != nil {
		return nil, err
	}

	return &SessionHandshake{
		Variant:          VariantBinary,
		RemoteAdvertised: remote,
		RemoteProtocol:   clampedRemote,
		LocalAdvertised:  localCap,
		Negotiated:       negotiated,
		Clamped:          wasClamped,
		LocalCapped:      localCapped,
		CompatFlags:      peerFlag[0],
		HasCompat:        true,
	}, nil
}

// legacyBanner formats the greeting this side sends: "@RSYNCD: V.0\n".
func legacyBanner(localCap int) string {
	return fmt.Sprintf("@RSYNCD: %d.0\n", localCap)
}

// parseLegacyVersion extracts the integer major version from a greeting
// body like "31.0" or "30" (fractional suffix, CR/LF already trimmed).
func parseLegacyVersion(body string) (int, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return 0, fmt.Errorf("empty version")
	}
	major := body
	if idx := strings.IndexByte(body, '.'); idx >= 0 {
		major = body[:idx]
	}
	if idx := strings.IndexByte(major, ' '); idx >= 0 {
		major = major[:idx]
	}
	v, err := strconv.Atoi(major)
	if err != nil {
		return 0, err
	}
	return v, nil
}

// NegotiateLegacyServer performs the server side of the legacy ASCII
// path: send our greeting, read the client's echoed version line.
func NegotiateLegacyServer(r *bufio.Reader, w io.Writer, localCap int) (*SessionHandshake, error) {
	if _, err := io.WriteString(w, legacyBanner(localCap)); err != nil {
		return nil, err
	}
	line, err := readLegacyLine(r)
	if err != nil {
		return nil, err
	}
	return finishLegacy(line, localCap, VariantLegacyAscii)
}

// NegotiateLegacyClient performs the client side: read the server's
// greeting line, echo our own.
func NegotiateLegacyClient(r *bufio.Reader, w io.Writer, localCap int) (*SessionHandshake, error) {
	line, err := readLegacyLine(r)
	if err != nil {
		return nil, err
	}
	hs, err := finishLegacy(line, localCap, VariantLegacyAscii)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, legacyBanner(localCap)); err != nil {
		return nil, err
	}
	return hs, nil
}

func readLegacyLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return line, nil
}

func finishLegacy(line string, localCap int, variant Variant) (*SessionHandshake, error) {
	trimmed := strings.TrimRight(line, "\r\n")
	const prefix = "@RSYNCD:"
	if !strings.HasPrefix(trimmed, prefix) {
		return nil, &MalformedLegacyGreeting{Text: line}
	}
	body := strings.TrimSpace(trimmed[len(prefix):])

	// The body may carry a trailing digest list after the version
	// ("31.0 sha512 sha256 sha1 md5 md4"); only the first token matters
	// for version parsing.
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return nil, &MalformedLegacyGreeting{Text: line}
	}

	remote, err := parseLegacyVersion(fields[0])
	if err != nil {
		return nil, &MalformedLegacyGreeting{Text: line}
	}

	clampedRemote, wasClamped := clampVersion(remote)
	negotiated := clampedRemote
	localCapped := false
	if localCap < negotiated {
		negotiated = localCap
		localCapped = true
	}

	return &SessionHandshake{
		Variant:          variant,
		RemoteAdvertised: remote,
		RemoteProtocol:   clampedRemote,
		LocalAdvertised:  localCap,
		Negotiated:       negotiated,
		Clamped:          wasClamped,
		LocalCapped:      localCapped,
	}, nil
}

// ParseDaemonReply interprets one of the lines a daemon sends after the
// version exchange: "@RSYNCD: OK\n", "@RSYNCD: AUTHREQD <module>\n", or
// "@RSYNCD: EXIT\n". Error/warning banners ("@ERROR: ...", "@WARNING:
// ...") are returned as plain strings with the payload trimmed so the
// caller can surface them.
func ParseDaemonReply(line string) (DaemonReply, string, error) {
	trimmed := strings.TrimRight(line, "\r\n")
	switch {
	case strings.HasPrefix(trimmed, "@ERROR:"):
		return ReplyNone, strings.TrimSpace(trimmed[len("@ERROR:"):]), fmt.Errorf("daemon error: %s", strings.TrimSpace(trimmed[len("@ERROR:"):]))
	case strings.HasPrefix(trimmed, "@WARNING:"):
		return ReplyNone, strings.TrimSpace(trimmed[len("@WARNING:"):]), nil
	case strings.HasPrefix(trimmed, "@RSYNCD: OK"):
		return ReplyOK, "", nil
	case strings.HasPrefix(trimmed, "@RSYNCD: AUTHREQD"):
		module := strings.TrimSpace(strings.TrimPrefix(trimmed, "@RSYNCD: AUTHREQD"))
		return ReplyAuthRequired, module, nil
	case strings.HasPrefix(trimmed, "@RSYNCD: EXIT"):
		return ReplyExit, "", nil
	default:
		return ReplyNone, "", &MalformedLegacyGreeting{Text: line}
	}
}

// WithReplay attaches a replay stream (typically built from a Sniffer's
// buffered bytes via sniffer.ReplayReader) to an already-computed
// handshake.
func (h *SessionHandshake) WithReplay(buffered []byte, underlying io.Reader) *SessionHandshake {
	h.ReplayStream = sniffer.ReplayReader(buffered, underlying)
	return h
}
