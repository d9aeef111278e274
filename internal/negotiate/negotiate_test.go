package negotiate

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/oferchen/oc-rsync/internal/version"
)

func TestBinaryHandshakeAgreesOnMinVersion(t *testing.T) {
	var serverSide bytes.Buffer
	// Simulate: peer already wrote version 30 and compat flag 0x01.
	serverSide.Write([]byte{0, 0, 0, 30})
	serverSide.WriteByte(0x01)

	var out bytes.Buffer
	conn := &readWriterStub{r: &serverSide, w: &out}

	hs, err := NegotiateBinary(conn, version.ProtocolVersion, 0x05)
	if err != nil {
		t.Fatalf("NegotiateBinary: %v", err)
	}
	if hs.Negotiated != 30 {
		t.Errorf("Negotiated = %d, want 30", hs.Negotiated)
	}
	if hs.RemoteAdvertised != 30 {
		t.Errorf("RemoteAdvertised = %d, want 30", hs.RemoteAdvertised)
	}
	if hs.Clamped {
		t.Errorf("Clamped = true, want false for in-range version")
	}
	if hs.CompatFlags != 0x01 {
		t.Errorf("CompatFlags = %#x, want 0x01", hs.CompatFlags)
	}
}

type readWriterStub struct {
	r *bytes.Buffer
	w *bytes.Buffer
}

func (s *readWriterStub) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *readWriterStub) Write(p []byte) (int, error) { return s.w.Write(p) }

func TestBinaryHandshakeClampsOutOfRangeVersion(t *testing.T) {
	var in bytes.Buffer
	in.Write([]byte{0, 0, 3, 231}) // 999
	in.WriteByte(0x00)
	var out bytes.Buffer
	conn := &readWriterStub{r: &in, w: &out}

	hs, err := NegotiateBinary(conn, version.ProtocolVersion, 0)
	if err != nil {
		t.Fatalf("NegotiateBinary: %v", err)
	}
	if hs.RemoteAdvertised != 999 {
		t.Errorf("RemoteAdvertised = %d, want 999 (unclamped raw value retained)", hs.RemoteAdvertised)
	}
	if !hs.Clamped {
		t.Errorf("Clamped = false, want true")
	}
	if hs.Negotiated != version.ProtocolVersion {
		t.Errorf("Negotiated = %d, want %d", hs.Negotiated, version.ProtocolVersion)
	}
}

func TestLegacyClientParsesServerGreeting(t *testing.T) {
	server := "@RSYNCD: 31.0 sha512 sha1 md5 md4\n"
	r := bufio.NewReader(strings.NewReader(server))
	var out bytes.Buffer

	hs, err := NegotiateLegacyClient(r, &out, version.ProtocolVersion)
	if err != nil {
		t.Fatalf("NegotiateLegacyClient: %v", err)
	}
	if hs.RemoteAdvertised != 31 {
		t.Errorf("RemoteAdvertised = %d, want 31", hs.RemoteAdvertised)
	}
	if hs.Negotiated != 31 {
		t.Errorf("Negotiated = %d, want 31", hs.Negotiated)
	}
	if got := out.String(); got != "@RSYNCD: 32.0\n" {
		t.Errorf("echoed banner = %q, want %q", got, "@RSYNCD: 32.0\n")
	}
}

// TestLegacyClientLocalCapReducesNegotiatedVersion covers spec scenario
// S1: the server advertises 31.0 but our own cap sits below that, so the
// negotiated version must come from localCap, and LocalCapped must
// distinguish this from a clamp against the peer's raw advertisement.
func TestLegacyClientLocalCapReducesNegotiatedVersion(t *testing.T) {
	server := "@RSYNCD: 31.0\n"
	r := bufio.NewReader(strings.NewReader(server))
	var out bytes.Buffer

	const localCap = 29
	hs, err := NegotiateLegacyClient(r, &out, localCap)
	if err != nil {
		t.Fatalf("NegotiateLegacyClient: %v", err)
	}
	if hs.Negotiated != localCap {
		t.Errorf("Negotiated = %d, want %d", hs.Negotiated, localCap)
	}
	if hs.RemoteProtocol != 31 {
		t.Errorf("RemoteProtocol = %d, want 31 (peer's advertisement needed no clamping)", hs.RemoteProtocol)
	}
	if hs.Clamped {
		t.Errorf("Clamped = true, want false: the peer's raw advertisement (31) was in range")
	}
	if !hs.LocalCapped {
		t.Errorf("LocalCapped = false, want true: negotiated (%d) was reduced by our own cap (%d)", hs.Negotiated, localCap)
	}
}

func TestLegacyClientLocalCapNotSetWhenUnconstrained(t *testing.T) {
	server := "@RSYNCD: 31.0\n"
	r := bufio.NewReader(strings.NewReader(server))
	var out bytes.Buffer

	hs, err := NegotiateLegacyClient(r, &out, version.ProtocolVersion)
	if err != nil {
		t.Fatalf("NegotiateLegacyClient: %v", err)
	}
	if hs.LocalCapped {
		t.Errorf("LocalCapped = true, want false: localCap (%d) did not reduce Negotiated (%d)", version.ProtocolVersion, hs.Negotiated)
	}
}

func TestBinaryHandshakeLocalCapReducesNegotiatedVersion(t *testing.T) {
	var in bytes.Buffer
	in.Write([]byte{0, 0, 0, 31}) // peer advertises 31
	in.WriteByte(0x00)
	var out bytes.Buffer
	conn := &readWriterStub{r: &in, w: &out}

	const localCap = 29
	hs, err := NegotiateBinary(conn, localCap, 0)
	if err != nil {
		t.Fatalf("NegotiateBinary: %v", err)
	}
	if hs.Negotiated != localCap {
		t.Errorf("Negotiated = %d, want %d", hs.Negotiated, localCap)
	}
	if hs.Clamped {
		t.Errorf("Clamped = true, want false: the peer's raw advertisement (31) was in range")
	}
	if !hs.LocalCapped {
		t.Errorf("LocalCapped = false, want true: negotiated (%d) was reduced by our own cap (%d)", hs.Negotiated, localCap)
	}
}

func TestLegacyGreetingRejectsNonNumericVersion(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("@RSYNCD: beta\n"))
	var out bytes.Buffer
	_, err := NegotiateLegacyClient(r, &out, version.ProtocolVersion)
	if _, ok := err.(*MalformedLegacyGreeting); !ok {
		t.Fatalf("got %v (%T), want *MalformedLegacyGreeting", err, err)
	}
}

func TestLegacyGreetingRejectsMissingPrefix(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("HELLO WORLD\n"))
	var out bytes.Buffer
	_, err := NegotiateLegacyClient(r, &out, version.ProtocolVersion)
	if _, ok := err.(*MalformedLegacyGreeting); !ok {
		t.Fatalf("got %v (%T), want *MalformedLegacyGreeting", err, err)
	}
}

func TestParseDaemonReplyVariants(t *testing.T) {
	cases := []struct {
		line   string
		want   DaemonReply
		module string
	}{
		{"@RSYNCD: OK\n", ReplyOK, ""},
		{"@RSYNCD: AUTHREQD mymodule\n", ReplyAuthRequired, "mymodule"},
		{"@RSYNCD: EXIT\n", ReplyExit, ""},
	}
	for _, c := range cases {
		reply, module, err := ParseDaemonReply(c.line)
		if err != nil {
			t.Fatalf("ParseDaemonReply(%q): %v", c.line, err)
		}
		if reply != c.want {
			t.Errorf("ParseDaemonReply(%q) = %v, want %v", c.line, reply, c.want)
		}
		if module != c.module {
			t.Errorf("ParseDaemonReply(%q) module = %q, want %q", c.line, module, c.module)
		}
	}
}

func TestParseDaemonReplyError(t *testing.T) {
	_, msg, err := ParseDaemonReply("@ERROR: access denied\n")
	if err == nil {
		t.Fatalf("expected error for @ERROR: banner")
	}
	if msg != "access denied" {
		t.Errorf("message = %q, want %q", msg, "access denied")
	}
}

func TestWithReplayPrependsBufferedBytes(t *testing.T) {
	hs := &SessionHandshake{}
	rest := strings.NewReader(" rest")
	hs.WithReplay([]byte("buffered"), rest)
	buf := make([]byte, 64)
	n, _ := hs.ReplayStream.Read(buf)
	if string(buf[:n]) != "buffered" {
		t.Errorf("first read = %q, want %q", buf[:n], "buffered")
	}
}
