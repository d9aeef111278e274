package maincmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/oferchen/oc-rsync/internal/log"
	"github.com/oferchen/oc-rsync/internal/negotiate"
	"github.com/oferchen/oc-rsync/internal/proxy"
	"github.com/oferchen/oc-rsync/internal/rsyncopts"
	"github.com/oferchen/oc-rsync/internal/rsyncos"
	"github.com/oferchen/oc-rsync/internal/rsyncstats"
	"github.com/oferchen/oc-rsync/internal/version"
)

// socketClient dials an rsync daemon directly over TCP and speaks the
// @RSYNCD greeting/module-selection protocol, then hands the connection to
// clientRun for the actual transfer (rsync/clientserver.c:start_socket_client).
func socketClient(ctx context.Context, osenv rsyncos.Std, opts *rsyncopts.Options, host, path string, port int, other string) (*rsyncstats.TransferStats, error) {
	if port == 0 {
		port = defaultRsyncPort
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	conn, err := dialDaemon(ctx, opts, addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	module := path
	modulePath := ""
	if idx := strings.IndexByte(path, '/'); idx > -1 {
		module = path[:idx]
		modulePath = path[idx+1:]
	}

	done, err := daemonHandshake(osenv, opts, conn, module)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, nil
	}

	dest := other
	if modulePath != "" {
		dest = modulePath
	}

	return clientRun(osenv, opts, conn, []string{dest}, false)
}

// dialDaemon connects to addr, routing through the RSYNC_PROXY HTTP
// CONNECT tunnel when that environment variable is set
// (rsync/clientserver.c:establish_proxy_connection).
func dialDaemon(ctx context.Context, opts *rsyncopts.Options, addr string) (net.Conn, error) {
	if proxyEnv := os.Getenv("RSYNC_PROXY"); proxyEnv != "" {
		cfg, err := proxy.Parse(proxyEnv)
		if err != nil {
			return nil, fmt.Errorf("RSYNC_PROXY: %w", err)
		}
		if opts.Verbose() {
			log.Printf("connecting to rsync daemon at %s via proxy %s", addr, cfg.Host)
		}
		return proxy.Dial(ctx, cfg, addr)
	}

	if opts.Verbose() {
		log.Printf("connecting to rsync daemon at %s", addr)
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing rsync daemon %s: %v", addr, err)
	}
	return conn, nil
}

// startInbandExchange speaks the same @RSYNCD greeting, but over a
// remote-shell-piped connection rather than a raw socket, for daemon
// connections reached via --rsh (rsync/clientserver.c:start_inband_exchange).
func startInbandExchange(osenv rsyncos.Std, opts *rsyncopts.Options, conn io.ReadWriter, module, path string) (bool, error) {
	return daemonHandshake(osenv, opts, conn, module)
}

// daemonHandshake runs the client side of the daemon greeting: version
// exchange, module selection (or listing), and transmission of the
// server-side option set that would otherwise come from argv.
func daemonHandshake(osenv rsyncos.Std, opts *rsyncopts.Options, conn io.ReadWriter, module string) (done bool, err error) {
	rd := bufio.NewReader(conn)

	hs, err := negotiate.NegotiateLegacyClient(rd, conn, version.ProtocolVersion)
	if err != nil {
		return false, fmt.Errorf("negotiating protocol version with daemon: %w", err)
	}
	if opts.Verbose() {
		log.Printf("daemon protocol: %d (negotiated %d)", hs.RemoteAdvertisedProtocol(), hs.Negotiated)
	}
	if hs.LocalCapped {
		log.Printf("daemon protocol %d capped to %d by our own version limit", hs.RemoteProtocol, hs.Negotiated)
	}

	if module == "" {
		fmt.Fprintf(conn, "#list\n")
		for {
			line, err := rd.ReadString('\n')
			if err != nil {
				return false, err
			}
			line = strings.TrimRight(line, "\n")
			if line == "@RSYNCD: EXIT" {
				return true, nil
			}
			fmt.Fprintln(osenv.Stdout, line)
		}
	}

	fmt.Fprintf(conn, "%s\n", module)

	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return false, err
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if strings.HasPrefix(trimmed, "@ERROR") {
			return false, fmt.Errorf("daemon: %s", trimmed)
		}
		reply, msg, parseErr := negotiate.ParseDaemonReply(line)
		switch {
		case parseErr == nil && reply == negotiate.ReplyOK:
			goto moduleReady
		case parseErr == nil && reply == negotiate.ReplyAuthRequired:
			return false, fmt.Errorf("daemon requires authentication for module %q, which is not supported", strings.TrimSpace(msg))
		}
		// Anything else (MOTD text, @WARNING, or a line ParseDaemonReply
		// doesn't recognize) is surfaced as a diagnostic, matching rsync
		// daemons that print a message of the day before "@RSYNCD: OK".
		if opts.Verbose() {
			log.Printf("daemon message: %q", trimmed)
		}
	}
moduleReady:

	for _, flag := range serverOptions(opts) {
		fmt.Fprintf(conn, "%s\n", flag)
	}
	fmt.Fprintf(conn, "\n")

	return false, nil
}

// serverOptions reconstructs the subset of server-side flags a daemon
// connection needs to reproduce the client's locally-parsed options,
// mirroring rsync/options.c:server_options without the flags this
// implementation does not support.
func serverOptions(opts *rsyncopts.Options) []string {
	args := []string{"--server"}
	if opts.Sender() {
		args = append(args, "--sender")
	}
	if opts.Verbose() {
		args = append(args, "-v")
	}
	if opts.DryRun() {
		args = append(args, "-n")
	}
	if opts.Recurse() {
		args = append(args, "-r")
	}
	if opts.PreserveLinks() {
		args = append(args, "-l")
	}
	if opts.PreservePerms() {
		args = append(args, "-p")
	}
	if opts.PreserveMTimes() {
		args = append(args, "-t")
	}
	if opts.PreserveUid() {
		args = append(args, "-o")
	}
	if opts.PreserveGid() {
		args = append(args, "-g")
	}
	if opts.PreserveDevices() {
		args = append(args, "-D")
	}
	if opts.PreserveSpecials() {
		args = append(args, "-D")
	}
	if opts.PreserveHardLinks() {
		args = append(args, "-H")
	}
	if opts.DeleteMode() {
		args = append(args, "--delete")
	}
	if opts.AlwaysChecksum() {
		args = append(args, "-c")
	}
	if opts.UpdateOnly() {
		args = append(args, "-u")
	}
	args = append(args, ".")
	return args
}
