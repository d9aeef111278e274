// Package proxy implements the RSYNC_PROXY environment variable
// convention: tunneling the daemon TCP connection through an HTTP(S)
// proxy via the CONNECT method (rsync/clientserver.c:establish_proxy_connection).
package proxy

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Config describes a proxy endpoint parsed from RSYNC_PROXY, of the form
// "[http[s]://][user:password@]host:port".
type Config struct {
	Scheme   string
	Host     string
	Username string
	Password string
}

// Parse parses the RSYNC_PROXY environment variable's value. Only the
// http and https schemes are accepted; a bare "host:port" defaults to
// http.
func Parse(raw string) (*Config, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty RSYNC_PROXY value")
	}

	s := raw
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("parsing RSYNC_PROXY=%q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported RSYNC_PROXY scheme %q (only http/https)", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("RSYNC_PROXY=%q has no host", raw)
	}

	cfg := &Config{Scheme: u.Scheme, Host: u.Host}
	if u.User != nil {
		// url.Parse already percent-decodes Username()/Password().
		cfg.Username = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}
	return cfg, nil
}

// Dial connects to cfg's proxy and issues an HTTP CONNECT request for
// target ("host:port"), returning the tunneled connection once the proxy
// confirms with a 200 response; any other status is an error.
func Dial(ctx context.Context, cfg *Config, target string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("dialing proxy %s: %w", cfg.Host, err)
	}

	req := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n", target, target)
	if cfg.Username != "" {
		req += fmt.Sprintf("Proxy-Authorization: Basic %s\r\n", basicAuth(cfg.Username, cfg.Password))
	}
	req += "\r\n"

	if _, err := conn.Write([]byte(req)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("writing CONNECT request: %w", err)
	}

	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading CONNECT response: %w", err)
	}
	if !strings.Contains(status, " 200 ") {
		conn.Close()
		return nil, fmt.Errorf("proxy CONNECT to %s failed: %s", target, strings.TrimSpace(status))
	}
	// Drain the rest of the header block.
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("reading CONNECT headers: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			break
		}
	}

	if br.Buffered() > 0 {
		return &bufferedConn{Conn: conn, r: br}, nil
	}
	return conn, nil
}

func basicAuth(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}

// bufferedConn wraps a net.Conn so any bytes the proxy sent ahead of the
// tunneled protocol (buffered while reading CONNECT's response headers)
// are not lost.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) { return b.r.Read(p) }
