package maincmd

import (
	"strconv"
	"strings"
)

// checkForHostspec recognizes the two remote syntaxes rsync accepts on the
// command line: "rsync://[USER@]HOST[:PORT]/MODULE[/PATH]" and
// "[USER@]HOST:[PATH]" (spec §2, daemon vs. remote-shell transports).
// A plain local path returns a non-nil error so the caller falls through to
// local/remote-shell handling (rsync/main.c:check_for_hostspec).
func checkForHostspec(arg string) (host, path string, port int, err error) {
	if strings.HasPrefix(arg, "rsync://") {
		rest := strings.TrimPrefix(arg, "rsync://")
		slash := strings.IndexByte(rest, '/')
		if slash < 0 {
			return "", "", 0, errNotHostspec
		}
		hostport := rest[:slash]
		path = rest[slash+1:]
		port = defaultRsyncPort
		if idx := strings.LastIndexByte(hostport, ':'); idx > -1 {
			if p, perr := strconv.Atoi(hostport[idx+1:]); perr == nil {
				port = p
				hostport = hostport[:idx]
			}
		}
		return hostport, path, port, nil
	}

	// [USER@]HOST:PATH, but not a path containing a slash before the
	// colon. A Windows-style drive letter (C:\foo) is not special-cased
	// and parses as host "C".
	idx := strings.IndexByte(arg, ':')
	if idx < 0 {
		return "", "", 0, errNotHostspec
	}
	if strings.IndexByte(arg[:idx], '/') > -1 {
		return "", "", 0, errNotHostspec
	}
	host = arg[:idx]
	rest := arg[idx+1:]
	if strings.HasPrefix(rest, ":") {
		// host::module/path addresses the daemon directly without a shell.
		return host, strings.TrimPrefix(rest, ":"), defaultRsyncPort, nil
	}
	return host, rest, 0, nil
}

const defaultRsyncPort = 873

var errNotHostspec = errNotHostspecType{}

type errNotHostspecType struct{}

func (errNotHostspecType) Error() string { return "not a remote hostspec" }
