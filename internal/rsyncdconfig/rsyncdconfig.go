// Package rsyncdconfig loads the daemon's rsyncd.conf-style
// configuration from TOML (spec §6 "Daemon configuration file"),
// grounded on the Config/Listener types referenced (but not defined in
// the retrieved slice) from internal/maincmd/maincmd.go, and the
// Module struct already present in rsyncd/rsyncd.go. Uses
// github.com/BurntSushi/toml, the natural ecosystem choice for the
// struct-tag-driven toml:"name" fields already on rsyncd.Module.
package rsyncdconfig

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/oferchen/oc-rsync/rsyncd"
)

// Listener configures one address the daemon binds: a classic
// rsync:// listener, and/or an anonymous-SSH listener for the
// rsync-over-ssh transport.
type Listener struct {
	Rsyncd  string `toml:"rsyncd"`
	AnonSSH string `toml:"anon_ssh"`
}

// Config is the top-level daemon configuration document.
type Config struct {
	Listeners []Listener      `toml:"listener"`
	Modules   []rsyncd.Module `toml:"module"`

	// MotdFile holds upstream's "motd file" global option. It is parsed
	// but not used: the daemon sends no message of the day.
	MotdFile string `toml:"motd_file"`
	// PidFile holds the "pid file" path. It is parsed but not used: no
	// pid file is written.
	PidFile string `toml:"pid_file"`
	// MaxConnections holds upstream's "max connections" global option. It
	// is parsed but not used: the daemon does not limit connections.
	MaxConnections int `toml:"max_connections"`
	// SyslogFacility names the syslog facility daemon log messages are
	// sent to (e.g. "daemon", "local5"), mirroring upstream's "syslog
	// facility" global option. Empty disables syslog logging.
	SyslogFacility string `toml:"syslog_facility"`
}

// defaultConfigPaths mirrors upstream rsync's search order for an
// unspecified --config argument.
var defaultConfigPaths = []string{
	"/etc/rsyncd.conf",
	"/etc/rsync/rsyncd.conf",
}

// FromFile parses a TOML config document at path.
func FromFile(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromDefaultFiles tries each of defaultConfigPaths in order, returning
// the first one that exists along with its parsed Config. If none
// exist, it returns the os.IsNotExist error for the last path tried, as
// maincmd.go's caller expects (a missing config file is not fatal —
// flags can drive the daemon instead).
func FromDefaultFiles() (*Config, string, error) {
	var lastErr error
	for _, path := range defaultConfigPaths {
		cfg, err := FromFile(path)
		if err == nil {
			return cfg, path, nil
		}
		lastErr = err
		if !os.IsNotExist(err) {
			return nil, path, err
		}
	}
	return nil, "", lastErr
}

// ModuleByName finds a configured module, or nil if none matches.
func (c *Config) ModuleByName(name string) *rsyncd.Module {
	for i := range c.Modules {
		if c.Modules[i].Name == name {
			return &c.Modules[i]
		}
	}
	return nil
}
