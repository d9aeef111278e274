//go:build !windows && !plan9

// Package syslogsink binds the process-wide syslog facility the daemon
// logs through, modeling the binding as an RAII-style guard: one
// initialization call returns a handle, and closing that handle releases
// the binding (spec's "Global mutable state" design note).
package syslogsink

import (
	"fmt"
	"log/syslog"
)

// Priority names the POSIX LOG_* facility/severity levels a daemon
// configuration file may request, mirroring rsyncd.conf's "syslog
// facility" directive.
type Priority = syslog.Priority

// Facility name table, matching the names accepted by rsyncd.conf's
// "syslog facility" parameter.
var facilities = map[string]syslog.Priority{
	"auth":     syslog.LOG_AUTH,
	"authpriv": syslog.LOG_AUTHPRIV,
	"cron":     syslog.LOG_CRON,
	"daemon":   syslog.LOG_DAEMON,
	"ftp":      syslog.LOG_FTP,
	"kern":     syslog.LOG_KERN,
	"lpr":      syslog.LOG_LPR,
	"mail":     syslog.LOG_MAIL,
	"news":     syslog.LOG_NEWS,
	"syslog":   syslog.LOG_SYSLOG,
	"user":     syslog.LOG_USER,
	"uucp":     syslog.LOG_UUCP,
	"local0":   syslog.LOG_LOCAL0,
	"local1":   syslog.LOG_LOCAL1,
	"local2":   syslog.LOG_LOCAL2,
	"local3":   syslog.LOG_LOCAL3,
	"local4":   syslog.LOG_LOCAL4,
	"local5":   syslog.LOG_LOCAL5,
	"local6":   syslog.LOG_LOCAL6,
	"local7":   syslog.LOG_LOCAL7,
}

// FacilityByName resolves an rsyncd.conf "syslog facility" value to the
// corresponding syslog.Priority, defaulting to LOG_DAEMON for an unknown
// or empty name.
func FacilityByName(name string) syslog.Priority {
	if p, ok := facilities[name]; ok {
		return p
	}
	return syslog.LOG_DAEMON
}

// Sink is the RAII guard returned by Open: it owns the process-wide
// syslog binding and must be closed (typically via defer) once the
// daemon is done logging through it.
type Sink struct {
	w *syslog.Writer
}

// Open binds the process to syslog under the given facility and tag,
// returning a Sink guard. Only one Sink should be open at a time, since
// the binding it wraps is itself process-wide.
func Open(facility syslog.Priority, tag string) (*Sink, error) {
	w, err := syslog.New(facility|syslog.LOG_INFO, tag)
	if err != nil {
		return nil, fmt.Errorf("binding syslog facility: %w", err)
	}
	return &Sink{w: w}, nil
}

// Close releases the syslog binding. Safe to call on a nil Sink.
func (s *Sink) Close() error {
	if s == nil || s.w == nil {
		return nil
	}
	return s.w.Close()
}

// Infof logs an informational line.
func (s *Sink) Infof(format string, args ...interface{}) {
	if s == nil || s.w == nil {
		return
	}
	s.w.Info(fmt.Sprintf(format, args...))
}

// Warningf logs a warning line.
func (s *Sink) Warningf(format string, args ...interface{}) {
	if s == nil || s.w == nil {
		return
	}
	s.w.Warning(fmt.Sprintf(format, args...))
}

// Errf logs an error line.
func (s *Sink) Errf(format string, args ...interface{}) {
	if s == nil || s.w == nil {
		return
	}
	s.w.Err(fmt.Sprintf(format, args...))
}
