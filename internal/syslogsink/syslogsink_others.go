//go:build windows || plan9

// Package syslogsink binds the process-wide syslog facility the daemon
// logs through. Syslog has no equivalent on this platform, so Open
// always fails; callers fall back to the other configured log sinks.
package syslogsink

import "fmt"

// Priority mirrors syslog.Priority's type without depending on the
// log/syslog package, which is unavailable on this platform.
type Priority int

// FacilityByName always returns 0 on this platform.
func FacilityByName(name string) Priority { return 0 }

// Sink is a no-op guard on this platform.
type Sink struct{}

// Open always fails: there is no syslog facility to bind to here.
func Open(facility Priority, tag string) (*Sink, error) {
	return nil, fmt.Errorf("syslog is not supported on this platform")
}

func (s *Sink) Close() error                                { return nil }
func (s *Sink) Infof(format string, args ...interface{})    {}
func (s *Sink) Warningf(format string, args ...interface{}) {}
func (s *Sink) Errf(format string, args ...interface{})     {}
