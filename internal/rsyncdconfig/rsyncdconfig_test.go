package rsyncdconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "rsyncd.conf")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestFromFileParsesListenersAndModules(t *testing.T) {
	path := writeTemp(t, `
motd_file = "/etc/rsyncd.motd"
pid_file = "/run/rsyncd.pid"
max_connections = 4

[[listener]]
rsyncd = "0.0.0.0:873"

[[listener]]
anon_ssh = "0.0.0.0:22"

[[module]]
name = "pub"
path = "/srv/pub"
writable = false

[[module]]
name = "backup"
path = "/srv/backup"
writable = true
acl = ["allow 10.0.0.0/8", "deny all"]
`)

	cfg, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if len(cfg.Listeners) != 2 {
		t.Fatalf("got %d listeners, want 2", len(cfg.Listeners))
	}
	if cfg.Listeners[0].Rsyncd != "0.0.0.0:873" {
		t.Errorf("Listeners[0].Rsyncd = %q", cfg.Listeners[0].Rsyncd)
	}
	if cfg.Listeners[1].AnonSSH != "0.0.0.0:22" {
		t.Errorf("Listeners[1].AnonSSH = %q", cfg.Listeners[1].AnonSSH)
	}
	if cfg.MaxConnections != 4 {
		t.Errorf("MaxConnections = %d, want 4", cfg.MaxConnections)
	}
	if len(cfg.Modules) != 2 {
		t.Fatalf("got %d modules, want 2", len(cfg.Modules))
	}

	backup := cfg.ModuleByName("backup")
	if backup == nil {
		t.Fatal("ModuleByName(backup) = nil")
	}
	if !backup.Writable {
		t.Errorf("backup.Writable = false, want true")
	}
	if len(backup.ACL) != 2 {
		t.Errorf("backup.ACL = %v, want 2 entries", backup.ACL)
	}

	if cfg.ModuleByName("nonexistent") != nil {
		t.Errorf("ModuleByName(nonexistent) = non-nil, want nil")
	}
}

func TestFromFileMissingPathReturnsNotExist(t *testing.T) {
	_, err := FromFile(filepath.Join(t.TempDir(), "missing.conf"))
	if err == nil {
		t.Fatal("FromFile on missing path: got nil error")
	}
	if !os.IsNotExist(err) {
		t.Errorf("FromFile error = %v, want os.IsNotExist", err)
	}
}

func TestFromDefaultFilesFallsBackToNotExist(t *testing.T) {
	saved := defaultConfigPaths
	defer func() { defaultConfigPaths = saved }()

	defaultConfigPaths = []string{
		filepath.Join(t.TempDir(), "missing-one.conf"),
		filepath.Join(t.TempDir(), "missing-two.conf"),
	}

	_, path, err := FromDefaultFiles()
	if err == nil {
		t.Fatal("FromDefaultFiles: got nil error, want not-exist")
	}
	if path != "" {
		t.Errorf("FromDefaultFiles path = %q, want empty on total failure", path)
	}
}

func TestFromDefaultFilesUsesFirstExisting(t *testing.T) {
	saved := defaultConfigPaths
	defer func() { defaultConfigPaths = saved }()

	existing := writeTemp(t, `
[[module]]
name = "only"
path = "/srv/only"
`)
	defaultConfigPaths = []string{
		filepath.Join(t.TempDir(), "missing.conf"),
		existing,
	}

	cfg, path, err := FromDefaultFiles()
	if err != nil {
		t.Fatalf("FromDefaultFiles: %v", err)
	}
	if path != existing {
		t.Errorf("FromDefaultFiles path = %q, want %q", path, existing)
	}
	if cfg.ModuleByName("only") == nil {
		t.Errorf("expected module %q to be loaded", "only")
	}
}
