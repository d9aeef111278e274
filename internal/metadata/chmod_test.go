package metadata

import (
	"os"
	"testing"
)

func TestParseChmodOctal(t *testing.T) {
	mods, err := ParseChmod("755")
	if err != nil {
		t.Fatalf("ParseChmod: %v", err)
	}
	if len(mods) != 1 || mods[0].Octal != 0o755 {
		t.Fatalf("mods = %+v, want single octal 0755 clause", mods)
	}
	got := ApplyChmod(0o644, mods, false)
	if got.Perm() != 0o755 {
		t.Errorf("ApplyChmod = %o, want 0755", got.Perm())
	}
}

func TestChmodAddExecuteForGroup(t *testing.T) {
	mods, err := ParseChmod("g+x")
	if err != nil {
		t.Fatalf("ParseChmod: %v", err)
	}
	got := ApplyChmod(0o644, mods, false)
	if got.Perm() != 0o654 {
		t.Errorf("ApplyChmod(0644, g+x) = %o, want 0654", got.Perm())
	}
}

func TestChmodRemoveWriteForOther(t *testing.T) {
	mods, err := ParseChmod("o-w")
	if err != nil {
		t.Fatalf("ParseChmod: %v", err)
	}
	got := ApplyChmod(0o666, mods, false)
	if got.Perm() != 0o664 {
		t.Errorf("ApplyChmod(0666, o-w) = %o, want 0664", got.Perm())
	}
}

func TestChmodConditionalXOnlyWhenAlreadyExecutableOrDir(t *testing.T) {
	mods, err := ParseChmod("a+X")
	if err != nil {
		t.Fatalf("ParseChmod: %v", err)
	}
	// Regular file with no exec bits: X should not add execute.
	got := ApplyChmod(0o644, mods, false)
	if got.Perm()&0o111 != 0 {
		t.Errorf("ApplyChmod(0644, a+X, file) = %o, want no execute bits set", got.Perm())
	}
	// Directory: X should add execute for all classes.
	got = ApplyChmod(0o644, mods, true)
	if got.Perm()&0o111 != 0o111 {
		t.Errorf("ApplyChmod(0644, a+X, dir) = %o, want execute bits set for all classes", got.Perm())
	}
}

func TestChmodEqualsReplacesClassBitsOnly(t *testing.T) {
	mods, err := ParseChmod("u=rw")
	if err != nil {
		t.Fatalf("ParseChmod: %v", err)
	}
	got := ApplyChmod(0o777, mods, false)
	if got.Perm() != 0o677 {
		t.Errorf("ApplyChmod(0777, u=rw) = %o, want 0677", got.Perm())
	}
}

func TestChmodDirOnlyModifierSkipsFiles(t *testing.T) {
	mods, err := ParseChmod("Dg+s")
	if err != nil {
		t.Fatalf("ParseChmod: %v", err)
	}
	fileResult := ApplyChmod(0o644, mods, false)
	if fileResult.Perm()&0o7777 != 0o644 {
		t.Errorf("ApplyChmod on file with D-only clause changed mode: %o", fileResult.Perm())
	}
	dirResult := ApplyChmod(0o755, mods, true)
	if os.FileMode(dirResult)&0o2000 == 0 {
		t.Errorf("ApplyChmod on dir with Dg+s clause did not set setgid bit: %o", dirResult)
	}
}

func TestChmodMultipleClausesAppliedInOrder(t *testing.T) {
	mods, err := ParseChmod("u+rwx,go-rwx")
	if err != nil {
		t.Fatalf("ParseChmod: %v", err)
	}
	got := ApplyChmod(0o000, mods, false)
	if got.Perm() != 0o700 {
		t.Errorf("ApplyChmod(0000, u+rwx,go-rwx) = %o, want 0700", got.Perm())
	}
}
