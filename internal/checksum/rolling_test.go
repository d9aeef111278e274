package checksum

import (
	"math/rand"
	"testing"
)

func TestRollingRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("a"),
		[]byte("hello, world"),
		bytes(256, 7),
	}
	for _, b := range cases {
		r := New().Update(b)
		d := r.Digest()
		r2 := FromDigest(d)
		if got, want := r2.Digest(), r.Digest(); got != want {
			t.Errorf("FromDigest round-trip mismatch for %q: got %+v, want %+v", b, got, want)
		}
	}
}

func TestRollIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for n := 1; n <= 256; n++ {
		buf := make([]byte, n+1)
		rng.Read(buf)

		// Fresh checksum over the first n bytes, then roll by one.
		r := New().Update(buf[:n])
		if err := r.Roll(buf[0], buf[n]); err != nil {
			t.Fatalf("n=%d: Roll: %v", n, err)
		}

		// Checksum freshly computed over the shifted window.
		want := New().Update(buf[1 : n+1]).Digest()
		if got := r.Digest(); got != want {
			t.Errorf("n=%d: rolled digest = %+v, want %+v", n, got, want)
		}
	}
}

func TestRollEmptyWindow(t *testing.T) {
	r := New()
	if err := r.Roll(0, 0); err != ErrEmptyWindow {
		t.Fatalf("Roll on empty window: got %v, want ErrEmptyWindow", err)
	}
}

func TestRollManyMismatchedLength(t *testing.T) {
	r := New().Update([]byte("abc"))
	err := r.RollMany([]byte{1, 2}, []byte{1})
	if err != ErrMismatchedSliceLength {
		t.Fatalf("got %v, want ErrMismatchedSliceLength", err)
	}
}

func TestRollManyEmptyIsNoop(t *testing.T) {
	r := New().Update([]byte("abc"))
	before := r.Digest()
	if err := r.RollMany(nil, nil); err != nil {
		t.Fatalf("RollMany(nil, nil): %v", err)
	}
	if got := r.Digest(); got != before {
		t.Errorf("RollMany(nil, nil) changed digest: got %+v, want %+v", got, before)
	}
}

func TestRollManyEquivalentToRepeatedRoll(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	const n = 64
	buf := make([]byte, n+10)
	rng.Read(buf)

	r1 := New().Update(buf[:n])
	r2 := New().Update(buf[:n])

	outs := buf[0:10]
	ins := buf[n : n+10]

	for i := range outs {
		if err := r1.Roll(outs[i], ins[i]); err != nil {
			t.Fatalf("Roll: %v", err)
		}
	}
	if err := r2.RollMany(outs, ins); err != nil {
		t.Fatalf("RollMany: %v", err)
	}
	if got, want := r2.Digest(), r1.Digest(); got != want {
		t.Errorf("RollMany result = %+v, want %+v", got, want)
	}
}

func TestUpdateVectoredMatchesConcatenation(t *testing.T) {
	parts := [][]byte{[]byte("foo"), {}, []byte("bar"), []byte("baz")}
	got := New().UpdateVectored(parts).Digest()
	want := New().Update([]byte("foobarbaz")).Digest()
	if got != want {
		t.Errorf("UpdateVectored = %+v, want %+v", got, want)
	}
}

func bytes(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i) + seed
	}
	return b
}
