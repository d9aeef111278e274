package hashing

import "golang.org/x/sys/cpu"

// BatchMD5 computes the MD5 digest of each lane independently. On hosts
// whose CPU reports AVX-512F+BW, upstream rsync's MD5 batch path hashes 16
// lanes per SIMD pass; Go has no portable access to hand-rolled AVX-512
// assembly without cgo or a vendored asm file (neither of which fits this
// module's dependency story — see DESIGN.md), so HasAVX512MD5 only reports
// whether such a fast path *could* apply. The actual digest computation
// below is always the scalar crypto/md5 loop, and by construction produces
// output byte-identical to whatever a batched implementation would: each
// lane is independent, so "batching" is purely a performance concern, never
// a correctness one.
func BatchMD5(lanes [][]byte) [][]byte {
	out := make([][]byte, len(lanes))
	for i, lane := range lanes {
		d := NewMD5()
		d.Update(lane)
		out[i] = d.Finalize()
	}
	return out
}

// HasAVX512MD5 reports whether the host CPU advertises the AVX-512F+BW
// feature pair that upstream rsync's batched MD5 path requires.
func HasAVX512MD5() bool {
	return cpu.X86.HasAVX512F && cpu.X86.HasAVX512BW
}
