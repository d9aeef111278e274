package blocksize

import "testing"

func TestSmallFileUsesFixedBlockLength(t *testing.T) {
	bl, _, bc := Calculate(1000, 31, 0, 0)
	if bl != smallBlockLength {
		t.Errorf("blockLength = %d, want %d", bl, smallBlockLength)
	}
	if want := int64(2); bc != want { // ceil(1000/700) = 2
		t.Errorf("blockCount = %d, want %d", bc, want)
	}
}

func TestEmptyFile(t *testing.T) {
	bl, _, bc := Calculate(0, 31, 0, 0)
	if bl != smallBlockLength {
		t.Errorf("blockLength = %d, want %d", bl, smallBlockLength)
	}
	if bc != 0 {
		t.Errorf("blockCount = %d, want 0", bc)
	}
}

func TestOverrideClampedToProtocolMaximum(t *testing.T) {
	bl, _, _ := Calculate(10<<20, 31, 0, 1<<30)
	if bl != maxBlockLengthModern {
		t.Errorf("blockLength = %d, want %d (clamped)", bl, maxBlockLengthModern)
	}
}

func TestOverrideClampedLegacyProtocol(t *testing.T) {
	bl, _, _ := Calculate(10<<20, 26, 0, 1<<30)
	if bl != maxBlockLengthLegacy {
		t.Errorf("blockLength = %d, want %d (legacy clamp)", bl, maxBlockLengthLegacy)
	}
}

func TestBlockLengthMonotonicity(t *testing.T) {
	sizes := []int64{0, 100, 700 * 700, 700*700 + 1, 1 << 20, 1 << 24, 1 << 30}
	var prev int64
	for _, sz := range sizes {
		bl, _, _ := Calculate(sz, 31, 0, 0)
		if bl < prev {
			t.Errorf("block length decreased: size=%d got %d, previous was %d", sz, bl, prev)
		}
		if bl > maxBlockLengthModern {
			t.Errorf("block length %d exceeds protocol maximum %d", bl, maxBlockLengthModern)
		}
		prev = bl
	}
}

func TestBlockLengthRoundedToMultipleOf8(t *testing.T) {
	bl, _, _ := Calculate(10_000_000, 31, 0, 0)
	if bl%8 != 0 {
		t.Errorf("blockLength = %d, want a multiple of 8", bl)
	}
}

func TestChecksumLengthClampedToRequestedAndSixteen(t *testing.T) {
	_, cl, _ := Calculate(1<<20, 31, 16, 0)
	if cl != 16 {
		t.Errorf("checksumLength = %d, want 16 when requested is already 16", cl)
	}
}

func TestChecksumLengthPreProtocol27PassesThroughRequested(t *testing.T) {
	_, cl, _ := Calculate(1<<20, 26, 5, 0)
	if cl != 5 {
		t.Errorf("checksumLength = %d, want 5 (passthrough below protocol 27)", cl)
	}
}

func TestBlockCountMatchesCeilDiv(t *testing.T) {
	bl, _, bc := Calculate(1<<20+1, 31, 0, 0)
	want := (int64(1<<20+1) + bl - 1) / bl
	if bc != want {
		t.Errorf("blockCount = %d, want %d", bc, want)
	}
}

// referenceChecksumLength is an independent transcription of upstream's
// calculate_checksum_length (crates/signature/src/block_size.rs), used to
// check adaptiveChecksumLength against nontrivial (fileSize, blockLength)
// pairs rather than only the degenerate passthrough cases above.
func referenceChecksumLength(fileSize, blockLength int64, protocol, requested int) int {
	if protocol < 27 {
		return requested
	}
	if requested == 16 {
		return 16
	}
	bias := 10
	for l := fileSize; l>>1 != 0; l >>= 1 {
		bias += 2
	}
	for cur := blockLength; cur>>1 != 0 && bias > 0; cur >>= 1 {
		bias--
	}
	length := (bias + 1 - 32 + 7) / 8
	if length < requested {
		length = requested
	}
	if length > 16 {
		length = 16
	}
	return length
}

func TestAdaptiveChecksumLengthMatchesUpstreamFormula(t *testing.T) {
	cases := []struct {
		fileSize, blockLength int64
		protocol, requested   int
	}{
		// maintainer-reported counterexample: truncating division yields 0,
		// ceiling division previously (incorrectly) yielded 1.
		{4886, 700, 27, 0},
		{4886, 700, 31, 0},
		{1024, 700, 27, 0},
		{1024, 700, 31, 2},
		{1 << 20, 1024, 27, 2},
		{1 << 20, 1024, 31, 2},
		{1 << 20, 700, 26, 2}, // protocol < 27: passthrough, not exercised by the loop
		{100 << 20, 700, 31, 2},
		{1, 1, 31, 0},
		{0, 700, 31, 0},
	}
	for _, c := range cases {
		got := adaptiveChecksumLength(c.fileSize, c.blockLength, c.protocol, c.requested)
		want := referenceChecksumLength(c.fileSize, c.blockLength, c.protocol, c.requested)
		if got != want {
			t.Errorf("adaptiveChecksumLength(%d, %d, %d, %d) = %d, want %d (upstream formula)",
				c.fileSize, c.blockLength, c.protocol, c.requested, got, want)
		}
	}
}

func TestAdaptiveChecksumLengthConcreteCounterexample(t *testing.T) {
	for _, protocol := range []int{27, 31} {
		if got := adaptiveChecksumLength(4886, 700, protocol, 0); got != 0 {
			t.Errorf("adaptiveChecksumLength(4886, 700, %d, 0) = %d, want 0", protocol, got)
		}
	}
}

func TestAdaptiveChecksumLengthScalesWithFileSize(t *testing.T) {
	small := adaptiveChecksumLength(1024, 700, 31, 2)
	medium := adaptiveChecksumLength(1<<20, 700, 31, 2)
	large := adaptiveChecksumLength(100<<20, 700, 31, 2)
	if !(small <= medium && medium <= large) {
		t.Errorf("checksum length should not decrease with file size: small=%d medium=%d large=%d", small, medium, large)
	}
	if large > 16 {
		t.Errorf("large = %d, exceeds maximum 16", large)
	}
}

func TestAdaptiveChecksumLengthNeverBelowRequested(t *testing.T) {
	for requested := 2; requested <= 16; requested++ {
		got := adaptiveChecksumLength(1<<20, 1024, 31, requested)
		if got < requested {
			t.Errorf("adaptiveChecksumLength(..., requested=%d) = %d, below requested", requested, got)
		}
		if got > 16 {
			t.Errorf("adaptiveChecksumLength(..., requested=%d) = %d, exceeds 16", requested, got)
		}
	}
}
