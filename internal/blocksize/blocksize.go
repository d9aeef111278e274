// Package blocksize implements the block-size and adaptive
// checksum-length heuristic (spec §4.2, C2), generalized from the
// square-root prototype in the teacher's internal/rsyncd/rsyncd.go
// (sumSizesSqroot) to the full adaptive-checksum-length formula.
package blocksize

// Protocol block-length ceilings (spec §4.2).
const (
	maxBlockLengthModern = 128 * 1024        // protocol >= 30
	maxBlockLengthLegacy = 512 * 1024 * 1024 // protocol < 30

	// smallFileThreshold is the file size at or below which the fixed
	// 700-byte block length is used, i.e. 700^2.
	smallFileThreshold = 700 * 700
	smallBlockLength    = 700

	blocksumBiasBase = 10
)

// Calculate derives (blockLength, checksumLength, blockCount) from a file's
// size, the negotiated protocol version, a caller-requested strong checksum
// length (the peer's minimum ask; 0 if none), and an optional user block
// size override (0 means "no override").
func Calculate(fileSize int64, protocol int, requestedChecksumLength int, override int64) (blockLength, checksumLength, blockCount int64) {
	maxBlock := int64(maxBlockLengthLegacy)
	if protocol >= 30 {
		maxBlock = maxBlockLengthModern
	}

	switch {
	case override > 0:
		blockLength = override
		if blockLength > maxBlock {
			blockLength = maxBlock
		}
	case fileSize <= smallFileThreshold:
		blockLength = smallBlockLength
	default:
		blockLength = sqrtRoundedTo8(fileSize)
		// Never drop below the small-file length, so the result stays
		// non-decreasing in fileSize just past the threshold.
		if blockLength < smallBlockLength {
			blockLength = smallBlockLength
		}
		if blockLength > maxBlock {
			blockLength = maxBlock
		}
	}
	if blockLength <= 0 {
		blockLength = smallBlockLength
	}

	checksumLength = int64(adaptiveChecksumLength(fileSize, blockLength, protocol, requestedChecksumLength))

	if fileSize == 0 {
		blockCount = 0
	} else {
		blockCount = (fileSize + blockLength - 1) / blockLength
	}
	return blockLength, checksumLength, blockCount
}

// sqrtRoundedTo8 returns floor(sqrt(n)) rounded down to the nearest
// multiple of 8, found via a deterministic bit-search (so the result is
// reproducible across platforms without relying on math.Sqrt's rounding).
func sqrtRoundedTo8(n int64) int64 {
	if n <= 0 {
		return 0
	}
	// Binary search the largest x such that x*x <= n.
	var lo, hi int64 = 0, 1 << 32
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if mid != 0 && mid > n/mid {
			hi = mid - 1
		} else {
			lo = mid
		}
	}
	return (lo / 8) * 8
}

// adaptiveChecksumLength implements the BLOCKSUM_BIAS formula from spec
// §4.2: for protocol < 27 the peer's requested length passes through
// unchanged (adaptive length is a protocol >= 27 feature). Otherwise a bias
// is accumulated by halving fileSize down to 1 (+2 per halving), then spent
// back down by halving blockLength (-1 per halving, stopping the instant
// bias reaches 0), mirroring upstream's bit-by-bit BLOCKSUM_BIAS loops
// exactly rather than a closed-form bit-length subtraction: the early stop
// on the second loop means the two are not equivalent in general.
func adaptiveChecksumLength(fileSize, blockLength int64, protocol, requested int) int {
	if protocol < 27 {
		return requested
	}
	if requested == 16 {
		return 16
	}

	bias := blocksumBiasBase
	for l := fileSize; l>>1 != 0; l >>= 1 {
		bias += 2
	}
	for current := blockLength; current>>1 != 0 && bias > 0; current >>= 1 {
		bias--
	}

	// C-style truncating division, matching upstream's checksum_len
	// computation byte-for-byte (Go's integer division already truncates
	// toward zero, same as Rust's i32 division used here).
	length := (bias + 1 - 32 + 7) / 8
	if length < requested {
		length = requested
	}
	if length > 16 {
		length = 16
	}
	return length
}
