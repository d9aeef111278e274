// Package bwlimit throttles transfer throughput to honor --bwlimit,
// wrapping a writer (or reader) in a golang.org/x/time/rate token bucket
// the way rclone's backend/xpan rate limiter wraps its REST client.
package bwlimit

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// burstMultiple sets how many seconds' worth of tokens the bucket can
// hold in reserve, so a brief idle period doesn't cause a stall the
// instant traffic resumes.
const burstMultiple = 1

// Limiter wraps an io.Writer (or io.Reader) so that passing data through
// it is throttled to at most bytesPerSec bytes per second, blocking as
// needed rather than dropping data.
type Limiter struct {
	rl *rate.Limiter
}

// New returns a Limiter for the given rate in bytes/sec. A bytesPerSec of
// 0 means unlimited: Wait becomes a no-op.
func New(bytesPerSec int) *Limiter {
	if bytesPerSec <= 0 {
		return &Limiter{}
	}
	burst := bytesPerSec * burstMultiple
	if burst < 1 {
		burst = 1
	}
	return &Limiter{rl: rate.NewLimiter(rate.Limit(bytesPerSec), burst)}
}

// Wait blocks until n bytes' worth of tokens are available, or ctx is
// done.
func (l *Limiter) Wait(ctx context.Context, n int) error {
	if l == nil || l.rl == nil || n <= 0 {
		return nil
	}
	// WaitN refuses requests larger than the burst size, so split large
	// writes (and the case where bytesPerSec itself is tiny) into
	// burst-sized chunks.
	burst := l.rl.Burst()
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		if err := l.rl.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// Writer wraps w so every Write call is throttled through lim.
type Writer struct {
	ctx context.Context
	w   io.Writer
	lim *Limiter
}

// NewWriter returns a throttled io.Writer. lim may be nil, in which case
// writes pass straight through.
func NewWriter(ctx context.Context, w io.Writer, lim *Limiter) *Writer {
	return &Writer{ctx: ctx, w: w, lim: lim}
}

func (bw *Writer) Write(p []byte) (int, error) {
	if bw.lim != nil {
		if err := bw.lim.Wait(bw.ctx, len(p)); err != nil {
			return 0, err
		}
	}
	return bw.w.Write(p)
}

// Reader wraps r so every Read call is throttled through lim, counted by
// bytes actually read.
type Reader struct {
	ctx context.Context
	r   io.Reader
	lim *Limiter
}

// NewReader returns a throttled io.Reader. lim may be nil, in which case
// reads pass straight through.
func NewReader(ctx context.Context, r io.Reader, lim *Limiter) *Reader {
	return &Reader{ctx: ctx, r: r, lim: lim}
}

func (br *Reader) Read(p []byte) (int, error) {
	n, err := br.r.Read(p)
	if n > 0 && br.lim != nil {
		if werr := br.lim.Wait(br.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
