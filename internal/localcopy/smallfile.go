package localcopy

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// smallFileThreshold and minParallelBatch are the thresholds spec §4.8
// "Parallel small-file dispatch" names: batches of at least
// minParallelBatch files, each under smallFileThreshold bytes, run on a
// worker pool; everything else runs sequentially.
const (
	smallFileThreshold = 64 * 1024
	minParallelBatch   = 8
)

// CopyJob is one pending file transfer handed to DispatchBatch.
type CopyJob struct {
	Size int64
	Run  func(ctx context.Context) error
}

// BatchStats reports how a batch of jobs was actually executed.
type BatchStats struct {
	ParallelBytes int64
	ParallelCount int
	DirectBytes   int64
	DirectCount   int
}

// DispatchBatch runs jobs, executing small files (< smallFileThreshold
// bytes) concurrently on a worker pool when the batch has at least
// minParallelBatch files, and running every other file sequentially in
// its original order. Results preserve the original batch order: the
// first error encountered (by batch index) is returned, but every job
// is still attempted.
func DispatchBatch(ctx context.Context, jobs []CopyJob) (BatchStats, error) {
	var stats BatchStats

	if len(jobs) < minParallelBatch {
		var firstErr error
		for _, j := range jobs {
			stats.DirectBytes += j.Size
			stats.DirectCount++
			if err := j.Run(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return stats, firstErr
	}

	var smallIdx, largeIdx []int
	for i, j := range jobs {
		if j.Size < smallFileThreshold {
			smallIdx = append(smallIdx, i)
		} else {
			largeIdx = append(largeIdx, i)
		}
	}

	errs := make([]error, len(jobs))

	eg, egCtx := errgroup.WithContext(ctx)
	for _, idx := range smallIdx {
		idx := idx
		eg.Go(func() error {
			errs[idx] = jobs[idx].Run(egCtx)
			return nil // collect per-job errors below, don't abort siblings
		})
	}
	if err := eg.Wait(); err != nil {
		return stats, err
	}

	for _, idx := range largeIdx {
		errs[idx] = jobs[idx].Run(ctx)
	}

	for _, idx := range smallIdx {
		stats.ParallelBytes += jobs[idx].Size
		stats.ParallelCount++
	}
	for _, idx := range largeIdx {
		stats.DirectBytes += jobs[idx].Size
		stats.DirectCount++
	}

	for _, err := range errs {
		if err != nil {
			return stats, err
		}
	}
	return stats, nil
}
