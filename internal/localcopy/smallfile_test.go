package localcopy

import (
	"context"
	"fmt"
	"testing"
)

func TestDispatchBatchBelowThresholdRunsSequential(t *testing.T) {
	var order []int
	jobs := make([]CopyJob, 3)
	for i := range jobs {
		i := i
		jobs[i] = CopyJob{Size: 10, Run: func(ctx context.Context) error {
			order = append(order, i)
			return nil
		}}
	}

	stats, err := DispatchBatch(context.Background(), jobs)
	if err != nil {
		t.Fatal(err)
	}
	if stats.DirectCount != 3 || stats.ParallelCount != 0 {
		t.Errorf("stats = %+v, want 3 direct, 0 parallel", stats)
	}
	for i, v := range order {
		if v != i {
			t.Errorf("order = %v, want sequential 0,1,2", order)
			break
		}
	}
}

func TestDispatchBatchParallelizesSmallFiles(t *testing.T) {
	jobs := make([]CopyJob, 10)
	for i := range jobs {
		jobs[i] = CopyJob{Size: 1024, Run: func(ctx context.Context) error { return nil }}
	}

	stats, err := DispatchBatch(context.Background(), jobs)
	if err != nil {
		t.Fatal(err)
	}
	if stats.ParallelCount != 10 || stats.DirectCount != 0 {
		t.Errorf("stats = %+v, want 10 parallel, 0 direct", stats)
	}
}

func TestDispatchBatchLargeFilesRunDirect(t *testing.T) {
	jobs := make([]CopyJob, 9)
	for i := range jobs {
		jobs[i] = CopyJob{Size: smallFileThreshold + 1, Run: func(ctx context.Context) error { return nil }}
	}

	stats, err := DispatchBatch(context.Background(), jobs)
	if err != nil {
		t.Fatal(err)
	}
	if stats.DirectCount != 9 || stats.ParallelCount != 0 {
		t.Errorf("stats = %+v, want 9 direct, 0 parallel", stats)
	}
}

func TestDispatchBatchPropagatesFirstError(t *testing.T) {
	jobs := make([]CopyJob, 9)
	for i := range jobs {
		i := i
		jobs[i] = CopyJob{Size: 10, Run: func(ctx context.Context) error {
			if i == 4 {
				return fmt.Errorf("boom at %d", i)
			}
			return nil
		}}
	}

	_, err := DispatchBatch(context.Background(), jobs)
	if err == nil {
		t.Fatal("expected an error")
	}
}
