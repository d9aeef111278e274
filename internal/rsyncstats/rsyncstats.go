// Package rsyncstats carries the end-of-transfer statistics record
// exchanged between sender and receiver and reported to the user.
package rsyncstats

import "fmt"

// TransferStats mirrors the three 64-bit counters upstream rsync sends at
// the end of a transfer (rsync/main.c:report), plus the matched/literal
// byte split this implementation additionally tracks for --stats output.
type TransferStats struct {
	// Read is the total bytes read from the network connection.
	Read int64
	// Written is the total bytes written to the network connection.
	Written int64
	// Size is the total size of the files in the transfer.
	Size int64

	// MatchedBytes is the number of bytes reconstructed from block
	// references against a basis file (C3 delta matches).
	MatchedBytes int64
	// LiteralBytes is the number of bytes transferred as literal data.
	LiteralBytes int64

	// ParallelBytes and DirectBytes split small-file-pool transfers (C8)
	// from sequentially-dispatched large-file transfers.
	ParallelBytes int64
	DirectBytes   int64

	// FilesTransferred and FilesTotal count regular files.
	FilesTransferred int
	FilesTotal       int
}

func (s *TransferStats) String() string {
	return fmt.Sprintf("read=%d written=%d size=%d matched=%d literal=%d files=%d/%d",
		s.Read, s.Written, s.Size, s.MatchedBytes, s.LiteralBytes, s.FilesTransferred, s.FilesTotal)
}

// Add merges o into s, used to accumulate per-file results into a batch
// total (C8 parallel dispatch).
func (s *TransferStats) Add(o TransferStats) {
	s.Read += o.Read
	s.Written += o.Written
	s.Size += o.Size
	s.MatchedBytes += o.MatchedBytes
	s.LiteralBytes += o.LiteralBytes
	s.ParallelBytes += o.ParallelBytes
	s.DirectBytes += o.DirectBytes
	s.FilesTransferred += o.FilesTransferred
	s.FilesTotal += o.FilesTotal
}
