package receiver

import (
	"github.com/google/renameio/v2"
)

// pendingFile stages incoming file data in a temporary sibling of its
// final destination, so a crash or error mid-transfer never leaves a
// truncated file at the real path (spec §4.9 "atomic replace").
// Grounded on the teacher's renameio usage in generatorsymlink.go, the
// same library applied here to regular-file writes.
type pendingFile struct {
	t *renameio.PendingFile
}

func newPendingFile(path string) (*pendingFile, error) {
	t, err := renameio.NewPendingFile(path)
	if err != nil {
		return nil, err
	}
	return &pendingFile{t: t}, nil
}

func (p *pendingFile) Write(b []byte) (int, error) {
	return p.t.Write(b)
}

// CloseAtomicallyReplace finalizes the staged file, renaming it onto path.
func (p *pendingFile) CloseAtomicallyReplace() error {
	return p.t.CloseAtomicallyReplace()
}

// Cleanup removes the staging file if it was never finalized; calling it
// after a successful CloseAtomicallyReplace is a harmless no-op.
func (p *pendingFile) Cleanup() error {
	return p.t.Cleanup()
}
