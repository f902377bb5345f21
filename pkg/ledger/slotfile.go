package ledger

import (
	"os"
	"path/filepath"

	pkgerrors "github.com/deviceops/fwagent/pkg/errors"
)

// FileSlot is a file-backed Slot. Writes go to a temp file in the same
// directory, are fsynced, then renamed over the slot path, so readers never
// observe a torn record after a crash mid-save.
type FileSlot struct {
	path string
}

// NewFileSlot creates a FileSlot at path, creating the parent directory if
// needed.
func NewFileSlot(path string) (*FileSlot, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create ledger directory")
	}
	return &FileSlot{path: path}, nil
}

// Read returns the slot contents, or an empty slice when the file does not
// exist yet (a fresh device has no record).
func (f *FileSlot) Read() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to read ledger file")
	}
	return data, nil
}

// Write commits data durably before returning.
func (f *FileSlot) Write(data []byte) error {
	tmp := f.path + ".tmp"

	file, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to create temp ledger file")
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmp)
		return pkgerrors.Wrap(err, "failed to write ledger file")
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return pkgerrors.Wrap(err, "failed to sync ledger file")
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return pkgerrors.Wrap(err, "failed to close ledger file")
	}

	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return pkgerrors.Wrap(err, "failed to commit ledger file")
	}
	return nil
}
