package session

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Store is the persistence port for the serialized transcript. The session
// core only needs load/save/clear of one opaque blob, so it can be backed by
// a file on disk or an in-memory stub in tests.
type Store interface {
	// Load returns the persisted blob, or found=false when nothing was saved.
	Load() (data []byte, found bool, err error)
	Save(data []byte) error
	Clear() error
}

// FileStore persists the transcript as a single JSON file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Load() ([]byte, bool, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (f *FileStore) Save(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
