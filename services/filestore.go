package services

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// FileStore abstracts where deliverable bytes live. The metadata rows in
// pitch_files reference stored paths produced by Put.
type FileStore interface {
	Put(originalName string, src io.Reader) (storedPath string, size int64, err error)
	Exists(storedPath string) bool
	Delete(storedPath string) error
}

// LocalFileStore keeps uploads on the local disk under a root directory,
// matching the UPLOAD_PATH convention used by cmd/api.
type LocalFileStore struct {
	root string
}

func NewLocalFileStore(root string) *LocalFileStore {
	if root == "" {
		root = "uploads"
	}
	return &LocalFileStore{root: root}
}

// Put writes the upload under a collision-free name and returns the stored
// path relative to the root.
func (s *LocalFileStore) Put(originalName string, src io.Reader) (string, int64, error) {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return "", 0, fmt.Errorf("create upload dir: %w", err)
	}
	name := uuid.NewString() + "_" + filepath.Base(originalName)
	full := filepath.Join(s.root, name)
	dst, err := os.Create(full)
	if err != nil {
		return "", 0, fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close()
	size, err := io.Copy(dst, src)
	if err != nil {
		os.Remove(full)
		return "", 0, fmt.Errorf("write upload: %w", err)
	}
	return name, size, nil
}

func (s *LocalFileStore) Exists(storedPath string) bool {
	_, err := os.Stat(filepath.Join(s.root, filepath.Base(storedPath)))
	return err == nil
}

func (s *LocalFileStore) Delete(storedPath string) error {
	err := os.Remove(filepath.Join(s.root, filepath.Base(storedPath)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}
