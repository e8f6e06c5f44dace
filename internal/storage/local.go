package storage

import (
	"context"
	"os"
	"path/filepath"

	"permohonan-service/internal/common/errors"

	"github.com/spf13/afero"
)

// LocalStore keeps blobs on a filesystem rooted at root.
type LocalStore struct {
	fs   afero.Fs
	root string
}

// NewLocalStore stores under root on the OS filesystem.
func NewLocalStore(root string) *LocalStore {
	return NewLocalStoreWithFs(afero.NewOsFs(), root)
}

func NewLocalStoreWithFs(fs afero.Fs, root string) *LocalStore {
	return &LocalStore{fs: fs, root: root}
}

func (s *LocalStore) fullPath(locator string) (string, error) {
	key, err := cleanKey(locator)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func (s *LocalStore) Put(_ context.Context, key string, content []byte) (string, error) {
	locator, err := cleanKey(key)
	if err != nil {
		return "", errors.NewStorageError("put", err)
	}
	full := filepath.Join(s.root, filepath.FromSlash(locator))
	if err := s.fs.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", errors.NewStorageError("put", err)
	}
	if err := afero.WriteFile(s.fs, full, content, 0o640); err != nil {
		return "", errors.NewStorageError("put", err)
	}
	return locator, nil
}

func (s *LocalStore) Get(_ context.Context, locator string) ([]byte, error) {
	full, err := s.fullPath(locator)
	if err != nil {
		return nil, errors.NewStorageError("get", err)
	}
	b, err := afero.ReadFile(s.fs, full)
	if os.IsNotExist(err) {
		return nil, errors.NewNotFoundError("blob", locator)
	}
	if err != nil {
		return nil, errors.NewStorageError("get", err)
	}
	return b, nil
}

func (s *LocalStore) Exists(_ context.Context, locator string) (bool, error) {
	full, err := s.fullPath(locator)
	if err != nil {
		return false, errors.NewStorageError("exists", err)
	}
	ok, err := afero.Exists(s.fs, full)
	if err != nil {
		return false, errors.NewStorageError("exists", err)
	}
	return ok, nil
}

func (s *LocalStore) Delete(_ context.Context, locator string) (bool, error) {
	full, err := s.fullPath(locator)
	if err != nil {
		return false, errors.NewStorageError("delete", err)
	}
	err = s.fs.Remove(full)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.NewStorageError("delete", err)
	}
	return true, nil
}
