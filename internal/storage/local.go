package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pathlens/pathlens/internal/errors"
)

// LocalStorage implements ObjectStorage on the local filesystem. Used for
// development and as the archive backend in tests.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a filesystem-backed archive rooted at basePath.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, errors.NewStorageError(errors.CodeUploadFailed, "creating archive root", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Upload copies a local file into the archive.
func (l *LocalStorage) Upload(ctx context.Context, localPath, objectPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	destPath := l.fullPath(objectPath)
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return errors.NewStorageError(errors.CodeUploadFailed, "creating archive directory", err)
	}
	if err := copyFile(localPath, destPath); err != nil {
		return errors.NewStorageError(errors.CodeUploadFailed, "copying into archive", err)
	}
	return nil
}

// Download copies an archived object to a local file.
func (l *LocalStorage) Download(ctx context.Context, objectPath, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	srcPath := l.fullPath(objectPath)
	if _, err := os.Stat(srcPath); os.IsNotExist(err) {
		return errors.NewStorageError(errors.CodeObjectNotFound, "object "+objectPath, nil)
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return errors.NewStorageError(errors.CodeDownloadFailed, "creating destination directory", err)
	}
	if err := copyFile(srcPath, localPath); err != nil {
		return errors.NewStorageError(errors.CodeDownloadFailed, "copying from archive", err)
	}
	return nil
}

// Delete removes an archived object. Idempotent.
func (l *LocalStorage) Delete(ctx context.Context, objectPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(l.fullPath(objectPath)); err != nil && !os.IsNotExist(err) {
		return errors.NewStorageError(errors.CodeUploadFailed, "deleting from archive", err)
	}
	return nil
}

// Exists reports whether an object is present in the archive.
func (l *LocalStorage) Exists(ctx context.Context, objectPath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(l.fullPath(objectPath))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List returns all object paths under the prefix.
func (l *LocalStorage) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	searchDir := l.fullPath(prefix)
	var objects []string
	err := filepath.Walk(searchDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			rel, err := filepath.Rel(l.basePath, path)
			if err != nil {
				return err
			}
			objects = append(objects, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return objects, nil
}

func (l *LocalStorage) fullPath(objectPath string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(objectPath))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
