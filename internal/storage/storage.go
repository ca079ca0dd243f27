// Package storage abstracts the object store that published eventstream
// snapshots are archived to. Implementations cover S3 and the local
// filesystem; the local backend doubles as the test double.
package storage

import "context"

// ObjectStorage is the archive interface for snapshot files.
type ObjectStorage interface {
	// Upload copies a local file to objectPath in the archive.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies objectPath from the archive to a local file.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists reports whether an object is present.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// List returns all object paths under a prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
