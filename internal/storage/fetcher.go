package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Fetcher downloads archived snapshot files in parallel, with an optional
// local cache that skips objects already on disk.
type Fetcher struct {
	storage     ObjectStorage
	concurrency int
	cacheDir    string
}

// FetchResult reports the outcome of a batch fetch.
type FetchResult struct {
	LocalPaths map[string]string
	Errors     map[string]error
	CacheHits  int
	Downloads  int
}

// NewFetcher creates a fetcher over an archive. concurrency bounds parallel
// downloads; cacheDir is where fetched files land (empty means the current
// directory, uncached).
func NewFetcher(storage ObjectStorage, concurrency int, cacheDir string) *Fetcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Fetcher{storage: storage, concurrency: concurrency, cacheDir: cacheDir}
}

// Fetch downloads the given objects. Per-object failures are collected in
// the result rather than aborting the batch.
func (f *Fetcher) Fetch(ctx context.Context, objectPaths []string) *FetchResult {
	result := &FetchResult{
		LocalPaths: make(map[string]string),
		Errors:     make(map[string]error),
	}

	var queue []string
	for _, path := range objectPaths {
		local := f.localPath(path)
		if f.cacheDir != "" {
			if _, err := os.Stat(local); err == nil {
				result.LocalPaths[path] = local
				result.CacheHits++
				continue
			}
		}
		queue = append(queue, path)
	}

	sem := semaphore.NewWeighted(int64(f.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, path := range queue {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			result.Errors[path] = err
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(path, local string) {
			defer sem.Release(1)
			defer wg.Done()
			if err := f.storage.Download(ctx, path, local); err != nil {
				mu.Lock()
				result.Errors[path] = err
				mu.Unlock()
				return
			}
			mu.Lock()
			result.LocalPaths[path] = local
			result.Downloads++
			mu.Unlock()
		}(path, f.localPath(path))
	}
	wg.Wait()

	return result
}

// localPath maps an object path to its on-disk location. Only the base name
// is kept, which rules out directory traversal through object names.
func (f *Fetcher) localPath(objectPath string) string {
	name := filepath.Base(filepath.FromSlash(objectPath))
	if f.cacheDir == "" {
		return name
	}
	return filepath.Join(f.cacheDir, name)
}
