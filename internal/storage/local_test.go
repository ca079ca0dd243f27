package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/pathlens/pathlens/internal/errors"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLocalStorageUploadDownload(t *testing.T) {
	ctx := context.Background()
	ls, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("new local storage: %v", err)
	}

	src := writeTempFile(t, t.TempDir(), "in.snapshot", "payload")
	if err := ls.Upload(ctx, src, "snapshots/a.snapshot"); err != nil {
		t.Fatalf("upload: %v", err)
	}

	exists, err := ls.Exists(ctx, "snapshots/a.snapshot")
	if err != nil || !exists {
		t.Fatalf("exists = %v, %v", exists, err)
	}

	dst := filepath.Join(t.TempDir(), "out.snapshot")
	if err := ls.Download(ctx, "snapshots/a.snapshot", dst); err != nil {
		t.Fatalf("download: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("downloaded content = %q", got)
	}
}

func TestLocalStorageDownloadMissingObject(t *testing.T) {
	ctx := context.Background()
	ls, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("new local storage: %v", err)
	}
	err = ls.Download(ctx, "snapshots/absent", filepath.Join(t.TempDir(), "out"))
	if errors.GetCode(err) != errors.CodeObjectNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLocalStorageDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ls, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("new local storage: %v", err)
	}
	src := writeTempFile(t, t.TempDir(), "in", "x")
	if err := ls.Upload(ctx, src, "a"); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := ls.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := ls.Delete(ctx, "a"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	exists, err := ls.Exists(ctx, "a")
	if err != nil || exists {
		t.Fatalf("exists after delete = %v, %v", exists, err)
	}
}

func TestLocalStorageList(t *testing.T) {
	ctx := context.Background()
	ls, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("new local storage: %v", err)
	}
	src := writeTempFile(t, t.TempDir(), "in", "x")
	for _, obj := range []string{"snapshots/a", "snapshots/deep/b", "other/c"} {
		if err := ls.Upload(ctx, src, obj); err != nil {
			t.Fatalf("upload %s: %v", obj, err)
		}
	}

	got, err := ls.List(ctx, "snapshots")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	sort.Strings(got)
	want := []string{"snapshots/a", "snapshots/deep/b"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("list = %v, want %v", got, want)
	}

	empty, err := ls.List(ctx, "nothing-here")
	if err != nil {
		t.Fatalf("list missing prefix: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("list missing prefix = %v", empty)
	}
}

func TestFetcherDownloadsAndCaches(t *testing.T) {
	ctx := context.Background()
	ls, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("new local storage: %v", err)
	}
	src := writeTempFile(t, t.TempDir(), "in", "x")
	objects := []string{"snapshots/a", "snapshots/b", "snapshots/c"}
	for _, obj := range objects {
		if err := ls.Upload(ctx, src, obj); err != nil {
			t.Fatalf("upload %s: %v", obj, err)
		}
	}

	cacheDir := t.TempDir()
	f := NewFetcher(ls, 2, cacheDir)

	result := f.Fetch(ctx, objects)
	if len(result.Errors) != 0 {
		t.Fatalf("fetch errors: %v", result.Errors)
	}
	if result.Downloads != 3 || result.CacheHits != 0 {
		t.Fatalf("downloads = %d, cache hits = %d", result.Downloads, result.CacheHits)
	}
	for _, obj := range objects {
		local, ok := result.LocalPaths[obj]
		if !ok {
			t.Fatalf("no local path for %s", obj)
		}
		if filepath.Dir(local) != cacheDir {
			t.Fatalf("local path %s is outside the cache dir", local)
		}
		if _, err := os.Stat(local); err != nil {
			t.Fatalf("fetched file missing: %v", err)
		}
	}

	// A second fetch is served entirely from the cache.
	result = f.Fetch(ctx, objects)
	if result.CacheHits != 3 || result.Downloads != 0 {
		t.Fatalf("downloads = %d, cache hits = %d", result.Downloads, result.CacheHits)
	}
}

func TestFetcherCollectsPerObjectErrors(t *testing.T) {
	ctx := context.Background()
	ls, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("new local storage: %v", err)
	}
	src := writeTempFile(t, t.TempDir(), "in", "x")
	if err := ls.Upload(ctx, src, "snapshots/a"); err != nil {
		t.Fatalf("upload: %v", err)
	}

	f := NewFetcher(ls, 4, t.TempDir())
	result := f.Fetch(ctx, []string{"snapshots/a", "snapshots/absent"})

	if _, ok := result.LocalPaths["snapshots/a"]; !ok {
		t.Fatal("healthy object was not fetched")
	}
	err, ok := result.Errors["snapshots/absent"]
	if !ok || errors.GetCode(err) != errors.CodeObjectNotFound {
		t.Fatalf("missing object error = %v", err)
	}
}
