// Package cache maintains a local disk cache of archive container objects,
// keyed by FileEntry, with size-based freshness and atomic commit.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/DecFox/data/archive"
	"github.com/DecFox/data/metrics"
)

// ErrSizeMismatch is returned when a freshly downloaded file's on-disk size
// does not match the archive's reported size. This is a hard error: a
// truncated download must never be silently treated as cached.
var ErrSizeMismatch = errors.New("cache: downloaded size does not match expected size")

// retryBaseDelay and maxRetries mirror the teacher's own GCS retry
// backoff (storage.go's nextHeader/nextData: delay doubles each trial,
// capped at 10 attempts).
const (
	retryBaseDelay = 16 * time.Millisecond
	maxRetries     = 10
)

// Fetch returns the local path to entry's cached content, downloading it on
// a cache miss. A hit is a local file whose size equals entry.SizeBytes
// (mtime is touched so LRU-style cleanup outside this package can reason
// about last access). On miss, content is streamed to a sibling ".tmp" file,
// fsynced, then committed via os.Rename — the rename is the only point at
// which a partial download becomes visible to other callers. After rename,
// the on-disk size is asserted against entry.SizeBytes; a mismatch is fatal.
func Fetch(ctx context.Context, store archive.ObjectStore, entry archive.FileEntry, cacheRoot string) (string, error) {
	path := entry.CachePath(cacheRoot)

	if fi, err := os.Stat(path); err == nil && fi.Size() == entry.SizeBytes {
		now := time.Now()
		_ = os.Chtimes(path, now, now)
		metrics.CacheHit.Inc()
		return path, nil
	}
	metrics.CacheMiss.Inc()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("cache: mkdir %s: %w", filepath.Dir(path), err)
	}

	tmpPath := path + ".tmp." + strconv.Itoa(os.Getpid()) + "." + strconv.FormatUint(rand.Uint64(), 36)
	if err := downloadWithRetry(ctx, store, entry, tmpPath); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("cache: commit rename %s: %w", path, err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("cache: stat after commit %s: %w", path, err)
	}
	if fi.Size() != entry.SizeBytes {
		return "", fmt.Errorf("%w: %s: got %d, want %d", ErrSizeMismatch, path, fi.Size(), entry.SizeBytes)
	}
	return path, nil
}

func downloadWithRetry(ctx context.Context, store archive.ObjectStore, entry archive.FileEntry, tmpPath string) error {
	delay := retryBaseDelay
	var lastErr error
	for trial := 1; trial <= maxRetries; trial++ {
		if err := download(ctx, store, entry, tmpPath); err != nil {
			lastErr = err
			log.Printf("cache: download %s/%s failed (trial %d): %v", entry.BucketName, entry.ObjectPath, trial, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			continue
		}
		return nil
	}
	return fmt.Errorf("cache: download %s/%s: giving up after %d trials: %w", entry.BucketName, entry.ObjectPath, maxRetries, lastErr)
}

func download(ctx context.Context, store archive.ObjectStore, entry archive.FileEntry, tmpPath string) error {
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("cache: create %s: %w", tmpPath, err)
	}
	defer f.Close()

	if err := store.GetObject(ctx, entry.BucketName, entry.ObjectPath, f, nil); err != nil {
		return fmt.Errorf("cache: get object: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("cache: fsync %s: %w", tmpPath, err)
	}
	return nil
}

// Release removes the cached file for entry when keepCache is false; it is
// a no-op (and not an error) when keepCache is true or the file is already
// gone.
func Release(entry archive.FileEntry, cacheRoot string, keepCache bool) {
	if keepCache {
		return
	}
	if err := os.Remove(entry.CachePath(cacheRoot)); err != nil && !os.IsNotExist(err) {
		log.Printf("cache: release %s: %v", entry.CachePath(cacheRoot), err)
	}
}
