package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"tokenlens/internal/metrics"
	"tokenlens/pkg/logger"
)

// DiskStore is the default Store backend: one file per entry under a cache
// directory, entry age read from the file's mtime. It survives restarts
// without any external service. All operations are serialized by a mutex
// since the directory is shared mutable state.
type DiskStore struct {
	dir        string
	defaultTTL time.Duration
	maxBytes   int64
	compress   bool
	logger     *logger.Logger

	mu      sync.Mutex
	hits    uint64
	misses  uint64
	writes  uint64
	expired uint64
	errs    uint64

	nowFn func() time.Time
}

// NewDiskStore creates the cache directory if needed and sweeps entries older
// than the default TTL left over from a previous run.
func NewDiskStore(dir string, defaultTTL time.Duration, maxSizeMB int, compress bool, log *logger.Logger) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	s := &DiskStore{
		dir:        dir,
		defaultTTL: defaultTTL,
		maxBytes:   int64(maxSizeMB) * 1024 * 1024,
		compress:   compress,
		logger:     log,
		nowFn:      time.Now,
	}

	s.CleanupExpired(context.Background(), 0)
	return s, nil
}

func (s *DiskStore) entryPath(key string) string {
	ext := ".json"
	if s.compress {
		ext = ".json.gz"
	}
	return filepath.Join(s.dir, key+ext)
}

// Get returns the payload for (query, variables) if the entry exists and is
// younger than ttl. Stale entries are deleted on sight. Read failures count
// as errors and report a miss.
func (s *DiskStore) Get(ctx context.Context, query string, variables map[string]any, ttl time.Duration) ([]byte, bool) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	path := s.entryPath(cacheKey(query, variables))

	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		s.misses++
		metrics.CacheOpsTotal.WithLabelValues("disk", "miss").Inc()
		return nil, false
	}
	if err != nil {
		s.errs++
		metrics.CacheOpsTotal.WithLabelValues("disk", "error").Inc()
		s.logger.Error("Cache read error: %v", err)
		return nil, false
	}

	if s.nowFn().Sub(info.ModTime()) > ttl {
		s.expired++
		metrics.CacheOpsTotal.WithLabelValues("disk", "expired").Inc()
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Error("Cache expire error: %v", err)
		}
		return nil, false
	}

	payload, err := s.readEntry(path)
	if err != nil {
		s.errs++
		metrics.CacheOpsTotal.WithLabelValues("disk", "error").Inc()
		s.logger.Error("Cache read error: %v", err)
		return nil, false
	}

	s.hits++
	metrics.CacheOpsTotal.WithLabelValues("disk", "hit").Inc()
	return payload, true
}

// Set writes the payload and then re-checks the size budget, evicting oldest
// entries if the write pushed the directory over it.
func (s *DiskStore) Set(ctx context.Context, query string, variables map[string]any, payload []byte, ttl time.Duration) error {
	path := s.entryPath(cacheKey(query, variables))

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeEntry(path, payload); err != nil {
		s.errs++
		metrics.CacheOpsTotal.WithLabelValues("disk", "error").Inc()
		return fmt.Errorf("cache write failed: %w", err)
	}

	s.writes++
	metrics.CacheOpsTotal.WithLabelValues("disk", "write").Inc()
	s.enforceSizeLimitLocked()
	return nil
}

// Delete removes the entry for (query, variables), reporting whether it
// existed.
func (s *DiskStore) Delete(ctx context.Context, query string, variables map[string]any) bool {
	path := s.entryPath(cacheKey(query, variables))

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(path)
	if os.IsNotExist(err) {
		return false
	}
	if err != nil {
		s.logger.Error("Cache delete error: %v", err)
		return false
	}
	return true
}

// Clear removes every entry file in the cache directory.
func (s *DiskStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("cache clear failed: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return fmt.Errorf("cache clear failed: %w", err)
		}
	}

	s.logger.Info("Cache cleared")
	return nil
}

// CleanupExpired removes entries older than ttl (store default when zero) and
// returns how many were removed.
func (s *DiskStore) CleanupExpired(ctx context.Context, ttl time.Duration) int {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error("Cache cleanup error: %v", err)
		return 0
	}

	now := s.nowFn()
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > ttl {
			if err := os.Remove(filepath.Join(s.dir, entry.Name())); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		s.logger.Info("Cleaned up %d expired cache entries", removed)
	}
	return removed
}

// EnforceSizeLimit evicts oldest entries until the directory is within the
// byte budget.
func (s *DiskStore) EnforceSizeLimit(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enforceSizeLimitLocked()
}

func (s *DiskStore) enforceSizeLimitLocked() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error("Size limit enforcement error: %v", err)
		return
	}

	type entryFile struct {
		path  string
		size  int64
		mtime time.Time
	}

	var files []entryFile
	var total int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		total += info.Size()
		files = append(files, entryFile{
			path:  filepath.Join(s.dir, entry.Name()),
			size:  info.Size(),
			mtime: info.ModTime(),
		})
	}

	if total <= s.maxBytes {
		return
	}

	// Oldest first
	sort.Slice(files, func(i, j int) bool {
		return files[i].mtime.Before(files[j].mtime)
	})

	removed := 0
	for _, f := range files {
		if total <= s.maxBytes {
			break
		}
		if err := os.Remove(f.path); err != nil {
			continue
		}
		total -= f.size
		removed++
		metrics.CacheOpsTotal.WithLabelValues("disk", "evicted").Inc()
	}

	if removed > 0 {
		s.logger.Info("Evicted %d cache entries to enforce size limit", removed)
	}
}

// Stats reports counters plus the current entry count and on-disk footprint.
func (s *DiskStore) Stats(ctx context.Context) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Hits:    s.hits,
		Misses:  s.misses,
		Writes:  s.writes,
		Expired: s.expired,
		Errors:  s.errs,
	}

	if total := st.Hits + st.Misses; total > 0 {
		st.HitRate = float64(st.Hits) / float64(total) * 100
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error("Error calculating cache stats: %v", err)
		return st
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		st.EntryCount++
		st.SizeBytes += info.Size()
	}
	st.SizeMB = float64(st.SizeBytes) / (1024 * 1024)

	return st
}

// ResetStats zeroes all counters.
func (s *DiskStore) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits, s.misses, s.writes, s.expired, s.errs = 0, 0, 0, 0, 0
}

// Close is a no-op for the disk backend.
func (s *DiskStore) Close() error {
	return nil
}

func (s *DiskStore) readEntry(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !s.compress {
		return raw, nil
	}

	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

func (s *DiskStore) writeEntry(path string, payload []byte) error {
	if !s.compress {
		return os.WriteFile(path, payload, 0o644)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
