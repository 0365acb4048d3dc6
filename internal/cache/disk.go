package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

const diskExt = ".zst"

// DiskCache is the L2 tier: one zstd-compressed file per entry. The index
// is rebuilt from the directory on open, with file modification times
// standing in for last access.
type DiskCache struct {
	dir      string
	capacity int64
	size     int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	files map[string]*diskEntry

	mu    sync.Mutex
	stats Stats
}

type diskEntry struct {
	name     string
	size     int64
	accessed time.Time
}

// NewDiskCache opens or creates a disk cache in dir.
func NewDiskCache(dir string, capacity int64, compressionLevel int) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if compressionLevel <= 0 {
		compressionLevel = 3
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	dc := &DiskCache{
		dir:      dir,
		capacity: capacity,
		encoder:  enc,
		decoder:  dec,
		files:    make(map[string]*diskEntry),
	}
	if err := dc.scan(); err != nil {
		dc.Close()
		return nil, err
	}
	return dc, nil
}

func (dc *DiskCache) scan() error {
	entries, err := os.ReadDir(dc.dir)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(name, ".tmp") {
			os.Remove(filepath.Join(dc.dir, name))
			continue
		}
		if !strings.HasSuffix(name, diskExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		dc.files[name] = &diskEntry{name: name, size: info.Size(), accessed: info.ModTime()}
		dc.size += info.Size()
	}
	log.Debug("Opened disk cache", "dir", dc.dir, "entries", len(dc.files), "bytes", dc.size)
	return nil
}

func fileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16]) + diskExt
}

// Get returns the decompressed value of key.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, ok := dc.files[fileName(key)]
	if !ok {
		dc.stats.Misses++
		return nil, false
	}

	path := filepath.Join(dc.dir, entry.name)
	data, err := os.ReadFile(path)
	if err == nil {
		data, err = dc.decoder.DecodeAll(data, nil)
	}
	if err != nil {
		log.Warn("Dropping unreadable cache entry", "file", entry.name, "error", err)
		dc.drop(entry)
		dc.stats.Misses++
		return nil, false
	}

	now := time.Now()
	entry.accessed = now
	_ = os.Chtimes(path, now, now)
	dc.stats.Hits++
	return data, true
}

// Put compresses value and stores it under key.
func (dc *DiskCache) Put(key string, value []byte) error {
	compressed := dc.encoder.EncodeAll(value, nil)
	n := int64(len(compressed))

	dc.mu.Lock()
	defer dc.mu.Unlock()

	if n > dc.capacity {
		return ErrItemTooLarge
	}

	name := fileName(key)
	if existing, ok := dc.files[name]; ok {
		dc.drop(existing)
	}
	for dc.size+n > dc.capacity && len(dc.files) > 0 {
		dc.evictOldest()
	}

	if err := writeAtomic(filepath.Join(dc.dir, name), compressed); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	dc.files[name] = &diskEntry{name: name, size: n, accessed: time.Now()}
	dc.size += n
	return nil
}

// Delete removes key.
func (dc *DiskCache) Delete(key string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if entry, ok := dc.files[fileName(key)]; ok {
		dc.drop(entry)
	}
}

// Prune removes entries not accessed within maxAge.
func (dc *DiskCache) Prune(maxAge time.Duration) int {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	pruned := 0
	for _, entry := range dc.files {
		if entry.accessed.Before(cutoff) {
			dc.drop(entry)
			pruned++
		}
	}
	return pruned
}

// Size returns the number of bytes on disk.
func (dc *DiskCache) Size() int64 {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.size
}

// Stats returns a snapshot of the counters.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	s := dc.stats
	s.Capacity = dc.capacity
	s.Size = dc.size
	s.Items = int64(len(dc.files))
	return s
}

// Close releases the zstd encoder and decoder.
func (dc *DiskCache) Close() error {
	dc.decoder.Close()
	return dc.encoder.Close()
}

// drop must be called with the lock held.
func (dc *DiskCache) drop(entry *diskEntry) {
	os.Remove(filepath.Join(dc.dir, entry.name))
	delete(dc.files, entry.name)
	dc.size -= entry.size
}

func (dc *DiskCache) evictOldest() {
	var oldest *diskEntry
	for _, entry := range dc.files {
		if oldest == nil || entry.accessed.Before(oldest.accessed) {
			oldest = entry
		}
	}
	if oldest != nil {
		dc.drop(oldest)
		dc.stats.Evictions++
	}
}

// writeAtomic writes data to a temp file next to path and renames it.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
